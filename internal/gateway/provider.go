package gateway

import "context"

// provider translates the gateway call shape to one concrete provider family.
// Requests arrive normalized: images inlined, roles validated, temperature
// and max_tokens resolved.
type provider interface {
	name() string

	// complete blocks for a full response.
	complete(ctx context.Context, req Request) (*Result, error)

	// stream emits fragments as they arrive and returns the accumulated
	// result once the provider stream ends. emit returning false aborts
	// the stream.
	stream(ctx context.Context, req Request, emit func(Fragment) bool) (*Result, error)
}
