package gateway

// Stream is a lazy, single-consumption sequence of response fragments.
// Fragments are produced no faster than the consumer drains them; a consumer
// that never finishes iterating never triggers the post-stream log write.
type Stream struct {
	frags chan Fragment
	err   error // set by the producer before frags is closed
}

func newStream() *Stream {
	return &Stream{frags: make(chan Fragment)}
}

// Next returns the next fragment. ok is false once the stream is exhausted
// or failed; check Err afterwards.
func (s *Stream) Next() (frag Fragment, ok bool) {
	frag, ok = <-s.frags
	return frag, ok
}

// Err reports a mid-stream failure. Only meaningful after Next returned
// ok=false.
func (s *Stream) Err() error { return s.err }

// Collect drains the stream and returns the concatenated content, including
// any citation trailer. Tool-call fragments contribute their raw arguments.
func (s *Stream) Collect() (string, error) {
	var text string
	for {
		frag, ok := s.Next()
		if !ok {
			return text, s.Err()
		}
		text += frag.Content
		if frag.ToolName != "" {
			text += frag.ToolArgs
		}
	}
}
