package gateway

import "time"

// Valid chat roles. Messages with any other role are dropped with a warning
// before the request is sent.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one conversation turn sent to a completion provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// ImageURLs are remote image references attached to this turn. The client
	// fetches and inlines them before the provider call; a reference that
	// cannot be fetched is dropped, the rest of the message survives.
	ImageURLs []string `json:"image_urls,omitempty"`

	// Images are inline base64 payloads, populated by normalization.
	Images []ImagePart `json:"images,omitempty"`
}

// ImagePart is an inline base64-encoded image attached to a message.
type ImagePart struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Request is the provider-independent completion call shape.
type Request struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`

	// Temperature of 0 means the client default is applied.
	Temperature float64 `json:"temperature,omitempty"`
	// MaxTokens of 0 means the client default is applied.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Tags are recorded verbatim in the interaction log.
	Tags    map[string]string `json:"tags,omitempty"`
	UserID  string            `json:"user_id,omitempty"`
	GuildID string            `json:"guild_id,omitempty"`
}

// Result is a completed (non-streaming or fully drained) provider response.
type Result struct {
	Content      string   `json:"content"`
	Citations    []string `json:"citations,omitempty"`
	FinishReason string   `json:"finish_reason"`
	Usage        *Usage   `json:"usage,omitempty"`
}

// Usage tracks token consumption reported by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Fragment is one piece of a streaming response: either content text or an
// accumulated tool-call emission.
type Fragment struct {
	Content  string `json:"content,omitempty"`
	ToolName string `json:"tool_name,omitempty"`
	ToolArgs string `json:"tool_args,omitempty"`
}

// Interaction is one append-only row in the gateway call log. Never mutated.
type Interaction struct {
	RequestedAt time.Time         `json:"requested_at"`
	ReceivedAt  time.Time         `json:"received_at"`
	Model       string            `json:"model"`
	Request     []byte            `json:"request"`
	Response    []byte            `json:"response"`
	StatusCode  int               `json:"status_code"`
	Tags        map[string]string `json:"tags,omitempty"`
	UserID      string            `json:"user_id,omitempty"`
	GuildID     string            `json:"guild_id,omitempty"`
}

// InteractionLogger persists gateway interactions. Logging failures are
// swallowed by the client and never fail the caller's result.
type InteractionLogger interface {
	Append(interaction Interaction) error
}
