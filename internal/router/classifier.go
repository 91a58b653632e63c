package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/arborlabs/arbor/internal/gateway"
)

// Classifier decides which handler name a message should go to. The returned
// string is raw model output; the router normalizes it.
type Classifier interface {
	Classify(ctx context.Context, content string, sent Sentiment) (string, error)
}

// Streamer is the slice of the gateway the classifier needs.
type Streamer interface {
	Stream(ctx context.Context, provider string, req gateway.Request) (*gateway.Stream, error)
}

const classifierPrompt = `You are a message router. Choose which handler should answer the user's message.
Available handlers:
%s
Reply with exactly one handler name wrapped in tags, like <handler>name</handler>. No other text.`

// GatewayClassifier asks a cheap model which handler fits, streaming the
// answer and accumulating it into one raw decision string.
type GatewayClassifier struct {
	gw       Streamer
	provider string
	model    string
	roster   string
}

// NewGatewayClassifier builds a classifier over the given handler names.
func NewGatewayClassifier(gw Streamer, provider, model string, handlerNames []string) *GatewayClassifier {
	var b strings.Builder
	for _, n := range handlerNames {
		fmt.Fprintf(&b, "- %s\n", n)
	}
	return &GatewayClassifier{gw: gw, provider: provider, model: model, roster: b.String()}
}

func (c *GatewayClassifier) Classify(ctx context.Context, content string, sent Sentiment) (string, error) {
	stream, err := c.gw.Stream(ctx, c.provider, gateway.Request{
		Model: c.model,
		Messages: []gateway.Message{
			{Role: gateway.RoleSystem, Content: fmt.Sprintf(classifierPrompt, c.roster)},
			{Role: gateway.RoleUser, Content: fmt.Sprintf(
				"Message: %s\nSentiment: polarity=%.2f subjectivity=%.2f",
				content, sent.Polarity, sent.Subjectivity)},
		},
		Temperature: 0.1,
		MaxTokens:   20,
		Tags:        map[string]string{"purpose": "routing"},
	})
	if err != nil {
		return "", err
	}
	return stream.Collect()
}
