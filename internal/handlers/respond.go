package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arborlabs/arbor/internal/contextstore"
	"github.com/arborlabs/arbor/internal/gateway"
)

// Streamer is the slice of the gateway a handler response needs.
type Streamer interface {
	Stream(ctx context.Context, provider string, req gateway.Request) (*gateway.Stream, error)
}

// ReplySink delivers a reply to the platform. Update may be called
// repeatedly with the growing cumulative text; Finalize is called exactly
// once with the complete text. Both return the id of the first platform
// message carrying the reply.
type ReplySink interface {
	Update(ctx context.Context, content string) (string, error)
	Finalize(ctx context.Context, content, emotion string) (string, error)
}

// InboundMessage carries the platform fields a response needs.
type InboundMessage struct {
	MessageID   string
	ChannelID   string
	GuildID     string
	UserID      string
	AuthorName  string
	ServerName  string
	ChannelName string
	Content     string
	ImageURLs   []string
}

// Responder drives one handler against one inbound message: reads context,
// streams the completion, surfaces partial text, and persists the finished
// turn.
type Responder struct {
	gw           Streamer
	context      *contextstore.Store
	editInterval time.Duration
	timezone     string
}

// NewResponder wires a responder. editInterval throttles partial updates
// to the platform; zero means 500ms.
func NewResponder(gw Streamer, ctxStore *contextstore.Store, editInterval time.Duration, timezone string) *Responder {
	if editInterval <= 0 {
		editInterval = 500 * time.Millisecond
	}
	return &Responder{gw: gw, context: ctxStore, editInterval: editInterval, timezone: timezone}
}

// Respond generates and delivers the handler's reply. The reply text shown
// on the platform carries a "[Name] " prefix; the stored assistant turn
// does not.
func (r *Responder) Respond(ctx context.Context, h *Handler, in InboundMessage, sink ReplySink) error {
	history, err := r.context.Read(ctx, in.ChannelID, contextstore.ReadOptions{
		ExcludeMessageID: in.MessageID,
		ModelID:          h.Model,
	})
	if err != nil {
		return fmt.Errorf("read context: %w", err)
	}

	messages := make([]gateway.Message, 0, len(history)+2)
	if h.Prompt != "" {
		messages = append(messages, gateway.Message{
			Role: gateway.RoleSystem,
			Content: RenderPrompt(h.Prompt, PromptVars{
				ModelID:     h.Model,
				Username:    in.AuthorName,
				UserID:      in.UserID,
				ServerName:  in.ServerName,
				ChannelName: in.ChannelName,
				Timezone:    r.timezone,
			}),
		})
	}
	messages = append(messages, history...)

	userTurn := gateway.Message{Role: gateway.RoleUser, Content: in.Content}
	if h.SupportsVision {
		userTurn.ImageURLs = in.ImageURLs
	}
	messages = append(messages, userTurn)

	stream, err := r.gw.Stream(ctx, h.Provider, gateway.Request{
		Model:       h.Model,
		Messages:    messages,
		Temperature: h.Temperature,
		MaxTokens:   h.MaxTokens,
		Tags:        map[string]string{"handler": h.Name, "channel_id": in.ChannelID},
		UserID:      in.UserID,
		GuildID:     in.GuildID,
	})
	if err != nil {
		return err
	}

	prefix := "[" + h.Name + "] "
	var text string
	var replyID string
	lastEdit := time.Now()

	for {
		frag, ok := stream.Next()
		if !ok {
			break
		}
		if frag.Content == "" {
			continue
		}
		text += frag.Content
		if time.Since(lastEdit) < r.editInterval {
			continue
		}
		lastEdit = time.Now()
		id, err := sink.Update(ctx, prefix+text)
		if err != nil {
			slog.Warn("partial reply update failed",
				"handler", h.Name, "channel_id", in.ChannelID, "error", err)
			continue
		}
		if replyID == "" {
			replyID = id
		}
		// Keep the stored assistant row current while streaming so a
		// concurrent read in the channel sees the partial reply.
		r.appendReply(ctx, h, in, replyID, text, "")
	}
	if err := stream.Err(); err != nil {
		return err
	}
	if text == "" {
		return &gateway.InvalidProviderResponse{Provider: h.Provider, Detail: "empty completion"}
	}

	emotion := AnalyzeEmotion(text)
	id, err := sink.Finalize(ctx, prefix+text, emotion)
	if err != nil {
		return fmt.Errorf("deliver reply: %w", err)
	}
	if replyID == "" {
		replyID = id
	}
	r.appendReply(ctx, h, in, replyID, text, emotion)
	return nil
}

func (r *Responder) appendReply(ctx context.Context, h *Handler, in InboundMessage, replyID, text, emotion string) {
	if replyID == "" {
		return
	}
	err := r.context.Append(ctx, contextstore.Turn{
		MessageID:   replyID,
		ChannelID:   in.ChannelID,
		GuildID:     in.GuildID,
		UserID:      in.UserID,
		Content:     text,
		IsAssistant: true,
		PersonaName: h.Name,
		Emotion:     emotion,
	})
	if err != nil {
		slog.Warn("assistant turn append failed",
			"handler", h.Name, "channel_id", in.ChannelID, "error", err)
	}
}
