package contextstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/arborlabs/arbor/internal/gateway"
	"github.com/arborlabs/arbor/internal/store"
)

const summaryPrompt = "You summarize chat history. Produce a concise third-person " +
	"summary of the conversation below, keeping names, decisions, and open " +
	"questions. Respond with the summary only."

// summarizerState serializes summarization per channel and throttles how
// often it runs.
type summarizerState struct {
	mu          sync.Mutex
	lastAttempt time.Time
}

func (s *Store) summarizerFor(channelID string) *summarizerState {
	v, _ := s.summarizers.LoadOrStore(channelID, &summarizerState{})
	return v.(*summarizerState)
}

// Summarize condenses closed hour-long chunks of the channel's older
// history into ChatSummary rows and reports how many summaries it wrote.
// It is a no-op when no summary model is configured, when called again
// within the cooldown (unless forced), or when no chunk has closed yet.
// Chunks never overlap: each new summary starts where the previous one
// ended.
func (s *Store) Summarize(ctx context.Context, channelID string, force bool) (int, error) {
	if s.completer == nil || s.cfg.SummaryModel == "" {
		return 0, nil
	}

	st := s.summarizerFor(channelID)
	st.mu.Lock()
	defer st.mu.Unlock()

	now := time.Now().UTC()
	if !force && now.Sub(st.lastAttempt) < s.cfg.SummaryCooldown {
		return 0, nil
	}
	st.lastAttempt = now

	latest, err := s.summaries.Latest(ctx, channelID)
	if err != nil {
		return 0, err
	}
	start := now.Add(-s.cfg.SummaryLookback)
	if latest != nil && latest.EndTS.After(start) {
		start = latest.EndTS
	}

	// Summarize every closed chunk since the last summary in one pass so a
	// quiet channel catches up instead of trailing one chunk per call.
	written := 0
	for end := start.Add(s.cfg.SummaryChunk); !end.After(now); start, end = end, end.Add(s.cfg.SummaryChunk) {
		msgs, err := s.messages.Since(ctx, channelID, start)
		if err != nil {
			return written, err
		}
		// Chunks cover (start, end]: Since is exclusive at start, so the
		// boundary message belongs to the chunk that ends on it.
		var chunk []store.Message
		for _, m := range msgs {
			if !m.CreatedAt.After(end) {
				chunk = append(chunk, m)
			}
		}
		if len(chunk) == 0 {
			continue
		}

		text, err := s.summarizeChunk(ctx, chunk)
		if err != nil {
			return written, fmt.Errorf("summarize channel %s: %w", channelID, err)
		}
		if text == "" {
			continue
		}
		if err := s.summaries.Insert(ctx, store.Summary{
			ChannelID: channelID,
			StartTS:   start,
			EndTS:     end,
			Text:      text,
		}); err != nil {
			return written, err
		}
		written++
		slog.Info("context: summarized chunk",
			"channel_id", channelID, "start", start, "end", end, "messages", len(chunk))
	}
	return written, nil
}

func (s *Store) summarizeChunk(ctx context.Context, chunk []store.Message) (string, error) {
	var b strings.Builder
	for _, m := range chunk {
		speaker := "User"
		if m.IsAssistant {
			speaker = "Assistant"
			if m.PersonaName != "" {
				speaker = m.PersonaName
			}
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, m.Content)
	}

	res, err := s.completer.Complete(ctx, s.cfg.SummaryProvider, gateway.Request{
		Model: s.cfg.SummaryModel,
		Messages: []gateway.Message{
			{Role: gateway.RoleSystem, Content: summaryPrompt},
			{Role: gateway.RoleUser, Content: b.String()},
		},
		Temperature: 0.3,
		MaxTokens:   400,
		Tags:        map[string]string{"purpose": "summary"},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Content), nil
}
