// Package router decides which handler answers an inbound message. It owns
// channel activation state, the processed-message set, loop detection, and
// the bypass rules; classification itself is delegated to a model call.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/arborlabs/arbor/internal/handlers"
	"github.com/arborlabs/arbor/internal/store"
)

const (
	processedCapacity = 4096
	loopThreshold     = 3

	// DMGuildKey stands in for the guild id when a channel is a DM.
	DMGuildKey = "DM"
)

// RoutingTargetUnavailable is terminal: the decided handler and the default
// are both non-dispatchable, so no dispatch happens.
type RoutingTargetUnavailable struct {
	Target string
}

func (e *RoutingTargetUnavailable) Error() string {
	return fmt.Sprintf("routing target %q unavailable and no default handler can serve", e.Target)
}

// Inbound is the platform message shape the router sees.
type Inbound struct {
	MessageID    string
	ChannelID    string
	GuildID      string // empty for DMs
	AuthorID     string
	AuthorName   string
	AuthorIsBot  bool
	IsDM         bool
	MentionsSelf bool
	Content      string
	ImageURLs    []string
}

// Decision is the routing outcome for one eligible message.
type Decision struct {
	Handler      *handlers.Handler
	Rationale    string
	Polarity     float64
	Subjectivity float64
}

// Config tunes the router.
type Config struct {
	// SupportHandler receives strongly negative, strongly subjective
	// messages without classification. Empty disables the pre-route.
	SupportHandler string
	// Thresholds for the sentiment pre-route.
	SupportPolarity     float64 // route when polarity <= this; default -0.5
	SupportSubjectivity float64 // and subjectivity >= this; default 0.6

	// Available reports whether a handler can be dispatched to right now.
	// Nil means every registered handler is available.
	Available func(h *handlers.Handler) bool
}

// Router routes inbound messages to handlers.
type Router struct {
	cfg        Config
	registry   *handlers.Registry
	activation store.ActivationStore
	classifier Classifier
	selfID     string

	processed *ringSet

	mu      sync.Mutex
	streaks map[string]*streak // by channel id
}

type streak struct {
	target string
	count  int
}

// New builds a router. selfID is the bot's own user id, used to ignore our
// own messages.
func New(cfg Config, registry *handlers.Registry, activation store.ActivationStore, classifier Classifier, selfID string) *Router {
	if cfg.SupportPolarity == 0 {
		cfg.SupportPolarity = -0.5
	}
	if cfg.SupportSubjectivity == 0 {
		cfg.SupportSubjectivity = 0.6
	}
	return &Router{
		cfg:        cfg,
		registry:   registry,
		activation: activation,
		classifier: classifier,
		selfID:     selfID,
		processed:  newRingSet(processedCapacity),
		streaks:    make(map[string]*streak),
	}
}

// Evaluate runs the full routing procedure. A nil Decision with nil error
// means the message is not eligible and should be silently ignored.
func (r *Router) Evaluate(ctx context.Context, in Inbound) (*Decision, error) {
	if in.AuthorIsBot || in.AuthorID == r.selfID {
		return nil, nil
	}
	if !r.processed.Add(in.MessageID) {
		return nil, nil
	}

	// Trigger words name a handler explicitly and bypass classification.
	if h, ok := r.registry.ByTrigger(in.Content); ok {
		return r.finish(in.ChannelID, h, "trigger word", Sentiment{})
	}

	eligible, err := r.eligible(ctx, in)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, nil
	}

	sent := AnalyzeSentiment(in.Content)
	if r.cfg.SupportHandler != "" &&
		sent.Polarity <= r.cfg.SupportPolarity &&
		sent.Subjectivity >= r.cfg.SupportSubjectivity {
		if h, ok := r.registry.Lookup(r.cfg.SupportHandler); ok {
			return r.finish(in.ChannelID, h, "sentiment pre-route", sent)
		}
	}

	raw, err := r.classifier.Classify(ctx, in.Content, sent)
	if err != nil {
		// Classifier trouble never reaches the user; fall back.
		slog.Warn("classification failed, using default handler",
			"channel_id", in.ChannelID, "error", err)
		return r.finish(in.ChannelID, r.registry.Default(), "classifier error", sent)
	}

	name := ExtractHandlerName(raw)
	h, ok := r.registry.Resolve(name)
	rationale := "classified as " + name
	if !ok {
		h = r.registry.Default()
		rationale = fmt.Sprintf("unknown handler %q, using default", name)
	}
	return r.finish(in.ChannelID, h, rationale, sent)
}

// Activate marks the channel so every message in it is eligible.
func (r *Router) Activate(ctx context.Context, in Inbound) error {
	return r.activation.Activate(ctx, store.Activation{
		GuildID:     guildKey(in),
		ChannelID:   in.ChannelID,
		ActivatedBy: in.AuthorID,
	})
}

// Deactivate removes the channel's activation.
func (r *Router) Deactivate(ctx context.Context, in Inbound) error {
	return r.activation.Deactivate(ctx, guildKey(in), in.ChannelID)
}

func (r *Router) eligible(ctx context.Context, in Inbound) (bool, error) {
	if in.IsDM || in.MentionsSelf {
		return true, nil
	}
	active, err := r.activation.IsActive(ctx, guildKey(in), in.ChannelID)
	if err != nil {
		return false, err
	}
	return active, nil
}

// finish applies loop breaking and the availability fallback chain, then
// records the dispatch in the channel streak.
func (r *Router) finish(channelID string, h *handlers.Handler, rationale string, sent Sentiment) (*Decision, error) {
	r.mu.Lock()
	st, ok := r.streaks[channelID]
	if !ok {
		st = &streak{}
		r.streaks[channelID] = st
	}
	if st.target == h.Name && st.count >= loopThreshold {
		slog.Info("routing loop broken",
			"channel_id", channelID, "handler", h.Name, "streak", st.count)
		h = r.registry.Default()
		rationale = "loop broken, using default"
		st.target, st.count = "", 0
	}
	r.mu.Unlock()

	h, rationale, err := r.fallback(h, rationale)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if st.target == h.Name {
		st.count++
	} else {
		st.target, st.count = h.Name, 1
	}
	r.mu.Unlock()

	return &Decision{
		Handler:      h,
		Rationale:    rationale,
		Polarity:     sent.Polarity,
		Subjectivity: sent.Subjectivity,
	}, nil
}

func (r *Router) fallback(h *handlers.Handler, rationale string) (*handlers.Handler, string, error) {
	if r.available(h) {
		return h, rationale, nil
	}
	def := r.registry.Default()
	if h != def && r.available(def) {
		return def, fmt.Sprintf("%s; %q unavailable, using default", rationale, h.Name), nil
	}
	return nil, "", &RoutingTargetUnavailable{Target: h.Name}
}

func (r *Router) available(h *handlers.Handler) bool {
	if r.cfg.Available == nil {
		return true
	}
	return r.cfg.Available(h)
}

func guildKey(in Inbound) string {
	if in.IsDM || in.GuildID == "" {
		return DMGuildKey
	}
	return in.GuildID
}
