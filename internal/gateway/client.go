package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// ProviderConfig declares one upstream completion provider.
type ProviderConfig struct {
	Name    string            `json:"name"`
	Family  string            `json:"family"` // "openai" or "anthropic"
	APIKey  string            `json:"-"`      // env only, never persisted
	BaseURL string            `json:"base_url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Config holds gateway client settings.
type Config struct {
	Providers          []ProviderConfig `json:"providers"`
	DefaultProvider    string           `json:"default_provider"`
	MinRequestInterval time.Duration    `json:"-"`
	RequestTimeout     time.Duration    `json:"-"`
	DefaultTemperature float64          `json:"default_temperature,omitempty"`
	DefaultMaxTokens   int              `json:"default_max_tokens,omitempty"`
	Retry              RetryConfig      `json:"-"`
}

// Client is the outbound connector to completion providers. One instance is
// constructed at startup and injected everywhere a completion is needed.
type Client struct {
	providers       map[string]provider
	defaultProvider string
	limiter         *rate.Limiter
	httpClient      *http.Client
	log             InteractionLogger
	tracer          trace.Tracer

	defaultTemperature float64
	defaultMaxTokens   int
}

// New builds a Client from config. logger may be nil, in which case
// interactions are not persisted.
func New(cfg Config, logger InteractionLogger) (*Client, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("gateway: no providers configured")
	}

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryConfig()
	}

	interval := cfg.MinRequestInterval
	if interval == 0 {
		interval = 100 * time.Millisecond
	}

	c := &Client{
		providers:          make(map[string]provider, len(cfg.Providers)),
		defaultProvider:    cfg.DefaultProvider,
		limiter:            rate.NewLimiter(rate.Every(interval), 1),
		httpClient:         httpClient,
		log:                logger,
		tracer:             otel.Tracer("arbor/gateway"),
		defaultTemperature: cfg.DefaultTemperature,
		defaultMaxTokens:   cfg.DefaultMaxTokens,
	}
	if c.defaultTemperature == 0 {
		c.defaultTemperature = 0.7
	}
	if c.defaultMaxTokens == 0 {
		c.defaultMaxTokens = 1000
	}

	for _, pc := range cfg.Providers {
		switch pc.Family {
		case "openai", "":
			c.providers[pc.Name] = newOpenAIProvider(pc.Name, pc.APIKey, pc.BaseURL, pc.Headers, httpClient, retry)
		case "anthropic":
			c.providers[pc.Name] = newAnthropicProvider(pc.APIKey, pc.BaseURL, httpClient, retry)
		default:
			return nil, fmt.Errorf("gateway: unknown provider family %q for %q", pc.Family, pc.Name)
		}
	}
	if c.defaultProvider == "" {
		c.defaultProvider = cfg.Providers[0].Name
	}
	if _, ok := c.providers[c.defaultProvider]; !ok {
		return nil, fmt.Errorf("gateway: default provider %q not configured", c.defaultProvider)
	}

	return c, nil
}

// Complete blocks for a full response from the named provider (empty name
// selects the default).
func (c *Client) Complete(ctx context.Context, providerName string, req Request) (*Result, error) {
	p, prepared, err := c.prepare(ctx, providerName, req)
	if err != nil {
		return nil, err
	}

	ctx, span := c.startSpan(ctx, "gateway.complete", p.name(), prepared.Model, false)
	defer span.End()

	requestedAt := time.Now()
	result, err := p.complete(ctx, prepared)
	receivedAt := time.Now()

	if err != nil {
		c.recordError(span, err)
		c.logFailure(prepared, requestedAt, receivedAt, err)
		return nil, err
	}

	c.logSuccess(prepared, requestedAt, receivedAt, result, false)
	return withCitationTrailer(result), nil
}

// Stream starts a streaming completion and returns a lazy fragment sequence.
// The rate gate is passed before this returns, so callers queue here rather
// than burst. The accumulated text is logged once the consumer exhausts the
// stream; citations arrive as a trailer fragment after the last content
// fragment and are included in the log.
func (c *Client) Stream(ctx context.Context, providerName string, req Request) (*Stream, error) {
	p, prepared, err := c.prepare(ctx, providerName, req)
	if err != nil {
		return nil, err
	}

	s := newStream()
	requestedAt := time.Now()

	go func() {
		ctx, span := c.startSpan(ctx, "gateway.stream", p.name(), prepared.Model, true)
		defer span.End()

		result, err := p.stream(ctx, prepared, func(frag Fragment) bool {
			select {
			case s.frags <- frag:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err != nil {
			c.recordError(span, err)
			s.err = err
			close(s.frags)
			c.logFailure(prepared, requestedAt, time.Now(), err)
			return
		}

		if trailer := citationTrailer(result.Citations); trailer != "" {
			result.Content += trailer
			select {
			case s.frags <- Fragment{Content: trailer}:
			case <-ctx.Done():
			}
		}
		close(s.frags)

		c.logSuccess(prepared, requestedAt, time.Now(), result, true)
	}()

	return s, nil
}

// prepare validates and normalizes a request and passes the global rate gate.
func (c *Client) prepare(ctx context.Context, providerName string, req Request) (provider, Request, error) {
	if providerName == "" {
		providerName = c.defaultProvider
	}
	p, ok := c.providers[providerName]
	if !ok {
		return nil, req, fmt.Errorf("gateway: unknown provider %q", providerName)
	}
	if len(req.Messages) == 0 {
		return nil, req, errors.New("gateway: empty message list")
	}

	req.Messages = normalizeRoles(req.Messages)
	if len(req.Messages) == 0 {
		return nil, req, errors.New("gateway: no messages with valid roles")
	}
	req.Messages = c.normalizeImages(ctx, req.Messages)

	if req.Temperature == 0 {
		req.Temperature = c.defaultTemperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = c.defaultMaxTokens
	}

	// Serializes the spacing decision only; calls proceed concurrently
	// once spaced.
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, req, err
	}
	return p, req, nil
}

// normalizeRoles drops messages whose role is not one of the valid four.
// A dropped role warns but never fails the call.
func normalizeRoles(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		role := strings.ToLower(m.Role)
		switch role {
		case RoleSystem, RoleUser, RoleAssistant, RoleTool:
			m.Role = role
			out = append(out, m)
		default:
			slog.Warn("gateway: dropping message with invalid role", "role", m.Role)
		}
	}
	return out
}

func citationTrailer(citations []string) string {
	if len(citations) == 0 {
		return ""
	}
	trailer := "\n\n**Sources:**"
	for i, c := range citations {
		trailer += fmt.Sprintf("\n[%d] %s", i+1, c)
	}
	return trailer
}

func withCitationTrailer(result *Result) *Result {
	if trailer := citationTrailer(result.Citations); trailer != "" {
		result.Content += trailer
	}
	return result
}

func (c *Client) startSpan(ctx context.Context, name, providerName, model string, streaming bool) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("gateway.provider", providerName),
		attribute.String("gateway.model", model),
		attribute.Bool("gateway.streaming", streaming),
	))
}

func (c *Client) recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func (c *Client) logSuccess(req Request, requestedAt, receivedAt time.Time, result *Result, streaming bool) {
	resp, err := json.Marshal(result)
	if err != nil {
		resp = []byte(fmt.Sprintf("%q", result.Content))
	}
	c.appendLog(req, requestedAt, receivedAt, resp, http.StatusOK, streaming)
}

func (c *Client) logFailure(req Request, requestedAt, receivedAt time.Time, callErr error) {
	status := 0
	var he *HTTPError
	if errors.As(callErr, &he) {
		status = he.Status
	}
	resp, _ := json.Marshal(map[string]string{"error": callErr.Error()})
	c.appendLog(req, requestedAt, receivedAt, resp, status, false)
}

// appendLog writes one interaction row. Failures are swallowed: the log is
// best-effort and never fails the caller's result.
func (c *Client) appendLog(req Request, requestedAt, receivedAt time.Time, response []byte, status int, streaming bool) {
	if c.log == nil {
		return
	}

	tags := make(map[string]string, len(req.Tags)+1)
	for k, v := range req.Tags {
		tags[k] = v
	}
	tags["streaming"] = fmt.Sprintf("%t", streaming)

	reqJSON, err := json.Marshal(redactImages(req))
	if err != nil {
		reqJSON = []byte("{}")
	}

	logErr := c.log.Append(Interaction{
		RequestedAt: requestedAt,
		ReceivedAt:  receivedAt,
		Model:       req.Model,
		Request:     reqJSON,
		Response:    response,
		StatusCode:  status,
		Tags:        tags,
		UserID:      req.UserID,
		GuildID:     req.GuildID,
	})
	if logErr != nil {
		slog.Warn("gateway: failed to append interaction log", "error", logErr)
	}
}

// redactImages replaces inline base64 payloads with a size placeholder so
// the interaction log stays readable.
func redactImages(req Request) Request {
	out := req
	out.Messages = make([]Message, len(req.Messages))
	copy(out.Messages, req.Messages)
	for i := range out.Messages {
		if len(out.Messages[i].Images) == 0 {
			continue
		}
		redacted := make([]ImagePart, len(out.Messages[i].Images))
		for j, img := range out.Messages[i].Images {
			redacted[j] = ImagePart{
				MimeType: img.MimeType,
				Data:     fmt.Sprintf("[base64 %s, %d bytes]", img.MimeType, len(img.Data)),
			}
		}
		out.Messages[i].Images = redacted
	}
	return out
}
