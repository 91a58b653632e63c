// Package config holds the root configuration: JSON5 file plus environment
// overlays for secrets.
package config

import (
	"fmt"

	"github.com/arborlabs/arbor/internal/handlers"
)

// Config is the root configuration for Arbor.
type Config struct {
	Discord   DiscordConfig             `json:"discord"`
	Database  DatabaseConfig            `json:"database,omitempty"`
	Providers map[string]ProviderConfig `json:"providers"`
	Gateway   GatewayConfig             `json:"gateway"`
	Context   ContextConfig             `json:"context"`
	Router    RouterConfig              `json:"router"`
	Handlers  []handlers.Handler        `json:"handlers"`
	Telemetry TelemetryConfig           `json:"telemetry,omitempty"`

	// DefaultHandler must name one of Handlers.
	DefaultHandler string `json:"default_handler"`
	// Timezone label substituted into handler prompts.
	Timezone string `json:"timezone,omitempty"`
}

// DiscordConfig configures the platform connection.
// Token comes from env ARBOR_DISCORD_TOKEN only (never persisted).
type DiscordConfig struct {
	Token string `json:"-"`
	// OwnerIDs may use admin commands anywhere; guild admins can always
	// use them in their own guild.
	OwnerIDs []string `json:"owner_ids,omitempty"`
	// EditIntervalMs throttles streaming message edits. Default 500.
	EditIntervalMs int `json:"edit_interval_ms,omitempty"`
}

// DatabaseConfig selects the storage backend.
// PostgresDSN comes from env ARBOR_POSTGRES_DSN only.
type DatabaseConfig struct {
	// SQLitePath is used when no Postgres DSN is set. Default
	// "data/arbor.db".
	SQLitePath  string `json:"sqlite_path,omitempty"`
	PostgresDSN string `json:"-"`
}

// ProviderConfig describes one completion provider endpoint.
// APIKey comes from env ARBOR_<NAME>_API_KEY only.
type ProviderConfig struct {
	Family  string            `json:"family"` // "openai" or "anthropic"
	BaseURL string            `json:"base_url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	APIKey  string            `json:"-"`
}

// GatewayConfig tunes the outbound completion client.
type GatewayConfig struct {
	DefaultProvider      string  `json:"default_provider"`
	MinRequestIntervalMs int     `json:"min_request_interval_ms,omitempty"` // default 100
	RequestTimeoutSec    int     `json:"request_timeout_sec,omitempty"`     // default 120
	DefaultTemperature   float64 `json:"default_temperature,omitempty"`     // default 0.7
	DefaultMaxTokens     int     `json:"default_max_tokens,omitempty"`      // default 1000
	RetryMaxAttempts     int     `json:"retry_max_attempts,omitempty"`      // default 3
}

// ContextConfig tunes the conversation context store.
type ContextConfig struct {
	DefaultWindow      int      `json:"default_window,omitempty"` // default 10
	MaxWindow          int      `json:"max_window,omitempty"`     // default 50
	CacheTTLMs         int      `json:"cache_ttl_ms,omitempty"`   // default 3000
	SummaryCooldownMin int      `json:"summary_cooldown_min,omitempty"`
	SummaryLookbackHrs int      `json:"summary_lookback_hrs,omitempty"`
	SummaryChunkMin    int      `json:"summary_chunk_min,omitempty"`
	SummaryProvider    string   `json:"summary_provider,omitempty"`
	SummaryModel       string   `json:"summary_model,omitempty"`
	AlternationModels  []string `json:"alternation_models,omitempty"`
}

// RouterConfig tunes routing.
type RouterConfig struct {
	Provider            string  `json:"provider,omitempty"` // classification provider
	Model               string  `json:"model"`              // classification model
	SupportHandler      string  `json:"support_handler,omitempty"`
	SupportPolarity     float64 `json:"support_polarity,omitempty"`
	SupportSubjectivity float64 `json:"support_subjectivity,omitempty"`
}

// TelemetryConfig configures optional OTLP trace export.
type TelemetryConfig struct {
	Enabled  bool   `json:"enabled,omitempty"`
	Endpoint string `json:"endpoint,omitempty"` // host:port
	Protocol string `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure bool   `json:"insecure,omitempty"`
}

// Validate checks cross-field consistency after load.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("no providers configured")
	}
	if _, ok := c.Providers[c.Gateway.DefaultProvider]; !ok {
		return fmt.Errorf("default provider %q is not configured", c.Gateway.DefaultProvider)
	}
	for name, p := range c.Providers {
		if p.Family != "openai" && p.Family != "anthropic" {
			return fmt.Errorf("provider %q: unknown family %q", name, p.Family)
		}
	}
	if len(c.Handlers) == 0 {
		return fmt.Errorf("no handlers configured")
	}
	for _, h := range c.Handlers {
		if _, ok := c.Providers[h.Provider]; !ok {
			return fmt.Errorf("handler %q: provider %q is not configured", h.Name, h.Provider)
		}
	}
	if c.Router.Model == "" {
		return fmt.Errorf("router model is required")
	}
	return nil
}
