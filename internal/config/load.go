package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/titanous/json5"

	"github.com/arborlabs/arbor/internal/handlers"
)

// defaultPrompt is the shared persona template. Handlers may override it
// per entry in the config file.
const defaultPrompt = `You are {MODEL_ID}, one of several assistants in the {SERVER_NAME} Discord server, speaking in #{CHANNEL_NAME}.
You are talking with {USERNAME} (id {DISCORD_USER_ID}). The current time is {TIME} {TZ}.
Answer conversationally and keep replies under 2000 characters.`

// Default returns a Config with the stock provider endpoints and handler
// roster. Secrets still have to come from the environment.
func Default() *Config {
	return &Config{
		Discord: DiscordConfig{
			EditIntervalMs: 500,
		},
		Database: DatabaseConfig{
			SQLitePath: "data/arbor.db",
		},
		Providers: map[string]ProviderConfig{
			"openrouter": {
				Family:  "openai",
				BaseURL: "https://openrouter.ai/api/v1",
			},
			"openpipe": {
				Family:  "openai",
				BaseURL: "https://api.openpipe.ai/api/v1",
			},
			"anthropic": {
				Family:  "anthropic",
				BaseURL: "https://api.anthropic.com/v1",
			},
		},
		Gateway: GatewayConfig{
			DefaultProvider:      "openrouter",
			MinRequestIntervalMs: 100,
			RequestTimeoutSec:    120,
			DefaultTemperature:   0.7,
			DefaultMaxTokens:     1000,
			RetryMaxAttempts:     3,
		},
		Context: ContextConfig{
			DefaultWindow:      10,
			MaxWindow:          50,
			CacheTTLMs:         3000,
			SummaryCooldownMin: 5,
			SummaryLookbackHrs: 24,
			SummaryChunkMin:    60,
			SummaryProvider:    "openrouter",
			SummaryModel:       "meta-llama/llama-3.1-8b-instruct",
		},
		Router: RouterConfig{
			Provider:            "openrouter",
			Model:               "mistralai/ministral-3b",
			SupportHandler:      "Hermes",
			SupportPolarity:     -0.5,
			SupportSubjectivity: 0.6,
		},
		Handlers:       defaultHandlers(),
		DefaultHandler: "GPT4o",
		Timezone:       "UTC",
	}
}

func defaultHandlers() []handlers.Handler {
	h := func(name, model, provider string, triggers []string, vision bool) handlers.Handler {
		return handlers.Handler{
			Name:           name,
			Model:          model,
			Provider:       provider,
			TriggerWords:   triggers,
			Prompt:         defaultPrompt,
			Temperature:    0.7,
			MaxTokens:      1000,
			SupportsVision: vision,
		}
	}
	return []handlers.Handler{
		h("GPT4o", "openai/gpt-4o", "openrouter", []string{"gpt4o", "gpt-4o"}, true),
		h("Claude3Sonnet", "claude-3-5-sonnet-20241022", "anthropic", []string{"sonnet", "claude3sonnet"}, true),
		h("Claude3Haiku", "claude-3-haiku-20240307", "anthropic", []string{"haiku"}, false),
		h("GeminiPro", "google/gemini-pro-vision", "openrouter", []string{"gemini", "geminipro"}, true),
		h("Hermes", "nousresearch/hermes-3-llama-3.1-405b:free", "openrouter", []string{"hermes"}, false),
		h("LlamaVision", "groq/llama-3.2-90b-vision-preview", "openpipe", []string{"llamavision", "describe this image"}, true),
		h("Management", "meta-llama/llama-3.1-405b-instruct", "openrouter", nil, false),
		h("Mythomax", "gryphe/mythomax-l2-13b", "openrouter", []string{"mythomax"}, false),
		h("Sydney", "Sydney-Court", "openpipe", []string{"sydney"}, false),
		h("Unslop", "infermatic/TheDrummer-UnslopNemo-12B-v4.1", "openpipe", []string{"unslop", "unslopnemo"}, false),
		h("Magnum", "anthracite-org/magnum-v4-72b", "openrouter", []string{"magnum"}, false),
		h("Nemotron", "nvidia/llama-3.1-nemotron-70b-instruct", "openrouter", []string{"nemotron"}, false),
		h("Rocinante", "thedrummer/rocinante-12b", "openrouter", []string{"rocinante"}, false),
		h("Ministral", "mistralai/ministral-8b", "openrouter", []string{"ministral"}, false),
		h("Liquid", "liquid/lfm-40b", "openrouter", []string{"liquid"}, false),
		h("Sonar", "perplexity/llama-3.1-sonar-large-128k-online", "openrouter", []string{"sonar"}, false),
		h("Grok", "x-ai/grok-beta", "openrouter", []string{"grok"}, false),
		h("Noromaid", "neversleep/noromaid-20b", "openrouter", []string{"noromaid"}, false),
		h("Openchat", "openchat/openchat-7b:free", "openrouter", []string{"openchat"}, false),
		h("Goliath", "alpindale/goliath-120b", "openrouter", []string{"goliath"}, false),
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Secrets are
// env-only; env always wins over file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ARBOR_DISCORD_TOKEN"); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv("ARBOR_POSTGRES_DSN"); v != "" {
		c.Database.PostgresDSN = v
	}
	if v := os.Getenv("ARBOR_SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	for name, p := range c.Providers {
		key := "ARBOR_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_API_KEY"
		if v := os.Getenv(key); v != "" {
			p.APIKey = v
			c.Providers[name] = p
		}
	}
	if v := os.Getenv("ARBOR_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Enabled = true
		c.Telemetry.Endpoint = v
	}
}
