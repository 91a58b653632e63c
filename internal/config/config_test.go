package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	// The default handler and support handler both exist in the roster.
	names := make(map[string]bool)
	for _, h := range cfg.Handlers {
		names[h.Name] = true
	}
	if !names[cfg.DefaultHandler] {
		t.Errorf("default handler %q missing from roster", cfg.DefaultHandler)
	}
	if !names[cfg.Router.SupportHandler] {
		t.Errorf("support handler %q missing from roster", cfg.Router.SupportHandler)
	}
}

func TestValidateRejectsBrokenConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no providers", func(c *Config) { c.Providers = nil }},
		{"unknown default provider", func(c *Config) { c.Gateway.DefaultProvider = "missing" }},
		{"bad family", func(c *Config) {
			p := c.Providers["openrouter"]
			p.Family = "grpc"
			c.Providers["openrouter"] = p
		}},
		{"no handlers", func(c *Config) { c.Handlers = nil }},
		{"handler with unknown provider", func(c *Config) { c.Handlers[0].Provider = "missing" }},
		{"no router model", func(c *Config) { c.Router.Model = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate passed on broken config")
			}
		})
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json5"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.DefaultProvider != "openrouter" {
		t.Errorf("default provider = %q", cfg.Gateway.DefaultProvider)
	}
	if len(cfg.Handlers) == 0 {
		t.Error("no default handlers")
	}
}

func TestLoadJSON5Overlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	// JSON5: comments and trailing commas are allowed.
	content := `{
		// narrow the window for this deployment
		context: {
			default_window: 6,
		},
		router: {
			model: "mistralai/ministral-8b",
		},
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Context.DefaultWindow != 6 {
		t.Errorf("default window = %d, want 6", cfg.Context.DefaultWindow)
	}
	if cfg.Router.Model != "mistralai/ministral-8b" {
		t.Errorf("router model = %q", cfg.Router.Model)
	}
	// Untouched sections keep their defaults.
	if cfg.Gateway.DefaultProvider != "openrouter" {
		t.Errorf("default provider = %q", cfg.Gateway.DefaultProvider)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARBOR_DISCORD_TOKEN", "tok-123")
	t.Setenv("ARBOR_OPENROUTER_API_KEY", "or-key")
	t.Setenv("ARBOR_OTLP_ENDPOINT", "collector:4317")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json5"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discord.Token != "tok-123" {
		t.Errorf("token = %q", cfg.Discord.Token)
	}
	if cfg.Providers["openrouter"].APIKey != "or-key" {
		t.Errorf("api key = %q", cfg.Providers["openrouter"].APIKey)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint != "collector:4317" {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
}
