package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arborlabs/arbor/internal/channels/discord"
	"github.com/arborlabs/arbor/internal/config"
	"github.com/arborlabs/arbor/internal/contextstore"
	"github.com/arborlabs/arbor/internal/gateway"
	"github.com/arborlabs/arbor/internal/handlers"
	"github.com/arborlabs/arbor/internal/router"
	"github.com/arborlabs/arbor/internal/store"
	"github.com/arborlabs/arbor/internal/store/pg"
	"github.com/arborlabs/arbor/internal/store/sqlite"
	"github.com/arborlabs/arbor/internal/telemetry"
)

// runBot builds the full pipeline and blocks until shutdown.
func runBot(ctx context.Context) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry, "arbor", Version)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	gw, err := buildGateway(cfg, stores)
	if err != nil {
		return err
	}

	ctxStore := contextstore.New(contextstore.Config{
		DefaultWindow:     cfg.Context.DefaultWindow,
		MaxWindow:         cfg.Context.MaxWindow,
		CacheTTL:          time.Duration(cfg.Context.CacheTTLMs) * time.Millisecond,
		SummaryCooldown:   time.Duration(cfg.Context.SummaryCooldownMin) * time.Minute,
		SummaryLookback:   time.Duration(cfg.Context.SummaryLookbackHrs) * time.Hour,
		SummaryChunk:      time.Duration(cfg.Context.SummaryChunkMin) * time.Minute,
		SummaryProvider:   cfg.Context.SummaryProvider,
		SummaryModel:      cfg.Context.SummaryModel,
		AlternationModels: cfg.Context.AlternationModels,
	}, stores, gw)

	registry, err := handlers.NewRegistry(cfg.Handlers, cfg.DefaultHandler)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(cfg.Handlers))
	for _, h := range registry.All() {
		names = append(names, h.Name)
	}
	classifier := router.NewGatewayClassifier(gw, cfg.Router.Provider, cfg.Router.Model, names)

	responder := handlers.NewResponder(gw, ctxStore,
		time.Duration(cfg.Discord.EditIntervalMs)*time.Millisecond, cfg.Timezone)

	// The channel filters our own messages by session identity; the router's
	// self id is an extra guard and may be empty until connected.
	rt := router.New(router.Config{
		SupportHandler:      cfg.Router.SupportHandler,
		SupportPolarity:     cfg.Router.SupportPolarity,
		SupportSubjectivity: cfg.Router.SupportSubjectivity,
	}, registry, stores.Activation, classifier, "")

	channel, err := discord.New(cfg.Discord, rt, responder, registry, ctxStore)
	if err != nil {
		return err
	}
	if err := channel.Start(ctx); err != nil {
		return err
	}

	slog.Info("arbor running", "handlers", len(names), "default", cfg.DefaultHandler)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		stopCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		return channel.Stop(stopCtx)
	})
	return g.Wait()
}

func openStores(cfg *config.Config) (*store.Stores, error) {
	if cfg.Database.PostgresDSN != "" {
		slog.Info("using postgres storage")
		return pg.NewStores(cfg.Database.PostgresDSN)
	}
	slog.Info("using sqlite storage", "path", cfg.Database.SQLitePath)
	return sqlite.NewStores(cfg.Database.SQLitePath)
}

func buildGateway(cfg *config.Config, stores *store.Stores) (*gateway.Client, error) {
	providers := make([]gateway.ProviderConfig, 0, len(cfg.Providers))
	for name, p := range cfg.Providers {
		providers = append(providers, gateway.ProviderConfig{
			Name:    name,
			Family:  p.Family,
			APIKey:  p.APIKey,
			BaseURL: p.BaseURL,
			Headers: p.Headers,
		})
	}
	retry := gateway.DefaultRetryConfig()
	if cfg.Gateway.RetryMaxAttempts > 0 {
		retry.MaxAttempts = cfg.Gateway.RetryMaxAttempts
	}
	return gateway.New(gateway.Config{
		Providers:          providers,
		DefaultProvider:    cfg.Gateway.DefaultProvider,
		MinRequestInterval: time.Duration(cfg.Gateway.MinRequestIntervalMs) * time.Millisecond,
		RequestTimeout:     time.Duration(cfg.Gateway.RequestTimeoutSec) * time.Second,
		DefaultTemperature: cfg.Gateway.DefaultTemperature,
		DefaultMaxTokens:   cfg.Gateway.DefaultMaxTokens,
		Retry:              retry,
	}, stores.Interactions)
}
