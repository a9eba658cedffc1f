package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kibitzbot/kibitz/internal/bus"
	"github.com/kibitzbot/kibitz/internal/channels"
	"github.com/kibitzbot/kibitz/internal/channels/telegram"
	"github.com/kibitzbot/kibitz/internal/channels/whatsapp"
	"github.com/kibitzbot/kibitz/internal/config"
	"github.com/kibitzbot/kibitz/internal/digest"
	"github.com/kibitzbot/kibitz/internal/embed"
	"github.com/kibitzbot/kibitz/internal/gateway"
	"github.com/kibitzbot/kibitz/internal/handler"
	"github.com/kibitzbot/kibitz/internal/media"
	"github.com/kibitzbot/kibitz/internal/providers"
	"github.com/kibitzbot/kibitz/internal/search"
	"github.com/kibitzbot/kibitz/internal/store"
	"github.com/kibitzbot/kibitz/internal/store/pg"
	"github.com/kibitzbot/kibitz/internal/store/sqlite"
	"github.com/kibitzbot/kibitz/internal/tools"
)

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the bot: channels, pipeline workers, and HTTP gateway",
		Run: func(cmd *cobra.Command, args []string) {
			runGateway()
		},
	}
}

func runGateway() {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Logging.Format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func run(ctx context.Context, cfg *config.Config) error {
	stores, searcher, closeStores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	provider := providers.NewOpenAIProvider("openai",
		cfg.Providers.OpenAI.APIKey,
		cfg.Providers.OpenAI.APIBase,
		cfg.Providers.OpenAI.AnswerModel)

	var embedder embed.Embedder
	if cfg.Providers.Voyage.APIKey != "" {
		embedder = embed.NewVoyageEmbedder(
			cfg.Providers.Voyage.APIKey,
			cfg.Providers.Voyage.APIBase,
			cfg.Providers.Voyage.Model)
	}

	digests := digest.NewCache(stores, provider, digest.Config{
		Model:       cfg.Providers.OpenAI.DigestModel,
		TTL:         time.Duration(cfg.Pipeline.DigestTTLMinutes) * time.Minute,
		RefreshCron: cfg.Pipeline.DigestRefreshCron,
	})

	var transcriber handler.Transcriber
	if cfg.Providers.Whisper.Host != "" {
		transcriber = media.NewWhisperProxy(cfg.Providers.Whisper.Host, cfg.Providers.Whisper.Language)
	}

	registry := tools.NewRegistry(
		tools.NewWebSearchTool(cfg.Tools.BraveAPIKey),
		tools.NewWebFetchTool(),
		tools.NewWeatherTool(),
		tools.NewDateTimeTool(cfg.Tools.TimeZone),
	)

	msgBus := bus.New()
	manager := channels.NewManager(msgBus)
	hub := gateway.NewEventHub()

	server := gateway.NewServer(gateway.Config{
		Host: cfg.Gateway.Host,
		Port: cfg.Gateway.Port,
	}, hub)

	var downloader handler.Downloader
	if cfg.Channels.WhatsApp.Enabled {
		wa := whatsapp.New(whatsapp.Config{
			BridgeURL:   cfg.Channels.WhatsApp.BridgeURL,
			BridgeToken: cfg.Channels.WhatsApp.BridgeToken,
		}, msgBus)
		manager.Register(wa)
		server.SetWebhookHandler(wa.WebhookHandler())
		downloader = wa.Downloader()
	}
	if cfg.Channels.Telegram.Enabled {
		tg, err := telegram.New(telegram.Config{Token: cfg.Channels.Telegram.Token}, msgBus)
		if err != nil {
			return fmt.Errorf("telegram channel: %w", err)
		}
		manager.Register(tg)
	}

	h := handler.New(handler.Deps{
		Stores:      stores,
		Provider:    provider,
		Embedder:    embedder,
		Searcher:    searcher,
		Digests:     digests,
		Transcriber: transcriber,
		Downloader:  downloader,
		Tools:       registry,
		Admitter:    bus.NewDedupeCache(bus.DedupeTTL, bus.DedupeMaxEntries),
		Deliver:     manager.Deliver,
		Events:      hub.Publish,
		Config: handler.Config{
			AdminJIDs:   cfg.Pipeline.AdminJIDs,
			TokenBudget: cfg.Pipeline.TokenBudget,
			MaxMessages: cfg.Pipeline.MaxMessages,
			Models: handler.Models{
				Router: cfg.Providers.OpenAI.RouterModel,
				Answer: cfg.Providers.OpenAI.AnswerModel,
				Vision: cfg.Providers.OpenAI.AnswerModel,
			},
		},
	})

	// Hot-reload covers the logging knobs; everything else needs a restart.
	if err := config.Watch(ctx, resolveConfigPath(), func(updated *config.Config) {
		setupLogging(updated)
	}); err != nil {
		slog.Warn("config hot-reload unavailable", "error", err)
	}

	if err := manager.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		manager.StopAll(stopCtx)
	}()

	g, runCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(runCtx)
	})
	g.Go(func() error {
		runConsumers(runCtx, msgBus, h, cfg.Pipeline.Workers)
		return nil
	})
	g.Go(func() error {
		digests.RunRefresh(runCtx)
		return nil
	})

	slog.Info("kibitz running", "version", Version)
	return g.Wait()
}

// openStores picks the storage backend: Postgres (with vector topic search)
// when a DSN is configured, SQLite otherwise.
func openStores(cfg *config.Config) (*store.Stores, search.Searcher, func(), error) {
	if cfg.Store.PostgresDSN != "" {
		db, err := pg.OpenDB(cfg.Store.PostgresDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		slog.Info("using postgres store")
		return pg.NewStores(db), search.NewPGSearcher(db), func() { db.Close() }, nil
	}

	path := cfg.Store.SQLitePath
	if path == "" {
		path = "kibitz.db"
	}
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	slog.Info("using sqlite store", "path", path)
	// Topic search needs pgvector; the standalone backend runs without it.
	return sqlite.NewStores(db), nil, func() { db.Close() }, nil
}
