package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/chatwidget-gateway/internal/api/chatbot"
	"github.com/tjfontaine/chatwidget-gateway/internal/chat"
	"github.com/tjfontaine/chatwidget-gateway/internal/config"
	"github.com/tjfontaine/chatwidget-gateway/internal/relay"
	"github.com/tjfontaine/chatwidget-gateway/internal/server"
	"github.com/tjfontaine/chatwidget-gateway/internal/storage"
	"github.com/tjfontaine/chatwidget-gateway/internal/storage/memory"
	"github.com/tjfontaine/chatwidget-gateway/internal/storage/sqlite"
	"github.com/tjfontaine/chatwidget-gateway/internal/telemetry"
	"github.com/tjfontaine/chatwidget-gateway/internal/tokens"
	"github.com/tjfontaine/chatwidget-gateway/internal/turns"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		configPath string
		watch      bool
	)
	cmd := &cobra.Command{
		Use:          "chatrelay",
		Short:        "Relay chat widget traffic to the hosted chatbot",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath, watch, logger)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the YAML config file")
	cmd.Flags().BoolVar(&watch, "watch", true, "reload upstream settings when the config file changes")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		logger.Error("chatrelay failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, watch bool, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Upstream.APIKey == "" {
		logger.Warn("no upstream API key configured")
	}

	shutdown, err := telemetry.InitTracer(cfg.Telemetry.ServiceName, cfg.Telemetry.Enabled, os.Stderr, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	store, err := openStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	counter := tokens.NewTiktokenCounter(cfg.Tokens.Encoding)
	if err := counter.Err(); err != nil {
		logger.Warn("tokenizer unavailable, estimating token counts", slog.String("error", err.Error()))
	}

	client := chatbot.NewClient(cfg.Upstream.APIKey,
		chatbot.WithBaseURL(cfg.Upstream.BaseURL),
		chatbot.WithLogger(logger),
	)
	svc := chat.NewService(client, store,
		chat.WithLogger(logger),
		chat.WithTokenCounter(counter),
		chat.WithTurnTimeout(cfg.Chat.TurnTimeout),
		chat.WithMaxMessageLength(cfg.Chat.MaxMessageLength),
	)

	srv := server.New(server.Options{
		Port:           cfg.Server.Port,
		RequestTimeout: cfg.Server.RequestTimeout,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ServiceName:    cfg.Telemetry.ServiceName,
	}, logger)
	relay.NewHandler(client, logger).Routes(srv.Router)
	turns.NewHandler(svc, logger).Routes(srv.Router)

	logger.Info("chatrelay configured",
		slog.String("upstream", client.MessagesURL()),
		slog.String("storage", cfg.Storage.Type),
		slog.Bool("telemetry", cfg.Telemetry.Enabled))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	if watch {
		g.Go(func() error {
			w := config.NewWatcher(configPath, logger)
			if err := w.Run(ctx, func(next *config.Config) {
				client.SetUpstream(next.Upstream.BaseURL, next.Upstream.APIKey)
				logger.Info("upstream settings reloaded", slog.String("upstream", client.MessagesURL()))
			}); err != nil {
				// A missing config directory only disables reloads.
				logger.Warn("config watch disabled", slog.String("error", err.Error()))
			}
			return nil
		})
	}
	return g.Wait()
}

func openStore(cfg config.StorageConfig) (storage.SessionStore, error) {
	switch cfg.Type {
	case "sqlite":
		store, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return store, nil
	case "memory", "":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
