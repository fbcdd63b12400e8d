// Package main implements the taskboard CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/taskboard/taskboard/internal/boards"
	"github.com/taskboard/taskboard/internal/cache"
	"github.com/taskboard/taskboard/internal/config"
	"github.com/taskboard/taskboard/internal/storage"
	"github.com/taskboard/taskboard/internal/storage/memory"
	"github.com/taskboard/taskboard/internal/storage/postgres"
)

var (
	configPath string
	actor      string
	jsonOutput bool

	cfg     *config.Config
	store   storage.Storage
	service *boards.Service
	rootCtx context.Context

	shutdownTracing func(context.Context) error
)

var rootCmd = &cobra.Command{
	Use:           "taskboard",
	Short:         "Multi-tenant issue tracker with kanban boards",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		rootCtx = cmd.Context()
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		setupLogging(cfg.Logging)
		if cfg.Tracing.Enabled {
			if err := setupTracing(); err != nil {
				return err
			}
		}
		// "taskboard config init" must work before any backend exists.
		if cmd.Name() == "init" && cmd.Parent() != nil && cmd.Parent().Name() == "config" {
			return nil
		}
		store, err = openStorage(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		service = boards.NewService(store, cache.NewMemoryStore(),
			boards.WithStatsTTL(cfg.Cache.StatsTTL),
			boards.WithLogger(slog.Default()))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if store != nil {
			if err := store.Close(cmd.Context()); err != nil {
				slog.Warn("closing storage", "error", err)
			}
		}
		if shutdownTracing != nil {
			return shutdownTracing(cmd.Context())
		}
		return nil
	},
}

func setupLogging(lc config.LoggingConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if lc.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func setupTracing() error {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return fmt.Errorf("creating trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	shutdownTracing = tp.Shutdown
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendPostgres:
		pg := cfg.Postgres
		s := postgres.New(
			postgres.WithHost(pg.Host),
			postgres.WithPort(pg.Port),
			postgres.WithUser(pg.User),
			postgres.WithPassword(pg.Password),
			postgres.WithDatabase(pg.Database),
			postgres.WithSSLMode(postgres.SSLMode(pg.SSLMode)),
		)
		if err := s.Connect(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// outputJSON prints v as indented JSON on stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "actor recorded in the activity log")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit JSON output")

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if storage.IsConflict(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
