// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/bonsai/internal/api"
	"github.com/starford/bonsai/internal/doctype"
	"github.com/starford/bonsai/internal/index"
	"github.com/starford/bonsai/internal/sse"
	"github.com/starford/bonsai/internal/storage"
	"github.com/starford/bonsai/internal/workspace"
)

// Run starts the HTTP server and the vault watcher with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(cfg, os.Stdout)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("garden_root", cfg.Garden.Root),
		slog.String("garden_title", cfg.Garden.Title),
		slog.Bool("watch", cfg.Watch.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	ws, closeWS, err := openWorkspace(ctx, cfg, logger, workspace.WithNotifier(broker))
	if err != nil {
		return err
	}
	defer closeWS()

	apiRouter := api.NewRouter(ws, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","tree":%q}`, ws.Tree().State())
	})
	r.Handle("/metrics", promhttp.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher; lifecycle events reach SSE clients via the notifier.
	if cfg.Watch.Enabled {
		g.Go(func() error {
			if err := ws.Watch(gCtx, cfg.Watch.Debounce); err != nil {
				return fmt.Errorf("watcher error: %w", err)
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the run group once the HTTP server has stopped, so the
// watcher exits too.
var errShutdown = errors.New("shutdown")

func newApplication(opts []Option) (*application, error) {
	app := &application{out: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// openWorkspace opens the vault and the snapshot cache and loads the
// workspace. The returned func releases both.
func openWorkspace(ctx context.Context, cfg *Config, logger *slog.Logger, extra ...workspace.Option) (*workspace.Workspace, func(), error) {
	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create vault dir: %w", err)
	}

	// Initialize storage.
	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}

	types, err := doctype.New(cfg.DocTypeConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("init doc types: %w", err)
	}

	opts := []workspace.Option{
		workspace.WithLogger(logger),
		workspace.WithTypes(types),
		workspace.WithRoot(cfg.Garden.Root),
		workspace.WithOutline(cfg.Lint.Options()),
	}

	// Initialize SQLite snapshot cache.
	var db *index.DB
	if cfg.SQLite.Path != "" {
		db, err = index.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("init index: %w", err)
		}
		opts = append(opts, workspace.WithCache(db))
	}

	ws, err := workspace.New(store, append(opts, extra...)...)
	if err == nil {
		err = ws.Load(ctx)
	}
	closeAll := func() {
		if ws != nil {
			ws.Close()
		}
		if db != nil {
			db.Close()
		}
	}
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("load workspace: %w", err)
	}
	return ws, closeAll, nil
}
