package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/UkralStul/content-service/internal/api"
	"github.com/UkralStul/content-service/internal/auth"
	"github.com/UkralStul/content-service/internal/config"
	"github.com/UkralStul/content-service/internal/dataloader"
	"github.com/UkralStul/content-service/internal/media"
	"github.com/UkralStul/content-service/internal/observer"
	"github.com/UkralStul/content-service/internal/posts"
	"github.com/UkralStul/content-service/internal/storage"
	"github.com/UkralStul/content-service/internal/storage/inmemory"
	"github.com/UkralStul/content-service/internal/storage/postgres"
	"github.com/UkralStul/content-service/internal/users"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm/logger"
)

type options struct {
	configPath string
	storage    string
	port       string
	seed       bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "content-service",
		Short:         "Blog backend: posts, likes and comments over REST",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "path to YAML config file")
	flags.StringVar(&opts.storage, "storage", "", "storage type (in-memory or postgres)")
	flags.StringVar(&opts.port, "port", "", "HTTP port")
	flags.BoolVar(&opts.seed, "seed", false, "fill in-memory storage with demo data")
	return cmd
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	// Флаги имеют приоритет над файлом и окружением
	if opts.storage != "" {
		cfg.Storage.Driver = opts.storage
	}
	if opts.port != "" {
		cfg.Server.Port = opts.port
	}

	log := newLogger(cfg)
	slog.SetDefault(log)
	if err := cfg.Validate(log); err != nil {
		log.Error("invalid configuration", "error", err)
		return err
	}

	log.Info("starting server", "storage", cfg.Storage.Driver, "port", cfg.Server.Port)
	store, closeStore, err := openStorage(cfg)
	if err != nil {
		log.Error("failed to open storage", "error", err)
		return err
	}
	defer closeStore()

	mediaStore, err := media.NewStore(cfg.Server.UploadDir)
	if err != nil {
		log.Error("failed to prepare upload directory", "error", err)
		return err
	}

	tokens, err := auth.NewTokenService([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return err
	}

	obs := observer.NewCommentObserver()
	authors := dataloader.AuthorResolver{Store: store}
	userService := users.NewService(store, auth.NewBcryptHasher(cfg.Auth.BcryptCost), tokens, log)
	repo := posts.NewRepository(store, authors, mediaStore, log)
	engine := posts.NewEngine(store, authors, obs)

	if cfg.Auth.AdminUsername != "" {
		if _, err := userService.EnsureAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
			log.Error("failed to create bootstrap admin", "error", err)
			return err
		}
	}

	if opts.seed {
		if cfg.Storage.Driver != config.DriverInMemory {
			log.Warn("--seed is ignored for persistent storage")
		} else if err := seed(ctx, userService, repo, engine, log); err != nil {
			log.Error("failed to seed demo data", "error", err)
			return err
		}
	}

	server := api.NewServer(api.Deps{
		Tokens:         tokens,
		Users:          userService,
		Posts:          repo,
		Engine:         engine,
		UserStore:      store,
		Media:          mediaStore,
		Observer:       obs,
		Log:            log,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "error", err)
		return err
	}
	log.Info("server stopped")
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Log.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func openStorage(cfg *config.Config) (storage.Storage, func(), error) {
	if cfg.Storage.Driver != config.DriverPostgres {
		return inmemory.New(), func() {}, nil
	}

	level := logger.Warn
	if cfg.SlogLevel() == slog.LevelDebug {
		level = logger.Info
	}
	store, err := postgres.New(cfg.Storage.DSN, level)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return store, func() {
		if err := store.Close(); err != nil {
			slog.Warn("failed to close postgres connection", "error", err)
		}
	}, nil
}
