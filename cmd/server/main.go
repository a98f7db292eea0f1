package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vigil/internal/credential"
	"vigil/internal/directory"
	"vigil/internal/notify"
	"vigil/internal/platform/config"
	"vigil/internal/platform/httpserver"
	"vigil/internal/platform/logger"
	"vigil/internal/platform/metrics"
	platformredis "vigil/internal/platform/redis"
	"vigil/internal/registration/service"
	"vigil/internal/registration/store"
	"vigil/internal/registration/token"
	httptransport "vigil/internal/transport/http"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events, tokens, cleanup, err := buildStores(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer cleanup()

	issuer, err := credential.NewIssuer(cfg.Signing.Key, cfg.Signing.Algorithm)
	if err != nil {
		return fmt.Errorf("configure credential issuer: %w", err)
	}

	m := metrics.New()
	generator := token.NewGenerator(cfg.Token.LengthBytes)

	dispatcher := notify.NewDispatcher(
		notify.NewSMTPTransport(cfg.Delivery),
		log,
		notify.WithMaxAttempts(cfg.Delivery.MaxAttempts),
		notify.WithBackoffUnit(cfg.Delivery.BackoffUnit),
		notify.WithMetrics(m),
	)
	outbox := make(chan notify.Job, 64)
	worker := notify.NewWorker(dispatcher, outbox)

	var dir directory.Directory
	if cfg.Directory.URL != "" {
		dir = directory.NewHTTPDirectory(cfg.Directory)
	} else {
		log.Warn("no directory configured, accepting all patient identifiers")
		dir = directory.NewStaticDirectory()
	}

	svc := service.New(events, tokens, generator, issuer, dir, outbox, log,
		service.WithCreateAttempts(cfg.Token.CreateAttempts),
		service.WithMetrics(m),
	)

	router := httptransport.NewRouter(httptransport.NewHandler(svc), log)
	srv := httpserver.New(cfg.Server.Addr, router)

	log.Info("starting vigil",
		zap.String("addr", cfg.Server.Addr),
		zap.String("store_backend", cfg.Store.Backend))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildStores selects the persistence backend. Every backend satisfies the
// same conditioned-update contract, so the service is oblivious to the
// choice.
func buildStores(ctx context.Context, cfg config.Store, log *zap.Logger) (store.EventStore, store.TokenStore, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case "memory", "":
		log.Warn("using in-memory stores, tokens do not survive restarts")
		return store.NewInMemoryEventStore(), store.NewInMemoryTokenStore(), noop, nil

	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		if err := store.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		cleanup := func() { _ = db.Close() }
		return store.NewPostgresEventStore(db), store.NewPostgresTokenStore(db), cleanup, nil

	case "redis":
		client, err := platformredis.New(cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		if client == nil {
			return nil, nil, nil, errors.New("store backend is redis but REDIS_URL is empty")
		}
		cleanup := func() { _ = client.Close() }
		return store.NewRedisEventStore(client.Client), store.NewRedisTokenStore(client.Client), cleanup, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
