// Package server assembles the configured backends into a running API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clientdesk/clients-api/internal/api"
	"github.com/clientdesk/clients-api/internal/core/ports"
	"github.com/clientdesk/clients-api/internal/core/service"
	"github.com/clientdesk/clients-api/internal/infrastructure/config"
	"github.com/clientdesk/clients-api/internal/infrastructure/db/memory"
	"github.com/clientdesk/clients-api/internal/infrastructure/db/mongo"
	"github.com/clientdesk/clients-api/internal/infrastructure/db/postgres"
	"github.com/clientdesk/clients-api/internal/infrastructure/db/postgres/migrations"
	"github.com/clientdesk/clients-api/internal/infrastructure/db/redis"
	"github.com/clientdesk/clients-api/internal/infrastructure/http/handlers"
	"github.com/clientdesk/clients-api/internal/infrastructure/storage"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the echo instance and the connections it owns.
type Server struct {
	echo    *echo.Echo
	addr    string
	log     zerolog.Logger
	closers []func(context.Context) error
}

// backend is the persistence selected by STORE_DRIVER.
type backend struct {
	users       ports.AuthRepository
	clients     ports.ClientRepository
	idempotency ports.IdempotencyStore
	probe       handlers.Pinger
	close       func(context.Context) error
}

// New connects every configured dependency, ensures schemas and builds the
// router. It returns only once the store is ready to serve traffic.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Server, error) {
	s := &Server{addr: ":" + cfg.Port, log: log}

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, be.close)
	probes := map[string]handlers.Pinger{cfg.StoreDriver: be.probe}

	opts := []service.ClientOption{}
	idempotency := be.idempotency
	if cfg.Redis.Addr != "" {
		rdb, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			s.close(ctx)
			return nil, err
		}
		s.closers = append(s.closers, func(context.Context) error { return rdb.Close() })
		cache := redis.NewIdempotencyStore(rdb, cfg.Redis.IdempotencyTTL)
		idempotency = cache
		probes["redis"] = cache
		log.Info().Str("addr", cfg.Redis.Addr).Msg("idempotency cache enabled")
	}
	if idempotency != nil {
		opts = append(opts, service.WithIdempotencyStore(idempotency))
	}

	if cfg.Minio.Endpoint != "" {
		objects, err := storage.NewMinioStorage(cfg.Minio)
		if err != nil {
			s.close(ctx)
			return nil, err
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			s.close(ctx)
			return nil, err
		}
		opts = append(opts, service.WithAvatarStorage(objects))
		probes["minio"] = objects
		log.Info().Str("endpoint", cfg.Minio.Endpoint).Str("bucket", objects.Bucket()).Msg("avatar storage enabled")
	}

	s.echo = api.NewRouter(api.Dependencies{
		Logger:        log,
		JWTSecret:     cfg.JWTSecret,
		AuthService:   service.NewAuthService(be.users, cfg.JWTSecret, cfg.TokenTTL, log),
		ClientService: service.NewClientService(be.clients, log, opts...),
		Users:         be.users,
		Probes:        probes,
	})
	return s, nil
}

func openBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*backend, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := postgres.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if err := migrations.Ensure(ctx, db.DB); err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info().Msg("postgres connected, schema ensured")
		return &backend{
			users:   postgres.NewUserRepository(db),
			clients: postgres.NewClientRepository(db),
			probe:   handlers.PingFunc(db.PingContext),
			close:   func(context.Context) error { return db.Close() },
		}, nil

	case config.DriverMongo:
		client, db, err := mongo.Connect(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		if err := mongo.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		log.Info().Str("database", cfg.Mongo.Database).Msg("mongo connected, indexes ensured")
		return &backend{
			users:   mongo.NewAuthRepository(db),
			clients: mongo.NewClientRepository(db),
			probe:   handlers.PingFunc(func(ctx context.Context) error { return client.Ping(ctx, nil) }),
			close:   client.Disconnect,
		}, nil

	case config.DriverMemory:
		store := memory.New()
		log.Warn().Msg("using in-memory store; data is lost on restart")
		return &backend{
			users:       store.Users(),
			clients:     store.Clients(),
			idempotency: store,
			probe:       store,
			close:       func(context.Context) error { return nil },
		}, nil

	default:
		return nil, fmt.Errorf("server: unknown store driver %q", cfg.StoreDriver)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("http server listening")
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case err, ok := <-errCh:
		if ok {
			runErr = fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
		s.log.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("server: shutdown: %w", err)
	}
	s.close(shutdownCtx)
	return runErr
}

func (s *Server) close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			s.log.Warn().Err(err).Msg("failed to close dependency")
		}
	}
	s.closers = nil
}
