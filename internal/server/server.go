package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rahil234/SnapCart-sub000/internal/core/events"
	"github.com/rahil234/SnapCart-sub000/internal/core/handler"
	"github.com/rahil234/SnapCart-sub000/internal/core/identity"
	"github.com/rahil234/SnapCart-sub000/internal/core/logger"
	"github.com/rahil234/SnapCart-sub000/internal/core/metrics"
	middlWre "github.com/rahil234/SnapCart-sub000/internal/core/middleware"
	"github.com/rahil234/SnapCart-sub000/internal/core/repository"
	"github.com/rahil234/SnapCart-sub000/internal/core/repository/memory"
	"github.com/rahil234/SnapCart-sub000/internal/core/repository/postgres"
	"github.com/rahil234/SnapCart-sub000/internal/core/usecase"
	"github.com/rahil234/SnapCart-sub000/pkg/config"
	"github.com/rahil234/SnapCart-sub000/pkg/postgresdb"
	"github.com/redis/go-redis/v9"
	metricsprom "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"
)

type Server struct {
	router        *mux.Router
	log           logger.Logger
	httpServer    *http.Server
	walletHandler *handler.WalletHandler
	stockHandler  *handler.StockHandler
	db            *postgresdb.Database
	rdb           *redis.Client
}

type storage struct {
	wallets  repository.WalletRepository
	variants repository.VariantRepository
	resolver identity.Resolver
}

func NewServer(cfg *config.Config, log logger.Logger) (*Server, error) {
	server := &Server{
		log:    log,
		router: mux.NewRouter(),
	}

	store, err := server.openStorage(cfg)
	if err != nil {
		return nil, err
	}

	publisher, err := server.openPublisher(cfg.Redis)
	if err != nil {
		server.closeResources()
		return nil, err
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	walletUsecase := usecase.NewWalletUsecase(store.wallets, publisher, m, log, usecase.WalletConfig{
		Currency: cfg.App.DefaultCurrency,
	})
	stockUsecase := usecase.NewStockUsecase(store.variants, publisher, m, log, usecase.StockConfig{
		MaxRetries: cfg.App.StockRetries,
	})

	server.walletHandler = handler.NewWalletHandler(walletUsecase, store.resolver, log)
	server.stockHandler = handler.NewStockHandler(stockUsecase, log)

	server.router.Use(loggingMiddleware(server.log))

	mw := middleware.New(middleware.Config{
		Recorder: metricsprom.NewRecorder(metricsprom.Config{}),
	})

	server.router.Use(func(next http.Handler) http.Handler {
		return std.Handler("", mw, next)
	})

	server.RegisterRoutes()

	return server, nil
}

func (s *Server) openStorage(cfg *config.Config) (*storage, error) {
	switch cfg.App.StorageDriver {
	case config.StorageDriverMemory:
		s.log.Warn("Using in-memory storage; data is lost on restart")
		return &storage{
			wallets:  memory.NewWalletRepo(),
			variants: memory.NewVariantRepo(),
			resolver: identity.Passthrough{},
		}, nil
	case config.StorageDriverPostgres:
		db, err := postgresdb.NewPostgresDB(cfg.DB, s.log)
		if err != nil {
			return nil, err
		}
		s.db = db

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := postgres.Migrate(ctx, db.DB); err != nil {
			db.Close()
			return nil, err
		}

		return &storage{
			wallets: postgres.NewPostgresWalletRepo(db.DB, s.log, postgres.Options{
				MaxRetries:  cfg.App.WalletRetries,
				LockTimeout: cfg.App.LockTimeout,
			}),
			variants: postgres.NewPostgresVariantRepo(db.DB, s.log),
			resolver: postgres.NewCustomerResolver(db.DB),
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.App.StorageDriver)
	}
}

func (s *Server) openPublisher(cfg config.RedisConfig) (events.Publisher, error) {
	if !cfg.Enabled() {
		s.log.Info("REDIS_ADDR not set, events are disabled")
		return events.NopPublisher{}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}

	s.rdb = rdb
	s.log.Info("Connected to redis", logger.StringField("addr", cfg.Addr))
	return events.NewRedisPublisher(rdb), nil
}

func (s *Server) RegisterRoutes() {
	s.router.Use(
		middlWre.WithErrorHandler(s.log),
		middlWre.Recovery(s.log),
	)
	s.walletHandler.RegisterRoutes(s.router)
	s.stockHandler.RegisterRoutes(s.router)
	s.router.HandleFunc("/healthz", s.healthz).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			s.log.Warn("Health check failed", logger.StringField("component", "postgres"), logger.ErrorField("error", err))
			http.Error(w, "postgres unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			// Events are best effort; report but stay healthy.
			s.log.Warn("Health check degraded", logger.StringField("component", "redis"), logger.ErrorField("error", err))
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       9 * time.Second,
		WriteTimeout:      12 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 6 * time.Second,
	}

	s.httpServer = srv

	return srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	var shutdownErr error

	go func() {
		if s.httpServer != nil {
			err := s.httpServer.Shutdown(ctx)
			if err != nil {
				s.log.Error("failed to shutdown HTTP server", logger.ErrorField("error", err))
				shutdownErr = fmt.Errorf("HTTP server shutdown error: %w", err)
			}
		}

		if err := s.closeResources(); err != nil {
			shutdownErr = errors.Join(shutdownErr, err)
		}

		close(done)
	}()

	select {
	case <-done:
		return shutdownErr
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (s *Server) closeResources() error {
	var errs error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			s.log.Error("failed to close redis client", logger.ErrorField("error", err))
			errs = errors.Join(errs, fmt.Errorf("redis shutdown error: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Error("failed to close database connection", logger.ErrorField("error", err))
			errs = errors.Join(errs, fmt.Errorf("database shutdown error: %w", err))
		}
	}
	return errs
}

func loggingMiddleware(log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Info("HTTP request",
				logger.StringField("method", r.Method),
				logger.StringField("path", r.URL.Path),
				logger.StringField("remote_addr", r.RemoteAddr),
				logger.StringField("user_agent", r.UserAgent()),
			)
			next.ServeHTTP(w, r)
		})
	}
}
