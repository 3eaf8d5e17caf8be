package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/siddhi-app/apiserver/config"
	"github.com/siddhi-app/apiserver/internal/db"
	"github.com/siddhi-app/apiserver/internal/events"
	"github.com/siddhi-app/apiserver/internal/handlers"
	"github.com/siddhi-app/apiserver/internal/logging"
	"github.com/siddhi-app/apiserver/internal/mail"
	"github.com/siddhi-app/apiserver/internal/middleware"
	"github.com/siddhi-app/apiserver/internal/services"
	"github.com/siddhi-app/apiserver/internal/storage"
	"github.com/siddhi-app/apiserver/internal/store"
	"github.com/siddhi-app/apiserver/internal/token"
)

// rateLimits maps route names to their fixed-window limits.
var rateLimits = map[string]middleware.Limit{
	"login":               {Window: time.Minute, Max: 5},
	"register":            {Window: time.Minute, Max: 2},
	"refresh-token":       {Window: time.Minute, Max: 10},
	"forgot-password":     {Window: time.Minute, Max: 5},
	"verify-reset-token":  {Window: time.Minute, Max: 5},
	"reset-password":      {Window: time.Minute, Max: 5},
	"college-preferences": {Window: 5 * time.Minute, Max: 60},
	"college-compare":     {Window: time.Minute, Max: 10},
	"profile-photo":       {Window: time.Minute, Max: 5},
}

// Server wraps the HTTP server, router, and owned connections.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	redis      *redis.Client
	publisher  *events.Publisher
	logger     logging.Logger
}

// New constructs a Server with all dependencies wired from config.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	logger := logging.Default(slog.LevelInfo)

	if cfg.Auth.AccessSecret == "" || cfg.Auth.RefreshSecret == "" {
		return nil, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET are required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	rdb, err := db.OpenRedis(ctx, cfg.RedisURI)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("open redis: %w", err)
	}

	mailer, err := mail.NewSMTPMailer(cfg.SMTP)
	if err != nil {
		_ = dbConn.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("configure mailer: %w", err)
	}

	publisher, err := newPublisher(ctx, cfg, logger)
	if err != nil {
		_ = dbConn.Close()
		_ = rdb.Close()
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	otpRepo := store.NewOtpRepository(rdb)
	collegeRepo := store.NewCollegeRepository(dbConn)

	issuer := token.NewIssuer(cfg.Auth.AccessSecret, cfg.Auth.RefreshSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)

	authService := services.NewAuthService(userRepo, otpRepo, mailer, issuer, publisher, logger, cfg.FrontendBaseURL)
	collegeService := services.NewCollegeService(collegeRepo)

	limiter := middleware.NewRateLimiter(rdb, rateLimits, logger)
	authHandler := handlers.NewAuthHandler(authService)

	router := chi.NewRouter()
	router.Use(
		chimiddleware.RequestID,
		chimiddleware.RealIP,
		chimiddleware.Recoverer,
		chimiddleware.Logger,
		chimiddleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/api/v1", func(api chi.Router) {
		api.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, authService, limiter.Route)
		})
		api.Route("/college", func(r chi.Router) {
			handlers.CollegeRouter(r, collegeService, authHandler.RequireAuth, limiter.Route)
		})
		if cfg.Storage.Backend != "" {
			objectStore, err := newObjectStorage(ctx, cfg)
			if err != nil {
				logger.Error(ctx, "configure object storage", "backend", cfg.Storage.Backend, "err", err)
			} else {
				profileService := services.NewProfileService(userRepo, objectStore, logger)
				api.Route("/profile", func(r chi.Router) {
					handlers.ProfileRouter(r, profileService, authHandler.RequireAuth, limiter.Route)
				})
			}
		}
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		redis:      rdb,
		publisher:  publisher,
		logger:     logger,
	}, nil
}

func newObjectStorage(ctx context.Context, cfg config.Config) (*storage.Storage, error) {
	var backend storage.ObjectStorage
	var err error

	switch cfg.Storage.Backend {
	case "minio":
		backend, err = storage.NewMinioClient(cfg.Storage.Minio)
	case "gcs":
		backend, err = storage.NewGCSClient(ctx, cfg.Storage.GCS)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if err != nil {
		return nil, err
	}

	s := storage.NewStorage(backend)
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// newPublisher builds the account event publisher. An empty backend
// disables publishing; the nil Publisher drops events silently.
func newPublisher(ctx context.Context, cfg config.Config, logger logging.Logger) (*events.Publisher, error) {
	switch cfg.Events.Backend {
	case "":
		return nil, nil
	case "rabbitmq":
		backend, err := events.NewRabbitMQBackend(cfg.Events.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		return events.NewPublisher(backend, cfg.Events.Channel, logger), nil
	case "pubsub":
		backend, err := events.NewPubSubBackend(ctx, cfg.Events.PubSub)
		if err != nil {
			return nil, fmt.Errorf("connect pubsub: %w", err)
		}
		return events.NewPublisher(backend, cfg.Events.Channel, logger), nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Events.Backend)
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "starting server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	_ = s.publisher.Close()
	return s.httpServer.Close()
}
