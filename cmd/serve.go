package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"sneaker-review-service/internal/api"
	"sneaker-review-service/internal/auth"
	"sneaker-review-service/internal/config"
	"sneaker-review-service/internal/events"
	"sneaker-review-service/internal/metrics"
	"sneaker-review-service/internal/service"
	"sneaker-review-service/internal/store"
)

// serveCmd runs the HTTP and gRPC servers until SIGINT or SIGTERM.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and gRPC servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	logger.Info("starting service")
	if cfg.IsProduction() && !cfg.Auth.CookieSecure {
		logger.Warn("SESSION_COOKIE_SECURE is off in production; session cookies will be sent over plain HTTP")
	}

	// --- Database Connection ---
	db, err := openDB(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	dbStore := store.NewPostgresStore(db)
	logger.Info("database connection established")

	// --- Sessions and events ---
	redisClient := auth.NewRedisClient(cfg.Redis)
	if redisClient == nil {
		logger.Warn("redis unavailable, session revocation is kept in memory")
	}
	publisher, publisherCloser := newPublisher(cfg.Kafka, logger)

	// --- Services and handlers ---
	session := auth.NewSession(
		auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL),
		auth.NewRevoker(redisClient),
		dbStore,
		auth.SessionConfig{CookieName: cfg.Auth.CookieName, CookieSecure: cfg.Auth.CookieSecure},
		logger,
	)
	catalog := service.NewCatalogService(dbStore, dbStore, dbStore)
	httpAPIHandler := api.NewHTTPHandler(
		catalog,
		service.NewAccountService(dbStore, cfg.Auth.BcryptCost, cfg.Auth.MinPasswordLen),
		service.NewReviewService(dbStore, publisher, logger),
		session,
		logger,
	)
	grpcAPIHandler := api.NewGRPCHandler(catalog, logger)

	// --- Setup & Start HTTP Server ---
	httpRouter := chi.NewRouter()
	setupBaseMiddleware(httpRouter, cfg.HttpServer.TimeoutRequest, logger)
	registerHealthCheck(httpRouter, logger, dbStore)
	httpRouter.Handle("/metrics", metrics.Handler())
	registerMedia(httpRouter, cfg.Media, logger)
	httpAPIHandler.RegisterRoutes(httpRouter)

	httpServer := &http.Server{
		Addr:         ":" + cfg.HttpServer.Port,
		Handler:      httpRouter,
		ReadTimeout:  cfg.HttpServer.TimeoutRead,
		WriteTimeout: cfg.HttpServer.TimeoutWrite,
		IdleTimeout:  cfg.HttpServer.TimeoutIdle,
	}

	go func() {
		logger.WithField("port", cfg.HttpServer.Port).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("HTTP server ListenAndServe error")
		}
		logger.Info("HTTP server has stopped")
	}()

	// --- Setup & Start gRPC Server ---
	grpcServer := setupGRPCServer(logger, grpcAPIHandler)
	grpcListener, err := net.Listen("tcp", ":"+cfg.GrpcServer.Port)
	if err != nil {
		return err
	}

	go func() {
		logger.WithField("port", cfg.GrpcServer.Port).Info("gRPC server listening")
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.WithError(err).Fatal("gRPC server Serve error")
		}
		logger.Info("gRPC server has stopped")
	}()

	// --- Graceful Shutdown ---
	waitForShutdown(logger, httpServer, grpcServer, []namedCloser{
		{"event publisher", publisherCloser},
		{"redis", redisCloser(redisClient)},
		{"database", dbStore},
	})
	logger.Info("service shutdown sequence finished")
	return nil
}

// newPublisher returns a Kafka publisher when brokers are configured, otherwise a no-op.
func newPublisher(cfg config.KafkaConfig, logger *logrus.Logger) (events.ReviewPublisher, io.Closer) {
	if len(cfg.Brokers) == 0 {
		logger.Info("no kafka brokers configured, review events are dropped")
		return events.NoopPublisher{}, nil
	}
	p := events.NewKafkaPublisher(
		events.NewKafkaWriter(cfg.Brokers, cfg.ReviewsTopic, cfg.PublishTimeout),
		cfg.PublishTimeout,
	)
	logger.WithFields(logrus.Fields{
		"brokers": strings.Join(cfg.Brokers, ","),
		"topic":   cfg.ReviewsTopic,
		"timeout": cfg.PublishTimeout.String(),
	}).Info("publishing review events to kafka")
	return p, p
}

func redisCloser(client *redis.Client) io.Closer {
	if client == nil {
		return nil
	}
	return client
}

func setupBaseMiddleware(router *chi.Mux, timeout time.Duration, logger *logrus.Logger) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(metrics.InstrumentHandler)
	router.Use(middleware.Timeout(timeout))
	logger.Debug("base HTTP middleware registered")
}

// requestLogger logs one line per request through logrus.
func requestLogger(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.WithFields(logrus.Fields{
				"request_id":  middleware.GetReqID(r.Context()),
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
			}).Info("request completed")
		})
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

func registerHealthCheck(router *chi.Mux, logger *logrus.Logger, db pinger) {
	healthPath := "/healthz"
	router.Get(healthPath, func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		dbStatus := "healthy"
		code := http.StatusOK
		if err := db.Ping(ctx); err != nil {
			dbStatus = "unhealthy"
			code = http.StatusServiceUnavailable
			logger.WithError(err).Warn("health check DB ping failed")
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      dbStatus,
			"serviceName": defaultAppName,
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"database":    dbStatus,
		})
	})
	logger.WithField("path", healthPath).Debug("HTTP health check registered")
}

// registerMedia serves uploaded sneaker images when a media root is configured.
func registerMedia(router *chi.Mux, cfg config.MediaConfig, logger *logrus.Logger) {
	if cfg.Root == "" {
		return
	}
	prefix := "/" + strings.Trim(cfg.URL, "/") + "/"
	router.Handle(prefix+"*", http.StripPrefix(prefix, http.FileServer(http.Dir(cfg.Root))))
	logger.WithFields(logrus.Fields{"url": prefix, "root": cfg.Root}).Info("serving media files")
}

func setupGRPCServer(logger *logrus.Logger, grpcAPIHandler *api.GRPCHandler) *grpc.Server {
	s := grpc.NewServer()

	api.RegisterCatalogServer(s, grpcAPIHandler)
	logger.Debug("catalog gRPC service registered")

	// Register gRPC Health Checking Protocol service.
	grpc_health_v1.RegisterHealthServer(s, health.NewServer())

	// Enable gRPC server reflection (useful for tools like grpcurl).
	reflection.Register(s)

	return s
}

type namedCloser struct {
	name   string
	closer io.Closer
}

func waitForShutdown(logger *logrus.Logger, httpServer *http.Server, grpcServer *grpc.Server, closers []namedCloser) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	receivedSignal := <-sigChan
	logger.WithField("signal", receivedSignal.String()).Info("starting graceful shutdown")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	stoppedGrpc := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedGrpc)
	}()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP server graceful shutdown failed")
	} else {
		logger.Info("HTTP server gracefully shut down")
	}

	select {
	case <-stoppedGrpc:
		logger.Info("gRPC server gracefully shut down")
	case <-shutdownCtx.Done():
		logger.WithError(shutdownCtx.Err()).Warn("gRPC server graceful shutdown timed out, forcing stop")
		grpcServer.Stop()
	}

	// In-flight requests are done; flush events before dropping connections.
	for _, c := range closers {
		if c.closer == nil {
			continue
		}
		if err := c.closer.Close(); err != nil {
			logger.WithError(err).WithField("resource", c.name).Warn("error closing resource")
		}
	}
}
