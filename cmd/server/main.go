package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	formsapp "github.com/formbridge/backend/internal/application/forms"
	sessionapp "github.com/formbridge/backend/internal/application/session"
	submissionapp "github.com/formbridge/backend/internal/application/submission"
	domainsession "github.com/formbridge/backend/internal/domain/session"
	"github.com/formbridge/backend/internal/infrastructure/audit"
	"github.com/formbridge/backend/internal/infrastructure/config"
	infracrm "github.com/formbridge/backend/internal/infrastructure/crm"
	"github.com/formbridge/backend/internal/infrastructure/logger"
	infrasession "github.com/formbridge/backend/internal/infrastructure/session"
	"github.com/formbridge/backend/internal/interfaces/http/handler"
	"github.com/formbridge/backend/internal/interfaces/http/middleware"
	"github.com/formbridge/backend/internal/interfaces/http/router"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting FormBridge Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Audit store (append-only, sweeps its own retention window)
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	auditStore, err := audit.NewStore(cfg.Audit, gormLog, log)
	if err != nil {
		log.Fatal("Failed to open audit store", zap.Error(err))
	}
	defer func() {
		if err := auditStore.Close(); err != nil {
			log.Error("Error closing audit store", zap.Error(err))
		}
	}()

	// Form session store
	var sessionStore domainsession.Store
	switch cfg.Session.Backend {
	case "redis":
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		sessionStore = infrasession.NewRedisStore(redisClient, cfg.Session.TTL)
		log.Info("Session store using redis", zap.String("addr", cfg.Redis.Addr()))
	default:
		sessionStore = infrasession.NewMemoryStore(cfg.Session.TTL, cfg.Session.SweepInterval, log)
	}
	defer func() {
		if err := sessionStore.Close(); err != nil {
			log.Error("Error closing session store", zap.Error(err))
		}
	}()

	// OAuth token sessions and the connection provider
	tokenStore, err := infracrm.NewTokenStore(cfg.Token.FilePath, cfg.Token.IdleTTL, cfg.Token.SweepInterval, log)
	if err != nil {
		log.Fatal("Failed to open token store", zap.Error(err))
	}
	defer func() {
		if err := tokenStore.Close(); err != nil {
			log.Error("Error closing token store", zap.Error(err))
		}
	}()

	oauthClient := infracrm.NewOAuthClient(cfg.CRM.TokenURL, cfg.CRM.ClientID, cfg.CRM.ClientSecret, cfg.CRM.Timeout)
	tokenManager := infracrm.NewTokenManager(tokenStore, oauthClient, cfg.Token.RefreshSkew, log)
	provider := infracrm.NewProvider(cfg.CRM, tokenManager, log)

	// Application services
	formResolver := formsapp.NewResolver(cfg.CRM.FormObject, log)
	sessionService := sessionapp.NewService(sessionStore)
	submissionService := submissionapp.NewService(provider, formResolver, auditStore, submissionapp.Config{
		TrackingObject:     cfg.CRM.TrackingObject,
		RelationshipObject: cfg.CRM.RelationshipObject,
		VerifyCreates:      cfg.CRM.VerifyCreates,
	}, log)

	// HTTP engine
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.CORS(cfg.HTTP.CORSAllowOrigins, cfg.HTTP.CORSAllowMethods, cfg.HTTP.CORSAllowHeaders),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
		middleware.AuditLog(auditStore, log),
	)

	healthHandler := handler.NewHealthHandler(version)
	engine.GET("/healthz", healthHandler.Healthz)

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(handler.NewFormHandler(provider, formResolver, submissionService, log))
	r.Register(handler.NewSessionHandler(sessionService, log))
	r.Setup()

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited")
}
