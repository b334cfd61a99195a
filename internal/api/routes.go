// Package api provides the HTTP API for the Granta server.
package api

import (
	"time"

	"github.com/granta-app/granta/internal/api/handlers"
	"github.com/granta-app/granta/internal/api/middleware"
	"github.com/granta-app/granta/internal/auth"
	"github.com/granta-app/granta/internal/config"
	"github.com/granta-app/granta/internal/db"
	"github.com/granta-app/granta/internal/delivery"
	"github.com/granta-app/granta/internal/entitlement"
	"github.com/granta-app/granta/internal/metrics"
	"github.com/granta-app/granta/internal/payments"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// maxBodyBytes caps JSON request bodies. File uploads bypass this limit via
// the dedicated upload route group.
const maxBodyBytes = 1 << 20

// Version information set at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine   *gin.Engine
	logger   zerolog.Logger
	sessions *auth.SessionStore
	db       *db.DB
}

// NewRouter creates a new Router with the given dependencies.
func NewRouter(
	cfg config.ServerConfig,
	database *db.DB,
	sessions *auth.SessionStore,
	entitlements *entitlement.Service,
	processor *payments.Processor,
	files *delivery.Client,
	registry *prometheus.Registry,
	m *metrics.Metrics,
	logger zerolog.Logger,
) (*Router, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		Engine:   gin.New(),
		logger:   logger.With().Str("component", "router").Logger(),
		sessions: sessions,
		db:       database,
	}

	// Global middleware
	r.Engine.Use(gin.Recovery())
	r.Engine.Use(middleware.RequestLogger(logger))
	r.Engine.Use(middleware.CORS(cfg.CORSOrigins, cfg.Environment))
	if m != nil {
		r.Engine.Use(middleware.HTTPMetrics(m))
	}

	// Rate limiting
	rateLimiter, err := middleware.NewRateLimiter(cfg.RateLimit, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	r.Engine.Use(rateLimiter)

	// Health, readiness and metrics endpoints (no auth required)
	healthHandler := handlers.NewHealthHandler(database, registry, logger)
	healthHandler.RegisterPublicRoutes(r.Engine)

	// Version endpoint (no auth required)
	versionHandler := handlers.NewVersionHandler(Version, Commit, BuildDate)
	versionHandler.RegisterPublicRoutes(r.Engine)

	// Public download surface (token is the credential)
	downloadsHandler := handlers.NewDownloadsHandler(
		entitlements,
		database,
		files,
		cfg.DownloadMode,
		time.Duration(cfg.PresignTTLMin)*time.Minute,
		m,
		logger,
	)
	downloadLimiter, err := middleware.NewDownloadRateLimiter(cfg.DownloadRate, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	downloadsHandler.RegisterPublicRoutes(r.Engine, downloadLimiter)

	// Payment webhook (signature-authenticated)
	webhookHandler := handlers.NewWebhookHandler(processor, []byte(cfg.WebhookSecret), m, logger)
	webhookHandler.RegisterPublicRoutes(r.Engine)

	// Login (no session yet)
	authHandler := handlers.NewAuthHandler(database, sessions, logger)
	authHandler.RegisterPublicRoutes(r.Engine)

	// API v1 routes (session required)
	apiV1 := r.Engine.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(sessions, logger))
	apiV1.Use(middleware.BodyLimitMiddleware(maxBodyBytes))

	authHandler.RegisterRoutes(apiV1)

	// Mutations below this point require a write-capable role.
	apiV1.Use(middleware.RequireWriteRole())
	handlers.NewEntitlementsHandler(entitlements, m, logger).RegisterRoutes(apiV1)
	handlers.NewCustomersHandler(database, logger).RegisterRoutes(apiV1)
	handlers.NewOrdersHandler(database, logger).RegisterRoutes(apiV1)

	// Product routes skip the JSON body cap so multipart uploads fit.
	productsGroup := r.Engine.Group("/api/v1")
	productsGroup.Use(middleware.AuthMiddleware(sessions, logger))
	productsGroup.Use(middleware.RequireWriteRole())
	handlers.NewProductsHandler(database, files, logger).RegisterRoutes(productsGroup)

	return r, nil
}
