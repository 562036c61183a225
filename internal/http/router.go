// Package httpapi wires the HTTP transport (Gin) to the application
// services, middleware, and route handlers. It centralizes cross-cutting
// concerns: tracing, correlation IDs, logging with redaction, panic
// recovery, metrics, compression, CORS, security headers, authentication,
// idempotency, and both rate-limiting layers.
package httpapi

import (
	"context"
	"net/http"
	"path"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/mgeorgiou/go-imagegen-gateway/internal/auth"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/breaker"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/config"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/http/handlers"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/http/middleware"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/inference"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/ratelimit"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/repo"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/services"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/storage"
)

// Deps are the process-wide singletons injected into the router. All fields
// except DB are required; a nil DB disables idempotent replay and
// created_at enrichment.
type Deps struct {
	DB       *gorm.DB
	Store    storage.Store
	Invoker  inference.Invoker
	Breaker  *breaker.Breaker
	Redis    redis.Cmdable
	Verifier *auth.Authenticator
	Cfg      config.Config
}

// RegisterRoutes attaches all middleware and endpoints to the Gin engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate the correlation id
//  3. RedactingLogger: structured access logs with scrubbing
//  4. Recovery: capture panics after the logger
//  5. Body size limit and gzip
//  6. Metrics
//  7. Edge per-IP rate limiter (before auth, shields the token endpoint)
//  8. CORS and security headers
//
// The per-user quota and idempotency validation run inside the
// authenticated group, after RequireAuth resolves the identity.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	cfg := deps.Cfg
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-Api-Key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	edge := middleware.NewEdgeLimiter(cfg.Rate.EdgeRPS, cfg.Rate.EdgeBurst, middleware.KeyByClientIP())
	r.Use(edge.Handler())

	r.Use(corsMiddleware(cfg))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness; dependency health lives on the authenticated /health.
	r.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← store/invoker/breaker/ledger.
	apiBase := cfg.APIBasePath
	submitSvc := &services.SubmitService{
		Store:            deps.Store,
		Invoker:          deps.Invoker,
		Breaker:          deps.Breaker,
		DB:               deps.DB,
		EndpointName:     cfg.Inference.EndpointName,
		InputPrefix:      cfg.Storage.InputPrefix,
		MaxPromptRunes:   cfg.MaxPromptRunes,
		EstimatedSeconds: cfg.Inference.EstimatedSeconds,
		StatusBasePath:   path.Join(apiBase, "status"),
		LedgerTTL:        cfg.IdempotencyTTL,
	}
	statusSvc := &services.StatusService{
		Store:         deps.Store,
		DB:            deps.DB,
		OutputPrefix:  cfg.Storage.OutputPrefix,
		FailurePrefix: cfg.Storage.FailurePrefix,
		PresignTTL:    cfg.Storage.PresignTTL,
		ListPageSize:  cfg.Storage.ListPageSize,
		MaxErrorChars: cfg.Inference.MaxErrorChars,
	}
	h := handlers.New(submitSvc, statusSvc, deps.Verifier,
		cfg.Auth.DefaultTTL, cfg.Auth.MaxTTL,
		handlers.HealthDeps{
			Redis:        deps.Redis,
			Store:        deps.Store,
			OutputPrefix: cfg.Storage.OutputPrefix,
			EndpointName: cfg.Inference.EndpointName,
		})

	base := groupWithPrefix(r, apiBase)

	// Token bootstrap sits outside the authenticated group and can be
	// disabled when an external identity provider mints tokens.
	if cfg.Auth.TokenEndpoint {
		base.POST("/token", h.Token)
	}

	userLimiter := ratelimit.New(deps.Redis, cfg.Rate.UserLimit, cfg.Rate.UserWindow, cfg.Rate.FailOpen)
	authed := base.Group("")
	authed.Use(middleware.RequireAuth(deps.Verifier))
	authed.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		replayLookup(deps.DB),
	))
	authed.Use(middleware.UserRateLimit(userLimiter))
	{
		authed.POST("/generate", h.Generate)
		authed.GET("/status/:job_id", h.Status)
		authed.GET("/health", h.Health)
	}
}

// replayLookup probes the submission ledger for a stored result. A nil DB
// disables replay detection.
func replayLookup(db *gorm.DB) middleware.IdempotencyLookup {
	if db == nil {
		return nil
	}
	return func(ctx context.Context, userID, key string, now time.Time) (bool, error) {
		if _, err := repo.GetSubmissionByKey(ctx, db, userID, key, now); err != nil {
			return false, nil
		}
		return true, nil
	}
}

// corsMiddleware builds the CORS posture: allow-all when no origins are
// configured, allowlist otherwise.
func corsMiddleware(cfg config.Config) gin.HandlerFunc {
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		middleware.HeaderIdempotencyKey,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		return cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Retry-After"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		})
	}
	return cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     allowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	})
}

// limitBody caps request body size using http.MaxBytesReader; oversized
// bodies error on read downstream.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
