// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/paydeck/recon-backend/internal/config"
	"github.com/paydeck/recon-backend/internal/extract"
	"github.com/paydeck/recon-backend/internal/http/handlers"
	"github.com/paydeck/recon-backend/internal/http/middleware"
	"github.com/paydeck/recon-backend/internal/match"
	"github.com/paydeck/recon-backend/internal/repo"
	"github.com/paydeck/recon-backend/internal/services"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, CORS and security headers, health and metrics endpoints, and then
// mounts the webhook and admin surfaces.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per operator/IP, bypass on replay)
//  9. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, ex extract.Extractor, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction. Gateway payloads carry MSISDNs,
	// so the scrubber must run before anything reaches the log sink.
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			middleware.HeaderIdempotencyKey,
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, source, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIngestReceipt(ctx, db, source, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 8) Token-bucket rate limiter per operator/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByOperatorOrIP())
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-User", middleware.HeaderIdempotencyKey, middleware.HeaderGatewaySource},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-User", middleware.HeaderIdempotencyKey, middleware.HeaderGatewaySource},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS).
	// Responses carry amounts and payer masks; no-store keeps them out of
	// intermediary caches.
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db/extractor
	promptSvc := services.NewPromptService(db)
	parserSvc := &services.ParserService{
		DB:             db,
		Extractor:      ex,
		Prompts:        promptSvc,
		Events:         services.LogEvents{},
		MatchThreshold: cfg.MatchThreshold,
	}
	ingestSvc := services.NewIngestService(db, parserSvc)
	ingestSvc.ReceiptTTL = cfg.ReceiptTTL
	ingestSvc.ParseTimeout = cfg.ExtractTimeout
	merchantSvc := services.NewMerchantService(db)
	workbenchSvc := &services.WorkbenchService{
		DB:     db,
		Events: services.LogEvents{},
		Parser: parserSvc,
		Ranker: match.NewScorer(),
	}

	h := handlers.New(ingestSvc, merchantSvc, workbenchSvc, promptSvc, parserSvc, db)

	// Webhooks
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/sms", middleware.RequireBearer(cfg.IngestToken), h.IngestSms)
		// Merchant callbacks authenticate through their HMAC signature.
		webhooks.POST("/merchant", h.MerchantCallback)
	}

	// Operator surface under the versioned API base (e.g. /api/v1/admin)
	apiBase := cfg.APIBasePath
	admin := groupWithPrefix(r, apiBase).Group("/admin",
		middleware.RequireBearer(cfg.AdminToken),
		middleware.OperatorIdentity(),
		gzip.Gzip(gzip.DefaultCompression),
	)
	{
		admin.GET("/sms", h.ListSms)
		admin.GET("/sms/:id/suggestions", h.SuggestMatches)
		admin.POST("/sms/:id/attach", h.AttachSms)
		admin.POST("/sms/:id/retry", h.RetrySms)
		admin.POST("/sms/:id/dismiss", h.DismissSms)

		admin.GET("/payments/review", h.ListPaymentReviews)

		admin.GET("/prompts", h.ListPrompts)
		admin.POST("/prompts", h.CreatePrompt)
		admin.POST("/prompts/:id/activate", h.ActivatePrompt)
		admin.POST("/prompts/test", h.TestPrompt)

		admin.GET("/stats", h.QueueStats)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
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
