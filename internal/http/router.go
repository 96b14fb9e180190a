// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic router setup; all dependencies injected through Deps
//   - Session routes guarded per permission, webhook routes per shared secret
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/callqa-backend/internal/auth"
	"github.com/tbourn/callqa-backend/internal/config"
	"github.com/tbourn/callqa-backend/internal/docs"
	"github.com/tbourn/callqa-backend/internal/domain"
	"github.com/tbourn/callqa-backend/internal/events"
	"github.com/tbourn/callqa-backend/internal/http/handlers"
	"github.com/tbourn/callqa-backend/internal/http/middleware"
	"github.com/tbourn/callqa-backend/internal/n8n"
	"github.com/tbourn/callqa-backend/internal/rbac"
	"github.com/tbourn/callqa-backend/internal/repo"
	"github.com/tbourn/callqa-backend/internal/services"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

// Deps are the collaborators RegisterRoutes builds the services from.
// Redis, Events and N8N are optional.
type Deps struct {
	DB     *gorm.DB
	Config config.Config
	Tokens *auth.Manager

	// Redis switches the rate limiter to a shared fixed window.
	Redis redis.Scripter
	// Events receives review lifecycle events. Nil discards them.
	Events events.Publisher
	// N8N overrides the outbound workflow client (tests).
	N8N *n8n.Client

	Version string
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), CORS and security
// headers, health and metrics endpoints, and then mounts the API under
// cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Compression
//  8. CORS and Security headers
//
// Per group: session (or webhook secret), then idempotency validation, then
// the rate limiter, so replays of a manual dispatch bypass the limiter.
func RegisterRoutes(r *gin.Engine, d Deps) {
	cfg := d.Config
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"Authorization", middleware.HeaderIdempotencyKey},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit
	r.Use(limitBody(maxBodyBytes))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Response compression
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", "/swagger"})))

	// 8) CORS posture and security headers
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "Маршрут не найден")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "Метод не поддерживается")
	})

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(newServices(d))
	limit := rateLimiter(d)

	// Liveness/health at the root for probes, and under the API base.
	if cfg.APIBasePath != "" && cfg.APIBasePath != "/" {
		r.GET("/health", h.Health)
	}

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.GET("/health", h.Health)
	api.POST("/auth/login", limit, h.Login)

	// Workflow callbacks: shared bearer secret instead of a session.
	hooks := api.Group("", middleware.WebhookAuth(cfg.N8N.WebhookSecret), limit)
	{
		hooks.POST("/webhook/calls", h.WebhookCreateCall)
		hooks.POST("/webhook/n8n/results", h.IngestResults)
		hooks.POST("/webhook/n8n/results/:reviewId", h.IngestReviewResults)
		hooks.POST("/incoming-call", h.IncomingCall)
		hooks.POST("/incoming-call/results", h.IncomingCallResults)
	}
	api.POST("/webhooks/n8n/call", middleware.WebhookAuth(cfg.N8N.CallToken), limit, h.N8NUpsertCall)

	// Session API
	sess := api.Group("",
		auth.RequireSession(d.Tokens),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idempotencyLookup(d.DB)),
		limit,
	)
	{
		// Calls
		sess.GET("/calls", h.ListCalls)
		sess.POST("/calls", h.CreateCall)
		sess.POST("/calls/bulk-delete", rbac.Require(rbac.DeleteCalls), h.BulkDeleteCalls)
		sess.POST("/calls/clear-all", rbac.RequireRole(domain.RoleAdministrator), h.ClearAllCalls)
		sess.GET("/calls/:id", h.GetCall)
		sess.DELETE("/calls/:id", rbac.Require(rbac.DeleteCalls), h.DeleteCall)

		// Reviews
		sess.POST("/calls/:id/send", rbac.Require(rbac.SendToAnalysis), h.SendToAnalysis)
		sess.DELETE("/calls/:id/reviews/:reviewId", h.DeleteReview)

		// Checklist templates
		tpl := sess.Group("/checklists", rbac.Require(rbac.ManageTemplates))
		tpl.GET("", h.ListChecklists)
		tpl.POST("", h.CreateChecklist)
		tpl.PATCH("/set-default", h.SetDefaultChecklist)
		tpl.GET("/:id", h.GetChecklist)
		tpl.PUT("/:id", h.UpdateChecklist)
		tpl.DELETE("/:id", h.DeleteChecklist)
		tpl.PATCH("/:id/toggle", h.ToggleChecklist)

		// Users
		adm := sess.Group("/admin/users", rbac.Require(rbac.ManageUsers))
		adm.GET("", h.ListUsers)
		adm.POST("", h.CreateUser)
		adm.GET("/:id", h.GetUser)
		adm.PUT("/:id", h.UpdateUser)
		adm.DELETE("/:id", h.DeleteUser)

		sess.GET("/profile", h.GetProfile)
		sess.PUT("/profile", h.UpdateProfile)
	}
}

// newServices builds the service layer: services ← repo/db/n8n/events.
func newServices(d Deps) handlers.Services {
	cfg := d.Config
	client := d.N8N
	if client == nil {
		client = n8n.NewClient(cfg.N8N.Timeout)
	}
	pub := d.Events
	if pub == nil {
		pub = events.Nop{}
	}
	notifier := &n8n.Notifier{Client: client, URL: cfg.N8N.NotifyURL}

	reviews := &services.ReviewService{
		DB:             d.DB,
		Client:         client,
		ManualURL:      cfg.N8N.ManualURL,
		AutoURL:        cfg.N8N.AutoURL,
		Notifier:       notifier,
		Events:         pub,
		IdempotencyTTL: cfg.IdempotencyTTL,
	}
	return handlers.Services{
		Calls:     &services.CallService{DB: d.DB, Dispatcher: reviews, Events: pub},
		Reviews:   reviews,
		Results:   &services.ResultService{DB: d.DB, Notifier: notifier, Events: pub},
		Templates: &services.TemplateService{DB: d.DB},
		Users:     &services.UserService{DB: d.DB, BcryptCost: cfg.Auth.BcryptCost},
		Auth:      &services.AuthService{DB: d.DB, Tokens: d.Tokens},
		Health:    &services.HealthService{DB: d.DB, Version: d.Version},
	}
}

// idempotencyLookup reports whether a manual dispatch with the same key is
// still replayable.
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, userID, callID, key string, now time.Time) (bool, error) {
		if callID == "" {
			return false, nil
		}
		rec, err := repo.GetIdempotency(ctx, db, userID, callID, key, now)
		if err != nil || rec == nil {
			return false, nil
		}
		return true, nil
	}
}

// rateLimiter picks the shared Redis window when a client is configured and
// the in-process token bucket otherwise. Both key by user, then IP.
func rateLimiter(d Deps) gin.HandlerFunc {
	if d.Redis != nil {
		return middleware.NewRedisRateLimiter(d.Redis, d.Config.RateRPS, d.Config.RateBurst, middleware.KeyByUserOrIP()).Handler()
	}
	return middleware.NewRateLimiter(d.Config.RateRPS, d.Config.RateBurst, middleware.KeyByUserOrIP()).Handler()
}

// corsMiddleware allows every origin when none is configured and echoes
// allowlisted origins otherwise.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	base.AllowOrigins = origins
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
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
