// Package httpapi wires the Gin transport to the translation services and
// the cross-cutting middleware.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-translation-backend/docs"
	"github.com/tbourn/go-translation-backend/internal/config"
	"github.com/tbourn/go-translation-backend/internal/http/handlers"
	"github.com/tbourn/go-translation-backend/internal/http/middleware"
	"github.com/tbourn/go-translation-backend/internal/repo"
	"github.com/tbourn/go-translation-backend/internal/services"
)

var (
	corsMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey}
	corsExpose  = []string{"X-Request-ID", "ETag", "Location", "Retry-After", "Idempotency-Replayed"}
)

// RegisterRoutes attaches middleware and endpoints to r.
//
// Middleware order:
//  1. OpenTelemetry
//  2. RequestID
//  3. Logger (redacting)
//  4. Recovery
//  5. Body size limit
//  6. Metrics
//  7. Idempotency validator, before the limiter so replays bypass it
//  8. Rate limiter (per client, reads and writes counted apart)
//  9. CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, exports services.ExportCache, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	idemSvc := services.NewIdempotencyService(db, cfg.IdempotencyTTL)

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(middleware.LogOptions{
		MaskHeaders: []string{"X-Api-Key"},
		LogHeaders:  []string{"User-Agent", "Referer", middleware.HeaderIdempotencyKey},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(cfg.MaxBodyBytes))
	r.Use(middleware.Metrics())
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idemSvc.Exists))
	r.Use(middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientAndClass()).Handler())
	r.Use(corsMiddleware(cfg.CORS))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", handlers.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	svc := services.NewTranslationService(db, exports)
	stats := func(ctx context.Context) (int64, *time.Time, error) { return repo.KeysStats(ctx, db) }
	h := handlers.New(svc, idemSvc, stats)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.GET("/translations", h.SearchTranslations)
		api.GET("/translations/export", gzip.Gzip(gzip.DefaultCompression), h.ExportTranslations)
		api.GET("/translations/:key", h.ShowTranslation)
		api.POST("/translations", h.CreateTranslation)
		api.PUT("/translations/:key", h.UpdateTranslation)
		api.DELETE("/translations/:key", h.DeleteTranslation)
	}
}

// corsMiddleware allows any origin without credentials when no allowlist
// is configured.
func corsMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:  corsMethods,
		AllowHeaders:  corsHeaders,
		ExposeHeaders: corsExpose,
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = cfg.AllowedOrigins
	}
	return cors.New(cc)
}

// limitBody caps request bodies; reads past maxBytes fail with
// *http.MaxBytesError. maxBytes <= 0 means 1 MiB.
func limitBody(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
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
