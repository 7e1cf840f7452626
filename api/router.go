package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/offerscrape/api/handler"
	"github.com/use-agent/offerscrape/api/middleware"
	"github.com/use-agent/offerscrape/cache"
	"github.com/use-agent/offerscrape/config"
	"github.com/use-agent/offerscrape/metrics"
	"github.com/use-agent/offerscrape/webhook"
)

// Deps are the services the routes call into.
type Deps struct {
	Fetcher   handler.ProductFetcher
	Cache     *cache.Cache
	Batches   *handler.BatchStore
	Notifier  *webhook.Notifier
	Metrics   *metrics.Metrics
	Log       *slog.Logger
	StartTime time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health and metrics stay outside auth so probes and scrapers always work.
func NewRouter(cfg *config.Config, d Deps) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", handler.Liveness())
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	api := r.Group(cfg.Server.APIPrefix)
	api.GET("/health", handler.Health(d.Fetcher, d.StartTime))

	protected := api.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	product := protected.Group("/product")
	product.POST("/search-by-id/:product_id", handler.Product(d.Fetcher, d.Cache, cfg.Site.BaseURL, d.Metrics))
	product.POST("/batch", handler.PostBatch(d.Fetcher, d.Batches, d.Notifier, d.Log))
	product.GET("/batch/:id", handler.GetBatch(d.Batches))

	return r
}
