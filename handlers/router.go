package handlers

import (
	"net/http"
	"time"

	"metadata-injector/config"
	"metadata-injector/errors"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
)

// RequestIDHeader carries the id every log line of a request is tagged with
const RequestIDHeader = "X-Request-Id"

// Logger attaches a request scoped logger to the request context and logs
// every request once it is done
func Logger(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := xid.New().String()

		logger := base.With().Str("request_id", id).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))
		c.Header(RequestIDHeader, id)

		c.Next()

		status := c.Writer.Status()
		ev := logger.Info()
		switch {
		case status >= http.StatusInternalServerError:
			ev = logger.Error()
		case status >= http.StatusBadRequest:
			ev = logger.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Int("size", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func corsConfig(origins []string) cors.Config {
	config := cors.DefaultConfig()
	config.AllowOrigins = origins
	config.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"}
	config.ExposeHeaders = []string{"Content-Disposition", RequestIDHeader}
	for _, o := range origins {
		if o == "*" {
			// credentials can't be combined with a wildcard origin
			return config
		}
	}
	config.AllowCredentials = true
	return config
}

// NewRouter returns the engine serving the API for h
func NewRouter(cfg config.Config, logger zerolog.Logger, h *MetadataHandler) (*gin.Engine, error) {
	const op errors.Op = "handlers.NewRouter"

	router := gin.New()
	router.Use(gin.Recovery(), Logger(logger), h.metrics.instrument())

	if len(cfg.CORSOrigins) > 0 {
		config := corsConfig(cfg.CORSOrigins)
		if err := config.Validate(); err != nil {
			return nil, errors.E(op, errors.InvalidArgument, errors.Info("cors_origins"), err)
		}
		router.Use(cors.New(config))
	}

	api := router.Group("/api/v1")
	{
		api.GET("/health", h.HealthCheck)
		api.GET("/formats", h.Formats)

		md := api.Group("/metadata")
		{
			md.GET("/random", h.RandomMetadata)
			md.GET("/pools", h.Pools)
			md.POST("/inject", h.InjectMetadata)
			md.POST("/inspect", h.Inspect)
			md.GET("/download/:id", h.Download)
			md.DELETE("/:id", h.Delete)
		}
	}

	router.GET("/metrics", gin.WrapH(h.metrics.Handler()))

	return router, nil
}
