package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/scigraph/scigraph-backend/internal/http/handlers"
	httpMW "github.com/scigraph/scigraph-backend/internal/http/middleware"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
)

type RouterConfig struct {
	Logger *logger.Logger

	ExtractionHandler *httpH.ExtractionHandler
	NormalizeHandler  *httpH.NormalizeHandler
	PathHandler       *httpH.PathHandler
	QueryHandler      *httpH.QueryHandler
	ReasonHandler     *httpH.ReasonHandler
	ValidateHandler   *httpH.ValidateHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.Tracing("scigraph"))
	r.Use(httpMW.AttachTraceContext())
	if cfg.Logger != nil {
		r.Use(httpMW.RequestLogger(cfg.Logger))
	}
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/v1")
	{
		// Extraction
		if cfg.ExtractionHandler != nil {
			api.POST("/extract", cfg.ExtractionHandler.Extract)
			api.POST("/extract/batch", cfg.ExtractionHandler.ExtractBatch)
			api.GET("/stats", cfg.ExtractionHandler.Stats)
		}

		// Normalization
		if cfg.NormalizeHandler != nil {
			api.POST("/normalize", cfg.NormalizeHandler.Normalize)
		}

		// Path search
		if cfg.PathHandler != nil {
			api.GET("/paths", cfg.PathHandler.FindPaths)
		}

		// Natural-language query
		if cfg.QueryHandler != nil {
			api.POST("/query", cfg.QueryHandler.Query)
		}

		// Multi-step reasoning
		if cfg.ReasonHandler != nil {
			api.POST("/reason", cfg.ReasonHandler.Reason)
		}

		// Claim validation
		if cfg.ValidateHandler != nil {
			api.POST("/validate", cfg.ValidateHandler.Validate)
		}
	}

	return r
}
