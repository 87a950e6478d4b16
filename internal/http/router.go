package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/Super-Meta77/sefaria-backend/internal/http/handlers"
	httpMW "github.com/Super-Meta77/sefaria-backend/internal/http/middleware"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string

	HealthHandler     *httpH.HealthHandler
	SugyaHandler      *httpH.SugyaHandler
	ExtractionHandler *httpH.ExtractionHandler
	SeedHandler       *httpH.SeedHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api/sugya")
	{
		// Extraction
		if cfg.ExtractionHandler != nil {
			api.POST("/extract", cfg.ExtractionHandler.Extract)
			api.POST("/extract-all", cfg.ExtractionHandler.ExtractAll)
			api.GET("/runs", cfg.ExtractionHandler.ListRuns)
			api.GET("/runs/:id", cfg.ExtractionHandler.GetRun)
		}

		// Seed
		if cfg.SeedHandler != nil {
			api.POST("/seed", cfg.SeedHandler.Seed)
		}

		// Read models
		if cfg.SugyaHandler != nil {
			api.GET("", cfg.SugyaHandler.ListSugyot)
			api.GET("/:ref", cfg.SugyaHandler.GetStructure)
			api.GET("/:ref/flow", cfg.SugyaHandler.GetFlow)
			api.GET("/:ref/texts", cfg.SugyaHandler.GetTexts)
		}
	}

	return r
}
