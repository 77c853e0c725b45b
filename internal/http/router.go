package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/curator-backend/internal/http/handlers"
	httpMW "github.com/yungbote/curator-backend/internal/http/middleware"
	"github.com/yungbote/curator-backend/internal/observability"
	"github.com/yungbote/curator-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string

	ItemHandler     *httpH.ItemHandler
	ScheduleHandler *httpH.ScheduleHandler
	CycleHandler    *httpH.CycleHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		// Ingest
		if cfg.ItemHandler != nil {
			api.POST("/items", cfg.ItemHandler.InsertCandidate)
			api.GET("/items/:id", cfg.ItemHandler.GetItem)
		}

		// Schedule
		if cfg.ScheduleHandler != nil {
			api.GET("/schedule/:day", cfg.ScheduleHandler.GetDay)
			api.POST("/publications", cfg.ScheduleHandler.RecordPublication)
		}

		// Cycles
		if cfg.CycleHandler != nil {
			api.POST("/cycles", cfg.CycleHandler.StartCycle)
			api.GET("/cycles", cfg.CycleHandler.ListCycles)
			api.GET("/cycles/:id", cfg.CycleHandler.GetCycle)
			api.POST("/cycles/:id/cancel", cfg.CycleHandler.CancelCycle)
		}

		if cfg.HealthHandler != nil {
			api.GET("/health", cfg.HealthHandler.QueueHealth)
		}
	}

	return r
}
