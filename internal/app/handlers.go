package app

import (
	"github.com/yungbote/curator-backend/internal/http"
	httpH "github.com/yungbote/curator-backend/internal/http/handlers"
	"github.com/yungbote/curator-backend/internal/observability"
	"github.com/yungbote/curator-backend/internal/platform/logger"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Item     *httpH.ItemHandler
	Schedule *httpH.ScheduleHandler
	Cycle    *httpH.CycleHandler
}

func wireHandlers(log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(services.Runner.Monitor()),
		Item:     httpH.NewItemHandler(services.Items),
		Schedule: httpH.NewScheduleHandler(services.Schedule),
		Cycle:    httpH.NewCycleHandler(services.JobService),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, metrics *observability.Metrics) *http.Server {
	return http.NewServer(http.RouterConfig{
		Log:             log,
		Metrics:         metrics,
		ServiceName:     cfg.ServiceName,
		HealthHandler:   handlers.Health,
		ItemHandler:     handlers.Item,
		ScheduleHandler: handlers.Schedule,
		CycleHandler:    handlers.Cycle,
	})
}
