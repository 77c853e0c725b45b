package app

import (
	"github.com/yungbote/curator-backend/internal/modules/curation/health"
	"github.com/yungbote/curator-backend/internal/platform/envutil"
	"github.com/yungbote/curator-backend/internal/platform/logger"
	"github.com/yungbote/curator-backend/internal/utils"
)

type Config struct {
	Port        string
	ServiceName string
	Environment string
	Version     string

	// RunServer serves the HTTP API; RunWorker executes queued cycles.
	RunServer bool
	RunWorker bool

	// CycleCron is a six-field cron spec; empty disables the periodic trigger.
	CycleCron string

	MetricsAddr      string
	AlertChannel     string
	AlertMinSeverity health.Severity
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		Port:             utils.GetEnv("PORT", "8080", log),
		ServiceName:      utils.GetEnv("SERVICE_NAME", "curator", log),
		Environment:      utils.GetEnv("ENVIRONMENT", "development", log),
		Version:          utils.GetEnv("VERSION", "dev", log),
		RunServer:        utils.GetEnvAsBool("RUN_SERVER", true, log),
		RunWorker:        utils.GetEnvAsBool("RUN_WORKER", true, log),
		CycleCron:        envutil.String("CYCLE_CRON", ""),
		MetricsAddr:      envutil.String("METRICS_ADDR", ""),
		AlertChannel:     envutil.String("CURATION_ALERT_CHANNEL", "curation"),
		AlertMinSeverity: health.Severity(envutil.String("CURATION_ALERT_MIN_SEVERITY", string(health.SeverityWarning))),
	}
}
