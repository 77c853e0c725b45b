package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/curator-backend/internal/jobs/pipeline/curation_cycle"
	jobruntime "github.com/yungbote/curator-backend/internal/jobs/runtime"
	"github.com/yungbote/curator-backend/internal/jobs/trigger"
	"github.com/yungbote/curator-backend/internal/jobs/worker"
	"github.com/yungbote/curator-backend/internal/modules/curation/cycle"
	"github.com/yungbote/curator-backend/internal/modules/curation/policy"
	"github.com/yungbote/curator-backend/internal/platform/logger"
	"github.com/yungbote/curator-backend/internal/services"
	"github.com/yungbote/curator-backend/internal/temporalx"
	"github.com/yungbote/curator-backend/internal/temporalx/temporalworker"
)

type Services struct {
	Policy policy.Config
	Runner *cycle.Runner

	Items    services.ItemService
	Schedule services.ScheduleService

	// Jobs + notifications
	Notifier   *services.Notifier
	JobService services.JobService

	// Job infra. At most one of JobWorker and TemporalWorker is set.
	JobRegistry    *jobruntime.Registry
	JobWorker      *worker.Worker
	TemporalWorker *temporalworker.Runner
	Cron           *trigger.Cron
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	pol, err := policy.Load(log)
	if err != nil {
		return Services{}, fmt.Errorf("load curation policy: %w", err)
	}
	runner, err := cycle.NewRunner(db, repos.Items, repos.Slots, pol, log)
	if err != nil {
		return Services{}, fmt.Errorf("init cycle runner: %w", err)
	}

	notifier := services.NewNotifier(log, clients.Bus, cfg.AlertChannel, cfg.AlertMinSeverity)
	tcfg := temporalx.LoadConfig()
	jobService := services.NewJobService(db, log, repos.Jobs, notifier, clients.Temporal, tcfg.TaskQueue)

	itemService := services.NewItemService(db, log, repos.Items)
	scheduleService := services.NewScheduleService(db, log, repos.Items, repos.Slots, runner.Scheduler())

	registry := jobruntime.NewRegistry()
	if err := registry.Register(curation_cycle.New(log, runner).WithAlerts(notifier)); err != nil {
		return Services{}, err
	}

	out := Services{
		Policy:      pol,
		Runner:      runner,
		Items:       itemService,
		Schedule:    scheduleService,
		Notifier:    notifier,
		JobService:  jobService,
		JobRegistry: registry,
	}

	if cfg.RunWorker {
		if clients.Temporal != nil {
			w, err := temporalworker.NewRunner(log, clients.Temporal, db, repos.Jobs, runner, notifier, notifier)
			if err != nil {
				return Services{}, fmt.Errorf("init temporal worker: %w", err)
			}
			out.TemporalWorker = w
		} else {
			out.JobWorker = worker.NewWorker(db, log, repos.Jobs, registry, notifier, worker.ConfigFromEnv())
		}
	}

	if cfg.CycleCron != "" {
		c, err := trigger.NewCron(log, jobService, cfg.CycleCron, pol.Location())
		if err != nil {
			return Services{}, err
		}
		out.Cron = c
	}
	return out, nil
}
