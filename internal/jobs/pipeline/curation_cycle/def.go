package curation_cycle

import (
	"context"

	"github.com/yungbote/curator-backend/internal/modules/curation/cycle"
	"github.com/yungbote/curator-backend/internal/modules/curation/health"
	"github.com/yungbote/curator-backend/internal/platform/logger"
)

const JobType = "curation_cycle"

// AlertSink receives the health report of every finished cycle.
type AlertSink interface {
	PublishAlerts(ctx context.Context, rep *health.Report) int
}

type Pipeline struct {
	log    *logger.Logger
	runner *cycle.Runner
	alerts AlertSink
}

func New(baseLog *logger.Logger, runner *cycle.Runner) *Pipeline {
	return &Pipeline{
		log:    baseLog.With("job", JobType),
		runner: runner,
	}
}

func (p *Pipeline) WithAlerts(sink AlertSink) *Pipeline {
	p.alerts = sink
	return p
}

func (p *Pipeline) Type() string { return JobType }
