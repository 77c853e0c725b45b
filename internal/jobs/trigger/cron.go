package trigger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	types "github.com/yungbote/curator-backend/internal/domain"
	"github.com/yungbote/curator-backend/internal/pkg/dbctx"
	"github.com/yungbote/curator-backend/internal/platform/logger"
	"github.com/yungbote/curator-backend/internal/services"
)

type CycleEnqueuer interface {
	EnqueueCycleIfNeeded(dbc dbctx.Context, triggeredBy string, dedupeKey string, payload map[string]any) (*types.JobRun, bool, error)
}

// Cron enqueues a curation cycle on a six-field (seconds first) schedule.
// Ticks are deduped per minute so several replicas running the same
// schedule enqueue one cycle.
type Cron struct {
	log  *logger.Logger
	jobs CycleEnqueuer
	spec string
	c    *cron.Cron
}

func NewCron(baseLog *logger.Logger, jobs CycleEnqueuer, spec string, loc *time.Location) (*Cron, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("cycle cron spec is empty")
	}
	if loc == nil {
		loc = time.UTC
	}
	t := &Cron{
		log:  baseLog.With("component", "CycleCron"),
		jobs: jobs,
		spec: spec,
		c:    cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
	}
	if _, err := t.c.AddFunc(spec, func() { t.Fire(context.Background(), time.Now()) }); err != nil {
		return nil, fmt.Errorf("parse cycle cron %q: %w", spec, err)
	}
	return t, nil
}

// DedupeKey is the job dedupe key for a tick, truncated to the minute.
func DedupeKey(tick time.Time) string {
	return "curation_cycle:" + tick.UTC().Truncate(time.Minute).Format(time.RFC3339)
}

// Fire enqueues one cycle for tick. It returns the job when one was created.
func (t *Cron) Fire(ctx context.Context, tick time.Time) *types.JobRun {
	job, created, err := t.jobs.EnqueueCycleIfNeeded(dbctx.Context{Ctx: ctx}, "cron", DedupeKey(tick), nil)
	switch {
	case errors.Is(err, services.ErrCycleRunning):
		t.log.Info("Cycle still running; skipping tick", "tick", tick)
		return nil
	case err != nil:
		t.log.Error("Cron enqueue failed", "tick", tick, "error", err)
		return nil
	case !created:
		t.log.Debug("Cycle already enqueued for tick", "tick", tick, "job_id", job.ID)
		return nil
	}
	t.log.Info("Cron enqueued curation cycle", "tick", tick, "job_id", job.ID)
	return job
}

// Start runs the schedule until ctx is done.
func (t *Cron) Start(ctx context.Context) {
	t.log.Info("Starting cycle cron", "spec", t.spec)
	t.c.Start()
	go func() {
		<-ctx.Done()
		<-t.c.Stop().Done()
		t.log.Info("Cycle cron stopped")
	}()
}
