package jobrun

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"gorm.io/gorm"

	"github.com/yungbote/curator-backend/internal/data/repos"
	types "github.com/yungbote/curator-backend/internal/domain"
	"github.com/yungbote/curator-backend/internal/jobs/pipeline/curation_cycle"
	jobrt "github.com/yungbote/curator-backend/internal/jobs/runtime"
	"github.com/yungbote/curator-backend/internal/modules/curation/cycle"
	"github.com/yungbote/curator-backend/internal/modules/curation/schedule"
	"github.com/yungbote/curator-backend/internal/pkg/dbctx"
	"github.com/yungbote/curator-backend/internal/platform/logger"
)

type Activities struct {
	Log    *logger.Logger
	DB     *gorm.DB
	Jobs   repos.JobRunRepo
	Runner *cycle.Runner
	Notify jobrt.Notifier
	Alerts curation_cycle.AlertSink
}

func (a *Activities) context(ctx context.Context, rawID string) (*jobrt.Context, error) {
	if a == nil || a.DB == nil || a.Jobs == nil || a.Runner == nil {
		return nil, fmt.Errorf("jobrun: activity not configured")
	}
	jobID, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil || jobID == uuid.Nil {
		return nil, fmt.Errorf("jobrun: invalid job_id %q", rawID)
	}
	job, err := a.Jobs.GetByID(dbctx.Context{Ctx: ctx, Tx: a.DB}, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("jobrun: job %s not found", jobID)
	}
	return jobrt.NewContext(ctx, a.DB, job, a.Jobs, a.Notify), nil
}

// Begin claims the run and decodes its options. Now is pinned here so every
// pass of the cycle sees the same clock.
func (a *Activities) Begin(ctx context.Context, jobID string) (BeginResult, error) {
	jc, err := a.context(ctx, jobID)
	if err != nil {
		return BeginResult{}, err
	}
	job := jc.Job
	if job.Status != types.StatusQueued {
		return BeginResult{Status: job.Status}, nil
	}

	now := time.Now().UTC()
	ok, err := a.Jobs.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx, Tx: a.DB}, job.ID,
		[]string{types.StatusRunning, types.StatusSucceeded, types.StatusFailed, types.StatusCanceled},
		map[string]interface{}{
			"status":       types.StatusRunning,
			"stage":        "running",
			"attempts":     gorm.Expr("attempts + 1"),
			"locked_at":    now,
			"heartbeat_at": now,
			"updated_at":   now,
		})
	if err != nil {
		return BeginResult{}, fmt.Errorf("claim job: %w", err)
	}
	if !ok {
		return BeginResult{Status: "claimed_elsewhere"}, nil
	}
	job.Status = types.StatusRunning

	opts, err := curation_cycle.OptionsFromPayload(jc)
	if err != nil {
		jc.Fail("validate", err)
		return BeginResult{Status: types.StatusFailed}, nil
	}
	if opts.Now.IsZero() {
		opts.Now = now
	}
	jc.Progress(cycle.PassDetect, 5, "Filtering and deduplicating discovered items")
	return BeginResult{Run: true, Status: types.StatusRunning, Options: opts}, nil
}

func (a *Activities) Pass(ctx context.Context, in PassInput) (PassOutput, error) {
	var out PassOutput
	jc, err := a.context(ctx, in.JobID)
	if err != nil {
		return out, err
	}
	stopHB := a.startHeartbeat(ctx, jc.Job.ID)
	defer stopHB()

	switch in.Pass {
	case cycle.PassDetect:
		out.Summary, err = a.Runner.DetectPass(ctx, in.Options)
	case cycle.PassApproval:
		out.Summary, err = a.Runner.ApprovalPass(ctx, in.Options)
	case cycle.PassBalance:
		out.Summary, err = a.Runner.BalancePass(ctx, in.Options)
	case cycle.PassSchedule:
		var fill schedule.FillResult
		out.Summary, fill, err = a.Runner.SchedulePass(ctx, in.Options)
		out.Fill = &fill
	case cycle.PassHealth:
		rep, herr := a.Runner.HealthPass(ctx, in.Options, cycle.ScheduleSummaryOf(in.Fill))
		if herr != nil {
			return out, herr
		}
		out.Health = &rep
		jc.Pass(cycle.PassHealth, rep)
		jc.Progress(cycle.PassHealth, in.Pct, fmt.Sprintf("health: %s", rep.Status))
		if a.Alerts != nil {
			a.Alerts.PublishAlerts(ctx, &rep)
		}
		return out, nil
	default:
		return out, errors.New("jobrun: unknown pass " + in.Pass)
	}
	if err != nil {
		return out, err
	}
	s := out.Summary
	jc.Pass(in.Pass, s)
	jc.Progress(in.Pass, in.Pct, fmt.Sprintf("%s: processed=%d approved=%d rejected=%d duplicates=%d errors=%d",
		in.Pass, s.Processed, s.Approved, s.Rejected, s.Duplicates, s.Errors))
	return out, nil
}

func (a *Activities) Finish(ctx context.Context, in FinishInput) error {
	jc, err := a.context(ctx, in.JobID)
	if err != nil {
		return err
	}
	if in.Error != "" {
		if a.Log != nil {
			a.Log.Error("Curation cycle failed", "job_id", jc.Job.ID, "error", in.Error)
		}
		jc.Fail("cycle", errors.New(in.Error))
		return nil
	}
	jc.Succeed("done", in.Report)
	return nil
}

func (a *Activities) startHeartbeat(ctx context.Context, jobID uuid.UUID) func() {
	done := make(chan struct{})
	go func() {
		temporalHB := time.NewTicker(10 * time.Second)
		defer temporalHB.Stop()

		dbHB := time.NewTicker(30 * time.Second)
		defer dbHB.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-temporalHB.C:
				activity.RecordHeartbeat(ctx)
			case <-dbHB.C:
				_ = a.Jobs.Heartbeat(dbctx.Context{Ctx: ctx, Tx: a.DB}, jobID)
			}
		}
	}()
	return func() { close(done) }
}
