package curation_cycle

import (
	"fmt"
	"time"

	jobrt "github.com/yungbote/curator-backend/internal/jobs/runtime"
	"github.com/yungbote/curator-backend/internal/modules/curation/cycle"
)

// OptionsFromPayload reads the cycle options a job was enqueued with.
func OptionsFromPayload(jc *jobrt.Context) (cycle.Options, error) {
	var opts cycle.Options
	if t, ok := jc.PayloadTime("now"); ok {
		opts.Now = t.UTC()
	} else if jc.PayloadString("now") != "" {
		return opts, fmt.Errorf("payload now must be RFC3339")
	}
	if n, ok := jc.PayloadInt("budget"); ok {
		if n < 0 {
			return opts, fmt.Errorf("payload budget must be >= 0")
		}
		opts.Budget = n
	}
	if n, ok := jc.PayloadInt("balance_budget"); ok {
		opts.BalanceBudget = n
	}
	opts.ForceApproval = jc.PayloadBool("force_approval")
	opts.SkipSchedule = jc.PayloadBool("skip_schedule")
	if day := jc.PayloadString("day"); day != "" {
		if _, err := time.Parse("2006-01-02", day); err != nil {
			return opts, fmt.Errorf("payload day must be YYYY-MM-DD")
		}
		opts.Day = day
	}
	if raw := jc.PayloadString("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return opts, fmt.Errorf("payload window: %w", err)
		}
		opts.Window = d
	}
	return opts, nil
}

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	opts, err := OptionsFromPayload(jc)
	if err != nil {
		jc.Fail("validate", err)
		return nil
	}

	jc.Progress("detect", 5, "Filtering and deduplicating discovered items")
	rep, err := p.runner.Run(jc.Ctx, opts, func(stage string, pct int, s cycle.PassSummary) {
		jc.Pass(stage, s)
		jc.Progress(stage, pct, fmt.Sprintf("%s: processed=%d approved=%d rejected=%d duplicates=%d errors=%d",
			stage, s.Processed, s.Approved, s.Rejected, s.Duplicates, s.Errors))
	})
	if err != nil {
		p.log.Error("Curation cycle failed", "job_id", jc.Job.ID, "error", err)
		jc.Fail("cycle", err)
		return nil
	}
	if rep.Health != nil {
		jc.Pass(cycle.PassHealth, rep.Health)
		if p.alerts != nil {
			p.alerts.PublishAlerts(jc.Ctx, rep.Health)
		}
	}
	jc.Succeed("done", rep)
	return nil
}
