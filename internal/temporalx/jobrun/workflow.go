package jobrun

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/curator-backend/internal/modules/curation/cycle"
)

// Workflow runs one curation cycle, one activity per pass. The workflow id
// is the job_run id. Activities are never retried: a store error aborts the
// invocation and the next trigger starts a fresh cycle.
func Workflow(ctx workflow.Context) error {
	jobID := strings.TrimSpace(workflow.GetInfo(ctx).WorkflowExecution.ID)
	if jobID == "" {
		return fmt.Errorf("jobrun: missing job_id")
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	var begin BeginResult
	if err := workflow.ExecuteActivity(ctx, ActivityBegin, jobID).Get(ctx, &begin); err != nil {
		return err
	}
	if !begin.Run {
		workflow.GetLogger(ctx).Info("Cycle not started", "job_id", jobID, "status", begin.Status)
		return nil
	}

	var rep cycle.Report
	for _, st := range steps(begin.Options) {
		in := PassInput{JobID: jobID, Pass: st.pass, Pct: st.pct, Options: begin.Options, Fill: rep.Fill}
		var out PassOutput
		if err := workflow.ExecuteActivity(ctx, ActivityPass, in).Get(ctx, &out); err != nil {
			_ = finish(ctx, FinishInput{JobID: jobID, Report: rep, Error: fmt.Sprintf("%s pass: %v", st.pass, err)})
			return err
		}
		if st.pass == cycle.PassHealth {
			rep.Health = out.Health
			continue
		}
		rep.Passes = append(rep.Passes, out.Summary)
		rep.Totals.Add(out.Summary)
		if out.Fill != nil {
			rep.Fill = out.Fill
			rep.Day = out.Fill.Day
		}
	}
	rep.Totals.Pass = "cycle"
	return finish(ctx, FinishInput{JobID: jobID, Report: rep})
}

// finish records the terminal state even when the workflow was canceled.
func finish(ctx workflow.Context, in FinishInput) error {
	dctx, _ := workflow.NewDisconnectedContext(ctx)
	return workflow.ExecuteActivity(dctx, ActivityFinish, in).Get(dctx, nil)
}
