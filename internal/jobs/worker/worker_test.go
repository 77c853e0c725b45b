package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/curator-backend/internal/data/repos"
	"github.com/yungbote/curator-backend/internal/data/repos/testutil"
	types "github.com/yungbote/curator-backend/internal/domain"
	"github.com/yungbote/curator-backend/internal/jobs/runtime"
	"github.com/yungbote/curator-backend/internal/pkg/dbctx"
)

type stubHandler struct {
	jobType string
	run     func(jc *runtime.Context) error
}

func (h stubHandler) Type() string                  { return h.jobType }
func (h stubHandler) Run(jc *runtime.Context) error { return h.run(jc) }

type recordingNotifier struct {
	done, failed int
}

func (n *recordingNotifier) JobProgress(*types.JobRun, string, int, string) {}
func (n *recordingNotifier) JobFailed(*types.JobRun, string, string)        { n.failed++ }
func (n *recordingNotifier) JobDone(*types.JobRun)                          { n.done++ }

func TestRunOnce(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := repos.NewJobRunRepo(db, log)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}

	reg := runtime.NewRegistry()
	_ = reg.Register(stubHandler{jobType: "ok", run: func(jc *runtime.Context) error {
		jc.Progress("work", 50, "halfway")
		jc.Succeed("done", map[string]int{"n": 1})
		return nil
	}})
	_ = reg.Register(stubHandler{jobType: "boom", run: func(jc *runtime.Context) error {
		panic("kaboom")
	}})
	_ = reg.Register(stubHandler{jobType: "err", run: func(jc *runtime.Context) error {
		return errors.New("bad input")
	}})
	if err := reg.Register(stubHandler{jobType: "ok"}); err == nil {
		t.Fatalf("duplicate registration should fail")
	}

	notify := &recordingNotifier{}
	w := NewWorker(db, log, repo, reg, notify, Config{MaxAttempts: 1, RetryDelay: time.Hour, StaleRunning: time.Hour})

	base := time.Now().UTC().Add(-time.Minute)
	var jobs []*types.JobRun
	for i, jt := range []string{"ok", "boom", "err", "unregistered"} {
		jobs = append(jobs, &types.JobRun{JobType: jt, Status: types.StatusQueued, Stage: "queued", CreatedAt: base.Add(time.Duration(i) * time.Second)})
	}
	if _, err := repo.Create(dbc, jobs); err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 3; i++ {
		if !w.RunOnce(ctx, 1) {
			t.Fatalf("run %d: expected a claimed job", i)
		}
	}
	if w.RunOnce(ctx, 1) {
		t.Fatalf("unregistered job types must not be claimed")
	}

	want := map[string]string{
		"ok":           types.StatusSucceeded,
		"boom":         types.StatusFailed,
		"err":          types.StatusFailed,
		"unregistered": types.StatusQueued,
	}
	for _, j := range jobs {
		got, err := repo.GetByID(dbc, j.ID)
		if err != nil || got == nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.Status != want[j.JobType] {
			t.Fatalf("%s: status %s, want %s", j.JobType, got.Status, want[j.JobType])
		}
	}
	if notify.done != 1 || notify.failed != 2 {
		t.Fatalf("notifier done=%d failed=%d", notify.done, notify.failed)
	}
	if got := reg.Types(); len(got) != 3 || got[0] != "boom" {
		t.Fatalf("Types() = %v", got)
	}
}
