package curation_cycle

import (
	"context"
	"encoding/json"
	"testing"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/curator-backend/internal/data/repos"
	"github.com/yungbote/curator-backend/internal/data/repos/testutil"
	types "github.com/yungbote/curator-backend/internal/domain"
	jobrt "github.com/yungbote/curator-backend/internal/jobs/runtime"
	"github.com/yungbote/curator-backend/internal/modules/curation/cycle"
	"github.com/yungbote/curator-backend/internal/modules/curation/health"
	"github.com/yungbote/curator-backend/internal/modules/curation/policy"
	"github.com/yungbote/curator-backend/internal/pkg/dbctx"
)

func setup(t *testing.T) (*Pipeline, *gorm.DB, repos.JobRunRepo) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	items := repos.NewContentItemRepo(db, log)
	slots := repos.NewScheduleSlotRepo(db, log)
	runner, err := cycle.NewRunner(db, items, slots, policy.Default(), log)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return New(log, runner), db, repos.NewJobRunRepo(db, log)
}

func enqueue(t *testing.T, repo repos.JobRunRepo, payload map[string]any) *types.JobRun {
	t.Helper()
	raw, _ := json.Marshal(payload)
	job := &types.JobRun{JobType: JobType, Status: types.StatusRunning, Stage: "queued", Payload: datatypes.JSON(raw)}
	if _, err := repo.Create(dbctx.Context{Ctx: context.Background()}, []*types.JobRun{job}); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

type recordingSink struct{ reports int }

func (s *recordingSink) PublishAlerts(ctx context.Context, rep *health.Report) int {
	s.reports++
	return len(rep.Alerts)
}

func TestPipelineSucceeds(t *testing.T) {
	p, db, repo := setup(t)
	sink := &recordingSink{}
	p.WithAlerts(sink)
	ctx := context.Background()
	testutil.SeedItem(t, ctx, db, "reddit",
		testutil.WithState(types.StateDiscovered), testutil.WithConfidence(0.9))

	job := enqueue(t, repo, map[string]any{"now": "2026-10-18T06:00:00Z"})
	if err := p.Run(jobrt.NewContext(ctx, db, job, repo, nil)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := repo.GetByID(dbctx.Context{Ctx: ctx}, job.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.StatusSucceeded || got.Progress != 100 {
		t.Fatalf("job status=%s progress=%d error=%q", got.Status, got.Progress, got.Error)
	}
	var rep cycle.Report
	if err := json.Unmarshal(got.Result, &rep); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(rep.Passes) != 4 || rep.Passes[0].Processed != 1 {
		t.Fatalf("result passes = %+v", rep.Passes)
	}

	events, err := repo.ListEvents(dbctx.Context{Ctx: ctx}, job.ID)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	passes, succeeded := 0, false
	for _, ev := range events {
		switch ev.Kind {
		case types.JobEventPass:
			passes++
		case types.JobEventSucceeded:
			succeeded = true
		}
	}
	if passes != 5 || !succeeded {
		t.Fatalf("events: passes=%d succeeded=%v", passes, succeeded)
	}
	if sink.reports != 1 {
		t.Fatalf("alert sink calls: want=1 got=%d", sink.reports)
	}
}

func TestPipelineRejectsBadPayload(t *testing.T) {
	p, db, repo := setup(t)
	ctx := context.Background()
	job := enqueue(t, repo, map[string]any{"day": "18/10/2026"})
	if err := p.Run(jobrt.NewContext(ctx, db, job, repo, nil)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, _ := repo.GetByID(dbctx.Context{Ctx: ctx}, job.ID)
	if got.Status != types.StatusFailed || got.Stage != "validate" {
		t.Fatalf("job status=%s stage=%s", got.Status, got.Stage)
	}
}
