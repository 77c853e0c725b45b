package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/curator-backend/internal/data/repos/testutil"
	types "github.com/yungbote/curator-backend/internal/domain"
	"github.com/yungbote/curator-backend/internal/pkg/dbctx"
)

func TestJobRunRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now().UTC()

	queued := &types.JobRun{
		ID:        uuid.New(),
		JobType:   "curation_cycle",
		Status:    "queued",
		Stage:     "queued",
		Payload:   datatypes.JSON([]byte("{}")),
		Result:    datatypes.JSON([]byte("{}")),
		CreatedAt: now.Add(-3 * time.Hour),
		UpdatedAt: now.Add(-3 * time.Hour),
	}
	failed := &types.JobRun{
		ID:          uuid.New(),
		JobType:     "curation_cycle",
		Status:      "failed",
		Stage:       "failed",
		LastErrorAt: testutil.PtrTime(now.Add(-2 * time.Hour)),
		Payload:     datatypes.JSON([]byte("{}")),
		Result:      datatypes.JSON([]byte("{}")),
		CreatedAt:   now.Add(-2 * time.Hour),
		UpdatedAt:   now.Add(-2 * time.Hour),
	}
	staleRunning := &types.JobRun{
		ID:          uuid.New(),
		JobType:     "curation_cycle",
		Status:      "running",
		Stage:       "running",
		HeartbeatAt: testutil.PtrTime(now.Add(-10 * time.Hour)),
		Payload:     datatypes.JSON([]byte("{}")),
		Result:      datatypes.JSON([]byte("{}")),
		CreatedAt:   now.Add(-1 * time.Hour),
		UpdatedAt:   now.Add(-1 * time.Hour),
	}

	created, err := repo.Create(dbc, []*types.JobRun{queued, failed, staleRunning})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("Create: expected 3, got %d", len(created))
	}

	if got, err := repo.GetByID(dbc, failed.ID); err != nil || got == nil || got.Status != "failed" {
		t.Fatalf("GetByID: err=%v got=%+v", err, got)
	}
	if got, err := repo.GetByID(dbc, uuid.New()); err != nil || got != nil {
		t.Fatalf("GetByID(missing): err=%v got=%+v", err, got)
	}

	if exists, err := repo.ExistsRunnable(dbc, "curation_cycle"); err != nil || !exists {
		t.Fatalf("ExistsRunnable: exists=%v err=%v", exists, err)
	}
	if exists, err := repo.ExistsRunnable(dbc, "other"); err != nil || exists {
		t.Fatalf("ExistsRunnable(other): exists=%v err=%v", exists, err)
	}

	// Claims come out oldest first: queued, then retryable failed, then stale running.
	wantOrder := []uuid.UUID{queued.ID, failed.ID, staleRunning.ID}
	for i, want := range wantOrder {
		claimed, err := repo.ClaimNextRunnable(dbc, []string{"curation_cycle"}, 3, time.Minute, 5*time.Minute)
		if err != nil {
			t.Fatalf("ClaimNextRunnable #%d: %v", i, err)
		}
		if claimed == nil || claimed.ID != want {
			t.Fatalf("ClaimNextRunnable #%d: expected %s, got %+v", i, want, claimed)
		}
		if claimed.Status != "running" || claimed.Attempts != 1 {
			t.Fatalf("ClaimNextRunnable #%d: status=%s attempts=%d", i, claimed.Status, claimed.Attempts)
		}
	}
	if claimed, err := repo.ClaimNextRunnable(dbc, []string{"curation_cycle"}, 3, time.Minute, 5*time.Minute); err != nil || claimed != nil {
		t.Fatalf("ClaimNextRunnable(empty): claimed=%+v err=%v", claimed, err)
	}

	if err := repo.Heartbeat(dbc, queued.ID); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	ok, err := repo.UpdateFieldsUnlessStatus(dbc, queued.ID, []string{"canceled"}, map[string]interface{}{
		"status": "succeeded",
		"stage":  "done",
	})
	if err != nil || !ok {
		t.Fatalf("UpdateFieldsUnlessStatus: ok=%v err=%v", ok, err)
	}
	ok, err = repo.UpdateFieldsUnlessStatus(dbc, queued.ID, []string{"succeeded"}, map[string]interface{}{"status": "failed"})
	if err != nil || ok {
		t.Fatalf("UpdateFieldsUnlessStatus(guarded): ok=%v err=%v", ok, err)
	}

	if err := repo.UpdateFields(dbc, failed.ID, map[string]interface{}{"message": "retrying"}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	if got, _ := repo.GetByID(dbc, failed.ID); got == nil || got.Message != "retrying" {
		t.Fatalf("UpdateFields: expected message to persist, got %+v", got)
	}

	recent, err := repo.ListRecent(dbc, "curation_cycle", 2)
	if err != nil || len(recent) != 2 {
		t.Fatalf("ListRecent: err=%v len=%d", err, len(recent))
	}
}

func TestJobRunRepoDedupeAndEvents(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	key := "curation_cycle:2026-10-18T09:00"
	first := &types.JobRun{JobType: "curation_cycle", DedupeKey: &key, Status: "queued", Stage: "queued"}
	second := &types.JobRun{JobType: "curation_cycle", DedupeKey: &key, Status: "queued", Stage: "queued"}

	if ok, err := repo.CreateDeduped(dbc, first); err != nil || !ok {
		t.Fatalf("CreateDeduped(first): ok=%v err=%v", ok, err)
	}
	if ok, err := repo.CreateDeduped(dbc, second); err != nil || ok {
		t.Fatalf("CreateDeduped(second): ok=%v err=%v", ok, err)
	}
	existing, err := repo.GetByDedupeKey(dbc, key)
	if err != nil || existing == nil || existing.ID != first.ID {
		t.Fatalf("GetByDedupeKey: got %+v err=%v, want %s", existing, err, first.ID)
	}
	if missing, err := repo.GetByDedupeKey(dbc, "curation_cycle:never"); err != nil || missing != nil {
		t.Fatalf("GetByDedupeKey(missing): got %+v err=%v", missing, err)
	}

	for i, kind := range []types.JobEventKind{"created", "pass", "succeeded"} {
		ev := &types.JobRunEvent{JobID: first.ID, Kind: kind, Stage: string(kind), Progress: i * 50}
		if err := repo.AppendEvent(dbc, ev); err != nil {
			t.Fatalf("AppendEvent(%s): %v", kind, err)
		}
	}
	events, err := repo.ListEvents(dbc, first.ID)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 3 || events[0].Kind != "created" || events[2].Kind != "succeeded" {
		t.Fatalf("ListEvents: unexpected %+v", events)
	}
}
