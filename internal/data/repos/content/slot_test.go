package content

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/curator-backend/internal/data/repos/testutil"
	types "github.com/yungbote/curator-backend/internal/domain"
	"github.com/yungbote/curator-backend/internal/pkg/dbctx"
)

func TestScheduleSlotRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewScheduleSlotRepo(db, testutil.Logger(t))

	a := testutil.SeedItem(t, ctx, tx, "reddit", testutil.WithState(types.StateApproved))
	b := testutil.SeedItem(t, ctx, tx, "tumblr", testutil.WithState(types.StateApproved))
	c := testutil.SeedItem(t, ctx, tx, "reddit", testutil.WithState(types.StateApproved))

	testutil.SeedSlot(t, ctx, tx, "2026-09-01", 0, c)

	slot := &types.ScheduleSlot{
		Day:       "2026-10-18",
		SlotIndex: 0,
		SlotTime:  time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
		ItemID:    a.ID,
		Platform:  a.Platform,
		Author:    a.Author,
		Category:  a.Category,
	}
	if ok, err := repo.Reserve(dbc, slot); err != nil || !ok {
		t.Fatalf("Reserve: ok=%v err=%v", ok, err)
	}

	taken := &types.ScheduleSlot{
		Day:       "2026-10-18",
		SlotIndex: 0,
		SlotTime:  slot.SlotTime,
		ItemID:    b.ID,
		Platform:  b.Platform,
		Author:    b.Author,
		Category:  b.Category,
	}
	if ok, err := repo.Reserve(dbc, taken); err != nil || ok {
		t.Fatalf("Reserve(taken index): ok=%v err=%v", ok, err)
	}

	reused := &types.ScheduleSlot{
		ID:        uuid.New(),
		Day:       "2026-10-18",
		SlotIndex: 1,
		SlotTime:  slot.SlotTime.Add(3 * time.Hour),
		ItemID:    a.ID,
		Platform:  a.Platform,
		Author:    a.Author,
		Category:  a.Category,
	}
	if ok, err := repo.Reserve(dbc, reused); err != nil || ok {
		t.Fatalf("Reserve(item already scheduled): ok=%v err=%v", ok, err)
	}

	got, err := repo.GetByDayIndex(dbc, "2026-10-18", 0)
	if err != nil || got == nil || got.ItemID != a.ID || got.Status != types.SlotFilled {
		t.Fatalf("GetByDayIndex: err=%v got=%+v", err, got)
	}
	if missing, err := repo.GetByDayIndex(dbc, "2026-10-18", 4); err != nil || missing != nil {
		t.Fatalf("GetByDayIndex(missing): err=%v got=%+v", err, missing)
	}
	if byID, err := repo.GetByID(dbc, got.ID); err != nil || byID == nil || byID.SlotIndex != 0 {
		t.Fatalf("GetByID: err=%v got=%+v", err, byID)
	}

	day, err := repo.ListByDay(dbc, "2026-10-18")
	if err != nil || len(day) != 1 {
		t.Fatalf("ListByDay: err=%v len=%d", err, len(day))
	}
	rng, err := repo.ListRange(dbc, "2026-09-01", "2026-10-19")
	if err != nil || len(rng) != 2 || rng[0].Day != "2026-09-01" {
		t.Fatalf("ListRange: err=%v got=%+v", err, rng)
	}

	nearest, err := repo.NearestDayByPlatform(dbc, "2026-10-19", "2026-08-01", "2026-11-30")
	if err != nil {
		t.Fatalf("NearestDayByPlatform: %v", err)
	}
	if nearest["reddit"] != "2026-10-18" {
		t.Fatalf("NearestDayByPlatform: expected reddit=2026-10-18, got %v", nearest)
	}
	earlier, _ := repo.NearestDayByPlatform(dbc, "2026-09-05", "2026-08-01", "2026-10-30")
	if earlier["reddit"] != "2026-09-01" {
		t.Fatalf("NearestDayByPlatform(between): expected 2026-09-01, got %v", earlier)
	}
	ahead, _ := repo.NearestDayByPlatform(dbc, "2026-10-10", "2026-09-10", "2026-11-09")
	if ahead["reddit"] != "2026-10-18" {
		t.Fatalf("NearestDayByPlatform(later day only): expected 2026-10-18, got %v", ahead)
	}
	excluded, _ := repo.NearestDayByPlatform(dbc, "2026-10-18", "2026-09-18", "2026-11-17")
	if _, ok := excluded["reddit"]; ok {
		t.Fatalf("NearestDayByPlatform should exclude the day itself, got %v", excluded)
	}

	at := time.Now().UTC()
	if ok, err := repo.MarkPublished(dbc, got.ID, at); err != nil || !ok {
		t.Fatalf("MarkPublished: ok=%v err=%v", ok, err)
	}
	if ok, err := repo.MarkPublished(dbc, got.ID, at); err != nil || ok {
		t.Fatalf("MarkPublished(replay): ok=%v err=%v", ok, err)
	}
}
