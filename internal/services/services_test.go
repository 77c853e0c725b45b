package services

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/curator-backend/internal/data/repos"
	"github.com/yungbote/curator-backend/internal/data/repos/testutil"
	types "github.com/yungbote/curator-backend/internal/domain"
	"github.com/yungbote/curator-backend/internal/modules/curation/fingerprint"
	"github.com/yungbote/curator-backend/internal/modules/curation/health"
	"github.com/yungbote/curator-backend/internal/modules/curation/policy"
	"github.com/yungbote/curator-backend/internal/modules/curation/schedule"
	"github.com/yungbote/curator-backend/internal/pkg/dbctx"
	"github.com/yungbote/curator-backend/internal/realtime"
	"github.com/yungbote/curator-backend/internal/realtime/bus"
)

func gradientPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x * 8)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestInsertCandidate(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	svc := NewItemService(db, log, repos.NewContentItemRepo(db, log))
	dbc := dbctx.Context{Ctx: context.Background()}

	item, err := svc.InsertCandidate(dbc, ItemInput{
		Platform:   " Reddit ",
		Author:     "op",
		Category:   "Text",
		Text:       "When the build passes on the first try",
		URL:        "https://www.reddit.com/r/x/comments/abc/?utm_source=share",
		Confidence: 0.7,
	})
	if err != nil {
		t.Fatalf("InsertCandidate: %v", err)
	}
	if item.Platform != "reddit" || item.Category != "text" || item.State != types.StateDiscovered {
		t.Fatalf("unexpected normalization: %+v", item)
	}
	if want := fingerprint.ContentHash(item.Text, nil); item.Fingerprint != want {
		t.Fatalf("fingerprint: want=%s got=%s", want, item.Fingerprint)
	}
	if item.CanonicalURL == "" {
		t.Fatalf("canonical url should be derived from url")
	}

	img, err := svc.InsertCandidate(dbc, ItemInput{
		Platform:   "imgur",
		Category:   "image",
		Media:      gradientPNG(t),
		Confidence: 0.9,
	})
	if err != nil {
		t.Fatalf("InsertCandidate(image): %v", err)
	}
	if len(img.PerceptualHash) != 16 || img.Fingerprint == "" {
		t.Fatalf("image hashes missing: phash=%q fp=%q", img.PerceptualHash, img.Fingerprint)
	}

	got, err := svc.GetByID(dbc, img.ID.String())
	if err != nil || got.ID != img.ID {
		t.Fatalf("GetByID: %v", err)
	}
	if _, err := svc.GetByID(dbc, uuid.NewString()); !IsNotFound(err) {
		t.Fatalf("GetByID(missing): want not found, got %v", err)
	}

	bad := []ItemInput{
		{Category: "image", Text: "x"},
		{Platform: "reddit", Text: "x"},
		{Platform: "reddit", Category: "text"},
		{Platform: "reddit", Category: "text", Text: "x", Confidence: 1.5},
		{Platform: "reddit", Category: "text", Text: "x", PerceptualHash: "zz"},
	}
	for i, in := range bad {
		if _, err := svc.InsertCandidate(dbc, in); !IsInvalid(err) {
			t.Fatalf("case %d: want invalid argument, got %v", i, err)
		}
	}
}

func TestBackfillFingerprints(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	svc := NewItemService(db, log, repos.NewContentItemRepo(db, log))
	ctx := context.Background()

	a := testutil.SeedItem(t, ctx, db, "reddit", testutil.WithState(types.StateDiscovered), testutil.WithFingerprint(""), testutil.WithText("one"),
		testutil.WithInputError("invalid item: fingerprint is required", time.Now()))
	testutil.SeedItem(t, ctx, db, "reddit", testutil.WithState(types.StateDiscovered), testutil.WithFingerprint(""), testutil.WithText("two"))
	testutil.SeedItem(t, ctx, db, "reddit", testutil.WithState(types.StatePendingApproval), testutil.WithFingerprint(""))
	testutil.SeedItem(t, ctx, db, "reddit", testutil.WithState(types.StateDiscovered))

	n, err := svc.BackfillFingerprints(dbctx.Context{Ctx: ctx}, 1)
	if err != nil {
		t.Fatalf("BackfillFingerprints: %v", err)
	}
	if n != 2 {
		t.Fatalf("updated: want=2 got=%d", n)
	}
	got, _ := svc.GetByID(dbctx.Context{Ctx: ctx}, a.ID.String())
	if got.Fingerprint != fingerprint.ContentHash("one", nil) {
		t.Fatalf("fingerprint not backfilled: %q", got.Fingerprint)
	}
	if got.InputError != "" || got.InputErrorAt != nil {
		t.Fatalf("backfill should clear the recorded input error: %q at %v", got.InputError, got.InputErrorAt)
	}
	if n, err := svc.BackfillFingerprints(dbctx.Context{Ctx: ctx}, 10); err != nil || n != 0 {
		t.Fatalf("second backfill: n=%d err=%v", n, err)
	}
}

func TestRecordPublication(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	items := repos.NewContentItemRepo(db, log)
	slots := repos.NewScheduleSlotRepo(db, log)
	svc := NewScheduleService(db, log, items, slots, schedule.NewScheduler(db, items, slots, policy.Default(), log))
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}

	item := testutil.SeedItem(t, ctx, db, "reddit", testutil.WithState(types.StateApproved), testutil.WithCategory("gif"))
	other := testutil.SeedItem(t, ctx, db, "tumblr", testutil.WithState(types.StateApproved))
	slot := testutil.SeedSlot(t, ctx, db, "2026-10-18", 0, item)

	at := time.Date(2026, 10, 18, 8, 1, 0, 0, time.UTC)
	idx := 0
	in := PublicationInput{ItemID: item.ID.String(), Day: "2026-10-18", SlotIndex: &idx, PublishedAt: &at}
	got, err := svc.RecordPublication(dbc, in)
	if err != nil {
		t.Fatalf("RecordPublication: %v", err)
	}
	if got.ID != slot.ID || got.Status != types.SlotPublished || got.PublishedAt == nil {
		t.Fatalf("slot not published: %+v", got)
	}
	stored, _ := items.GetByID(dbc, item.ID)
	if stored.PublishedAt == nil || !stored.PublishedAt.Equal(at) {
		t.Fatalf("item published_at: %+v", stored.PublishedAt)
	}

	if _, err := svc.RecordPublication(dbc, PublicationInput{ItemID: item.ID.String(), SlotID: slot.ID.String()}); err != nil {
		t.Fatalf("replay should be a no-op: %v", err)
	}
	if _, err := svc.RecordPublication(dbc, PublicationInput{ItemID: other.ID.String(), SlotID: slot.ID.String()}); !IsStateConflict(err) {
		t.Fatalf("wrong item: want conflict, got %v", err)
	}
	if _, err := svc.RecordPublication(dbc, PublicationInput{ItemID: item.ID.String(), SlotID: uuid.NewString()}); !IsNotFound(err) {
		t.Fatalf("missing slot: want not found, got %v", err)
	}
	if _, err := svc.RecordPublication(dbc, PublicationInput{ItemID: item.ID.String()}); !IsInvalid(err) {
		t.Fatalf("no slot reference: want invalid, got %v", err)
	}

	view, err := svc.Day(dbc, "2026-10-18")
	if err != nil {
		t.Fatalf("Day: %v", err)
	}
	if len(view.Slots) != 1 || view.DistinctCategories != 1 || view.DiversityScore != 0.25 {
		t.Fatalf("unexpected day view: %+v", view)
	}
	if _, err := svc.Day(dbc, "18/10/2026"); !IsInvalid(err) {
		t.Fatalf("bad day: want invalid, got %v", err)
	}
}

type countingNotifier struct {
	created int
	JobNotifier
}

func (n *countingNotifier) JobCreated(job *types.JobRun) { n.created++ }

func TestJobServiceEnqueueAndCancel(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	note := &countingNotifier{JobNotifier: NewNotifier(log, bus.NewMemoryBus(), "", "")}
	svc := NewJobService(db, log, repos.NewJobRunRepo(db, log), note, nil, "")
	dbc := dbctx.Context{Ctx: context.Background()}

	first, created, err := svc.EnqueueCycleIfNeeded(dbc, "cron", "curation_cycle:2026-10-18T09:00", map[string]any{"day": "2026-10-18"})
	if err != nil || !created {
		t.Fatalf("EnqueueCycleIfNeeded: created=%v err=%v", created, err)
	}
	if first.Status != types.StatusQueued || first.TriggeredBy != "cron" {
		t.Fatalf("unexpected job %+v", first)
	}

	again, created, err := svc.EnqueueCycleIfNeeded(dbc, "cron", "curation_cycle:2026-10-18T09:00", nil)
	if err != nil || created || again.ID != first.ID {
		t.Fatalf("dedupe: created=%v err=%v job=%+v", created, err, again)
	}
	if _, _, err := svc.EnqueueCycleIfNeeded(dbc, "api", "", nil); !errors.Is(err, ErrCycleRunning) {
		t.Fatalf("overlap: want ErrCycleRunning, got %v", err)
	}
	if note.created != 1 {
		t.Fatalf("JobCreated calls: want=1 got=%d", note.created)
	}

	canceled, err := svc.Cancel(dbc, first.ID)
	if err != nil || canceled.Status != types.StatusCanceled {
		t.Fatalf("Cancel: err=%v job=%+v", err, canceled)
	}
	if _, err := svc.Cancel(dbc, first.ID); !IsStateConflict(err) {
		t.Fatalf("second cancel: want conflict, got %v", err)
	}
	if _, created, err := svc.EnqueueCycleIfNeeded(dbc, "api", "", nil); err != nil || !created {
		t.Fatalf("enqueue after cancel: created=%v err=%v", created, err)
	}

	recent, err := svc.ListRecent(dbc, "", 10)
	if err != nil || len(recent) != 2 {
		t.Fatalf("ListRecent: err=%v len=%d", err, len(recent))
	}
	if _, err := svc.GetByID(dbc, uuid.New()); !IsNotFound(err) {
		t.Fatalf("GetByID(missing): want not found, got %v", err)
	}
	if _, _, err := svc.Enqueue(dbc, "", "api", "", nil); !IsInvalid(err) {
		t.Fatalf("Enqueue without type: want invalid, got %v", err)
	}
}

func TestNotifierPublishAlerts(t *testing.T) {
	b := bus.NewMemoryBus()
	var got []realtime.Event
	_ = b.StartForwarder(context.Background(), func(ev realtime.Event) { got = append(got, ev) })
	n := NewNotifier(testutil.Logger(t), b, "curation", health.SeverityWarning)

	rep := &health.Report{
		Status: health.SeverityCritical,
		Alerts: []health.Alert{
			{Severity: health.SeverityCritical, Code: health.AlertRunway, Message: "no approved items ready"},
			{Severity: health.SeverityWarning, Code: health.AlertDominance, Subject: "reddit", Message: "reddit holds 70%"},
			{Severity: health.SeverityInfo, Code: health.AlertDiversity, Message: "2 of 4 categories"},
		},
	}
	if sent := n.PublishAlerts(context.Background(), rep); sent != 2 {
		t.Fatalf("sent: want=2 got=%d", sent)
	}
	if len(got) != 2 || got[0].Kind != realtime.EventHealthAlert || got[0].Data["code"] != health.AlertRunway {
		t.Fatalf("unexpected events %+v", got)
	}

	n.JobFailed(&types.JobRun{ID: uuid.New(), JobType: "curation_cycle"}, "schedule", "boom")
	if last := got[len(got)-1]; last.Kind != realtime.EventJobFailed || last.Data["stage"] != "schedule" {
		t.Fatalf("JobFailed event: %+v", last)
	}
}
