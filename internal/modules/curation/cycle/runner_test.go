package cycle

import (
	"context"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/curator-backend/internal/data/repos"
	"github.com/yungbote/curator-backend/internal/data/repos/testutil"
	types "github.com/yungbote/curator-backend/internal/domain"
	"github.com/yungbote/curator-backend/internal/modules/curation/health"
	"github.com/yungbote/curator-backend/internal/modules/curation/policy"
	"github.com/yungbote/curator-backend/internal/pkg/dbctx"
)

var now = time.Date(2026, 10, 18, 6, 0, 0, 0, time.UTC)

func newRunner(t *testing.T, tweaks ...func(*policy.Config)) (*Runner, *gorm.DB, repos.ContentItemRepo) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	items := repos.NewContentItemRepo(db, log)
	slots := repos.NewScheduleSlotRepo(db, log)
	cfg := policy.Default()
	cfg.Filter.BlockedCategories = []string{"nsfw"}
	for _, tweak := range tweaks {
		tweak(&cfg)
	}
	r, err := NewRunner(db, items, slots, cfg, log)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return r, db, items
}

func discovered(t *testing.T, db *gorm.DB, platform string, opts ...testutil.ItemOpt) *types.ContentItem {
	t.Helper()
	opts = append([]testutil.ItemOpt{testutil.WithState(types.StateDiscovered)}, opts...)
	return testutil.SeedItem(t, context.Background(), db, platform, opts...)
}

func TestRunCycle(t *testing.T) {
	r, db, items := newRunner(t)
	ctx := context.Background()

	orig := discovered(t, db, "reddit",
		testutil.WithFingerprint("fp-1"), testutil.WithConfidence(0.9),
		testutil.WithText("a cat falls off a table"), testutil.WithCreatedAt(now.Add(-3*time.Hour)))
	dup := discovered(t, db, "reddit",
		testutil.WithFingerprint("fp-1"), testutil.WithConfidence(0.9),
		testutil.WithText("a cat falls off a table"), testutil.WithCreatedAt(now.Add(-2*time.Hour)))
	blocked := discovered(t, db, "imgur",
		testutil.WithCategory("nsfw"), testutil.WithText("something else entirely"))
	broken := discovered(t, db, "imgur",
		testutil.WithAuthor(""), testutil.WithText("no author here"))
	aged := discovered(t, db, "tumblr",
		testutil.WithCategory("gif"), testutil.WithConfidence(0.65),
		testutil.WithText("dog learns to skateboard"), testutil.WithCreatedAt(now.Add(-30*time.Hour)))

	var stages []string
	rep, err := r.Run(ctx, Options{Now: now}, func(stage string, _ int, _ PassSummary) {
		stages = append(stages, stage)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Join(stages, ",") != "detect,approval,balance,schedule" {
		t.Fatalf("stages = %v", stages)
	}

	det := rep.Passes[0]
	if det.TotalFound != 5 || det.Processed != 4 || det.Rejected != 1 || det.Duplicates != 1 || det.Errors != 1 {
		t.Fatalf("detect summary = %+v", det)
	}
	if !det.Degraded() || len(det.InputErrors) != 1 {
		t.Fatalf("expected one recorded input error: %+v", det.InputErrors)
	}
	if rep.Passes[1].Approved != 2 {
		t.Fatalf("approval summary = %+v", rep.Passes[1])
	}
	if rep.Passes[3].Approved != 2 || rep.Fill == nil || rep.Fill.Unfilled != 4 {
		t.Fatalf("schedule summary = %+v fill=%+v", rep.Passes[3], rep.Fill)
	}
	if rep.Totals.Approved != 4 || rep.Totals.Errors != 1 {
		t.Fatalf("totals = %+v", rep.Totals)
	}
	if rep.Health == nil || rep.Health.Status != health.SeverityCritical {
		t.Fatalf("health = %+v", rep.Health)
	}

	dbc := dbctx.Context{Ctx: ctx}
	check := func(id, want string, state types.ApprovalState) *types.ContentItem {
		t.Helper()
		for _, it := range []*types.ContentItem{orig, dup, blocked, broken, aged} {
			if it.ID.String() != id {
				continue
			}
			got, err := items.GetByID(dbc, it.ID)
			if err != nil || got == nil {
				t.Fatalf("GetByID %s: %v", want, err)
			}
			if got.State != state {
				t.Fatalf("%s: state %s, want %s", want, got.State, state)
			}
			return got
		}
		t.Fatalf("unknown item %s", want)
		return nil
	}
	if got := check(dup.ID.String(), "dup", types.StateDuplicate); got.DuplicateOf == nil || *got.DuplicateOf != orig.ID {
		t.Fatalf("dup should reference the original")
	}
	if got := check(blocked.ID.String(), "blocked", types.StateRejected); got.RejectReason != "category:nsfw" {
		t.Fatalf("reject reason = %q", got.RejectReason)
	}
	if got := check(broken.ID.String(), "broken", types.StateDiscovered); got.InputError == "" || got.InputErrorAt == nil {
		t.Fatalf("input error not recorded: %q at %v", got.InputError, got.InputErrorAt)
	}
	if got := check(orig.ID.String(), "orig", types.StateApproved); got.SlotID == nil {
		t.Fatalf("orig should be scheduled")
	}
	if got := check(aged.ID.String(), "aged", types.StateApproved); got.ApprovedTier != "B" {
		t.Fatalf("aged tier = %q", got.ApprovedTier)
	}

	again, err := r.Run(ctx, Options{Now: now}, nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if again.Totals.Approved != 0 || again.Totals.Duplicates != 0 || again.Totals.Rejected != 0 {
		t.Fatalf("second run changed state: %+v", again.Totals)
	}
}

func TestDetectPassSkipsRecordedInputErrors(t *testing.T) {
	r, db, items := newRunner(t, func(c *policy.Config) {
		c.Dedup.BatchSize = 3
		c.Dedup.InputErrorRetry = 24 * time.Hour
	})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		discovered(t, db, "imgur", testutil.WithAuthor(""), testutil.WithCreatedAt(now.Add(-10*time.Hour)))
	}
	valid := discovered(t, db, "reddit", testutil.WithCreatedAt(now.Add(-time.Hour)))

	first, err := r.DetectPass(ctx, Options{Now: now})
	if err != nil {
		t.Fatalf("first DetectPass: %v", err)
	}
	if first.TotalFound != 3 || first.Errors != 3 || first.Processed != 0 {
		t.Fatalf("first pass = %+v", first)
	}

	second, err := r.DetectPass(ctx, Options{Now: now.Add(time.Minute)})
	if err != nil {
		t.Fatalf("second DetectPass: %v", err)
	}
	if second.TotalFound != 1 || second.Processed != 1 || second.Errors != 0 {
		t.Fatalf("second pass = %+v", second)
	}
	got, err := items.GetByID(dbctx.Context{Ctx: ctx}, valid.ID)
	if err != nil || got == nil || got.State != types.StatePendingApproval {
		t.Fatalf("valid item should leave discovered: %+v err=%v", got, err)
	}

	retried, err := r.DetectPass(ctx, Options{Now: now.Add(25 * time.Hour)})
	if err != nil {
		t.Fatalf("retry DetectPass: %v", err)
	}
	if retried.TotalFound != 3 || retried.Errors != 3 {
		t.Fatalf("malformed items should be re-validated after the retry window: %+v", retried)
	}
}

func TestRunAbortsOnStoreError(t *testing.T) {
	r, db, _ := newRunner(t)
	if err := db.Migrator().DropTable(&types.ContentItem{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}
	rep, err := r.Run(context.Background(), Options{Now: now}, nil)
	if err == nil || !strings.Contains(err.Error(), "detect pass") {
		t.Fatalf("expected detect pass failure, got %v", err)
	}
	if len(rep.Passes) != 0 {
		t.Fatalf("no pass should have completed: %+v", rep.Passes)
	}
}

func TestScheduleSummaryOf(t *testing.T) {
	if ScheduleSummaryOf(nil) != nil {
		t.Fatalf("nil fill should map to nil")
	}
}
