package health

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/curator-backend/internal/data/repos/content"
	"github.com/yungbote/curator-backend/internal/data/repos/testutil"
	types "github.com/yungbote/curator-backend/internal/domain"
	"github.com/yungbote/curator-backend/internal/modules/curation/policy"
)

var now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func monitor(t *testing.T) *Monitor {
	t.Helper()
	return NewMonitor(nil, policy.Default(), testutil.Logger(t))
}

func codes(rep Report) map[string]Severity {
	out := map[string]Severity{}
	for _, a := range rep.Alerts {
		out[a.Code+":"+a.Subject] = a.Severity
	}
	return out
}

func TestHealthyPool(t *testing.T) {
	rep := monitor(t).Assess(Snapshot{
		TakenAt:    now,
		ByPlatform: map[string]int{"reddit": 20, "tumblr": 20, "imgur": 20},
		ByCategory: map[string]int{"gif": 15, "image": 21, "video": 20, "text": 4},
	}, nil)
	if rep.Status != SeverityOK || len(rep.Alerts) != 0 {
		t.Fatalf("status=%s alerts=%+v", rep.Status, rep.Alerts)
	}
	if rep.Ready != 60 || rep.SlotsPerDay != 6 || rep.RunwayDays != 10 {
		t.Fatalf("ready=%d slots=%d runway=%v", rep.Ready, rep.SlotsPerDay, rep.RunwayDays)
	}
	if rep.Platforms[0].Name != "imgur" {
		t.Fatalf("platforms not ordered by count then name: %+v", rep.Platforms)
	}
}

func TestRunwayAlerts(t *testing.T) {
	m := monitor(t)
	cases := []struct {
		ready int
		sev   Severity
	}{
		{0, SeverityCritical},
		{5, SeverityCritical},
		{12, SeverityWarning},
		{18, SeverityOK},
	}
	for _, tc := range cases {
		snap := Snapshot{ByPlatform: map[string]int{}, ByCategory: map[string]int{}}
		if tc.ready > 0 {
			snap.ByPlatform = map[string]int{"a": tc.ready / 2, "b": tc.ready - tc.ready/2}
			snap.ByCategory = map[string]int{"gif": tc.ready / 3, "image": tc.ready - tc.ready/3}
		}
		rep := m.Assess(snap, nil)
		got := codes(rep)[AlertRunway+":"]
		if tc.sev == SeverityOK {
			if got != "" {
				t.Fatalf("ready=%d: unexpected runway alert %s", tc.ready, got)
			}
			continue
		}
		if got != tc.sev {
			t.Fatalf("ready=%d: runway severity %q, want %q", tc.ready, got, tc.sev)
		}
	}
}

func TestCategoryAlerts(t *testing.T) {
	rep := monitor(t).Assess(Snapshot{
		ByPlatform: map[string]int{"a": 50, "b": 50},
		ByCategory: map[string]int{"image": 70, "text": 30},
	}, nil)
	c := codes(rep)
	if c[AlertCategoryEmpty+":gif"] != SeverityWarning {
		t.Fatalf("expected empty gif warning: %+v", rep.Alerts)
	}
	if c[AlertCategoryCeiling+":text"] != SeverityWarning {
		t.Fatalf("expected text ceiling warning: %+v", rep.Alerts)
	}
	if c[AlertCategoryCeiling+":image"] != SeverityWarning {
		t.Fatalf("expected image ceiling warning at 70%%: %+v", rep.Alerts)
	}

	drift := monitor(t).Assess(Snapshot{
		ByPlatform: map[string]int{"a": 50, "b": 50},
		ByCategory: map[string]int{"image": 55, "gif": 5, "video": 40},
	}, nil)
	if codes(drift)[AlertCategoryDrift+":gif"] != SeverityInfo {
		t.Fatalf("expected gif drift info: %+v", drift.Alerts)
	}
}

func TestEveryContentTypeAlertsWhenEmpty(t *testing.T) {
	rep := monitor(t).Assess(Snapshot{
		ByPlatform: map[string]int{"a": 50, "b": 50},
		ByCategory: map[string]int{"gif": 30, "image": 70},
	}, nil)
	c := codes(rep)
	if c[AlertCategoryEmpty+":video"] != SeverityWarning {
		t.Fatalf("expected empty video warning: %+v", rep.Alerts)
	}
	if c[AlertCategoryEmpty+":text"] != SeverityWarning {
		t.Fatalf("expected empty text warning: %+v", rep.Alerts)
	}
	if !hasShare(rep.Categories, "video") || !hasShare(rep.Categories, "text") {
		t.Fatalf("empty categories missing from report: %+v", rep.Categories)
	}

	cfg := policy.Default()
	delete(cfg.Health.CategoryTargets, "video")
	cfg.Health.CategoryTargets["text"] = policy.CategoryTarget{Ceiling: 0.15, Optional: true}
	quiet := NewMonitor(nil, cfg, testutil.Logger(t)).Assess(Snapshot{
		ByPlatform: map[string]int{"a": 50, "b": 50},
		ByCategory: map[string]int{"gif": 30, "image": 70},
	}, nil)
	q := codes(quiet)
	if q[AlertCategoryEmpty+":video"] != SeverityWarning {
		t.Fatalf("untargeted video should still alert: %+v", quiet.Alerts)
	}
	if _, ok := q[AlertCategoryEmpty+":text"]; ok {
		t.Fatalf("optional text should not alert: %+v", quiet.Alerts)
	}
}

func TestDominance(t *testing.T) {
	rep := monitor(t).Assess(Snapshot{
		ByPlatform: map[string]int{"reddit": 61, "tumblr": 39},
		ByCategory: map[string]int{"gif": 25, "image": 35, "video": 40},
	}, nil)
	if codes(rep)[AlertDominance+":reddit"] != SeverityWarning {
		t.Fatalf("expected reddit dominance: %+v", rep.Alerts)
	}
	even := monitor(t).Assess(Snapshot{
		ByPlatform: map[string]int{"reddit": 60, "tumblr": 40},
		ByCategory: map[string]int{"gif": 25, "image": 35, "video": 40},
	}, nil)
	if _, ok := codes(even)[AlertDominance+":reddit"]; ok {
		t.Fatalf("60%% is not above the threshold")
	}
}

func TestScheduleAlerts(t *testing.T) {
	rep := monitor(t).Assess(Snapshot{
		ByPlatform: map[string]int{"a": 30, "b": 30},
		ByCategory: map[string]int{"gif": 15, "image": 21, "video": 24},
	}, &ScheduleSummary{
		Day:    "2026-10-18",
		Filled: 4,
		Unfilled: []UnfilledSlot{
			{Index: 0, Reason: "slot validity window has passed", Expired: true},
			{Index: 5, Reason: "platform reddit already has 3 posts today"},
		},
		DistinctCategories: 2,
	})
	c := codes(rep)
	if c[AlertUnfilledSlot+":2026-10-18#5"] != SeverityWarning || c[AlertUnfilledSlot+":2026-10-18#0"] != SeverityInfo {
		t.Fatalf("unfilled alerts: %+v", rep.Alerts)
	}
	if c[AlertDiversity+":2026-10-18"] != SeverityInfo {
		t.Fatalf("expected diversity miss: %+v", rep.Alerts)
	}
	if rep.Status != SeverityWarning {
		t.Fatalf("status = %s", rep.Status)
	}
	for _, a := range rep.Worst(SeverityWarning) {
		if a.Severity == SeverityInfo {
			t.Fatalf("Worst returned info alert")
		}
	}
	found := false
	for _, a := range rep.Alerts {
		if strings.Contains(a.Message, "already has 3 posts today") {
			found = true
		}
	}
	if !found {
		t.Fatalf("unfilled reason not carried into alert")
	}
}

func TestCollect(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := content.NewContentItemRepo(db, testutil.Logger(t))
	testutil.SeedItem(t, ctx, db, "reddit", testutil.WithState(types.StateApproved), testutil.WithCategory("gif"))
	testutil.SeedItem(t, ctx, db, "reddit", testutil.WithState(types.StateApproved), testutil.WithCategory("image"))
	testutil.SeedItem(t, ctx, db, "tumblr", testutil.WithState(types.StateApproved), testutil.WithCategory("image"))
	testutil.SeedItem(t, ctx, db, "tumblr")

	m := NewMonitor(repo, policy.Default(), testutil.Logger(t))
	snap, err := m.Collect(ctx, now)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if snap.Ready() != 3 || snap.ByCategory["image"] != 2 || snap.ByState[types.StatePendingApproval] != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	rep := m.Assess(snap, nil)
	if rep.Status != SeverityCritical {
		t.Fatalf("3 ready items over 6 slots should be critical, got %s", rep.Status)
	}
}
