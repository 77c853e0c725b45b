package health

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	types "github.com/yungbote/curator-backend/internal/domain"
	"github.com/yungbote/curator-backend/internal/modules/curation/policy"
	"github.com/yungbote/curator-backend/internal/pkg/dbctx"
	"github.com/yungbote/curator-backend/internal/platform/logger"
)

type Severity string

const (
	SeverityOK       Severity = "ok"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (s Severity) rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

const (
	AlertRunway          = "runway"
	AlertCategoryEmpty   = "category_empty"
	AlertCategoryCeiling = "category_ceiling"
	AlertCategoryDrift   = "category_drift"
	AlertDominance       = "platform_dominance"
	AlertUnfilledSlot    = "unfilled_slot"
	AlertDiversity       = "category_diversity"
)

type Alert struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Subject  string   `json:"subject,omitempty"`
	Message  string   `json:"message"`
}

// Snapshot is the ready (approved, unscheduled, unpublished) pool by
// platform and category, plus item counts per state.
type Snapshot struct {
	TakenAt    time.Time                   `json:"taken_at"`
	ByPlatform map[string]int              `json:"by_platform"`
	ByCategory map[string]int              `json:"by_category"`
	ByState    map[types.ApprovalState]int `json:"by_state,omitempty"`
}

func (s Snapshot) Ready() int {
	n := 0
	for _, c := range s.ByPlatform {
		n += c
	}
	return n
}

type UnfilledSlot struct {
	Index   int    `json:"index"`
	Reason  string `json:"reason"`
	Expired bool   `json:"expired,omitempty"`
}

// ScheduleSummary is what the monitor needs from one scheduling run.
type ScheduleSummary struct {
	Day                string         `json:"day"`
	Filled             int            `json:"filled"`
	Unfilled           []UnfilledSlot `json:"unfilled,omitempty"`
	DistinctCategories int            `json:"distinct_categories"`
}

type Share struct {
	Name    string  `json:"name"`
	Count   int     `json:"count"`
	Share   float64 `json:"share"`
	Target  float64 `json:"target,omitempty"`
	Ceiling float64 `json:"ceiling,omitempty"`
}

type Report struct {
	GeneratedAt time.Time                   `json:"generated_at"`
	Status      Severity                    `json:"status"`
	Ready       int                         `json:"ready"`
	SlotsPerDay int                         `json:"slots_per_day"`
	RunwayDays  float64                     `json:"runway_days"`
	Categories  []Share                     `json:"categories"`
	Platforms   []Share                     `json:"platforms"`
	States      map[types.ApprovalState]int `json:"states,omitempty"`
	Schedule    *ScheduleSummary            `json:"schedule,omitempty"`
	Alerts      []Alert                     `json:"alerts"`
}

type Store interface {
	CountReadyByPlatform(dbc dbctx.Context) (map[string]int, error)
	CountReadyByCategory(dbc dbctx.Context) (map[string]int, error)
	CountByState(dbc dbctx.Context) (map[types.ApprovalState]int, error)
}

// Monitor assesses queue health. It only reads.
type Monitor struct {
	store Store
	cfg   policy.Config
	log   *logger.Logger
}

func NewMonitor(store Store, cfg policy.Config, baseLog *logger.Logger) *Monitor {
	return &Monitor{
		store: store,
		cfg:   cfg,
		log:   baseLog.With("component", "HealthMonitor"),
	}
}

// Collect reads the current pool counts from the store.
func (m *Monitor) Collect(ctx context.Context, now time.Time) (Snapshot, error) {
	dbc := dbctx.Context{Ctx: ctx}
	snap := Snapshot{TakenAt: now}
	var err error
	if snap.ByPlatform, err = m.store.CountReadyByPlatform(dbc); err != nil {
		return snap, fmt.Errorf("count ready by platform: %w", err)
	}
	if snap.ByCategory, err = m.store.CountReadyByCategory(dbc); err != nil {
		return snap, fmt.Errorf("count ready by category: %w", err)
	}
	if snap.ByState, err = m.store.CountByState(dbc); err != nil {
		return snap, fmt.Errorf("count by state: %w", err)
	}
	return snap, nil
}

// Assess computes runway, category mix and platform supply for snap and
// raises alerts. schedule may be nil.
func (m *Monitor) Assess(snap Snapshot, schedule *ScheduleSummary) Report {
	hc := m.cfg.Health
	rep := Report{
		GeneratedAt: snap.TakenAt,
		Ready:       snap.Ready(),
		SlotsPerDay: m.cfg.SlotsPerDay(),
		States:      snap.ByState,
		Schedule:    schedule,
		Status:      SeverityOK,
		Alerts:      []Alert{},
	}
	if rep.SlotsPerDay > 0 {
		rep.RunwayDays = round2(float64(rep.Ready) / float64(rep.SlotsPerDay))
	}

	switch {
	case rep.Ready == 0:
		rep.alert(SeverityCritical, AlertRunway, "", "no approved content is ready to schedule")
	case rep.RunwayDays < hc.CriticalRunwayDays:
		rep.alert(SeverityCritical, AlertRunway, "",
			fmt.Sprintf("runway is %.2f days, below the critical floor of %.2f", rep.RunwayDays, hc.CriticalRunwayDays))
	case rep.RunwayDays < hc.RunwayFloorDays:
		rep.alert(SeverityWarning, AlertRunway, "",
			fmt.Sprintf("runway is %.2f days, below the floor of %.2f", rep.RunwayDays, hc.RunwayFloorDays))
	}

	rep.Categories = shares(snap.ByCategory, rep.Ready)
	for _, name := range types.Categories {
		if !hasShare(rep.Categories, name) {
			rep.Categories = append(rep.Categories, Share{Name: name})
		}
	}
	for name := range hc.CategoryTargets {
		if !hasShare(rep.Categories, name) {
			rep.Categories = append(rep.Categories, Share{Name: name})
		}
	}
	sortShares(rep.Categories)
	for i := range rep.Categories {
		c := &rep.Categories[i]
		target := hc.CategoryTargets[c.Name]
		c.Target, c.Ceiling = target.Share, target.Ceiling
		if rep.Ready == 0 {
			continue
		}
		switch {
		case c.Count == 0 && !target.Optional:
			msg := fmt.Sprintf("category %s is at 0%% of ready content", c.Name)
			if target.Share > 0 {
				msg += fmt.Sprintf(" (target %s)", pct(target.Share))
			}
			rep.alert(SeverityWarning, AlertCategoryEmpty, c.Name, msg)
		case target.Ceiling > 0 && c.Share > target.Ceiling:
			rep.alert(SeverityWarning, AlertCategoryCeiling, c.Name,
				fmt.Sprintf("category %s is at %s of ready content, above its ceiling of %s", c.Name, pct(c.Share), pct(target.Ceiling)))
		case target.Share > 0 && math.Abs(c.Share-target.Share) > hc.TargetTolerance:
			rep.alert(SeverityInfo, AlertCategoryDrift, c.Name,
				fmt.Sprintf("category %s is at %s of ready content, target %s", c.Name, pct(c.Share), pct(target.Share)))
		}
	}

	rep.Platforms = shares(snap.ByPlatform, rep.Ready)
	sortShares(rep.Platforms)
	for _, p := range rep.Platforms {
		if hc.DominanceThreshold > 0 && p.Share > hc.DominanceThreshold {
			rep.alert(SeverityWarning, AlertDominance, p.Name,
				fmt.Sprintf("platform %s supplies %s of ready content, above %s", p.Name, pct(p.Share), pct(hc.DominanceThreshold)))
		}
	}

	if schedule != nil {
		for _, u := range schedule.Unfilled {
			sev := SeverityWarning
			if u.Expired {
				sev = SeverityInfo
			}
			rep.alert(sev, AlertUnfilledSlot, fmt.Sprintf("%s#%d", schedule.Day, u.Index),
				fmt.Sprintf("slot %d on %s is unfilled: %s", u.Index, schedule.Day, u.Reason))
		}
		target := m.cfg.Schedule.CategoryTarget
		if schedule.Filled > 0 && target > 0 && schedule.DistinctCategories < target {
			rep.alert(SeverityInfo, AlertDiversity, schedule.Day,
				fmt.Sprintf("%s has %d distinct categories, target %d", schedule.Day, schedule.DistinctCategories, target))
		}
	}

	if len(rep.Alerts) > 0 {
		m.log.Debug("Health assessed", "status", rep.Status, "alerts", len(rep.Alerts), "runway_days", rep.RunwayDays)
	}
	return rep
}

func (r *Report) alert(sev Severity, code, subject, msg string) {
	r.Alerts = append(r.Alerts, Alert{Severity: sev, Code: code, Subject: subject, Message: msg})
	if sev.rank() > r.Status.rank() {
		r.Status = sev
	}
}

// Worst returns alerts at or above min.
func (r Report) Worst(min Severity) []Alert {
	var out []Alert
	for _, a := range r.Alerts {
		if a.Severity.rank() >= min.rank() {
			out = append(out, a)
		}
	}
	return out
}

func shares(counts map[string]int, total int) []Share {
	out := make([]Share, 0, len(counts))
	for name, n := range counts {
		s := Share{Name: name, Count: n}
		if total > 0 {
			s.Share = float64(n) / float64(total)
		}
		out = append(out, s)
	}
	return out
}

func hasShare(list []Share, name string) bool {
	for _, s := range list {
		if s.Name == name {
			return true
		}
	}
	return false
}

func sortShares(list []Share) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Count != list[j].Count {
			return list[i].Count > list[j].Count
		}
		return list[i].Name < list[j].Name
	})
}

func pct(f float64) string { return fmt.Sprintf("%.0f%%", f*100) }

func round2(f float64) float64 { return math.Round(f*100) / 100 }
