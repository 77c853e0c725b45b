package cycle

import (
	"time"

	"github.com/yungbote/curator-backend/internal/modules/curation/health"
	"github.com/yungbote/curator-backend/internal/modules/curation/schedule"
)

const (
	PassDetect   = "detect"
	PassApproval = "approval"
	PassBalance  = "balance"
	PassSchedule = "schedule"
	PassHealth   = "health"
)

const maxInputErrors = 20

// PassSummary is what every batch pass reports. Errors counts skipped
// input errors; a pass that hit a store error returns that error instead.
type PassSummary struct {
	Pass        string   `json:"pass"`
	TotalFound  int      `json:"totalFound"`
	Processed   int      `json:"processed"`
	Approved    int      `json:"approved"`
	Rejected    int      `json:"rejected"`
	Duplicates  int      `json:"duplicates"`
	Errors      int      `json:"errors"`
	Lost        int      `json:"lost,omitempty"`
	DurationMS  int64    `json:"durationMs"`
	InputErrors []string `json:"inputErrors,omitempty"`
	Detail      any      `json:"detail,omitempty"`
}

// Degraded reports a pass that finished but skipped some items.
func (s PassSummary) Degraded() bool { return s.Errors > 0 }

func (s PassSummary) counts() map[string]int {
	return map[string]int{
		"found":      s.TotalFound,
		"processed":  s.Processed,
		"approved":   s.Approved,
		"rejected":   s.Rejected,
		"duplicates": s.Duplicates,
		"errors":     s.Errors,
		"lost":       s.Lost,
	}
}

func (s *PassSummary) inputError(err error) {
	s.Errors++
	if len(s.InputErrors) < maxInputErrors {
		s.InputErrors = append(s.InputErrors, err.Error())
	}
}

func (s *PassSummary) finish(start time.Time) {
	s.DurationMS = time.Since(start).Milliseconds()
}

// Add folds o's counts into s.
func (s *PassSummary) Add(o PassSummary) {
	s.TotalFound += o.TotalFound
	s.Processed += o.Processed
	s.Approved += o.Approved
	s.Rejected += o.Rejected
	s.Duplicates += o.Duplicates
	s.Errors += o.Errors
	s.Lost += o.Lost
	s.DurationMS += o.DurationMS
}

// Report is the outcome of one full curation cycle.
type Report struct {
	Passes []PassSummary        `json:"passes"`
	Totals PassSummary          `json:"totals"`
	Fill   *schedule.FillResult `json:"schedule,omitempty"`
	Health *health.Report       `json:"health,omitempty"`
	Day    string               `json:"day,omitempty"`
}

// ScheduleSummaryOf projects a fill result for the health monitor.
func ScheduleSummaryOf(fill *schedule.FillResult) *health.ScheduleSummary {
	if fill == nil {
		return nil
	}
	out := &health.ScheduleSummary{
		Day:                fill.Day,
		DistinctCategories: fill.DistinctCategories,
	}
	for _, s := range fill.Slots {
		switch s.Status {
		case schedule.SlotFilled, schedule.SlotExisting:
			out.Filled++
		case schedule.SlotUnfilled, schedule.SlotExpired:
			out.Unfilled = append(out.Unfilled, health.UnfilledSlot{
				Index:   s.Index,
				Reason:  s.Reason,
				Expired: s.Status == schedule.SlotExpired,
			})
		}
	}
	return out
}
