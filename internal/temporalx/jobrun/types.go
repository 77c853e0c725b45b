package jobrun

import (
	"github.com/yungbote/curator-backend/internal/modules/curation/cycle"
	"github.com/yungbote/curator-backend/internal/modules/curation/health"
	"github.com/yungbote/curator-backend/internal/modules/curation/schedule"
)

const (
	WorkflowName   = "curation_cycle"
	ActivityBegin  = "curation_cycle_begin"
	ActivityPass   = "curation_cycle_pass"
	ActivityFinish = "curation_cycle_finish"
)

// BeginResult carries the decoded options; Run is false when the job was
// already terminal or its payload was rejected.
type BeginResult struct {
	Run     bool          `json:"run"`
	Status  string        `json:"status"`
	Options cycle.Options `json:"options"`
}

type PassInput struct {
	JobID   string               `json:"job_id"`
	Pass    string               `json:"pass"`
	Pct     int                  `json:"pct"`
	Options cycle.Options        `json:"options"`
	Fill    *schedule.FillResult `json:"fill,omitempty"`
}

type PassOutput struct {
	Summary cycle.PassSummary    `json:"summary"`
	Fill    *schedule.FillResult `json:"fill,omitempty"`
	Health  *health.Report       `json:"health,omitempty"`
}

type FinishInput struct {
	JobID  string       `json:"job_id"`
	Report cycle.Report `json:"report"`
	Error  string       `json:"error,omitempty"`
}

type step struct {
	pass string
	pct  int
}

// steps is the fixed pass order of a cycle.
func steps(opts cycle.Options) []step {
	out := []step{
		{cycle.PassDetect, 25},
		{cycle.PassApproval, 45},
		{cycle.PassBalance, 60},
	}
	if !opts.SkipSchedule {
		out = append(out, step{cycle.PassSchedule, 85})
	}
	return append(out, step{cycle.PassHealth, 95})
}
