package schedule

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

const (
	ConstraintCooldown    = "platform_cooldown"
	ConstraintPlatformCap = "platform_cap"
	ConstraintAuthorCap   = "author_cap"
	ConstraintSelected    = "already_selected"
)

// Rules are the hard limits plus the category target. CooldownDays resolves
// a platform's rolling cooldown; nil means no cooldown.
type Rules struct {
	PlatformDailyCap int
	AuthorDailyCap   int
	CategoryTarget   int
	CooldownDays     func(platform string) int
}

type Rejection struct {
	CandidateID uuid.UUID `json:"candidate_id"`
	Constraint  string    `json:"constraint"`
	Reason      string    `json:"reason"`
}

// Decision explains one SelectCandidate call. Reason is set when nothing
// was selected.
type Decision struct {
	Score      float64     `json:"diversity_score"`
	Eligible   int         `json:"eligible"`
	Rejections []Rejection `json:"rejections,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

// Check applies the hard constraints to c. Cooldown is evaluated first: a
// platform inside its cooldown is rejected for that reason regardless of
// today's counts.
func (r Rules) Check(c Candidate, state *DiversityState) (Rejection, bool) {
	rej := Rejection{CandidateID: c.ID}
	if state.Selected(c.ID) {
		rej.Constraint = ConstraintSelected
		rej.Reason = fmt.Sprintf("item %s is already scheduled today", c.ID)
		return rej, false
	}
	if r.CooldownDays != nil {
		if cd := r.CooldownDays(c.Platform); cd > 0 {
			if apart, other, ok := state.DaysApart(c.Platform); ok && apart < cd {
				rej.Constraint = ConstraintCooldown
				if other < state.Day {
					until, _ := AddDays(other, cd)
					rej.Reason = fmt.Sprintf("platform %s is in cooldown until %s (last selected %s)", c.Platform, until, other)
				} else {
					rej.Reason = fmt.Sprintf("platform %s is in cooldown: already selected on %s, %d days after %s", c.Platform, other, apart, state.Day)
				}
				return rej, false
			}
		}
	}
	if r.PlatformDailyCap > 0 {
		if n := state.PlatformCount(c.Platform); n >= r.PlatformDailyCap {
			rej.Constraint = ConstraintPlatformCap
			rej.Reason = fmt.Sprintf("platform %s already has %d posts today", c.Platform, n)
			return rej, false
		}
	}
	if r.AuthorDailyCap > 0 {
		if n := state.AuthorCount(c.Author); n >= r.AuthorDailyCap {
			rej.Constraint = ConstraintAuthorCap
			rej.Reason = fmt.Sprintf("author %s already has %d posts today", c.Author, n)
			return rej, false
		}
	}
	return Rejection{}, true
}

type scored struct {
	c     Candidate
	score float64
}

// SelectCandidate picks the candidate for the next slot, or nil when no
// candidate passes every hard constraint. Among eligible candidates it
// prefers the highest diversity score, then confidence, then the oldest.
// Constraints are never relaxed.
func SelectCandidate(pool []Candidate, state *DiversityState, rules Rules) (*Candidate, Decision) {
	var dec Decision
	if len(pool) == 0 {
		dec.Reason = "no approved candidates available"
		return nil, dec
	}
	eligible := make([]scored, 0, len(pool))
	for _, c := range pool {
		if rej, ok := rules.Check(c, state); !ok {
			dec.Rejections = append(dec.Rejections, rej)
			continue
		}
		eligible = append(eligible, scored{c: c, score: state.DiversityScore(c.Category, rules.CategoryTarget)})
	}
	dec.Eligible = len(eligible)
	if len(eligible) == 0 {
		dec.Reason = summarize(dec.Rejections)
		return nil, dec
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.c.Confidence != b.c.Confidence {
			return a.c.Confidence > b.c.Confidence
		}
		if !a.c.CreatedAt.Equal(b.c.CreatedAt) {
			return a.c.CreatedAt.Before(b.c.CreatedAt)
		}
		return a.c.ID.String() < b.c.ID.String()
	})
	best := eligible[0]
	dec.Score = best.score
	return &best.c, dec
}

// summarize folds rejections into one reason, most frequent first.
func summarize(rejections []Rejection) string {
	if len(rejections) == 1 {
		return rejections[0].Reason
	}
	counts := map[string]int{}
	order := []string{}
	for _, r := range rejections {
		if counts[r.Reason] == 0 {
			order = append(order, r.Reason)
		}
		counts[r.Reason]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	parts := make([]string, 0, len(order))
	for _, reason := range order {
		if counts[reason] > 1 {
			parts = append(parts, fmt.Sprintf("%s (x%d)", reason, counts[reason]))
			continue
		}
		parts = append(parts, reason)
	}
	return "no eligible candidate: " + strings.Join(parts, "; ")
}
