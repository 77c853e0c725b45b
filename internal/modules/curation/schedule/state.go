package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/curator-backend/internal/domain"
)

// Candidate is the read-only projection of an approved, unscheduled,
// unpublished item the scheduler chooses from.
type Candidate struct {
	ID         uuid.UUID `json:"id"`
	Platform   string    `json:"platform"`
	Author     string    `json:"author"`
	Category   string    `json:"category"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

func FromItem(it *types.ContentItem) Candidate {
	return Candidate{
		ID:         it.ID,
		Platform:   it.Platform,
		Author:     it.Author,
		Category:   it.Category,
		Confidence: it.Confidence,
		CreatedAt:  it.CreatedAt,
	}
}

type Selection struct {
	ItemID    uuid.UUID `json:"item_id"`
	SlotIndex int       `json:"slot_index"`
	Platform  string    `json:"platform"`
	Author    string    `json:"author"`
	Category  string    `json:"category"`
}

// DiversityState is one day's selections plus, per platform, the closest
// other day it was selected on, earlier or later. It is rebuilt from slot
// history on every run and never outlives one.
type DiversityState struct {
	Day             string
	Selections      []Selection
	NearestSelected map[string]string

	platforms  map[string]int
	authors    map[string]int
	categories map[string]int
}

func NewDiversityState(day string, nearestSelected map[string]string) *DiversityState {
	if nearestSelected == nil {
		nearestSelected = map[string]string{}
	}
	s := &DiversityState{Day: day, NearestSelected: nearestSelected}
	s.resetCounts()
	return s
}

// StateFromSlots builds the state for day from that day's slots and the
// per-platform history of surrounding days.
func StateFromSlots(day string, today []*types.ScheduleSlot, nearestSelected map[string]string) *DiversityState {
	s := NewDiversityState(day, nearestSelected)
	s.ReplaceToday(today)
	return s
}

func (s *DiversityState) resetCounts() {
	s.platforms = map[string]int{}
	s.authors = map[string]int{}
	s.categories = map[string]int{}
}

// ReplaceToday swaps today's selections for the persisted slots.
func (s *DiversityState) ReplaceToday(slots []*types.ScheduleSlot) {
	s.Selections = s.Selections[:0]
	s.resetCounts()
	for _, sl := range slots {
		if sl == nil || sl.Day != s.Day {
			continue
		}
		s.add(Selection{
			ItemID:    sl.ItemID,
			SlotIndex: sl.SlotIndex,
			Platform:  sl.Platform,
			Author:    sl.Author,
			Category:  sl.Category,
		})
	}
}

func (s *DiversityState) Append(c Candidate, slotIndex int) {
	s.add(Selection{
		ItemID:    c.ID,
		SlotIndex: slotIndex,
		Platform:  c.Platform,
		Author:    c.Author,
		Category:  c.Category,
	})
}

func (s *DiversityState) add(sel Selection) {
	s.Selections = append(s.Selections, sel)
	s.platforms[sel.Platform]++
	s.authors[sel.Author]++
	s.categories[sel.Category]++
}

func (s *DiversityState) PlatformCount(platform string) int { return s.platforms[platform] }

func (s *DiversityState) AuthorCount(author string) int { return s.authors[author] }

func (s *DiversityState) DistinctCategories() int { return len(s.categories) }

func (s *DiversityState) HasSlot(index int) bool {
	for _, sel := range s.Selections {
		if sel.SlotIndex == index {
			return true
		}
	}
	return false
}

func (s *DiversityState) Selected(id uuid.UUID) bool {
	for _, sel := range s.Selections {
		if sel.ItemID == id {
			return true
		}
	}
	return false
}

// DiversityScore is min(1, distinct categories including category / target).
func (s *DiversityState) DiversityScore(category string, target int) float64 {
	if target <= 0 {
		return 1
	}
	distinct := len(s.categories)
	if category != "" && s.categories[category] == 0 {
		distinct++
	}
	score := float64(distinct) / float64(target)
	if score > 1 {
		return 1
	}
	return score
}

// CurrentScore is the day's score without a prospective candidate.
func (s *DiversityState) CurrentScore(target int) float64 {
	return s.DiversityScore("", target)
}

// DaysApart returns whole days between s.Day and the platform's nearest
// selection on another day, in either direction; ok is false when there is
// none.
func (s *DiversityState) DaysApart(platform string) (int, string, bool) {
	other, ok := s.NearestSelected[platform]
	if !ok || other == "" || other == s.Day {
		return 0, "", false
	}
	n, err := DaysBetween(other, s.Day)
	if err != nil {
		return 0, other, false
	}
	if n < 0 {
		n = -n
	}
	return n, other, true
}

// DaysBetween counts calendar days from a to b (both YYYY-MM-DD).
func DaysBetween(a, b string) (int, error) {
	ta, err := time.Parse(types.DayLayout, a)
	if err != nil {
		return 0, fmt.Errorf("parse day %q: %w", a, err)
	}
	tb, err := time.Parse(types.DayLayout, b)
	if err != nil {
		return 0, fmt.Errorf("parse day %q: %w", b, err)
	}
	return int(tb.Sub(ta).Hours() / 24), nil
}

// AddDays shifts a YYYY-MM-DD day key.
func AddDays(day string, n int) (string, error) {
	t, err := time.Parse(types.DayLayout, day)
	if err != nil {
		return "", fmt.Errorf("parse day %q: %w", day, err)
	}
	return t.AddDate(0, 0, n).Format(types.DayLayout), nil
}
