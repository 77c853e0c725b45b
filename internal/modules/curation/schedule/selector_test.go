package schedule

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

const today = "2026-10-18"

var base = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

func rules() Rules {
	return Rules{
		PlatformDailyCap: 3,
		AuthorDailyCap:   2,
		CategoryTarget:   4,
		CooldownDays:     func(string) int { return 30 },
	}
}

func cand(platform, author, category string, conf float64, age time.Duration) Candidate {
	return Candidate{
		ID:         uuid.New(),
		Platform:   platform,
		Author:     author,
		Category:   category,
		Confidence: conf,
		CreatedAt:  base.Add(-age),
	}
}

func stateWith(t *testing.T, picks ...Candidate) *DiversityState {
	t.Helper()
	s := NewDiversityState(today, nil)
	for i, c := range picks {
		s.Append(c, i)
	}
	return s
}

func TestPlatformCapScenario(t *testing.T) {
	s := stateWith(t,
		cand("reddit", "X", "image", 0.9, 0),
		cand("reddit", "Y", "gif", 0.9, 0),
		cand("reddit", "Z", "video", 0.9, 0),
	)
	fourth := cand("reddit", "W", "text", 0.99, 0)

	got, dec := SelectCandidate([]Candidate{fourth}, s, rules())
	if got != nil {
		t.Fatalf("expected no selection, got %+v", got)
	}
	if !strings.Contains(dec.Reason, "already has 3 posts today") {
		t.Fatalf("reason %q missing platform cap text", dec.Reason)
	}
	if len(dec.Rejections) != 1 || dec.Rejections[0].Constraint != ConstraintPlatformCap {
		t.Fatalf("rejections = %+v", dec.Rejections)
	}
}

func TestAuthorCapScenario(t *testing.T) {
	s := stateWith(t,
		cand("reddit", "meme_lord", "image", 0.9, 0),
		cand("tumblr", "meme_lord", "gif", 0.9, 0),
	)
	third := cand("imgur", "meme_lord", "video", 0.95, 0)

	got, dec := SelectCandidate([]Candidate{third}, s, rules())
	if got != nil {
		t.Fatalf("expected author cap rejection, got %+v", got)
	}
	if dec.Rejections[0].Constraint != ConstraintAuthorCap {
		t.Fatalf("constraint = %s", dec.Rejections[0].Constraint)
	}
	if !strings.Contains(dec.Reason, "author meme_lord already has 2 posts today") {
		t.Fatalf("reason = %q", dec.Reason)
	}
}

func TestCooldownScenario(t *testing.T) {
	c := cand("niche", "someone", "image", 0.7, 0)

	recent := NewDiversityState(today, map[string]string{"niche": "2026-10-03"})
	got, dec := SelectCandidate([]Candidate{c}, recent, rules())
	if got != nil {
		t.Fatalf("15 days ago: expected cooldown rejection")
	}
	if dec.Rejections[0].Constraint != ConstraintCooldown {
		t.Fatalf("constraint = %s", dec.Rejections[0].Constraint)
	}
	if !strings.Contains(dec.Reason, "cooldown until 2026-11-02") {
		t.Fatalf("reason = %q", dec.Reason)
	}

	old := NewDiversityState(today, map[string]string{"niche": "2026-09-13"})
	got, _ = SelectCandidate([]Candidate{c}, old, rules())
	if got == nil || got.ID != c.ID {
		t.Fatalf("35 days ago: expected selection")
	}
}

func TestCooldownBoundary(t *testing.T) {
	c := cand("niche", "a", "image", 0.7, 0)
	day29 := NewDiversityState(today, map[string]string{"niche": "2026-09-19"})
	if got, _ := SelectCandidate([]Candidate{c}, day29, rules()); got != nil {
		t.Fatalf("29 days: expected rejection")
	}
	day30 := NewDiversityState(today, map[string]string{"niche": "2026-09-18"})
	if got, _ := SelectCandidate([]Candidate{c}, day30, rules()); got == nil {
		t.Fatalf("30 days: expected selection")
	}
}

func TestCooldownAppliesToLaterDays(t *testing.T) {
	c := cand("niche", "a", "image", 0.7, 0)
	ahead := NewDiversityState(today, map[string]string{"niche": "2026-10-23"})
	got, dec := SelectCandidate([]Candidate{c}, ahead, rules())
	if got != nil || len(dec.Rejections) != 1 || dec.Rejections[0].Constraint != ConstraintCooldown {
		t.Fatalf("selection 5 days later: got=%v dec=%+v", got, dec)
	}
	if !strings.Contains(dec.Reason, "already selected on 2026-10-23") {
		t.Fatalf("reason = %q", dec.Reason)
	}
	outside := NewDiversityState(today, map[string]string{"niche": "2026-11-17"})
	if got, _ := SelectCandidate([]Candidate{c}, outside, rules()); got == nil {
		t.Fatalf("selection 30 days later: expected selection")
	}
}

func TestCooldownCheckedBeforeCaps(t *testing.T) {
	s := NewDiversityState(today, map[string]string{"reddit": "2026-10-10"})
	for i := 0; i < 3; i++ {
		s.Append(cand("reddit", "a"+string(rune('0'+i)), "image", 0.9, 0), i)
	}
	_, dec := SelectCandidate([]Candidate{cand("reddit", "new", "gif", 0.9, 0)}, s, rules())
	if dec.Rejections[0].Constraint != ConstraintCooldown {
		t.Fatalf("expected cooldown to win, got %s", dec.Rejections[0].Constraint)
	}
}

func TestPerPlatformCooldown(t *testing.T) {
	r := rules()
	r.CooldownDays = func(p string) int {
		if p == "fast" {
			return 7
		}
		return 30
	}
	s := NewDiversityState(today, map[string]string{"fast": "2026-10-10", "slow": "2026-10-10"})
	pool := []Candidate{cand("slow", "a", "image", 0.99, 0), cand("fast", "b", "image", 0.5, 0)}
	got, _ := SelectCandidate(pool, s, r)
	if got == nil || got.Platform != "fast" {
		t.Fatalf("expected fast platform after 8 days, got %+v", got)
	}
}

func TestPreferenceOrder(t *testing.T) {
	s := stateWith(t, cand("a", "x", "image", 0.9, 0))

	sameCat := cand("b", "y", "image", 0.99, 0)
	newCat := cand("c", "z", "gif", 0.6, 0)
	got, dec := SelectCandidate([]Candidate{sameCat, newCat}, s, rules())
	if got.ID != newCat.ID {
		t.Fatalf("expected the new category to win on diversity score")
	}
	if dec.Score != 0.5 || dec.Eligible != 2 {
		t.Fatalf("decision = %+v", dec)
	}

	hi := cand("d", "p", "video", 0.8, 0)
	lo := cand("e", "q", "video", 0.7, 0)
	if got, _ := SelectCandidate([]Candidate{lo, hi}, s, rules()); got.ID != hi.ID {
		t.Fatalf("expected higher confidence on equal score")
	}

	older := cand("f", "r", "video", 0.8, 48*time.Hour)
	newer := cand("g", "s", "video", 0.8, time.Hour)
	if got, _ := SelectCandidate([]Candidate{newer, older}, s, rules()); got.ID != older.ID {
		t.Fatalf("expected oldest on equal score and confidence")
	}
}

func TestDiversityReachesOne(t *testing.T) {
	pool := []Candidate{
		cand("p1", "a1", "image", 0.95, 0),
		cand("p2", "a2", "image", 0.94, 0),
		cand("p3", "a3", "gif", 0.70, 0),
		cand("p4", "a4", "video", 0.60, 0),
		cand("p5", "a5", "text", 0.50, 0),
	}
	s := NewDiversityState(today, nil)
	r := rules()
	r.CooldownDays = nil
	for slot := 0; slot < 4; slot++ {
		got, _ := SelectCandidate(pool, s, r)
		if got == nil {
			t.Fatalf("slot %d: no selection", slot)
		}
		s.Append(*got, slot)
	}
	if s.DistinctCategories() != 4 || s.CurrentScore(4) != 1.0 {
		t.Fatalf("after 4 slots: distinct=%d score=%v", s.DistinctCategories(), s.CurrentScore(4))
	}
}

func TestCapsHoldAcrossDay(t *testing.T) {
	var pool []Candidate
	for i := 0; i < 10; i++ {
		pool = append(pool, cand("reddit", "a"+string(rune('a'+i)), "image", 0.9-float64(i)/100, 0))
	}
	pool = append(pool,
		cand("tumblr", "solo", "gif", 0.5, 0),
		cand("tumblr", "solo", "gif", 0.49, 0),
		cand("tumblr", "solo", "gif", 0.48, 0),
	)
	s := NewDiversityState(today, nil)
	r := rules()
	for slot := 0; slot < 8; slot++ {
		got, _ := SelectCandidate(pool, s, r)
		if got == nil {
			break
		}
		s.Append(*got, slot)
	}
	if s.PlatformCount("reddit") != 3 {
		t.Fatalf("reddit selected %d times", s.PlatformCount("reddit"))
	}
	if s.AuthorCount("solo") != 2 {
		t.Fatalf("solo selected %d times", s.AuthorCount("solo"))
	}
	if len(s.Selections) != 5 {
		t.Fatalf("expected 5 selections, got %d", len(s.Selections))
	}
}

func TestAlreadySelectedSkipped(t *testing.T) {
	c := cand("a", "x", "image", 0.9, 0)
	s := stateWith(t, c)
	if got, dec := SelectCandidate([]Candidate{c}, s, rules()); got != nil || dec.Rejections[0].Constraint != ConstraintSelected {
		t.Fatalf("expected already-selected rejection, got %+v %+v", got, dec)
	}
}

func TestEmptyPoolAndSummary(t *testing.T) {
	if got, dec := SelectCandidate(nil, NewDiversityState(today, nil), rules()); got != nil || dec.Reason == "" {
		t.Fatalf("empty pool: got %+v reason %q", got, dec.Reason)
	}
	s := stateWith(t,
		cand("reddit", "X", "image", 0.9, 0),
		cand("reddit", "Y", "gif", 0.9, 0),
		cand("reddit", "Z", "video", 0.9, 0),
	)
	pool := []Candidate{cand("reddit", "W", "text", 0.9, 0), cand("reddit", "V", "text", 0.8, 0)}
	_, dec := SelectCandidate(pool, s, rules())
	if !strings.HasPrefix(dec.Reason, "no eligible candidate: ") || !strings.Contains(dec.Reason, "(x2)") {
		t.Fatalf("summary = %q", dec.Reason)
	}
}

func TestDaysBetween(t *testing.T) {
	n, err := DaysBetween("2026-09-18", today)
	if err != nil || n != 30 {
		t.Fatalf("DaysBetween = %d, %v", n, err)
	}
	if _, err := DaysBetween("bad", today); err == nil {
		t.Fatalf("expected parse error")
	}
	if d, _ := AddDays(today, -30); d != "2026-09-18" {
		t.Fatalf("AddDays = %s", d)
	}
}
