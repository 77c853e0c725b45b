package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/curator-backend/internal/data/repos/content"
	types "github.com/yungbote/curator-backend/internal/domain"
	"github.com/yungbote/curator-backend/internal/modules/curation/policy"
	"github.com/yungbote/curator-backend/internal/pkg/dbctx"
	"github.com/yungbote/curator-backend/internal/platform/logger"
)

type ItemStore interface {
	QueryByState(dbc dbctx.Context, state types.ApprovalState, filter content.ItemFilter) ([]*types.ContentItem, error)
	AssignSlot(dbc dbctx.Context, id uuid.UUID, slotID uuid.UUID) (bool, error)
}

type SlotStore interface {
	Reserve(dbc dbctx.Context, slot *types.ScheduleSlot) (bool, error)
	GetByDayIndex(dbc dbctx.Context, day string, index int) (*types.ScheduleSlot, error)
	ListByDay(dbc dbctx.Context, day string) ([]*types.ScheduleSlot, error)
	NearestDayByPlatform(dbc dbctx.Context, day, fromDay, toDay string) (map[string]string, error)
}

type SlotStatus string

const (
	SlotOpen     SlotStatus = "open"
	SlotFilled   SlotStatus = "filled"
	SlotExisting SlotStatus = "existing"
	SlotUnfilled SlotStatus = "unfilled"
	SlotExpired  SlotStatus = "expired"
)

type SlotOutcome struct {
	Index          int        `json:"index"`
	Time           time.Time  `json:"time"`
	Status         SlotStatus `json:"status"`
	ItemID         *uuid.UUID `json:"item_id,omitempty"`
	Platform       string     `json:"platform,omitempty"`
	Author         string     `json:"author,omitempty"`
	Category       string     `json:"category,omitempty"`
	DiversityScore float64    `json:"diversity_score,omitempty"`
	Reason         string     `json:"reason,omitempty"`
}

// Retryable reports whether a later run may still fill the slot.
func (o SlotOutcome) Retryable() bool { return o.Status == SlotUnfilled }

type FillResult struct {
	Day                string        `json:"day"`
	Slots              []SlotOutcome `json:"slots"`
	Filled             int           `json:"filled"`
	Unfilled           int           `json:"unfilled"`
	Expired            int           `json:"expired"`
	PoolSize           int           `json:"pool_size"`
	DistinctCategories int           `json:"distinct_categories"`
	DiversityScore     float64       `json:"diversity_score"`
}

// UnfilledSlots returns slots left empty this run, expired ones included.
func (r FillResult) UnfilledSlots() []SlotOutcome {
	var out []SlotOutcome
	for _, s := range r.Slots {
		if s.Status == SlotUnfilled || s.Status == SlotExpired {
			out = append(out, s)
		}
	}
	return out
}

var errItemTaken = errors.New("item already scheduled")

type Scheduler struct {
	db    *gorm.DB
	items ItemStore
	slots SlotStore
	cfg   policy.Config
	log   *logger.Logger
}

func NewScheduler(db *gorm.DB, items ItemStore, slots SlotStore, cfg policy.Config, baseLog *logger.Logger) *Scheduler {
	return &Scheduler{
		db:    db,
		items: items,
		slots: slots,
		cfg:   cfg,
		log:   baseLog.With("component", "Scheduler"),
	}
}

func (s *Scheduler) Rules() Rules {
	return Rules{
		PlatformDailyCap: s.cfg.Schedule.PlatformDailyCap,
		AuthorDailyCap:   s.cfg.Schedule.AuthorDailyCap,
		CategoryTarget:   s.cfg.Schedule.CategoryTarget,
		CooldownDays:     func(p string) int { return s.cfg.Platform(p).CooldownDays },
	}
}

// Today is the schedule day containing now in the configured timezone.
func (s *Scheduler) Today(now time.Time) string {
	return types.DayOf(now, s.cfg.Location())
}

// LoadState rebuilds the diversity state for day from persisted slots.
func (s *Scheduler) LoadState(ctx context.Context, day string) (*DiversityState, error) {
	return s.loadState(dbctx.Context{Ctx: ctx}, day)
}

func (s *Scheduler) loadState(dbc dbctx.Context, day string) (*DiversityState, error) {
	horizon := s.cfg.MaxCooldownDays()
	from, err := AddDays(day, -horizon)
	if err != nil {
		return nil, err
	}
	to, err := AddDays(day, horizon)
	if err != nil {
		return nil, err
	}
	nearest, err := s.slots.NearestDayByPlatform(dbc, day, from, to)
	if err != nil {
		return nil, fmt.Errorf("load platform history: %w", err)
	}
	today, err := s.slots.ListByDay(dbc, day)
	if err != nil {
		return nil, fmt.Errorf("load slots for %s: %w", day, err)
	}
	return StateFromSlots(day, today, nearest), nil
}

// Pool returns the ready candidates, highest confidence first.
func (s *Scheduler) Pool(ctx context.Context) ([]Candidate, error) {
	items, err := s.items.QueryByState(dbctx.Context{Ctx: ctx}, types.StateApproved, content.ItemFilter{
		ReadyOnly: true,
		OrderBy:   content.OrderConfidenceDesc,
		Limit:     s.cfg.Schedule.PoolLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("load candidate pool: %w", err)
	}
	out := make([]Candidate, 0, len(items))
	for _, it := range items {
		out = append(out, FromItem(it))
	}
	return out, nil
}

// FillDay fills every open slot of day whose validity window has not
// passed at now. Existing slots are kept; each fill reserves the slot and
// assigns the item in one transaction, serialized per day.
func (s *Scheduler) FillDay(ctx context.Context, day string, now time.Time) (FillResult, error) {
	res := FillResult{Day: day}
	loc := s.cfg.Location()
	start, err := time.ParseInLocation(types.DayLayout, day, loc)
	if err != nil {
		return res, fmt.Errorf("parse schedule day %q: %w", day, err)
	}
	offsets, err := s.cfg.SlotOffsets()
	if err != nil {
		return res, err
	}
	state, err := s.LoadState(ctx, day)
	if err != nil {
		return res, err
	}
	pool, err := s.Pool(ctx)
	if err != nil {
		return res, err
	}
	res.PoolSize = len(pool)
	rules := s.Rules()

	for idx, off := range offsets {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		slotTime := start.Add(off)
		out := SlotOutcome{Index: idx, Time: slotTime.UTC(), Status: SlotOpen}

		if !state.HasSlot(idx) && s.cfg.Schedule.SlotValidity > 0 && now.After(slotTime.Add(s.cfg.Schedule.SlotValidity)) {
			out.Status = SlotExpired
			out.Reason = "slot validity window has passed"
			res.Expired++
			res.Slots = append(res.Slots, out)
			continue
		}

		for out.Status == SlotOpen {
			var picked *Candidate
			err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				dbc := dbctx.Context{Ctx: ctx, Tx: tx}
				if err := lockDay(tx, day); err != nil {
					return fmt.Errorf("lock schedule day %s: %w", day, err)
				}
				fresh, err := s.slots.ListByDay(dbc, day)
				if err != nil {
					return fmt.Errorf("reload slots for %s: %w", day, err)
				}
				state.ReplaceToday(fresh)
				if existing := slotAt(fresh, idx); existing != nil {
					fillFromSlot(&out, existing)
					out.Status = SlotExisting
					return nil
				}
				cand, dec := SelectCandidate(pool, state, rules)
				if cand == nil {
					out.Status = SlotUnfilled
					out.Reason = dec.Reason
					return nil
				}
				slot := &types.ScheduleSlot{
					ID:             uuid.New(),
					Day:            day,
					SlotIndex:      idx,
					SlotTime:       slotTime.UTC(),
					ItemID:         cand.ID,
					Platform:       cand.Platform,
					Author:         cand.Author,
					Category:       cand.Category,
					DiversityScore: dec.Score,
				}
				reserved, err := s.slots.Reserve(dbc, slot)
				if err != nil {
					return fmt.Errorf("reserve slot %s#%d: %w", day, idx, err)
				}
				if !reserved {
					taken, err := s.slots.GetByDayIndex(dbc, day, idx)
					if err != nil {
						return fmt.Errorf("load slot %s#%d: %w", day, idx, err)
					}
					if taken != nil {
						fillFromSlot(&out, taken)
						out.Status = SlotExisting
						return nil
					}
					picked = cand
					return errItemTaken
				}
				assigned, err := s.items.AssignSlot(dbc, cand.ID, slot.ID)
				if err != nil {
					return fmt.Errorf("assign item %s to slot %s#%d: %w", cand.ID, day, idx, err)
				}
				if !assigned {
					picked = cand
					return errItemTaken
				}
				state.Append(*cand, idx)
				fillFromSlot(&out, slot)
				out.Status = SlotFilled
				picked = cand
				return nil
			})
			if errors.Is(err, errItemTaken) {
				// Another run scheduled or moved the item; drop it and retry the slot.
				s.log.Debug("Candidate lost to concurrent run", "day", day, "slot", idx, "item_id", picked.ID)
				pool = without(pool, picked.ID)
				continue
			}
			if err != nil {
				return res, err
			}
			if out.Status == SlotFilled {
				pool = without(pool, picked.ID)
			}
		}

		switch out.Status {
		case SlotFilled:
			res.Filled++
		case SlotUnfilled:
			res.Unfilled++
			s.log.Debug("Slot left unfilled", "day", day, "slot", idx, "reason", out.Reason)
		}
		res.Slots = append(res.Slots, out)
	}

	res.DistinctCategories = state.DistinctCategories()
	res.DiversityScore = state.CurrentScore(rules.CategoryTarget)
	s.log.Info("Schedule day filled",
		"day", day,
		"filled", res.Filled,
		"unfilled", res.Unfilled,
		"expired", res.Expired,
		"distinct_categories", res.DistinctCategories,
	)
	return res, nil
}

func slotAt(slots []*types.ScheduleSlot, idx int) *types.ScheduleSlot {
	for _, sl := range slots {
		if sl.SlotIndex == idx {
			return sl
		}
	}
	return nil
}

func fillFromSlot(out *SlotOutcome, sl *types.ScheduleSlot) {
	id := sl.ItemID
	out.ItemID = &id
	out.Platform = sl.Platform
	out.Author = sl.Author
	out.Category = sl.Category
	out.DiversityScore = sl.DiversityScore
	if !sl.SlotTime.IsZero() {
		out.Time = sl.SlotTime.UTC()
	}
}

func without(pool []Candidate, id uuid.UUID) []Candidate {
	out := pool[:0]
	for _, c := range pool {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}

// lockDay serializes fills for one day across invocations. SQLite already
// allows a single writer.
func lockDay(tx *gorm.DB, day string) error {
	if tx.Dialector == nil || tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "schedule:"+day).Error
}
