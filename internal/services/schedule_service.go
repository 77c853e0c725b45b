package services

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/curator-backend/internal/data/repos"
	types "github.com/yungbote/curator-backend/internal/domain"
	"github.com/yungbote/curator-backend/internal/modules/curation/schedule"
	"github.com/yungbote/curator-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/curator-backend/internal/pkg/errors"
	"github.com/yungbote/curator-backend/internal/platform/ctxutil"
	"github.com/yungbote/curator-backend/internal/platform/logger"
)

// PublicationInput identifies the slot either by id or by (day, index).
type PublicationInput struct {
	ItemID      string     `json:"item_id"`
	SlotID      string     `json:"slot_id"`
	Day         string     `json:"day"`
	SlotIndex   *int       `json:"slot_index"`
	PublishedAt *time.Time `json:"published_at"`
}

type DayView struct {
	Day                string                `json:"day"`
	Slots              []*types.ScheduleSlot `json:"slots"`
	DistinctCategories int                   `json:"distinct_categories"`
	DiversityScore     float64               `json:"diversity_score"`
	NearestSelected    map[string]string     `json:"nearest_selected"`
}

type ScheduleService interface {
	RecordPublication(dbc dbctx.Context, in PublicationInput) (*types.ScheduleSlot, error)
	Day(dbc dbctx.Context, day string) (*DayView, error)
}

type scheduleService struct {
	db        *gorm.DB
	log       *logger.Logger
	items     repos.ContentItemRepo
	slots     repos.ScheduleSlotRepo
	scheduler *schedule.Scheduler
}

func NewScheduleService(db *gorm.DB, baseLog *logger.Logger, items repos.ContentItemRepo, slots repos.ScheduleSlotRepo, scheduler *schedule.Scheduler) ScheduleService {
	return &scheduleService{
		db:        db,
		log:       baseLog.With("service", "ScheduleService"),
		items:     items,
		slots:     slots,
		scheduler: scheduler,
	}
}

// RecordPublication is called by the external executor once an item went
// out. Slot and item are marked in one transaction; replaying the same
// publication is a no-op.
func (s *scheduleService) RecordPublication(dbc dbctx.Context, in PublicationInput) (*types.ScheduleSlot, error) {
	itemID, err := parseUUID(in.ItemID)
	if err != nil {
		return nil, err
	}
	at := time.Now().UTC()
	if in.PublishedAt != nil && !in.PublishedAt.IsZero() {
		at = in.PublishedAt.UTC()
	}

	var out *types.ScheduleSlot
	err = s.db.WithContext(ctxutil.Default(dbc.Ctx)).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: tx}
		slot, err := s.findSlot(inner, in)
		if err != nil {
			return err
		}
		if slot.ItemID != itemID {
			return fmt.Errorf("slot %s#%d holds item %s, not %s: %w", slot.Day, slot.SlotIndex, slot.ItemID, itemID, pkgerrors.ErrStateConflict)
		}
		if slot.Status == types.SlotPublished {
			out = slot
			return nil
		}
		if _, err := s.slots.MarkPublished(inner, slot.ID, at); err != nil {
			return fmt.Errorf("mark slot published: %w", err)
		}
		ok, err := s.items.MarkPublished(inner, itemID, slot.ID, at)
		if err != nil {
			return fmt.Errorf("mark item published: %w", err)
		}
		if !ok {
			return fmt.Errorf("item %s is not an approved unpublished item: %w", itemID, pkgerrors.ErrStateConflict)
		}
		fresh, err := s.slots.GetByID(inner, slot.ID)
		if err != nil {
			return err
		}
		out = fresh
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Publication recorded", "item_id", itemID, "day", out.Day, "slot", out.SlotIndex, "platform", out.Platform)
	return out, nil
}

func (s *scheduleService) findSlot(dbc dbctx.Context, in PublicationInput) (*types.ScheduleSlot, error) {
	var (
		slot *types.ScheduleSlot
		err  error
	)
	switch {
	case in.SlotID != "":
		id, perr := parseUUID(in.SlotID)
		if perr != nil {
			return nil, perr
		}
		slot, err = s.slots.GetByID(dbc, id)
	case in.Day != "" && in.SlotIndex != nil:
		if _, perr := time.Parse(types.DayLayout, in.Day); perr != nil {
			return nil, invalid("day must be YYYY-MM-DD")
		}
		slot, err = s.slots.GetByDayIndex(dbc, in.Day, *in.SlotIndex)
	default:
		return nil, invalid("slot_id or day and slot_index are required")
	}
	if err != nil {
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if slot == nil {
		return nil, fmt.Errorf("slot: %w", pkgerrors.ErrNotFound)
	}
	return slot, nil
}

// Day returns the persisted slots of day with the diversity state rebuilt
// from history.
func (s *scheduleService) Day(dbc dbctx.Context, day string) (*DayView, error) {
	if _, err := time.Parse(types.DayLayout, day); err != nil {
		return nil, invalid("day must be YYYY-MM-DD")
	}
	slots, err := s.slots.ListByDay(dbc, day)
	if err != nil {
		return nil, err
	}
	state, err := s.scheduler.LoadState(dbc.Ctx, day)
	if err != nil {
		return nil, err
	}
	if slots == nil {
		slots = []*types.ScheduleSlot{}
	}
	return &DayView{
		Day:                day,
		Slots:              slots,
		DistinctCategories: state.DistinctCategories(),
		DiversityScore:     state.CurrentScore(s.scheduler.Rules().CategoryTarget),
		NearestSelected:    state.NearestSelected,
	}, nil
}

// Error classifiers for transports.
func IsNotFound(err error) bool      { return errors.Is(err, pkgerrors.ErrNotFound) }
func IsInvalid(err error) bool       { return errors.Is(err, pkgerrors.ErrInvalidArgument) }
func IsStateConflict(err error) bool { return errors.Is(err, pkgerrors.ErrStateConflict) }
