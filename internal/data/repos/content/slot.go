package content

import (
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/curator-backend/internal/domain"
	"github.com/yungbote/curator-backend/internal/pkg/dbctx"
	"github.com/yungbote/curator-backend/internal/platform/logger"
)

type ScheduleSlotRepo interface {
	// Reserve inserts slot unless (day, slot_index) or item_id is already taken.
	Reserve(dbc dbctx.Context, slot *types.ScheduleSlot) (bool, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ScheduleSlot, error)
	GetByDayIndex(dbc dbctx.Context, day string, index int) (*types.ScheduleSlot, error)
	ListByDay(dbc dbctx.Context, day string) ([]*types.ScheduleSlot, error)
	ListRange(dbc dbctx.Context, fromDay, toDay string) ([]*types.ScheduleSlot, error)
	NearestDayByPlatform(dbc dbctx.Context, day, fromDay, toDay string) (map[string]string, error)
	MarkPublished(dbc dbctx.Context, id uuid.UUID, at time.Time) (bool, error)
}

type scheduleSlotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewScheduleSlotRepo(db *gorm.DB, baseLog *logger.Logger) ScheduleSlotRepo {
	return &scheduleSlotRepo{
		db:  db,
		log: baseLog.With("repo", "ScheduleSlotRepo"),
	}
}

func (r *scheduleSlotRepo) Reserve(dbc dbctx.Context, slot *types.ScheduleSlot) (bool, error) {
	if slot == nil {
		return false, nil
	}
	res := dbc.Conn(r.db).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(slot)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *scheduleSlotRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ScheduleSlot, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var slot types.ScheduleSlot
	if err := dbc.Conn(r.db).Where("id = ?", id).Limit(1).Find(&slot).Error; err != nil {
		return nil, err
	}
	if slot.ID == uuid.Nil {
		return nil, nil
	}
	return &slot, nil
}

func (r *scheduleSlotRepo) GetByDayIndex(dbc dbctx.Context, day string, index int) (*types.ScheduleSlot, error) {
	var slot types.ScheduleSlot
	err := dbc.Conn(r.db).
		Where("day = ? AND slot_index = ?", day, index).
		Limit(1).
		Find(&slot).Error
	if err != nil {
		return nil, err
	}
	if slot.ID == uuid.Nil {
		return nil, nil
	}
	return &slot, nil
}

func (r *scheduleSlotRepo) ListByDay(dbc dbctx.Context, day string) ([]*types.ScheduleSlot, error) {
	var out []*types.ScheduleSlot
	if err := dbc.Conn(r.db).Where("day = ?", day).Order("slot_index ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListRange returns slots with fromDay <= day < toDay, oldest first.
func (r *scheduleSlotRepo) ListRange(dbc dbctx.Context, fromDay, toDay string) ([]*types.ScheduleSlot, error) {
	var out []*types.ScheduleSlot
	err := dbc.Conn(r.db).
		Where("day >= ? AND day < ?", fromDay, toDay).
		Order("day ASC").Order("slot_index ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

type platformDay struct {
	Platform string
	LastDay  string
}

// NearestDayByPlatform returns, per platform, the slot day in
// [fromDay, toDay] closest to day, day itself excluded. Days on both sides
// count because any day may be filled out of order. Equal distances resolve
// to the earlier day.
func (r *scheduleSlotRepo) NearestDayByPlatform(dbc dbctx.Context, day, fromDay, toDay string) (map[string]string, error) {
	var before, after []platformDay
	err := dbc.Conn(r.db).
		Model(&types.ScheduleSlot{}).
		Select("platform, MAX(day) AS last_day").
		Where("day >= ? AND day < ?", fromDay, day).
		Group("platform").
		Scan(&before).Error
	if err != nil {
		return nil, err
	}
	err = dbc.Conn(r.db).
		Model(&types.ScheduleSlot{}).
		Select("platform, MIN(day) AS last_day").
		Where("day > ? AND day <= ?", day, toDay).
		Group("platform").
		Scan(&after).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(before)+len(after))
	for _, row := range before {
		out[row.Platform] = row.LastDay
	}
	for _, row := range after {
		prev, ok := out[row.Platform]
		if !ok || dayDistance(day, row.LastDay) < dayDistance(prev, day) {
			out[row.Platform] = row.LastDay
		}
	}
	return out, nil
}

func dayDistance(a, b string) int {
	ta, errA := time.Parse(types.DayLayout, a)
	tb, errB := time.Parse(types.DayLayout, b)
	if errA != nil || errB != nil {
		return math.MaxInt
	}
	return int(math.Abs(tb.Sub(ta).Hours()) / 24)
}

func (r *scheduleSlotRepo) MarkPublished(dbc dbctx.Context, id uuid.UUID, at time.Time) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	res := dbc.Conn(r.db).
		Model(&types.ScheduleSlot{}).
		Where("id = ? AND status = ?", id, types.SlotFilled).
		Updates(map[string]interface{}{
			"status":       types.SlotPublished,
			"published_at": at.UTC(),
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
