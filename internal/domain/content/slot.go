package content

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SlotStatus string

const (
	SlotFilled    SlotStatus = "filled"
	SlotPublished SlotStatus = "published"
)

// DayLayout is the calendar-day key used for slots and diversity accounting.
const DayLayout = "2006-01-02"

// ScheduleSlot is one filled daily publication opportunity. The unique index
// on (day, slot_index) keeps two invocations from filling the same slot;
// the unique item_id keeps one item from occupying two slots.
type ScheduleSlot struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Day            string     `gorm:"column:day;type:varchar(10);not null;uniqueIndex:idx_schedule_slot_day_index,priority:1;index" json:"day"`
	SlotIndex      int        `gorm:"column:slot_index;not null;uniqueIndex:idx_schedule_slot_day_index,priority:2" json:"slot_index"`
	SlotTime       time.Time  `gorm:"column:slot_time;not null" json:"slot_time"`
	ItemID         uuid.UUID  `gorm:"type:uuid;column:item_id;not null;uniqueIndex" json:"item_id"`
	Platform       string     `gorm:"column:platform;not null;index" json:"platform"`
	Author         string     `gorm:"column:author;not null" json:"author"`
	Category       string     `gorm:"column:category;not null" json:"category"`
	DiversityScore float64    `gorm:"column:diversity_score;not null;default:0" json:"diversity_score"`
	Status         SlotStatus `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	PublishedAt    *time.Time `gorm:"column:published_at" json:"published_at,omitempty"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (ScheduleSlot) TableName() string { return "schedule_slot" }

func (s *ScheduleSlot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = SlotFilled
	}
	return nil
}

// DayOf returns the calendar-day key for t in loc (UTC when loc is nil).
func DayOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DayLayout)
}
