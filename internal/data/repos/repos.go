package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/curator-backend/internal/data/repos/content"
	"github.com/yungbote/curator-backend/internal/data/repos/jobs"
	"github.com/yungbote/curator-backend/internal/platform/logger"
)

type ContentItemRepo = content.ContentItemRepo
type ScheduleSlotRepo = content.ScheduleSlotRepo
type ItemFilter = content.ItemFilter

const (
	OrderConfidenceDesc = content.OrderConfidenceDesc
	OrderCreatedAsc     = content.OrderCreatedAsc
)

type JobRunRepo = jobs.JobRunRepo

func NewContentItemRepo(db *gorm.DB, baseLog *logger.Logger) ContentItemRepo {
	return content.NewContentItemRepo(db, baseLog)
}
func NewScheduleSlotRepo(db *gorm.DB, baseLog *logger.Logger) ScheduleSlotRepo {
	return content.NewScheduleSlotRepo(db, baseLog)
}
func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}
