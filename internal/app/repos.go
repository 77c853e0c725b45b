package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/curator-backend/internal/data/repos"
	"github.com/yungbote/curator-backend/internal/platform/logger"
)

type Repos struct {
	Items repos.ContentItemRepo
	Slots repos.ScheduleSlotRepo
	Jobs  repos.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Items: repos.NewContentItemRepo(db, log),
		Slots: repos.NewScheduleSlotRepo(db, log),
		Jobs:  repos.NewJobRunRepo(db, log),
	}
}
