package db

import (
	"fmt"

	types "github.com/yungbote/curator-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// =========================
		// Content pool
		// =========================
		&types.ContentItem{},
		&types.ScheduleSlot{},

		// =========================
		// Jobs / worker
		// =========================
		&types.JobRun{},
		&types.JobRunEvent{},
	)
}

// EnsureCurationIndexes adds the postgres-only partial indexes the hot
// pass queries rely on. AutoMigrate already covers the portable ones.
func EnsureCurationIndexes(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	// Scheduler pool: approved, unscheduled, unpublished.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_content_item_ready
		ON content_item (platform, confidence DESC, created_at ASC)
		WHERE state = 'approved' AND slot_id IS NULL AND published_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_content_item_ready: %w", err)
	}
	// Approval tiers scan pending items by confidence then age.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_content_item_pending
		ON content_item (confidence DESC, created_at ASC)
		WHERE state = 'pending_approval';
	`).Error; err != nil {
		return fmt.Errorf("create idx_content_item_pending: %w", err)
	}
	// Repost policy lookups.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_content_item_platform_source
		ON content_item (platform, source_id, created_at DESC)
		WHERE source_id <> '';
	`).Error; err != nil {
		return fmt.Errorf("create idx_content_item_platform_source: %w", err)
	}
	return nil
}
