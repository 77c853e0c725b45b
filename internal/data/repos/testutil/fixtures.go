package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/curator-backend/internal/domain"
)

// ItemOpt tweaks a seeded item before insert.
type ItemOpt func(*types.ContentItem)

func WithState(s types.ApprovalState) ItemOpt {
	return func(it *types.ContentItem) { it.State = s }
}

func WithConfidence(c float64) ItemOpt {
	return func(it *types.ContentItem) { it.Confidence = c }
}

func WithCreatedAt(t time.Time) ItemOpt {
	return func(it *types.ContentItem) { it.CreatedAt = t.UTC() }
}

func WithAuthor(a string) ItemOpt {
	return func(it *types.ContentItem) { it.Author = a }
}

func WithCategory(c string) ItemOpt {
	return func(it *types.ContentItem) { it.Category = c }
}

func WithText(text string) ItemOpt {
	return func(it *types.ContentItem) { it.Text = text }
}

func WithFingerprint(fp string) ItemOpt {
	return func(it *types.ContentItem) { it.Fingerprint = fp }
}

func WithInputError(msg string, at time.Time) ItemOpt {
	return func(it *types.ContentItem) {
		it.InputError = msg
		at = at.UTC()
		it.InputErrorAt = &at
	}
}

// SeedItem writes an item directly (bypassing InsertCandidate) so tests can
// place it in any state.
func SeedItem(tb testing.TB, ctx context.Context, tx *gorm.DB, platform string, opts ...ItemOpt) *types.ContentItem {
	tb.Helper()
	it := &types.ContentItem{
		ID:          uuid.New(),
		Platform:    platform,
		Author:      "author-" + uuid.NewString()[:8],
		Category:    "image",
		Text:        "seed " + uuid.NewString(),
		Fingerprint: uuid.NewString(),
		Confidence:  0.5,
		State:       types.StatePendingApproval,
		CreatedAt:   time.Now().UTC().Truncate(time.Second).Add(-time.Hour),
	}
	for _, opt := range opts {
		opt(it)
	}
	if err := tx.WithContext(ctx).Create(it).Error; err != nil {
		tb.Fatalf("seed item: %v", err)
	}
	return it
}

// SeedSlot records item in day's slot index and links the item to it.
func SeedSlot(tb testing.TB, ctx context.Context, tx *gorm.DB, day string, index int, item *types.ContentItem) *types.ScheduleSlot {
	tb.Helper()
	when, err := time.Parse("2006-01-02", day)
	if err != nil {
		tb.Fatalf("seed slot day: %v", err)
	}
	s := &types.ScheduleSlot{
		ID:        uuid.New(),
		Day:       day,
		SlotIndex: index,
		SlotTime:  when.Add(time.Duration(9+index) * time.Hour),
		ItemID:    item.ID,
		Platform:  item.Platform,
		Author:    item.Author,
		Category:  item.Category,
		Status:    types.SlotFilled,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed slot: %v", err)
	}
	if err := tx.WithContext(ctx).Model(item).Update("slot_id", s.ID).Error; err != nil {
		tb.Fatalf("link seeded slot: %v", err)
	}
	return s
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
