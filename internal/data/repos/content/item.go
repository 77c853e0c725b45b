package content

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/curator-backend/internal/domain"
	"github.com/yungbote/curator-backend/internal/pkg/dbctx"
	"github.com/yungbote/curator-backend/internal/platform/logger"
)

// ItemFilter narrows QueryByState. Zero values mean "no constraint".
type ItemFilter struct {
	Platform      string
	Platforms     []string
	MinConfidence *float64
	MaxConfidence *float64 // exclusive
	CreatedBefore time.Time
	CreatedSince  time.Time
	ReadyOnly     bool // approved, unscheduled, unpublished
	MissingHash   bool
	// SkipInputErrors drops rows with a recorded input error, unless the
	// error is older than InputErrorRetryBefore.
	SkipInputErrors       bool
	InputErrorRetryBefore time.Time
	OrderBy       ItemOrder
	Limit         int
}

type ItemOrder string

const (
	OrderConfidenceDesc ItemOrder = "confidence_desc"
	OrderCreatedAsc     ItemOrder = "created_asc"
)

type ContentItemRepo interface {
	InsertCandidate(dbc dbctx.Context, item *types.ContentItem) (*types.ContentItem, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ContentItem, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.ContentItem, error)
	QueryByState(dbc dbctx.Context, state types.ApprovalState, filter ItemFilter) ([]*types.ContentItem, error)
	ConditionalUpdateState(dbc dbctx.Context, id uuid.UUID, expected, next types.ApprovalState, patch types.ItemPatch) (bool, error)
	QueryRecentByPlatform(dbc dbctx.Context, platform string, since time.Time) ([]*types.ContentItem, error)
	FindByFingerprint(dbc dbctx.Context, fingerprint string) ([]*types.ContentItem, error)
	FindByCanonicalURL(dbc dbctx.Context, canonicalURL string, since time.Time) ([]*types.ContentItem, error)
	FindBySourceID(dbc dbctx.Context, platform, sourceID string, since time.Time) ([]*types.ContentItem, error)
	CountReadyByPlatform(dbc dbctx.Context) (map[string]int, error)
	CountReadyByCategory(dbc dbctx.Context) (map[string]int, error)
	CountByState(dbc dbctx.Context) (map[types.ApprovalState]int, error)
	ListPlatforms(dbc dbctx.Context, states []types.ApprovalState) ([]string, error)
	AssignSlot(dbc dbctx.Context, id uuid.UUID, slotID uuid.UUID) (bool, error)
	MarkPublished(dbc dbctx.Context, id uuid.UUID, slotID uuid.UUID, at time.Time) (bool, error)
}

type contentItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContentItemRepo(db *gorm.DB, baseLog *logger.Logger) ContentItemRepo {
	return &contentItemRepo{
		db:  db,
		log: baseLog.With("repo", "ContentItemRepo"),
	}
}

func (r *contentItemRepo) InsertCandidate(dbc dbctx.Context, item *types.ContentItem) (*types.ContentItem, error) {
	if item == nil {
		return nil, nil
	}
	item.State = types.StateDiscovered
	item.Platform = strings.ToLower(strings.TrimSpace(item.Platform))
	item.Category = strings.ToLower(strings.TrimSpace(item.Category))
	if !item.CreatedAt.IsZero() {
		item.CreatedAt = item.CreatedAt.UTC()
	}
	if err := dbc.Conn(r.db).Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

func (r *contentItemRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ContentItem, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var item types.ContentItem
	if err := dbc.Conn(r.db).Where("id = ?", id).Limit(1).Find(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == uuid.Nil {
		return nil, nil
	}
	return &item, nil
}

func (r *contentItemRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.ContentItem, error) {
	var out []*types.ContentItem
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.Conn(r.db).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *contentItemRepo) QueryByState(dbc dbctx.Context, state types.ApprovalState, filter ItemFilter) ([]*types.ContentItem, error) {
	q := dbc.Conn(r.db).Model(&types.ContentItem{}).Where("state = ?", state)
	if filter.Platform != "" {
		q = q.Where("platform = ?", filter.Platform)
	}
	if len(filter.Platforms) > 0 {
		q = q.Where("platform IN ?", filter.Platforms)
	}
	if filter.MinConfidence != nil {
		q = q.Where("confidence >= ?", *filter.MinConfidence)
	}
	if filter.MaxConfidence != nil {
		q = q.Where("confidence < ?", *filter.MaxConfidence)
	}
	if !filter.CreatedBefore.IsZero() {
		q = q.Where("created_at <= ?", filter.CreatedBefore.UTC())
	}
	if !filter.CreatedSince.IsZero() {
		q = q.Where("created_at >= ?", filter.CreatedSince.UTC())
	}
	if filter.ReadyOnly {
		q = q.Where("slot_id IS NULL AND published_at IS NULL")
	}
	if filter.MissingHash {
		q = q.Where("fingerprint = ''")
	}
	if filter.SkipInputErrors {
		if filter.InputErrorRetryBefore.IsZero() {
			q = q.Where("input_error_at IS NULL")
		} else {
			q = q.Where("(input_error_at IS NULL OR input_error_at < ?)", filter.InputErrorRetryBefore.UTC())
		}
	}
	switch filter.OrderBy {
	case OrderConfidenceDesc:
		q = q.Order("confidence DESC").Order("created_at ASC").Order("id ASC")
	default:
		q = q.Order("created_at ASC").Order("id ASC")
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var out []*types.ContentItem
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ConditionalUpdateState moves id from expected to next and applies patch in
// one guarded UPDATE. false with a nil error means another writer got there
// first (or the row never was in expected); callers treat that as a no-op.
func (r *contentItemRepo) ConditionalUpdateState(dbc dbctx.Context, id uuid.UUID, expected, next types.ApprovalState, patch types.ItemPatch) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	updates := patch.Columns()
	updates["state"] = next
	updates["updated_at"] = time.Now().UTC()
	res := dbc.Conn(r.db).
		Model(&types.ContentItem{}).
		Where("id = ? AND state = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		r.log.Debug("Conditional update matched no rows", "item_id", id, "expected", expected, "next", next)
	}
	return res.RowsAffected > 0, nil
}

// QueryRecentByPlatform returns non-rejected items of platform created since,
// oldest first.
func (r *contentItemRepo) QueryRecentByPlatform(dbc dbctx.Context, platform string, since time.Time) ([]*types.ContentItem, error) {
	var out []*types.ContentItem
	if platform == "" {
		return out, nil
	}
	err := dbc.Conn(r.db).
		Where("platform = ? AND created_at >= ? AND state <> ?", platform, since.UTC(), types.StateRejected).
		Order("created_at ASC").Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *contentItemRepo) FindByFingerprint(dbc dbctx.Context, fingerprint string) ([]*types.ContentItem, error) {
	var out []*types.ContentItem
	if fingerprint == "" {
		return out, nil
	}
	err := dbc.Conn(r.db).
		Where("fingerprint = ? AND state <> ?", fingerprint, types.StateRejected).
		Order("created_at ASC").Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *contentItemRepo) FindByCanonicalURL(dbc dbctx.Context, canonicalURL string, since time.Time) ([]*types.ContentItem, error) {
	var out []*types.ContentItem
	if canonicalURL == "" {
		return out, nil
	}
	err := dbc.Conn(r.db).
		Where("canonical_url = ? AND created_at >= ? AND state <> ?", canonicalURL, since.UTC(), types.StateRejected).
		Order("created_at ASC").Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *contentItemRepo) FindBySourceID(dbc dbctx.Context, platform, sourceID string, since time.Time) ([]*types.ContentItem, error) {
	var out []*types.ContentItem
	if platform == "" || sourceID == "" {
		return out, nil
	}
	err := dbc.Conn(r.db).
		Where("platform = ? AND source_id = ? AND created_at >= ? AND state <> ?", platform, sourceID, since.UTC(), types.StateRejected).
		Order("created_at ASC").Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

type groupCount struct {
	Bucket string
	Total  int
}

func (r *contentItemRepo) countReadyBy(dbc dbctx.Context, column string) (map[string]int, error) {
	var rows []groupCount
	err := dbc.Conn(r.db).
		Model(&types.ContentItem{}).
		Select(column+" AS bucket, COUNT(*) AS total").
		Where("state = ? AND slot_id IS NULL AND published_at IS NULL", types.StateApproved).
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Bucket] = row.Total
	}
	return out, nil
}

func (r *contentItemRepo) CountReadyByPlatform(dbc dbctx.Context) (map[string]int, error) {
	return r.countReadyBy(dbc, "platform")
}

func (r *contentItemRepo) CountReadyByCategory(dbc dbctx.Context) (map[string]int, error) {
	return r.countReadyBy(dbc, "category")
}

func (r *contentItemRepo) CountByState(dbc dbctx.Context) (map[types.ApprovalState]int, error) {
	var rows []groupCount
	err := dbc.Conn(r.db).
		Model(&types.ContentItem{}).
		Select("state AS bucket, COUNT(*) AS total").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[types.ApprovalState]int, len(rows))
	for _, row := range rows {
		out[types.ApprovalState(row.Bucket)] = row.Total
	}
	return out, nil
}

// ListPlatforms returns the distinct platforms with at least one item in
// any of states, sorted.
func (r *contentItemRepo) ListPlatforms(dbc dbctx.Context, states []types.ApprovalState) ([]string, error) {
	var out []string
	if len(states) == 0 {
		return out, nil
	}
	err := dbc.Conn(r.db).
		Model(&types.ContentItem{}).
		Distinct("platform").
		Where("state IN ?", states).
		Order("platform ASC").
		Pluck("platform", &out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AssignSlot claims a ready item for a slot; false means it was already
// scheduled, published or no longer approved.
func (r *contentItemRepo) AssignSlot(dbc dbctx.Context, id uuid.UUID, slotID uuid.UUID) (bool, error) {
	if id == uuid.Nil || slotID == uuid.Nil {
		return false, nil
	}
	res := dbc.Conn(r.db).
		Model(&types.ContentItem{}).
		Where("id = ? AND state = ? AND slot_id IS NULL AND published_at IS NULL", id, types.StateApproved).
		Updates(map[string]interface{}{
			"slot_id":    slotID,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkPublished records the publication timestamp once; replays are no-ops.
func (r *contentItemRepo) MarkPublished(dbc dbctx.Context, id uuid.UUID, slotID uuid.UUID, at time.Time) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	res := dbc.Conn(r.db).
		Model(&types.ContentItem{}).
		Where("id = ? AND state = ? AND published_at IS NULL", id, types.StateApproved).
		Where("(slot_id IS NULL OR slot_id = ?)", slotID).
		Updates(map[string]interface{}{
			"slot_id":      slotID,
			"published_at": at.UTC(),
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
