package content

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ApprovalState string

const (
	StateDiscovered      ApprovalState = "discovered"
	StatePendingApproval ApprovalState = "pending_approval"
	StateApproved        ApprovalState = "approved"
	StateRejected        ApprovalState = "rejected"
	StateDuplicate       ApprovalState = "duplicate"
)

// Terminal reports whether no automatic transition leaves s.
func (s ApprovalState) Terminal() bool {
	return s == StateRejected || s == StateDuplicate
}

// CanTransition encodes the monotonic lifecycle. Manual overrides bypass it.
func CanTransition(from, to ApprovalState) bool {
	switch from {
	case StateDiscovered:
		return to == StatePendingApproval || to == StateRejected || to == StateDuplicate
	case StatePendingApproval:
		return to == StateApproved || to == StateRejected
	default:
		return false
	}
}

const (
	CategoryVideo = "video"
	CategoryImage = "image"
	CategoryGIF   = "gif"
	CategoryText  = "text"
)

// Categories lists every content type the classifier can assign.
var Categories = []string{CategoryVideo, CategoryImage, CategoryGIF, CategoryText}

// ContentItem is a scraped candidate or accepted unit of content. CreatedAt is
// the creation time at the source; DiscoveredAt is when it entered the store.
type ContentItem struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Platform       string         `gorm:"column:platform;not null;index:idx_content_item_platform_created,priority:1" json:"platform"`
	Author         string         `gorm:"column:author;not null;index" json:"author"`
	Category       string         `gorm:"column:category;not null;index" json:"category"`
	SourceID       string         `gorm:"column:source_id;index" json:"source_id,omitempty"`
	Text           string         `gorm:"column:text" json:"text,omitempty"`
	MediaURL       string         `gorm:"column:media_url" json:"media_url,omitempty"`
	CanonicalURL   string         `gorm:"column:canonical_url;index" json:"canonical_url,omitempty"`
	Fingerprint    string         `gorm:"column:fingerprint;index" json:"fingerprint"`
	PerceptualHash string         `gorm:"column:perceptual_hash" json:"perceptual_hash,omitempty"`
	Confidence     float64        `gorm:"column:confidence;not null;default:0" json:"confidence"`
	State          ApprovalState  `gorm:"column:state;type:varchar(32);not null;index" json:"state"`
	DuplicateOf    *uuid.UUID     `gorm:"type:uuid;column:duplicate_of;index" json:"duplicate_of,omitempty"`
	MatchStrength  float64        `gorm:"column:match_strength;not null;default:0" json:"match_strength,omitempty"`
	VerdictReason  string         `gorm:"column:verdict_reason" json:"verdict_reason,omitempty"`
	NeedsAudit     bool           `gorm:"column:needs_audit;not null;default:false;index" json:"needs_audit,omitempty"`
	RejectReason   string         `gorm:"column:reject_reason" json:"reject_reason,omitempty"`
	InputError     string         `gorm:"column:input_error" json:"input_error,omitempty"`
	InputErrorAt   *time.Time     `gorm:"column:input_error_at;index" json:"input_error_at,omitempty"`
	ApprovedTier   string         `gorm:"column:approved_tier" json:"approved_tier,omitempty"`
	ApprovedAt     *time.Time     `gorm:"column:approved_at;index" json:"approved_at,omitempty"`
	SlotID         *uuid.UUID     `gorm:"type:uuid;column:slot_id;index" json:"slot_id,omitempty"`
	PublishedAt    *time.Time     `gorm:"column:published_at;index" json:"published_at,omitempty"`
	Metadata       datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt      time.Time      `gorm:"column:created_at;not null;index:idx_content_item_platform_created,priority:2" json:"created_at"`
	DiscoveredAt   time.Time      `gorm:"column:discovered_at;autoCreateTime" json:"discovered_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (ContentItem) TableName() string { return "content_item" }

func (c *ContentItem) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.State == "" {
		c.State = StateDiscovered
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return nil
}

// Age is measured from source creation.
func (c *ContentItem) Age(now time.Time) time.Duration {
	if c == nil || c.CreatedAt.IsZero() {
		return 0
	}
	return now.Sub(c.CreatedAt)
}

// Ready reports approved, unscheduled and unpublished.
func (c *ContentItem) Ready() bool {
	return c != nil && c.State == StateApproved && c.PublishedAt == nil && c.SlotID == nil
}

// Precedes orders items by creation then id; the earlier item is the canonical original.
func (c *ContentItem) Precedes(other *ContentItem) bool {
	if c.CreatedAt.Equal(other.CreatedAt) {
		return c.ID.String() < other.ID.String()
	}
	return c.CreatedAt.Before(other.CreatedAt)
}
