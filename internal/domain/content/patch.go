package content

import (
	"time"

	"github.com/google/uuid"
)

// ItemPatch is the set of optional columns a guarded state transition may
// write alongside the new state. Nil fields are left untouched.
type ItemPatch struct {
	DuplicateOf   *uuid.UUID
	MatchStrength *float64
	VerdictReason *string
	NeedsAudit    *bool
	RejectReason  *string
	ApprovedTier  *string
	ApprovedAt    *time.Time
	SlotID        *uuid.UUID
	PublishedAt   *time.Time
	Fingerprint   *string
	// InputError and InputErrorAt record why a discovered item could not be
	// processed. ClearInputError resets both and wins over them.
	InputError      *string
	InputErrorAt    *time.Time
	ClearInputError bool
}

func (p ItemPatch) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if p.DuplicateOf != nil {
		cols["duplicate_of"] = *p.DuplicateOf
	}
	if p.MatchStrength != nil {
		cols["match_strength"] = *p.MatchStrength
	}
	if p.VerdictReason != nil {
		cols["verdict_reason"] = *p.VerdictReason
	}
	if p.NeedsAudit != nil {
		cols["needs_audit"] = *p.NeedsAudit
	}
	if p.RejectReason != nil {
		cols["reject_reason"] = *p.RejectReason
	}
	if p.ApprovedTier != nil {
		cols["approved_tier"] = *p.ApprovedTier
	}
	if p.ApprovedAt != nil {
		cols["approved_at"] = p.ApprovedAt.UTC()
	}
	if p.SlotID != nil {
		cols["slot_id"] = *p.SlotID
	}
	if p.PublishedAt != nil {
		cols["published_at"] = p.PublishedAt.UTC()
	}
	if p.Fingerprint != nil {
		cols["fingerprint"] = *p.Fingerprint
	}
	if p.InputError != nil {
		cols["input_error"] = *p.InputError
	}
	if p.InputErrorAt != nil {
		cols["input_error_at"] = p.InputErrorAt.UTC()
	}
	if p.ClearInputError {
		cols["input_error"] = ""
		cols["input_error_at"] = nil
	}
	return cols
}

func (p ItemPatch) Empty() bool { return len(p.Columns()) == 0 }
