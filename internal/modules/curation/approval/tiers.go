package approval

import (
	"math"
	"time"

	types "github.com/yungbote/curator-backend/internal/domain"
	"github.com/yungbote/curator-backend/internal/modules/curation/policy"
)

// Admits is the tier's score and age predicate. ForceApproval never skips it.
func Admits(t policy.Tier, item *types.ContentItem, now time.Time) bool {
	if item == nil || item.State != types.StatePendingApproval {
		return false
	}
	if item.Confidence < t.MinConfidence {
		return false
	}
	if t.MaxConfidence > 0 && item.Confidence >= t.MaxConfidence {
		return false
	}
	return item.Age(now) >= t.MinAge
}

// Cap is floor(budget * share).
func Cap(t policy.Tier, budget int) int {
	if budget <= 0 || t.Share <= 0 {
		return 0
	}
	return int(math.Floor(float64(budget)*t.Share + 1e-9))
}
