package dedup

import (
	"github.com/pmezard/go-difflib/difflib"

	"github.com/yungbote/curator-backend/internal/modules/curation/fingerprint"
	"github.com/yungbote/curator-backend/internal/normalization"
)

func tokens(rs []rune) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}

// ratioMatcher compares one fixed sequence against many. The fixed side is
// indexed once; autojunk is off so common letters still count.
type ratioMatcher struct {
	m   *difflib.SequenceMatcher
	len int
}

func newRatioMatcher(fixed []string) *ratioMatcher {
	return &ratioMatcher{
		m:   difflib.NewMatcherWithJunk(nil, fixed, false, nil),
		len: len(fixed),
	}
}

// Ratio returns the difflib similarity ratio, or 0 when either side is
// empty. Results below floor may be reported as their cheap upper bound
// since callers only compare against floor and higher.
func (r *ratioMatcher) Ratio(other []string, floor float64) float64 {
	if r.len == 0 || len(other) == 0 {
		return 0
	}
	r.m.SetSeq1(other)
	if ub := r.m.RealQuickRatio(); ub < floor {
		return ub
	}
	if ub := r.m.QuickRatio(); ub < floor {
		return ub
	}
	return r.m.Ratio()
}

// TextRatio is the normalized-text similarity of a and b in [0,1].
func TextRatio(a, b string, maxRunes int) float64 {
	ta := tokens(normalization.Runes(a, maxRunes))
	tb := tokens(normalization.Runes(b, maxRunes))
	return newRatioMatcher(tb).Ratio(ta, 0)
}

// URLSimilarity compares canonical forms; identical canonical URLs are 1.0.
func URLSimilarity(a, b string) float64 {
	ca, cb := CanonicalURL(a), CanonicalURL(b)
	if ca == "" || cb == "" {
		return 0
	}
	if ca == cb {
		return 1
	}
	return newRatioMatcher(tokens([]rune(cb))).Ratio(tokens([]rune(ca)), 0)
}

// MediaSimilarity compares two hex perceptual hashes; ok is false when
// either is missing or malformed.
func MediaSimilarity(a, b string) (float64, bool) {
	if a == "" || b == "" {
		return 0, false
	}
	ha, err := fingerprint.ParseHash(a)
	if err != nil {
		return 0, false
	}
	hb, err := fingerprint.ParseHash(b)
	if err != nil {
		return 0, false
	}
	return fingerprint.Similarity(ha, hb), true
}
