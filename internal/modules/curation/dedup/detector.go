package dedup

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/curator-backend/internal/domain"
	"github.com/yungbote/curator-backend/internal/modules/curation/filter"
	"github.com/yungbote/curator-backend/internal/modules/curation/fingerprint"
	"github.com/yungbote/curator-backend/internal/modules/curation/policy"
	"github.com/yungbote/curator-backend/internal/normalization"
	"github.com/yungbote/curator-backend/internal/pkg/dbctx"
	"github.com/yungbote/curator-backend/internal/platform/logger"
)

type Reason string

const (
	ReasonExactFingerprint Reason = "exact_fingerprint"
	ReasonRepostWindow     Reason = "repost_window"
	ReasonNearText         Reason = "near_text"
	ReasonCanonicalURL     Reason = "canonical_url"
	ReasonMediaSimilarity  Reason = "media_similarity"
	ReasonCorroborating    Reason = "corroborating_signals"
	ReasonUnique           Reason = "unique"
	ReasonUniqueDegraded   Reason = "unique_degraded"
)

type Signal struct {
	Kind  string  `json:"kind"`
	Score float64 `json:"score"`
}

// Verdict is the outcome of one duplicate check. Degraded verdicts are
// always unique and must be audited.
type Verdict struct {
	Duplicate bool      `json:"duplicate"`
	MatchedID uuid.UUID `json:"matched_item_id,omitempty"`
	Strength  float64   `json:"match_strength,omitempty"`
	Reason    Reason    `json:"reason"`
	Degraded  bool      `json:"degraded,omitempty"`
	Signals   []Signal  `json:"signals,omitempty"`
}

// NextState is the lifecycle state the verdict moves a discovered item to.
func (v Verdict) NextState() types.ApprovalState {
	if v.Duplicate {
		return types.StateDuplicate
	}
	return types.StatePendingApproval
}

func (v Verdict) Patch() types.ItemPatch {
	reason := string(v.Reason)
	audit := v.Degraded
	p := types.ItemPatch{VerdictReason: &reason, NeedsAudit: &audit}
	if v.Duplicate {
		id := v.MatchedID
		strength := v.Strength
		p.DuplicateOf = &id
		p.MatchStrength = &strength
	}
	return p
}

// Store is the slice of the item store the detector reads.
type Store interface {
	FindByFingerprint(dbc dbctx.Context, fingerprint string) ([]*types.ContentItem, error)
	FindBySourceID(dbc dbctx.Context, platform, sourceID string, since time.Time) ([]*types.ContentItem, error)
	FindByCanonicalURL(dbc dbctx.Context, canonicalURL string, since time.Time) ([]*types.ContentItem, error)
	QueryRecentByPlatform(dbc dbctx.Context, platform string, since time.Time) ([]*types.ContentItem, error)
}

type Detector struct {
	store Store
	cfg   policy.Config
	log   *logger.Logger
}

func NewDetector(store Store, cfg policy.Config, baseLog *logger.Logger) *Detector {
	return &Detector{
		store: store,
		cfg:   cfg,
		log:   baseLog.With("component", "DuplicateDetector"),
	}
}

// CheckDuplicate decides whether candidate repeats earlier content. Checks
// run in order and stop at the first confident match: exact fingerprint,
// same-platform repost of the source id, near text, canonical URL, media
// hash, then corroborating weak signals. window bounds the fuzzy history;
// zero uses the platform default. Only store failures are returned as
// errors; similarity failures fail open as ReasonUniqueDegraded.
func (d *Detector) CheckDuplicate(ctx context.Context, candidate *types.ContentItem, window time.Duration) (Verdict, error) {
	if candidate == nil {
		return Verdict{}, &filter.InputError{Field: "item", Msg: "is nil"}
	}
	pp := d.cfg.Platform(candidate.Platform)
	if window <= 0 {
		window = pp.HistoryWindow
	}
	dbc := dbctx.Context{Ctx: ctx}
	degraded := false

	if candidate.Fingerprint != "" {
		rows, err := d.store.FindByFingerprint(dbc, candidate.Fingerprint)
		if err != nil {
			return Verdict{}, fmt.Errorf("find by fingerprint: %w", err)
		}
		if orig := oldestPreceding(candidate, rows); orig != nil {
			return duplicateOf(orig, 1, ReasonExactFingerprint, nil), nil
		}
	} else {
		degraded = true
		d.log.Warn("Candidate has no fingerprint; exact check skipped", "item_id", candidate.ID, "platform", candidate.Platform)
	}

	if candidate.SourceID != "" {
		rows, err := d.store.FindBySourceID(dbc, candidate.Platform, candidate.SourceID, candidate.CreatedAt.Add(-pp.RepostWindow))
		if err != nil {
			return Verdict{}, fmt.Errorf("find by source id: %w", err)
		}
		if orig := oldestPreceding(candidate, rows); orig != nil {
			return duplicateOf(orig, 1, ReasonRepostWindow, nil), nil
		}
	}

	since := candidate.CreatedAt.Add(-window)
	recent, err := d.store.QueryRecentByPlatform(dbc, candidate.Platform, since)
	if err != nil {
		return Verdict{}, fmt.Errorf("query recent by platform: %w", err)
	}
	var cross []*types.ContentItem
	if canon := CanonicalURL(candidate.CanonicalURL); canon != "" {
		cross, err = d.store.FindByCanonicalURL(dbc, canon, since)
		if err != nil {
			return Verdict{}, fmt.Errorf("find by canonical url: %w", err)
		}
	}
	history := mergeHistory(candidate, recent, cross)

	verdict, scoreDegraded, err := d.scoreHistory(candidate, history, pp)
	if err != nil {
		d.log.Warn("Similarity scoring failed; failing open", "item_id", candidate.ID, "platform", candidate.Platform, "error", err)
		return Verdict{Reason: ReasonUniqueDegraded, Degraded: true}, nil
	}
	if verdict.Duplicate {
		return verdict, nil
	}
	if degraded || scoreDegraded {
		return Verdict{Reason: ReasonUniqueDegraded, Degraded: true}, nil
	}
	return Verdict{Reason: ReasonUnique}, nil
}

// Result pairs a batch item with its verdict.
type Result struct {
	Item    *types.ContentItem
	Verdict Verdict
}

// CheckBatch scores items concurrently. Each decision only reads history,
// so ordering between items does not change any verdict. The first store
// error cancels the rest and is returned.
func (d *Detector) CheckBatch(ctx context.Context, items []*types.ContentItem, window time.Duration) ([]Result, error) {
	results := make([]Result, len(items))
	g, gctx := errgroup.WithContext(ctx)
	limit := d.cfg.Dedup.Parallelism
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, it := range items {
		g.Go(func() error {
			v, err := d.CheckDuplicate(gctx, it, window)
			if err != nil {
				return err
			}
			results[i] = Result{Item: it, Verdict: v}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

type scored struct {
	item                    *types.ContentItem
	text, url, media        float64
	hasText, hasURL, hasMed bool
}

func (d *Detector) scoreHistory(c *types.ContentItem, history []*types.ContentItem, pp policy.PlatformPolicy) (v Verdict, degraded bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("similarity panic: %v", r)
		}
	}()
	th := d.cfg.Dedup.Thresholds
	maxRunes := d.cfg.Dedup.MaxTextRunes

	var textM *ratioMatcher
	if ct := tokens(normalization.Runes(c.Text, maxRunes)); len(ct) > 0 {
		textM = newRatioMatcher(ct)
	}
	candURL := CanonicalURL(c.CanonicalURL)
	var urlM *ratioMatcher
	if candURL != "" {
		urlM = newRatioMatcher(tokens([]rune(candURL)))
	}
	var candHash uint64
	hasHash := false
	if c.PerceptualHash != "" {
		h, perr := fingerprint.ParseHash(c.PerceptualHash)
		if perr != nil {
			degraded = true
			d.log.Warn("Malformed perceptual hash; media signal skipped", "item_id", c.ID, "error", perr)
		} else {
			candHash, hasHash = h, true
		}
	}

	scores := make([]scored, 0, len(history))
	for _, h := range history {
		s := scored{item: h}
		if textM != nil {
			if ht := tokens(normalization.Runes(h.Text, maxRunes)); len(ht) > 0 {
				s.text, s.hasText = textM.Ratio(ht, th.WeakText), true
			}
		}
		if urlM != nil {
			if hu := CanonicalURL(h.CanonicalURL); hu != "" {
				if hu == candURL {
					s.url = 1
				} else {
					s.url = urlM.Ratio(tokens([]rune(hu)), th.WeakURL)
				}
				s.hasURL = true
			}
		}
		if hasHash && h.PerceptualHash != "" {
			if hh, perr := fingerprint.ParseHash(h.PerceptualHash); perr == nil {
				s.media, s.hasMed = fingerprint.Similarity(candHash, hh), true
			}
		}
		scores = append(scores, s)
	}

	if best, strength := pick(scores, func(s scored) (float64, bool) {
		return s.text, s.hasText && s.text >= pp.NearTextThreshold
	}); best != nil {
		return duplicateOf(best, strength, ReasonNearText, nil), degraded, nil
	}
	if best, strength := pick(scores, func(s scored) (float64, bool) {
		return s.url, s.hasURL && s.url >= th.CanonicalURL
	}); best != nil {
		return duplicateOf(best, strength, ReasonCanonicalURL, nil), degraded, nil
	}
	if best, strength := pick(scores, func(s scored) (float64, bool) {
		return s.media, s.hasMed && s.media >= pp.MediaThreshold
	}); best != nil {
		return duplicateOf(best, strength, ReasonMediaSimilarity, nil), degraded, nil
	}

	var (
		bestWeak     *types.ContentItem
		bestStrength float64
		bestSignals  []Signal
	)
	for _, s := range scores {
		fired := weakSignals(s, th)
		if len(fired) < th.MinWeakSignals {
			continue
		}
		sum := 0.0
		for _, f := range fired {
			sum += f.Score
		}
		strength := sum / float64(len(fired))
		if bestWeak == nil || better(strength, s.item, bestStrength, bestWeak) {
			bestWeak, bestStrength, bestSignals = s.item, strength, fired
		}
	}
	if bestWeak != nil {
		return duplicateOf(bestWeak, bestStrength, ReasonCorroborating, bestSignals), degraded, nil
	}
	return Verdict{Reason: ReasonUnique}, degraded, nil
}

func weakSignals(s scored, th policy.Thresholds) []Signal {
	var out []Signal
	if s.hasText && s.text >= th.WeakText {
		out = append(out, Signal{Kind: "text", Score: s.text})
	}
	if s.hasURL && s.url >= th.WeakURL {
		out = append(out, Signal{Kind: "url", Score: s.url})
	}
	if s.hasMed && s.media >= th.WeakMedia {
		out = append(out, Signal{Kind: "media", Score: s.media})
	}
	return out
}

// pick returns the qualifying item with the highest score, oldest first on ties.
func pick(scores []scored, score func(scored) (float64, bool)) (*types.ContentItem, float64) {
	var best *types.ContentItem
	bestScore := 0.0
	for _, s := range scores {
		v, ok := score(s)
		if !ok {
			continue
		}
		if best == nil || better(v, s.item, bestScore, best) {
			best, bestScore = s.item, v
		}
	}
	return best, bestScore
}

func better(score float64, item *types.ContentItem, bestScore float64, best *types.ContentItem) bool {
	if score != bestScore {
		return score > bestScore
	}
	return item.Precedes(best)
}

// duplicateOf points at the original. A match that is itself a recorded
// duplicate resolves to the item it duplicates.
func duplicateOf(orig *types.ContentItem, strength float64, reason Reason, signals []Signal) Verdict {
	id := orig.ID
	if orig.State == types.StateDuplicate && orig.DuplicateOf != nil && *orig.DuplicateOf != uuid.Nil {
		id = *orig.DuplicateOf
	}
	return Verdict{
		Duplicate: true,
		MatchedID: id,
		Strength:  strength,
		Reason:    reason,
		Signals:   signals,
	}
}

// eligible reports whether h may serve as the original for c.
func eligible(c, h *types.ContentItem) bool {
	return h != nil && h.ID != c.ID && h.State != types.StateRejected && h.Precedes(c)
}

func oldestPreceding(c *types.ContentItem, rows []*types.ContentItem) *types.ContentItem {
	var best *types.ContentItem
	for _, h := range rows {
		if !eligible(c, h) {
			continue
		}
		if best == nil || h.Precedes(best) {
			best = h
		}
	}
	return best
}

func mergeHistory(c *types.ContentItem, sets ...[]*types.ContentItem) []*types.ContentItem {
	seen := map[uuid.UUID]bool{}
	var out []*types.ContentItem
	for _, set := range sets {
		for _, h := range set {
			if !eligible(c, h) || seen[h.ID] {
				continue
			}
			seen[h.ID] = true
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Precedes(out[j]) })
	return out
}
