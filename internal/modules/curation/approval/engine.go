package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/curator-backend/internal/data/repos/content"
	types "github.com/yungbote/curator-backend/internal/domain"
	"github.com/yungbote/curator-backend/internal/modules/curation/policy"
	"github.com/yungbote/curator-backend/internal/pkg/dbctx"
	"github.com/yungbote/curator-backend/internal/platform/logger"
)

const BalanceTier = "balance"

type Store interface {
	QueryByState(dbc dbctx.Context, state types.ApprovalState, filter content.ItemFilter) ([]*types.ContentItem, error)
	ConditionalUpdateState(dbc dbctx.Context, id uuid.UUID, expected, next types.ApprovalState, patch types.ItemPatch) (bool, error)
	CountReadyByPlatform(dbc dbctx.Context) (map[string]int, error)
	ListPlatforms(dbc dbctx.Context, states []types.ApprovalState) ([]string, error)
}

type Options struct {
	// Budget overrides the configured per-run budget when > 0.
	Budget        int
	ForceApproval bool
	Now           time.Time
}

type TierResult struct {
	Tier        string      `json:"tier"`
	Cap         int         `json:"cap"`
	Forced      bool        `json:"forced,omitempty"`
	Considered  int         `json:"considered"`
	Approved    int         `json:"approved"`
	Lost        int         `json:"lost"`
	Capped      bool        `json:"capped,omitempty"`
	ApprovedIDs []uuid.UUID `json:"approved_ids,omitempty"`
}

type Engine struct {
	store Store
	cfg   policy.Config
	log   *logger.Logger
}

func NewEngine(store Store, cfg policy.Config, baseLog *logger.Logger) *Engine {
	return &Engine{
		store: store,
		cfg:   cfg,
		log:   baseLog.With("component", "ApprovalEngine"),
	}
}

// RunApprovalPass approves pending items admitted by tierName, highest
// confidence first and oldest first on ties, until the tier cap is reached.
// Each approval is its own guarded update, so a rerun over the same pool
// approves nothing new.
func (e *Engine) RunApprovalPass(ctx context.Context, tierName string, opts Options) (TierResult, error) {
	tier, ok := e.cfg.Tier(tierName)
	if !ok {
		return TierResult{}, fmt.Errorf("unknown approval tier %q", tierName)
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	budget := opts.Budget
	if budget <= 0 {
		budget = e.cfg.Approval.Budget
	}
	res := TierResult{Tier: tier.Name, Cap: Cap(tier, budget), Forced: opts.ForceApproval}
	if !opts.ForceApproval && res.Cap == 0 {
		return res, nil
	}

	filter := content.ItemFilter{
		MinConfidence: &tier.MinConfidence,
		OrderBy:       content.OrderConfidenceDesc,
	}
	if tier.MaxConfidence > 0 {
		maxC := tier.MaxConfidence
		filter.MaxConfidence = &maxC
	}
	if tier.MinAge > 0 {
		filter.CreatedBefore = now.Add(-tier.MinAge)
	}
	if !opts.ForceApproval {
		// Headroom for rows another invocation approves first.
		filter.Limit = res.Cap*2 + 16
	}
	dbc := dbctx.Context{Ctx: ctx}
	pool, err := e.store.QueryByState(dbc, types.StatePendingApproval, filter)
	if err != nil {
		return res, fmt.Errorf("query tier %s pool: %w", tier.Name, err)
	}

	for _, item := range pool {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !opts.ForceApproval && res.Approved >= res.Cap {
			res.Capped = true
			break
		}
		if !Admits(tier, item, now) {
			continue
		}
		res.Considered++
		won, err := e.approve(dbc, item, tier.Name, now)
		if err != nil {
			return res, err
		}
		if !won {
			res.Lost++
			continue
		}
		res.Approved++
		res.ApprovedIDs = append(res.ApprovedIDs, item.ID)
	}
	e.log.Debug("Approval tier finished",
		"tier", tier.Name,
		"approved", res.Approved,
		"cap", res.Cap,
		"forced", opts.ForceApproval,
		"lost", res.Lost,
	)
	return res, nil
}

// RunAllTiers runs every configured tier in order.
func (e *Engine) RunAllTiers(ctx context.Context, opts Options) ([]TierResult, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}
	out := make([]TierResult, 0, len(e.cfg.Approval.Tiers))
	for _, t := range e.cfg.ResolvedTiers() {
		res, err := e.RunApprovalPass(ctx, t.Name, opts)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (e *Engine) approve(dbc dbctx.Context, item *types.ContentItem, tier string, now time.Time) (bool, error) {
	at := now
	patch := types.ItemPatch{ApprovedTier: &tier, ApprovedAt: &at}
	ok, err := e.store.ConditionalUpdateState(dbc, item.ID, types.StatePendingApproval, types.StateApproved, patch)
	if err != nil {
		return false, fmt.Errorf("approve item %s: %w", item.ID, err)
	}
	if ok {
		item.State = types.StateApproved
		item.ApprovedTier = tier
		item.ApprovedAt = &at
	}
	return ok, nil
}
