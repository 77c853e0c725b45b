package approval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/curator-backend/internal/data/repos/content"
	types "github.com/yungbote/curator-backend/internal/domain"
	"github.com/yungbote/curator-backend/internal/pkg/dbctx"
)

type PlatformTopUp struct {
	Platform string `json:"platform"`
	Ready    int    `json:"ready"`
	Floor    int    `json:"floor"`
	Approved int    `json:"approved"`
}

type BalanceResult struct {
	Platforms   []PlatformTopUp `json:"platforms"`
	Approved    int             `json:"approved"`
	Lost        int             `json:"lost"`
	ApprovedIDs []uuid.UUID     `json:"approved_ids,omitempty"`
}

// Rebalance tops up platforms whose approved-unpublished supply is below
// their floor, approving each one's highest-confidence pending items that
// clear the absolute confidence floor, at most perPlatformBudget per
// platform. Runs after the tiers so it only fills gaps they left.
func (e *Engine) Rebalance(ctx context.Context, perPlatformBudget int, now time.Time) (BalanceResult, error) {
	var res BalanceResult
	if perPlatformBudget <= 0 {
		perPlatformBudget = e.cfg.Balance.PerPlatformBudget
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	dbc := dbctx.Context{Ctx: ctx}

	ready, err := e.store.CountReadyByPlatform(dbc)
	if err != nil {
		return res, fmt.Errorf("count ready by platform: %w", err)
	}
	known, err := e.store.ListPlatforms(dbc, []types.ApprovalState{types.StatePendingApproval, types.StateApproved})
	if err != nil {
		return res, fmt.Errorf("list platforms: %w", err)
	}

	var under []PlatformTopUp
	for _, p := range known {
		floor := e.cfg.Platform(p).BalanceFloor
		if ready[p] < floor {
			under = append(under, PlatformTopUp{Platform: p, Ready: ready[p], Floor: floor})
		}
	}
	sort.Slice(under, func(i, j int) bool {
		if under[i].Ready != under[j].Ready {
			return under[i].Ready < under[j].Ready
		}
		return under[i].Platform < under[j].Platform
	})

	minC := e.cfg.Approval.ConfidenceFloor
	for i := range under {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		top := &under[i]
		pool, err := e.store.QueryByState(dbc, types.StatePendingApproval, content.ItemFilter{
			Platform:      top.Platform,
			MinConfidence: &minC,
			OrderBy:       content.OrderConfidenceDesc,
			Limit:         perPlatformBudget*2 + 8,
		})
		if err != nil {
			return res, fmt.Errorf("query pending for %s: %w", top.Platform, err)
		}
		for _, item := range pool {
			if top.Approved >= perPlatformBudget {
				break
			}
			if item.Confidence < minC {
				continue
			}
			won, err := e.approve(dbc, item, BalanceTier, now)
			if err != nil {
				return res, err
			}
			if !won {
				res.Lost++
				continue
			}
			top.Approved++
			res.Approved++
			res.ApprovedIDs = append(res.ApprovedIDs, item.ID)
		}
		e.log.Debug("Platform topped up", "platform", top.Platform, "ready", top.Ready, "floor", top.Floor, "approved", top.Approved)
	}
	res.Platforms = under
	return res, nil
}
