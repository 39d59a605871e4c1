// Package rollup aggregates position values bottom-up over the ownership hierarchy.
package rollup

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/rollup/internal/common"
	"github.com/bobmcallan/rollup/internal/interfaces"
	"github.com/bobmcallan/rollup/internal/models"
	"github.com/bobmcallan/rollup/internal/services/classify"
)

// Compile-time interface check
var _ interfaces.RollupService = (*Service)(nil)

// Service implements RollupService. It is read-only: every call derives its
// result from stored snapshots and never writes.
type Service struct {
	storage interfaces.StorageManager
	cipher  interfaces.ValueCipher
	logger  *common.Logger
}

// NewService creates a new rollup service
func NewService(storage interfaces.StorageManager, cipher interfaces.ValueCipher, logger *common.Logger) *Service {
	return &Service{
		storage: storage,
		cipher:  cipher,
		logger:  logger,
	}
}

// valuedPosition is a position with its plaintext value, classification and
// matched risk statistic (nil when unmatched).
type valuedPosition struct {
	pos   *models.Position
	value decimal.Decimal
	class classify.Classification
	stat  *models.RiskStatRecord
}

// Aggregate computes the rollup of nodeID and its whole subtree on date.
// A date without positions yields a no-data node rather than an error; the
// nearest earlier snapshot is never substituted.
func (s *Service) Aggregate(ctx context.Context, h interfaces.Hierarchy, nodeID string, date time.Time) (*models.RollupResult, error) {
	root, ok := h.Node(nodeID)
	if !ok {
		return nil, &models.NotFoundError{Kind: "node", Key: nodeID}
	}
	date = models.DateOf(date)

	positions, err := s.storage.PositionStore().ListByAccounts(ctx, date, h.DescendantAccounts(nodeID))
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}

	stats, err := s.riskStats(ctx, positions, date)
	if err != nil {
		return nil, err
	}

	result := &models.RollupResult{}
	valued := s.value(positions, stats, result)

	accs := make(map[string]*nodeAcc)
	accFor := func(id string) *nodeAcc {
		a, ok := accs[id]
		if !ok {
			a = newNodeAcc()
			accs[id] = a
		}
		return a
	}

	// Each position is added to its account and every ancestor up to the
	// requested node; the child-sum check below then verifies the tree.
	for _, v := range valued {
		acct, err := h.Resolve(models.NodeTypeAccount, v.pos.AccountID)
		if err != nil {
			return nil, fmt.Errorf("%w: position %s references account %s outside the hierarchy", models.ErrRollupInvariant, v.pos.ID, v.pos.AccountID)
		}
		accFor(acct.ID).add(v)
		if acct.ID == nodeID {
			continue
		}
		for _, anc := range h.Ancestors(acct.ID) {
			accFor(anc.ID).add(v)
			if anc.ID == nodeID {
				break
			}
		}
		if root.Type == models.NodeTypeRoot {
			accFor(nodeID).add(v)
		}
	}

	node, err := s.build(ctx, h, root, date, accs)
	if err != nil {
		return nil, err
	}
	result.Node = node

	if node.NoData {
		result.Warnings = append(result.Warnings, models.Warning{
			Code:    models.WarnNoDataForDate,
			Message: fmt.Sprintf("no positions for %s on %s", root.DisplayName, models.FormatDate(date)),
		})
	}
	if len(result.Unmatched) > 0 {
		result.Warnings = append(result.Warnings, models.Warning{
			Code:    models.WarnUnmatchedSecurity,
			Message: fmt.Sprintf("%d position(s) have no risk statistics and are excluded from weighted metrics", len(result.Unmatched)),
		})
	}

	s.logger.Debug().
		Str("node", nodeID).
		Str("date", models.FormatDate(date)).
		Int("positions", len(valued)).
		Int("unmatched", len(result.Unmatched)).
		Int("excluded", len(result.Excluded)).
		Msg("Rollup computed")

	return result, nil
}

func (s *Service) riskStats(ctx context.Context, positions []*models.Position, date time.Time) (map[string]*models.RiskStatRecord, error) {
	seen := make(map[string]bool, len(positions))
	var keys []string
	for _, p := range positions {
		k := p.RiskKey()
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	stats, err := s.storage.RiskStatStore().Latest(ctx, keys, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load risk statistics: %w", err)
	}
	return stats, nil
}

// value decrypts and classifies each position. Failures are isolated to the
// position and recorded on result; they never abort the rollup.
func (s *Service) value(positions []*models.Position, stats map[string]*models.RiskStatRecord, result *models.RollupResult) []*valuedPosition {
	out := make([]*valuedPosition, 0, len(positions))
	for _, p := range positions {
		amount, err := s.cipher.Decrypt(p.ValueToken)
		if err != nil {
			s.logger.Warn().Str("position", p.ID).Str("account", p.AccountID).Err(err).Msg("Position value could not be decrypted")
			result.Excluded = append(result.Excluded, models.ExcludedPosition{
				PositionID: p.ID,
				AccountID:  p.AccountID,
				Reason:     "undecryptable value",
			})
			result.Warnings = append(result.Warnings, models.Warning{
				Code:    models.WarnUndecryptableValue,
				Message: fmt.Sprintf("position %s (account %s) excluded: value could not be decrypted", p.ID, p.AccountID),
			})
			continue
		}

		stat := stats[p.RiskKey()]
		var duration *float64
		if stat != nil {
			duration = stat.Duration
		}
		c := classify.Classify(p, duration)

		if stat == nil {
			result.Unmatched = append(result.Unmatched, models.UnmatchedSecurity{
				PositionID: p.ID,
				AccountID:  p.AccountID,
				Ticker:     p.RiskKey(),
				AssetClass: c.AssetClass,
			})
		}
		if c.UnknownLiquidity {
			result.Warnings = append(result.Warnings, models.Warning{
				Code:    models.WarnUnknownLiquidity,
				Message: fmt.Sprintf("position %s: liquidity %q not recognised, counted as illiquid", p.ID, p.Liquidity),
			})
		}
		if c.Unclassified {
			result.Warnings = append(result.Warnings, models.Warning{
				Code:    models.WarnUnclassifiedPath,
				Message: fmt.Sprintf("position %s: path %s/%s/%s counted under other", p.ID, p.AssetClass, p.SecondLevel, p.ThirdLevel),
			})
		}

		out = append(out, &valuedPosition{pos: p, value: amount, class: c, stat: stat})
	}
	return out
}

// build renders n and its descendants, checking that every parent total is
// exactly the sum of its children.
func (s *Service) build(ctx context.Context, h interfaces.Hierarchy, n *models.OwnershipNode, date time.Time, accs map[string]*nodeAcc) (*models.AggregatedNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	acc := accs[n.ID]
	if acc == nil {
		acc = newNodeAcc()
	}

	out := &models.AggregatedNode{
		NodeID:      n.ID,
		NodeType:    n.Type,
		Key:         n.Key,
		DisplayName: n.DisplayName,
		Date:        date,
	}
	acc.fill(out)

	if n.Type == models.NodeTypeAccount {
		return out, nil
	}

	childSum := decimal.Zero
	for _, c := range h.Children(n.ID) {
		child, err := s.build(ctx, h, c, date, accs)
		if err != nil {
			return nil, err
		}
		childSum = childSum.Add(child.TotalValue)
		out.Children = append(out.Children, child)
	}

	if !childSum.Equal(acc.total) {
		return nil, fmt.Errorf("%w: %s total %s, children sum %s", models.ErrRollupInvariant, n.ID, acc.total, childSum)
	}
	return out, nil
}

// TotalValue sums the decrypted values under nodeID on date without
// classifying or building the subtree. Undecryptable positions are skipped.
func (s *Service) TotalValue(ctx context.Context, h interfaces.Hierarchy, nodeID string, date time.Time) (decimal.Decimal, bool, error) {
	if _, ok := h.Node(nodeID); !ok {
		return decimal.Zero, true, &models.NotFoundError{Kind: "node", Key: nodeID}
	}

	positions, err := s.storage.PositionStore().ListByAccounts(ctx, models.DateOf(date), h.DescendantAccounts(nodeID))
	if err != nil {
		return decimal.Zero, true, fmt.Errorf("failed to load positions: %w", err)
	}

	total := decimal.Zero
	valued := 0
	for _, p := range positions {
		v, err := s.cipher.Decrypt(p.ValueToken)
		if err != nil {
			continue
		}
		total = total.Add(v)
		valued++
	}
	return total, valued == 0, nil
}
