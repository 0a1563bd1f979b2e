package reconciliation

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/moulinette/internal/domain/models"
	apperrors "github.com/mamadbah2/moulinette/pkg/errors"
)

type lotGroup struct {
	key     models.GroupKey
	members []int
}

// Distribute spreads each (article, inventory) group's aggregate variance over
// its lots in strategy order. Results keep the input order. Groups whose
// variance could not be fully absorbed are reported as anomalies.
func Distribute(records []models.DiscrepancyRecord, strategy models.Strategy) ([]models.DistributedAdjustment, []models.AllocationAnomaly, error) {
	less, err := lotOrder(strategy)
	if err != nil {
		return nil, nil, err
	}

	out := make([]models.DistributedAdjustment, len(records))
	var anomalies []models.AllocationAnomaly

	for _, group := range groupRecords(records) {
		variance := decimal.Zero
		for _, i := range group.members {
			variance = variance.Add(records[i].Declared).Sub(records[i].Record.Theoretical)
		}

		ordered := slices.Clone(group.members)
		slices.SortStableFunc(ordered, func(a, b int) int {
			return less(records[a].Record, records[b].Record)
		})

		remaining := variance
		for _, i := range ordered {
			var adj decimal.Decimal
			adj, remaining = allocate(records[i].Record.Theoretical, remaining)
			out[i] = models.DistributedAdjustment{
				Record:     records[i].Record,
				Declared:   records[i].Declared,
				Adjustment: adj,
				Corrected:  records[i].Record.Theoretical.Add(adj),
			}
		}

		if !remaining.IsZero() {
			anomalies = append(anomalies, models.AllocationAnomaly{
				Article:   group.key.Article,
				Inventory: group.key.Inventory,
				Variance:  variance,
				Allocated: variance.Sub(remaining),
				Residual:  remaining,
			})
		}
	}

	return out, anomalies, nil
}

// allocate applies one greedy step to a lot holding theoretical units and
// returns the lot's adjustment and the variance still to place.
func allocate(theoretical, remaining decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	capacity := decimal.Max(theoretical, decimal.Zero)

	switch remaining.Sign() {
	case 0:
		return decimal.Zero, remaining
	case 1:
		adj := decimal.Min(remaining, capacity)
		return adj, remaining.Sub(adj)
	default:
		if remaining.Abs().GreaterThanOrEqual(capacity) {
			return capacity.Neg(), remaining.Add(capacity)
		}
		return remaining, decimal.Zero
	}
}

func groupRecords(records []models.DiscrepancyRecord) []*lotGroup {
	var groups []*lotGroup
	index := make(map[models.GroupKey]*lotGroup)
	for i, rec := range records {
		key := rec.Record.Key().Group()
		g, ok := index[key]
		if !ok {
			g = &lotGroup{key: key}
			index[key] = g
			groups = append(groups, g)
		}
		g.members = append(g.members, i)
	}
	return groups
}

// lotOrder returns the comparison for a strategy.
// FIFO: oldest lot date first, undated lots last, ties by lot ascending.
// LIFO: newest lot date first, undated lots first, ties by lot descending.
func lotOrder(strategy models.Strategy) (func(a, b models.OriginalRecord) int, error) {
	switch strategy {
	case models.StrategyFIFO:
		return func(a, b models.OriginalRecord) int {
			if c := compareDates(a, b, false); c != 0 {
				return c
			}
			return cmp.Compare(a.Lot, b.Lot)
		}, nil
	case models.StrategyLIFO:
		return func(a, b models.OriginalRecord) int {
			if c := compareDates(a, b, true); c != 0 {
				return c
			}
			return cmp.Compare(b.Lot, a.Lot)
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidStrategy, strategy)
	}
}

func compareDates(a, b models.OriginalRecord, descending bool) int {
	switch {
	case a.LotDate == nil && b.LotDate == nil:
		return 0
	case a.LotDate == nil:
		if descending {
			return -1
		}
		return 1
	case b.LotDate == nil:
		if descending {
			return 1
		}
		return -1
	}
	c := a.LotDate.Compare(*b.LotDate)
	if descending {
		return -c
	}
	return c
}
