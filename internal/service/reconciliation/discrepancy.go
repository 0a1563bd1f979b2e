package reconciliation

import (
	"github.com/shopspring/decimal"

	"github.com/mamadbah2/moulinette/internal/domain/models"
)

// indexCounts maps each declared count by key. Later counts override earlier ones.
func indexCounts(declared []models.DeclaredCount) map[models.Key]models.DeclaredCount {
	index := make(map[models.Key]models.DeclaredCount, len(declared))
	for _, c := range declared {
		index[c.Key()] = c
	}
	return index
}

// ComputeDiscrepancies emits one record per original record, in order,
// including rows without variance. A lot with no declared count is taken as
// counted at zero.
func ComputeDiscrepancies(originals []models.OriginalRecord, declared []models.DeclaredCount) []models.DiscrepancyRecord {
	counts := indexCounts(declared)

	out := make([]models.DiscrepancyRecord, 0, len(originals))
	for _, rec := range originals {
		qty := decimal.Zero
		if c, ok := counts[rec.Key()]; ok {
			qty = c.Declared
		}
		out = append(out, models.DiscrepancyRecord{
			Record:    rec,
			Declared:  qty,
			Variance:  qty.Sub(rec.Theoretical),
			Corrected: qty,
		})
	}
	return out
}
