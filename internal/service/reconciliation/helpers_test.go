package reconciliation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/moulinette/internal/domain/models"
)

const testInventory = "INV001"

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func rawLine(seq int, article, lot string, theoretical int64) string {
	return fmt.Sprintf("S;SES001;%s;%d;SITE01;%d;0;1;%s;LOC01;AM;UN;0;ZONE1;%s", testInventory, seq, theoretical, article, lot)
}

func record(seq int, article, lot string, theoretical int64, lotDate *time.Time) models.OriginalRecord {
	return models.OriginalRecord{
		Article:     article,
		Inventory:   testInventory,
		Lot:         lot,
		LotClass:    models.LotUnknown,
		LotDate:     lotDate,
		Theoretical: decimal.NewFromInt(theoretical),
		SourceLine:  seq,
		Raw:         rawLine(seq, article, lot, theoretical),
	}
}

func count(article, lot string, qty int64) models.DeclaredCount {
	return models.DeclaredCount{
		Article:   article,
		Inventory: testInventory,
		Lot:       lot,
		Declared:  decimal.NewFromInt(qty),
	}
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func byLot(adjustments []models.DistributedAdjustment) map[string]models.DistributedAdjustment {
	out := make(map[string]models.DistributedAdjustment, len(adjustments))
	for _, a := range adjustments {
		out[a.Record.Lot] = a
	}
	return out
}
