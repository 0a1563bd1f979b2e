package sagex3

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/mamadbah2/moulinette/internal/domain/models"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var templateHeader = []string{
	ColumnArticle,
	ColumnInventory,
	ColumnLot,
	ColumnLotType,
	ColumnLotDate,
	ColumnTheoretical,
	ColumnDeclared,
}

// WriteTemplate writes the count sheet handed to operators: one row per
// original record with the declared column left empty. The BOM keeps
// spreadsheet software from mangling accented titles.
func WriteTemplate(w io.Writer, records []models.OriginalRecord) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("write template bom: %w", err)
	}

	cw := csv.NewWriter(w)
	cw.Comma = ';'

	if err := cw.Write(templateHeader); err != nil {
		return fmt.Errorf("write template header: %w", err)
	}

	for _, rec := range records {
		lotDate := ""
		if rec.LotDate != nil {
			lotDate = rec.LotDate.Format("2006-01-02")
		}
		row := []string{
			rec.Article,
			rec.Inventory,
			rec.Lot,
			string(rec.LotClass),
			lotDate,
			FormatQuantity(rec.Theoretical),
			"",
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write template row for %s: %w", rec.Key(), err)
		}
	}

	cw.Flush()
	return cw.Error()
}
