package sagex3

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/mamadbah2/moulinette/internal/domain/models"
	apperrors "github.com/mamadbah2/moulinette/pkg/errors"
)

// Count sheet column titles, as written by WriteTemplate.
const (
	ColumnArticle     = "Code Article"
	ColumnInventory   = "Numéro Inventaire"
	ColumnLot         = "Numéro Lot"
	ColumnLotType     = "Type Lot"
	ColumnLotDate     = "Date Lot"
	ColumnTheoretical = "Quantité Théorique"
	ColumnDeclared    = "Quantité Réelle"
)

var columnAliases = map[string][]string{
	ColumnArticle:   {"code article", "article"},
	ColumnInventory: {"numero inventaire", "inventaire"},
	ColumnLot:       {"numero lot", "lot"},
	ColumnDeclared:  {"quantite reelle", "quantite reelle saisie"},
}

type countColumns struct {
	article, inventory, lot, declared int
}

// ReadCounts parses a completed count sheet. The file as a whole must be a
// delimited text table carrying the required columns, otherwise it is
// unreadable. Individual rows that cannot be used are skipped and reported.
// When a key appears twice the last row wins.
func ReadCounts(r io.Reader) ([]models.DeclaredCount, []models.RowIssue, error) {
	data, err := io.ReadAll(SkipBOM(r))
	if err != nil {
		return nil, nil, apperrors.NewUnreadableInputError("count sheet", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil, apperrors.NewUnreadableInputError("count sheet", errors.New("file is empty"))
	}
	if !utf8.Valid(data) {
		return nil, nil, apperrors.NewUnreadableInputError("count sheet", errors.New("not a UTF-8 delimited text file"))
	}

	delimiter := detectDelimiter(data)
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, apperrors.NewUnreadableInputError("count sheet", fmt.Errorf("read header: %w", err))
	}
	cols, err := resolveColumns(header)
	if err != nil {
		return nil, nil, apperrors.NewUnreadableInputError("count sheet", err)
	}

	var (
		counts []models.DeclaredCount
		issues []models.RowIssue
		index  = make(map[models.Key]int)
	)

	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				issues = append(issues, models.RowIssue{Stage: models.StageCounts, Line: parseErr.Line, Reason: parseErr.Err.Error()})
				continue
			}
			return nil, nil, apperrors.NewUnreadableInputError("count sheet", err)
		}
		lineNo, _ := reader.FieldPos(0)

		if isBlankRecord(rec) {
			continue
		}

		article := cell(rec, cols.article)
		if article == "" {
			issues = append(issues, models.RowIssue{Stage: models.StageCounts, Line: lineNo, Reason: "empty article code"})
			continue
		}

		declared := decimal.Zero
		if raw := cell(rec, cols.declared); raw != "" {
			declared, err = ParseQuantity(raw)
			if err != nil {
				issues = append(issues, models.RowIssue{
					Stage:  models.StageCounts,
					Line:   lineNo,
					Key:    models.NewKey(article, cell(rec, cols.inventory), cell(rec, cols.lot)).String(),
					Reason: fmt.Sprintf("non-numeric declared quantity %q", raw),
				})
				continue
			}
			if declared.IsNegative() {
				issues = append(issues, models.RowIssue{
					Stage:  models.StageCounts,
					Line:   lineNo,
					Key:    models.NewKey(article, cell(rec, cols.inventory), cell(rec, cols.lot)).String(),
					Reason: fmt.Sprintf("negative declared quantity %s", raw),
				})
				continue
			}
		}

		count := models.DeclaredCount{
			Article:    article,
			Inventory:  cell(rec, cols.inventory),
			Lot:        cell(rec, cols.lot),
			Declared:   declared,
			SourceLine: lineNo,
		}
		key := count.Key()
		if pos, dup := index[key]; dup {
			issues = append(issues, models.RowIssue{
				Stage:  models.StageCounts,
				Line:   lineNo,
				Key:    key.String(),
				Reason: fmt.Sprintf("overrides line %d", counts[pos].SourceLine),
			})
			counts[pos] = count
			continue
		}
		index[key] = len(counts)
		counts = append(counts, count)
	}

	return counts, issues, nil
}

func resolveColumns(header []string) (countColumns, error) {
	positions := make(map[string]int, len(header))
	for i, title := range header {
		folded := foldHeader(title)
		if _, exists := positions[folded]; !exists {
			positions[folded] = i
		}
	}

	find := func(column string) (int, error) {
		for _, alias := range columnAliases[column] {
			if i, ok := positions[alias]; ok {
				return i, nil
			}
		}
		return 0, fmt.Errorf("missing required column %q", column)
	}

	var cols countColumns
	var err error
	if cols.article, err = find(ColumnArticle); err != nil {
		return cols, err
	}
	if cols.inventory, err = find(ColumnInventory); err != nil {
		return cols, err
	}
	if cols.lot, err = find(ColumnLot); err != nil {
		return cols, err
	}
	if cols.declared, err = find(ColumnDeclared); err != nil {
		return cols, err
	}
	return cols, nil
}

// foldHeader lower-cases a title and strips accents so "Numéro Lot" and
// "NUMERO LOT" resolve to the same column.
func foldHeader(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

func detectDelimiter(data []byte) rune {
	first := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		first = data[:i]
	}
	semicolons := bytes.Count(first, []byte{';'})
	commas := bytes.Count(first, []byte{','})
	if semicolons > 0 && semicolons >= commas {
		return ';'
	}
	if bytes.Count(first, []byte{'\t'}) > commas {
		return '\t'
	}
	return ','
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func isBlankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
