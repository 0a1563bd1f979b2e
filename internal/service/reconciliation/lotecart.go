package reconciliation

import (
	"strings"

	"github.com/mamadbah2/moulinette/internal/domain/models"
	"github.com/mamadbah2/moulinette/internal/sagex3"
)

// lotecartSequenceStep is the gap between generated line numbers, matching
// the ERP's own numbering of inventory lines.
const lotecartSequenceStep = 1000

// DetectLotecart finds declared counts with a positive quantity whose key is
// absent from the theoretical snapshot. Each one becomes an adjustment on the
// reserved LOTECART lot, templated on a record of the same article (same
// inventory preferred). Candidates with no usable template are reported and skipped.
func DetectLotecart(originals []models.OriginalRecord, declared []models.DeclaredCount) ([]models.LotecartAdjustment, []models.RowIssue) {
	known := make(map[models.Key]struct{}, len(originals))
	byGroup := make(map[models.GroupKey]int)
	byArticle := make(map[string]int)
	for i, rec := range originals {
		key := rec.Key()
		known[key] = struct{}{}
		if _, ok := byGroup[key.Group()]; !ok {
			byGroup[key.Group()] = i
		}
		if _, ok := byArticle[key.Article]; !ok {
			byArticle[key.Article] = i
		}
	}

	var (
		adjustments []models.LotecartAdjustment
		issues      []models.RowIssue
	)

	for _, c := range indexedCounts(declared) {
		key := c.Key()
		if _, ok := known[key]; ok || c.Declared.IsZero() {
			continue
		}
		if c.Declared.IsNegative() {
			issues = append(issues, models.RowIssue{
				Stage:  models.StageLotecart,
				Line:   c.SourceLine,
				Key:    key.String(),
				Reason: "negative declared quantity",
			})
			continue
		}

		pos, ok := byGroup[key.Group()]
		if !ok {
			pos, ok = byArticle[key.Article]
		}
		if !ok {
			issues = append(issues, models.RowIssue{
				Stage:  models.StageLotecart,
				Line:   c.SourceLine,
				Key:    key.String(),
				Reason: "no theoretical record for article to use as template",
			})
			continue
		}

		ref := originals[pos]
		if _, err := sagex3.ParseLine(ref.Raw); err != nil {
			issues = append(issues, models.IssueFromError(models.StageLotecart, c.SourceLine, key.String(), err))
			continue
		}
		adjustments = append(adjustments, models.LotecartAdjustment{
			Article:       key.Article,
			Inventory:     key.Inventory,
			DeclaredLot:   key.Lot,
			Lot:           models.LotecartLot,
			Declared:      c.Declared,
			Adjustment:    c.Declared,
			Corrected:     c.Declared,
			IsNewLotecart: true,
			Reference:     &ref,
		})
	}

	return adjustments, issues
}

// indexedCounts deduplicates counts by key, keeping the first position and the last value.
func indexedCounts(declared []models.DeclaredCount) []models.DeclaredCount {
	pos := make(map[models.Key]int, len(declared))
	out := make([]models.DeclaredCount, 0, len(declared))
	for _, c := range declared {
		if i, ok := pos[c.Key()]; ok {
			out[i] = c
			continue
		}
		pos[c.Key()] = len(out)
		out = append(out, c)
	}
	return out
}

// GenerateLotecartLines builds one export line per adjustment, numbered after
// maxSequence. An adjustment whose reference is missing or is not a usable
// delimited line is skipped and reported; the rest of the batch is unaffected.
func GenerateLotecartLines(adjustments []models.LotecartAdjustment, maxSequence int) ([]string, []models.RowIssue) {
	var (
		lines  []string
		issues []models.RowIssue
	)
	next := maxSequence

	for _, adj := range adjustments {
		if !adj.IsNewLotecart {
			continue
		}
		key := models.NewKey(adj.Article, adj.Inventory, adj.DeclaredLot).String()

		if adj.Reference == nil || strings.TrimSpace(adj.Reference.Raw) == "" {
			issues = append(issues, models.RowIssue{Stage: models.StageLotecart, Key: key, Reason: "missing reference line"})
			continue
		}
		line, err := sagex3.ParseLine(adj.Reference.Raw)
		if err != nil {
			issues = append(issues, models.IssueFromError(models.StageLotecart, adj.Reference.SourceLine, key, err))
			continue
		}

		next += lotecartSequenceStep
		line.SetSequence(next)
		if adj.Inventory != "" {
			line.SetInventory(adj.Inventory)
		}
		line.SetArticle(adj.Article)
		line.SetLot(models.LotecartLot)
		line.SetTheoretical(adj.Corrected)
		line.SetDeclared(adj.Corrected)
		line.SetStatus(sagex3.StatusFor(adj.Corrected))

		lines = append(lines, line.String())
	}

	return lines, issues
}
