package reconciliation

import (
	"bufio"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/moulinette/internal/domain/models"
	"github.com/mamadbah2/moulinette/internal/sagex3"
)

// RegenerationStats describes what Regenerate wrote.
type RegenerationStats struct {
	LinesWritten  int
	LotecartLines int
	MaxSequence   int
	Issues        []models.RowIssue
}

// Regenerate writes the corrected export: header lines verbatim, one line per
// original record in original order, then the generated LOTECART lines.
//
// A record with an adjustment gets the corrected quantity, its declared
// quantity and the matching status. A record without one was not counted and
// gets declared 0 with status 2. Lines too short to carry those fields are
// written back untouched.
func Regenerate(w io.Writer, headers []string, originals []models.OriginalRecord, adjustments []models.DistributedAdjustment, lotecart []models.LotecartAdjustment) (*RegenerationStats, error) {
	byKey := make(map[models.Key]models.DistributedAdjustment, len(adjustments))
	for _, adj := range adjustments {
		byKey[adj.Key()] = adj
	}

	bw := bufio.NewWriter(w)
	stats := &RegenerationStats{}

	emit := func(line string) error {
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("write export line: %w", err)
		}
		stats.LinesWritten++
		return nil
	}

	for _, h := range headers {
		if err := emit(h); err != nil {
			return nil, err
		}
	}

	for _, rec := range originals {
		line, err := sagex3.ParseLine(rec.Raw)
		if err != nil {
			stats.Issues = append(stats.Issues, models.IssueFromError(models.StageRegeneration, rec.SourceLine, rec.Key().String(), err))
			if err := emit(rec.Raw); err != nil {
				return nil, err
			}
			continue
		}

		if seq, err := line.Sequence(); err == nil && seq > stats.MaxSequence {
			stats.MaxSequence = seq
		}

		if adj, ok := byKey[rec.Key()]; ok {
			line.SetTheoretical(adj.Corrected)
			line.SetDeclared(adj.Declared)
			line.SetStatus(sagex3.StatusFor(adj.Declared))
		} else {
			line.SetDeclared(decimal.Zero)
			line.SetStatus(sagex3.StatusZero)
		}

		if err := emit(line.String()); err != nil {
			return nil, err
		}
	}

	generated, issues := GenerateLotecartLines(lotecart, stats.MaxSequence)
	stats.Issues = append(stats.Issues, issues...)
	for _, raw := range generated {
		// Generated lines always carry identical theoretical and declared fields.
		if line, err := sagex3.ParseLine(raw); err == nil {
			line.MirrorTheoretical()
			raw = line.String()
		}
		if err := emit(raw); err != nil {
			return nil, err
		}
		stats.LotecartLines++
	}

	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("flush export: %w", err)
	}
	return stats, nil
}
