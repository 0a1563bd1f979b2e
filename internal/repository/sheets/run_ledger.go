package sheets

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/moulinette/internal/domain/models"
)

// LedgerRange is where completed runs are appended, one row per run.
const LedgerRange = "Runs!A:I"

const ledgerColumns = 9

// RunLedger keeps an audit trail of reconciliation runs in a spreadsheet.
type RunLedger struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewRunLedger wraps a sheet repository.
func NewRunLedger(repo Repository, logger *zap.Logger) *RunLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunLedger{repo: repo, logger: logger, now: time.Now}
}

// RecordRun appends the outcome of a run.
// Columns: recorded at, session, source file, strategy, total discrepancy,
// adjusted items, LOTECART lines, lines written, skipped rows.
func (l *RunLedger) RecordRun(ctx context.Context, session models.Session, summary models.RunSummary) error {
	row := []interface{}{
		l.now().UTC().Format(time.RFC3339),
		session.ID,
		session.OriginalFilename,
		string(summary.Strategy),
		summary.TotalDiscrepancy.String(),
		summary.AdjustedItems,
		summary.LotecartLines,
		summary.LinesWritten,
		len(summary.Issues),
	}

	if err := l.repo.WriteRow(ctx, LedgerRange, row); err != nil {
		return fmt.Errorf("record run of session %s: %w", session.ID, err)
	}

	l.logger.Info("run recorded in ledger", zap.String("session_id", session.ID))
	return nil
}

// History returns the runs recorded for a session, oldest first. Rows that do
// not decode as a ledger entry, such as a header row, are skipped.
func (l *RunLedger) History(ctx context.Context, sessionID string) ([]models.LedgerEntry, error) {
	rows, err := l.repo.ReadRange(ctx, LedgerRange)
	if err != nil {
		return nil, fmt.Errorf("read run ledger: %w", err)
	}

	out := []models.LedgerEntry{}
	for i, row := range rows {
		if len(row) < 2 || cellString(row[1]) != sessionID {
			continue
		}
		entry, err := parseEntry(row)
		if err != nil {
			l.logger.Debug("skip ledger row", zap.Int("row", i+1), zap.Error(err))
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func parseEntry(row []interface{}) (models.LedgerEntry, error) {
	if len(row) < ledgerColumns {
		return models.LedgerEntry{}, fmt.Errorf("expected %d columns, got %d", ledgerColumns, len(row))
	}

	recordedAt, err := time.Parse(time.RFC3339, cellString(row[0]))
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("recorded at: %w", err)
	}
	total, err := decimal.NewFromString(cellString(row[4]))
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("total discrepancy: %w", err)
	}

	counters := make([]int, 0, 4)
	for _, cell := range row[5:ledgerColumns] {
		n, err := strconv.Atoi(cellString(cell))
		if err != nil {
			return models.LedgerEntry{}, fmt.Errorf("counter %v: %w", cell, err)
		}
		counters = append(counters, n)
	}

	return models.LedgerEntry{
		RecordedAt:       recordedAt,
		SessionID:        cellString(row[1]),
		Filename:         cellString(row[2]),
		Strategy:         models.Strategy(cellString(row[3])),
		TotalDiscrepancy: total,
		AdjustedItems:    counters[0],
		LotecartLines:    counters[1],
		LinesWritten:     counters[2],
		Issues:           counters[3],
	}, nil
}

// cellString renders a cell as text. Unformatted numeric cells come back from
// the API as float64.
func cellString(v interface{}) string {
	switch c := v.(type) {
	case string:
		return strings.TrimSpace(c)
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(c))
	}
}
