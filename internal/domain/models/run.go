package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/mamadbah2/moulinette/pkg/errors"
)

// Strategy selects the order in which lots absorb an aggregate variance.
type Strategy string

const (
	StrategyFIFO Strategy = "FIFO"
	StrategyLIFO Strategy = "LIFO"
)

// ParseStrategy accepts FIFO or LIFO in any case. An empty value yields FIFO.
func ParseStrategy(value string) (Strategy, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "", string(StrategyFIFO):
		return StrategyFIFO, nil
	case string(StrategyLIFO):
		return StrategyLIFO, nil
	default:
		return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidStrategy, value)
	}
}

// Stage names the pipeline step that produced a row issue.
type Stage string

const (
	StageExport       Stage = "export"
	StageCounts       Stage = "counts"
	StageLotecart     Stage = "lotecart"
	StageRegeneration Stage = "regeneration"
)

// RowIssue is the per-row outcome for a row that was skipped or passed through.
type RowIssue struct {
	Stage  Stage  `json:"stage"`
	Line   int    `json:"line,omitempty"`
	Key    string `json:"key,omitempty"`
	Reason string `json:"reason"`
}

// IssueFromError builds a row issue from err. A RowError contributes only its
// reason, the line and key come from the caller.
func IssueFromError(stage Stage, line int, key string, err error) RowIssue {
	reason := err.Error()
	var rowErr *apperrors.RowError
	if errors.As(err, &rowErr) {
		reason = rowErr.Reason
	}
	return RowIssue{Stage: stage, Line: line, Key: key, Reason: reason}
}

// AllocationAnomaly reports an article group whose aggregate variance could
// not be fully spread over its lots.
type AllocationAnomaly struct {
	Article   string          `json:"article"`
	Inventory string          `json:"inventory"`
	Variance  decimal.Decimal `json:"variance"`
	Allocated decimal.Decimal `json:"allocated"`
	Residual  decimal.Decimal `json:"residual"`
}

// RunSummary is the outcome of one processing run.
type RunSummary struct {
	Strategy         Strategy            `json:"strategy"`
	TotalDiscrepancy decimal.Decimal     `json:"total_discrepancy"`
	AdjustedItems    int                 `json:"adjusted_items"`
	LotecartLines    int                 `json:"lotecart_lines"`
	LinesWritten     int                 `json:"lines_written"`
	Issues           []RowIssue          `json:"issues,omitempty"`
	Anomalies        []AllocationAnomaly `json:"anomalies,omitempty"`
}

// LedgerEntry is one run as recorded in the run ledger.
type LedgerEntry struct {
	RecordedAt       time.Time       `json:"recorded_at"`
	SessionID        string          `json:"session_id"`
	Filename         string          `json:"filename"`
	Strategy         Strategy        `json:"strategy"`
	TotalDiscrepancy decimal.Decimal `json:"total_discrepancy"`
	AdjustedItems    int             `json:"adjusted_items"`
	LotecartLines    int             `json:"lotecart_lines"`
	LinesWritten     int             `json:"lines_written"`
	Issues           int             `json:"issues"`
}
