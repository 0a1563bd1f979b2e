// Package reconciliation turns a theoretical stock snapshot and a physical
// count into corrected ERP lines. Every function here is a pure function of
// its inputs; persistence and file handling live in the sessions service.
package reconciliation

import (
	"io"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/moulinette/internal/domain/models"
)

// Input is everything a run needs.
type Input struct {
	Headers   []string
	Originals []models.OriginalRecord
	Declared  []models.DeclaredCount
}

// Result holds the derived datasets of one run.
type Result struct {
	Strategy      models.Strategy
	Discrepancies []models.DiscrepancyRecord
	Adjustments   []models.DistributedAdjustment
	Lotecart      []models.LotecartAdjustment
	Summary       models.RunSummary
}

// Engine runs the reconciliation stages in order.
type Engine struct {
	logger *zap.Logger
}

// NewEngine wires a new engine instance.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// Reconcile computes discrepancies, distributes them and detects LOTECART stock.
func (e *Engine) Reconcile(in Input, strategy models.Strategy) (*Result, error) {
	discrepancies := ComputeDiscrepancies(in.Originals, in.Declared)

	adjustments, anomalies, err := Distribute(discrepancies, strategy)
	if err != nil {
		return nil, err
	}

	lotecart, issues := DetectLotecart(in.Originals, in.Declared)

	summary := models.RunSummary{
		Strategy:         strategy,
		TotalDiscrepancy: decimal.Zero,
		Issues:           issues,
		Anomalies:        anomalies,
	}
	for _, adj := range adjustments {
		summary.TotalDiscrepancy = summary.TotalDiscrepancy.Add(adj.Adjustment)
		if !adj.Adjustment.IsZero() {
			summary.AdjustedItems++
		}
	}
	for _, adj := range lotecart {
		summary.TotalDiscrepancy = summary.TotalDiscrepancy.Add(adj.Adjustment)
		if !adj.Adjustment.IsZero() {
			summary.AdjustedItems++
		}
	}

	for _, a := range anomalies {
		e.logger.Warn("variance exceeds lot capacity, residual dropped",
			zap.String("article", a.Article),
			zap.String("inventory", a.Inventory),
			zap.String("variance", a.Variance.String()),
			zap.String("residual", a.Residual.String()))
	}
	e.logIssues(issues)

	return &Result{
		Strategy:      strategy,
		Discrepancies: discrepancies,
		Adjustments:   adjustments,
		Lotecart:      lotecart,
		Summary:       summary,
	}, nil
}

// Write regenerates the export for a reconciled run and completes its summary.
func (e *Engine) Write(w io.Writer, in Input, res *Result) (models.RunSummary, error) {
	stats, err := Regenerate(w, in.Headers, in.Originals, res.Adjustments, res.Lotecart)
	if err != nil {
		return models.RunSummary{}, err
	}

	e.logIssues(stats.Issues)

	res.Summary.LinesWritten = stats.LinesWritten
	res.Summary.LotecartLines = stats.LotecartLines
	res.Summary.Issues = append(res.Summary.Issues, stats.Issues...)

	e.logger.Info("export regenerated",
		zap.String("strategy", string(res.Strategy)),
		zap.Int("lines", stats.LinesWritten),
		zap.Int("lotecart_lines", stats.LotecartLines),
		zap.Int("max_sequence", stats.MaxSequence),
		zap.String("total_discrepancy", res.Summary.TotalDiscrepancy.String()))

	return res.Summary, nil
}

func (e *Engine) logIssues(issues []models.RowIssue) {
	for _, issue := range issues {
		e.logger.Debug("skip row",
			zap.String("stage", string(issue.Stage)),
			zap.Int("line", issue.Line),
			zap.String("key", issue.Key),
			zap.String("reason", issue.Reason))
	}
}
