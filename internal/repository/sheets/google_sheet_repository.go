package sheets

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/mamadbah2/moulinette/internal/config"
)

// Repository is the spreadsheet access the run ledger needs.
type Repository interface {
	WriteRow(ctx context.Context, sheetRange string, values []interface{}) error
	ReadRange(ctx context.Context, sheetRange string) ([][]interface{}, error)
}

// a1Columns matches the cell part of an A1 range: "A:I", "A1:I200" or "B2".
var a1Columns = regexp.MustCompile(`^[A-Z]+[0-9]*(:[A-Z]+[0-9]*)?$`)

// GoogleSheetRepository reads and appends ledger rows through the Google Sheets API.
type GoogleSheetRepository struct {
	service       *sheetsapi.Service
	spreadsheetID string
	logger        *zap.Logger
}

// NewGoogleSheetRepository opens the ledger spreadsheet with a service account file.
func NewGoogleSheetRepository(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger) (*GoogleSheetRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("ledger spreadsheet id must not be empty")
	}

	service, err := sheetsapi.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsPath), option.WithScopes(sheetsapi.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("init sheets client: %w", err)
	}

	return &GoogleSheetRepository{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		logger:        logger,
	}, nil
}

// WriteRow appends one ledger row below the last filled row of sheetRange.
// Values are stored as given so session ids and decimals are never reinterpreted.
func (r *GoogleSheetRepository) WriteRow(ctx context.Context, sheetRange string, values []interface{}) error {
	if err := validateRange(sheetRange); err != nil {
		return err
	}
	if len(values) == 0 {
		return errors.New("refusing to append an empty row")
	}

	payload := &sheetsapi.ValueRange{MajorDimension: "ROWS", Values: [][]interface{}{values}}
	_, err := r.service.Spreadsheets.Values.Append(r.spreadsheetID, sheetRange, payload).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append ledger row to %s: %w", sheetRange, err)
	}

	r.logger.Debug("ledger row appended", zap.String("range", sheetRange), zap.Int("columns", len(values)))
	return nil
}

// ReadRange returns the rows of sheetRange with unformatted values, so numeric
// cells come back as float64 and text cells as string.
func (r *GoogleSheetRepository) ReadRange(ctx context.Context, sheetRange string) ([][]interface{}, error) {
	if err := validateRange(sheetRange); err != nil {
		return nil, err
	}

	resp, err := r.service.Spreadsheets.Values.Get(r.spreadsheetID, sheetRange).
		MajorDimension("ROWS").
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("read ledger range %s: %w", sheetRange, err)
	}

	r.logger.Debug("ledger range read", zap.String("range", sheetRange), zap.Int("rows", len(resp.Values)))
	return resp.Values, nil
}

// validateRange accepts "Tab!A:I" style ranges. A bare tab name is rejected so
// an append can never land on an unexpected column block.
func validateRange(sheetRange string) error {
	tab, cells, ok := strings.Cut(sheetRange, "!")
	if !ok || strings.TrimSpace(tab) == "" {
		return fmt.Errorf("sheet range %q must name a tab, e.g. %s", sheetRange, LedgerRange)
	}
	if !a1Columns.MatchString(cells) {
		return fmt.Errorf("sheet range %q has an invalid A1 cell reference", sheetRange)
	}
	return nil
}
