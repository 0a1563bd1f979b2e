package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionStatus tracks where a session is in its lifecycle.
type SessionStatus string

const (
	SessionUploaded          SessionStatus = "uploaded"
	SessionTemplateGenerated SessionStatus = "template_generated"
	SessionCompleted         SessionStatus = "completed"
	SessionError             SessionStatus = "error"
)

// Session is the metadata kept for one inventory upload.
type Session struct {
	ID                string          `json:"id"`
	OriginalFilename  string          `json:"original_filename"`
	OriginalFilePath  string          `json:"original_file_path"`
	TemplateFilePath  string          `json:"template_file_path,omitempty"`
	CompletedFilePath string          `json:"completed_file_path,omitempty"`
	FinalFilePath     string          `json:"final_file_path,omitempty"`
	Status            SessionStatus   `json:"status"`
	HeaderLines       []string        `json:"header_lines"`
	InventoryDate     time.Time       `json:"inventory_date"`
	NbArticles        int             `json:"nb_articles"`
	NbLots            int             `json:"nb_lots"`
	TotalQuantity     decimal.Decimal `json:"total_quantity"`
	StrategyUsed      Strategy        `json:"strategy_used,omitempty"`
	TotalDiscrepancy  decimal.Decimal `json:"total_discrepancy"`
	AdjustedItems     int             `json:"adjusted_items_count"`
	LotecartLines     int             `json:"lotecart_lines"`
	LastError         string          `json:"last_error,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}
