package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LotClass is the syntactic classification of a lot identifier.
type LotClass string

const (
	LotType1   LotClass = "type1"
	LotType2   LotClass = "type2"
	LotUnknown LotClass = "unknown"
)

// LotecartLot is the reserved lot identifier for stock counted under no cataloged lot.
const LotecartLot = "LOTECART"

// Key identifies one (article, inventory, lot) row in either dataset.
type Key struct {
	Article   string `json:"article"`
	Inventory string `json:"inventory"`
	Lot       string `json:"lot"`
}

// NewKey builds a key with surrounding whitespace removed from every part.
func NewKey(article, inventory, lot string) Key {
	return Key{
		Article:   strings.TrimSpace(article),
		Inventory: strings.TrimSpace(inventory),
		Lot:       strings.TrimSpace(lot),
	}
}

// Group returns the (article, inventory) part of the key.
func (k Key) Group() GroupKey {
	return GroupKey{Article: k.Article, Inventory: k.Inventory}
}

func (k Key) String() string {
	return k.Article + "/" + k.Inventory + "/" + k.Lot
}

// GroupKey identifies an article within an inventory.
type GroupKey struct {
	Article   string `json:"article"`
	Inventory string `json:"inventory"`
}

// OriginalRecord is one stock line of the theoretical ERP snapshot.
type OriginalRecord struct {
	Article     string          `json:"article"`
	Inventory   string          `json:"inventory"`
	Lot         string          `json:"lot"`
	LotClass    LotClass        `json:"lot_class"`
	LotDate     *time.Time      `json:"lot_date,omitempty"`
	Theoretical decimal.Decimal `json:"theoretical"`
	SourceLine  int             `json:"source_line"`
	Raw         string          `json:"raw"`
}

// Key returns the record's join key.
func (r OriginalRecord) Key() Key {
	return NewKey(r.Article, r.Inventory, r.Lot)
}

// DeclaredCount is one quantity entered during the physical count.
type DeclaredCount struct {
	Article    string          `json:"article"`
	Inventory  string          `json:"inventory"`
	Lot        string          `json:"lot"`
	Declared   decimal.Decimal `json:"declared"`
	SourceLine int             `json:"source_line"`
}

// Key returns the count's join key.
func (c DeclaredCount) Key() Key {
	return NewKey(c.Article, c.Inventory, c.Lot)
}

// DiscrepancyRecord joins an original record with its declared quantity.
type DiscrepancyRecord struct {
	Record    OriginalRecord  `json:"record"`
	Declared  decimal.Decimal `json:"declared"`
	Variance  decimal.Decimal `json:"variance"`
	Corrected decimal.Decimal `json:"corrected"`
}

// DistributedAdjustment is a discrepancy record after allocation of the
// article's aggregate variance.
type DistributedAdjustment struct {
	Record     OriginalRecord  `json:"record"`
	Declared   decimal.Decimal `json:"declared"`
	Adjustment decimal.Decimal `json:"adjustment"`
	Corrected  decimal.Decimal `json:"corrected"`
}

// Key returns the join key of the underlying record.
func (a DistributedAdjustment) Key() Key {
	return a.Record.Key()
}

// LotecartAdjustment records stock counted against a lot unknown to the
// theoretical snapshot. Reference templates the non-quantity fields of the
// generated line.
type LotecartAdjustment struct {
	Article       string          `json:"article"`
	Inventory     string          `json:"inventory"`
	DeclaredLot   string          `json:"declared_lot"`
	Lot           string          `json:"lot"`
	Declared      decimal.Decimal `json:"declared"`
	Adjustment    decimal.Decimal `json:"adjustment"`
	Corrected     decimal.Decimal `json:"corrected"`
	IsNewLotecart bool            `json:"is_new_lotecart"`
	Reference     *OriginalRecord `json:"reference,omitempty"`
}
