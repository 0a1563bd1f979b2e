// Package sagex3 reads and writes the semicolon-delimited inventory export
// produced by Sage X3. Positional field access is confined to this package;
// the rest of the module works with named accessors on Line.
package sagex3

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "github.com/mamadbah2/moulinette/pkg/errors"
)

// Delimiter separates fields in every export line.
const Delimiter = ";"

// MinFields is the arity below which a stock line cannot be interpreted.
const MinFields = 15

const (
	idxKind        = 0
	idxSessionCode = 1
	idxInventory   = 2
	idxSequence    = 3
	idxSite        = 4
	idxTheoretical = 5
	idxDeclared    = 6
	idxStatus      = 7
	idxArticle     = 8
	idxLocation    = 9
	idxUnit        = 11
	idxLot         = 14
)

// Record kinds found in the first field.
const (
	KindStock     = "S"
	KindEntete    = "E"
	KindInventory = "L"
)

// Status indicator values written to the status field.
const (
	StatusCounted = "1"
	StatusZero    = "2"
)

// StatusFor returns the indicator for a declared quantity: "2" iff it is exactly zero.
func StatusFor(declared decimal.Decimal) string {
	if declared.IsZero() {
		return StatusZero
	}
	return StatusCounted
}

// FormatQuantity renders a quantity the way the ERP expects it back.
func FormatQuantity(q decimal.Decimal) string {
	return q.String()
}

// ParseQuantity accepts dot or comma decimal separators.
func ParseQuantity(raw string) (decimal.Decimal, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return decimal.Zero, fmt.Errorf("empty quantity")
	}
	value = strings.ReplaceAll(value, ",", ".")
	return decimal.NewFromString(value)
}

// Line is one parsed export line. Mutations keep the original arity.
type Line struct {
	fields []string
}

// ParseLine splits raw on the delimiter. Lines with fewer than MinFields
// fields are rejected with a malformed-record error.
func ParseLine(raw string) (*Line, error) {
	fields := strings.Split(strings.TrimRight(raw, "\r\n"), Delimiter)
	if len(fields) < MinFields {
		return nil, apperrors.NewRowError(0, "expected at least %d fields, got %d", MinFields, len(fields))
	}
	return &Line{fields: fields}, nil
}

// String re-serializes the line with the original delimiter and arity.
func (l *Line) String() string {
	return strings.Join(l.fields, Delimiter)
}

// Len returns the number of fields.
func (l *Line) Len() int { return len(l.fields) }

func (l *Line) Kind() string        { return strings.TrimSpace(l.fields[idxKind]) }
func (l *Line) SessionCode() string { return l.fields[idxSessionCode] }
func (l *Line) Inventory() string   { return strings.TrimSpace(l.fields[idxInventory]) }
func (l *Line) Site() string        { return l.fields[idxSite] }
func (l *Line) Article() string     { return strings.TrimSpace(l.fields[idxArticle]) }
func (l *Line) Location() string    { return l.fields[idxLocation] }
func (l *Line) Unit() string        { return l.fields[idxUnit] }
func (l *Line) Lot() string         { return strings.TrimSpace(l.fields[idxLot]) }
func (l *Line) Status() string      { return l.fields[idxStatus] }

// Sequence returns the line number carried by the export.
func (l *Line) Sequence() (int, error) {
	return strconv.Atoi(strings.TrimSpace(l.fields[idxSequence]))
}

// Theoretical returns the theoretical quantity field.
func (l *Line) Theoretical() (decimal.Decimal, error) {
	return ParseQuantity(l.fields[idxTheoretical])
}

// DeclaredField returns the raw declared quantity field.
func (l *Line) DeclaredField() string { return l.fields[idxDeclared] }

// TheoreticalField returns the raw theoretical quantity field.
func (l *Line) TheoreticalField() string { return l.fields[idxTheoretical] }

func (l *Line) SetSequence(n int)                { l.fields[idxSequence] = strconv.Itoa(n) }
func (l *Line) SetInventory(v string)            { l.fields[idxInventory] = v }
func (l *Line) SetArticle(v string)              { l.fields[idxArticle] = v }
func (l *Line) SetLot(v string)                  { l.fields[idxLot] = v }
func (l *Line) SetStatus(v string)               { l.fields[idxStatus] = v }
func (l *Line) SetTheoretical(q decimal.Decimal) { l.fields[idxTheoretical] = FormatQuantity(q) }
func (l *Line) SetDeclared(q decimal.Decimal)    { l.fields[idxDeclared] = FormatQuantity(q) }

// MirrorTheoretical copies the theoretical field verbatim into the declared field.
func (l *Line) MirrorTheoretical() {
	l.fields[idxDeclared] = l.fields[idxTheoretical]
}
