package sagex3

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/mamadbah2/moulinette/pkg/errors"
)

const sampleLine = "S;BKE022508SES00000004;BKE022508INV00000008;1000;BKE02;15;0;1;ARTICLE001;EMP001;A;UN;100.00;ZONE1;CPKU1070725ABCD"

func TestParseLineAccessors(t *testing.T) {
	line, err := ParseLine(sampleLine)
	require.NoError(t, err)

	assert.Equal(t, 15, line.Len())
	assert.Equal(t, KindStock, line.Kind())
	assert.Equal(t, "BKE022508INV00000008", line.Inventory())
	assert.Equal(t, "ARTICLE001", line.Article())
	assert.Equal(t, "CPKU1070725ABCD", line.Lot())
	assert.Equal(t, "BKE02", line.Site())
	assert.Equal(t, "EMP001", line.Location())
	assert.Equal(t, "UN", line.Unit())

	seq, err := line.Sequence()
	require.NoError(t, err)
	assert.Equal(t, 1000, seq)

	qty, err := line.Theoretical()
	require.NoError(t, err)
	assert.True(t, qty.Equal(decimal.NewFromInt(15)))
}

func TestParseLineRoundTripIsByteIdentical(t *testing.T) {
	raw := "S;SES;INV;7;SITE;1,5;;1;ART;;;;;;LOT;extra;"
	line, err := ParseLine(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, line.String())
}

func TestParseLineRejectsShortLines(t *testing.T) {
	_, err := ParseLine("S;SES;INV;1;SITE;10;0;1;ART")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrMalformedRecord))
}

func TestLineMutationsOnlyTouchTargetFields(t *testing.T) {
	line, err := ParseLine(sampleLine)
	require.NoError(t, err)

	line.SetTheoretical(decimal.NewFromInt(30))
	line.SetDeclared(decimal.NewFromInt(0))
	line.SetStatus(StatusZero)
	line.SetSequence(4000)
	line.SetLot("LOTECART")

	assert.Equal(t, "S;BKE022508SES00000004;BKE022508INV00000008;4000;BKE02;30;0;2;ARTICLE001;EMP001;A;UN;100.00;ZONE1;LOTECART", line.String())

	line.MirrorTheoretical()
	assert.Equal(t, line.TheoreticalField(), line.DeclaredField())
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, StatusZero, StatusFor(decimal.Zero))
	assert.Equal(t, StatusZero, StatusFor(decimal.RequireFromString("0.000")))
	assert.Equal(t, StatusCounted, StatusFor(decimal.NewFromInt(1)))
	assert.Equal(t, StatusCounted, StatusFor(decimal.RequireFromString("0.5")))
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "15", want: "15"},
		{raw: " 100.00 ", want: "100"},
		{raw: "12,5", want: "12.5"},
		{raw: "", wantErr: true},
		{raw: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseQuantity(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, FormatQuantity(got))
		})
	}
}
