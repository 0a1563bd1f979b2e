package sagex3

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/moulinette/internal/domain/models"
	apperrors "github.com/mamadbah2/moulinette/pkg/errors"
)

func TestReadCountsSemicolon(t *testing.T) {
	input := "\xEF\xBB\xBFCode Article;Numéro Inventaire;Numéro Lot;Quantité Réelle\n" +
		"ART001;INV1;LOT1;12\n" +
		"ART001;INV1; LOT2 ;3,5\n" +
		"ART002;INV1;LOT3;\n" +
		";INV1;LOT4;5\n" +
		"ART003;INV1;LOT5;douze\n" +
		";;;\n" +
		"ART001;INV1;LOT1;14\n"

	counts, issues, err := ReadCounts(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, counts, 3)
	assert.Equal(t, models.NewKey("ART001", "INV1", "LOT1"), counts[0].Key())
	assert.True(t, counts[0].Declared.Equal(decimal.NewFromInt(14)), "last row wins")
	assert.Equal(t, "LOT2", counts[1].Lot)
	assert.Equal(t, "3.5", counts[1].Declared.String())
	assert.True(t, counts[2].Declared.IsZero())

	require.Len(t, issues, 3)
	assert.Equal(t, "empty article code", issues[0].Reason)
	assert.Equal(t, 5, issues[0].Line)
	assert.Contains(t, issues[1].Reason, "non-numeric")
	assert.Contains(t, issues[2].Reason, "overrides line 2")
}

func TestReadCountsCommaAndFoldedHeaders(t *testing.T) {
	input := "NUMERO LOT,code article,Numero Inventaire,Quantite Reelle,Commentaire\n" +
		"LOT9,ART9,INV9,7,ok\n"

	counts, issues, err := ReadCounts(strings.NewReader(input))
	require.NoError(t, err)
	assert.Empty(t, issues)
	require.Len(t, counts, 1)
	assert.Equal(t, models.NewKey("ART9", "INV9", "LOT9"), counts[0].Key())
	assert.Equal(t, "7", counts[0].Declared.String())
}

func TestReadCountsRejectsNegativeQuantities(t *testing.T) {
	input := "Code Article;Numéro Inventaire;Numéro Lot;Quantité Réelle\n" +
		"A;INV001;ZZZ;-5\n" +
		"A;INV001;L1;-3\n" +
		"A;INV001;L2;0\n"

	counts, issues, err := ReadCounts(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, counts, 1)
	assert.Equal(t, "L2", counts[0].Lot)

	require.Len(t, issues, 2)
	assert.Equal(t, models.StageCounts, issues[0].Stage)
	assert.Equal(t, 2, issues[0].Line)
	assert.Equal(t, "A/INV001/ZZZ", issues[0].Key)
	assert.Equal(t, "negative declared quantity -5", issues[0].Reason)
	assert.Equal(t, 3, issues[1].Line)
	assert.Contains(t, issues[1].Reason, "negative declared quantity")
}

func TestReadCountsUnreadable(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: "   \n"},
		{name: "missing column", input: "Code Article;Numéro Lot;Quantité Réelle\nA;L;1\n"},
		{name: "binary", input: "PK\x03\x04\xff\xfe\x00\x01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ReadCounts(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrUnreadableInput))
		})
	}
}

func TestTemplateIsReadableAsCountSheet(t *testing.T) {
	lotDate := time.Date(2025, time.July, 7, 0, 0, 0, 0, time.UTC)
	records := []models.OriginalRecord{
		{Article: "ART001", Inventory: "INV1", Lot: "CPKU1070725ABCD", LotClass: models.LotType1, LotDate: &lotDate, Theoretical: decimal.NewFromInt(50)},
		{Article: "ART002", Inventory: "INV1", Lot: "FREE", LotClass: models.LotUnknown, Theoretical: decimal.NewFromInt(3)},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteTemplate(&buf, records))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), utf8BOM))
	assert.Contains(t, buf.String(), "ART001;INV1;CPKU1070725ABCD;type1;2025-07-07;50;")

	counts, issues, err := ReadCounts(&buf)
	require.NoError(t, err)
	assert.Empty(t, issues)
	require.Len(t, counts, 2)
	for _, c := range counts {
		assert.True(t, c.Declared.IsZero())
	}
}
