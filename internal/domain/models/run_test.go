package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/mamadbah2/moulinette/pkg/errors"
)

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want Strategy
	}{
		{"", StrategyFIFO},
		{"fifo", StrategyFIFO},
		{" LIFO ", StrategyLIFO},
		{"Lifo", StrategyLIFO},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseStrategy("random")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidStrategy))
}

func TestNewKeyTrims(t *testing.T) {
	key := NewKey(" ART1 ", "INV1\t", " LOT1")
	assert.Equal(t, Key{Article: "ART1", Inventory: "INV1", Lot: "LOT1"}, key)
	assert.Equal(t, GroupKey{Article: "ART1", Inventory: "INV1"}, key.Group())
}

func TestIssueFromError(t *testing.T) {
	issue := IssueFromError(StageExport, 7, "A/INV1/L1", apperrors.NewRowError(7, "empty article code"))
	assert.Equal(t, RowIssue{Stage: StageExport, Line: 7, Key: "A/INV1/L1", Reason: "empty article code"}, issue)

	issue = IssueFromError(StageLotecart, 0, "", errors.New("line has 3 fields"))
	assert.Equal(t, "line has 3 fields", issue.Reason)
}
