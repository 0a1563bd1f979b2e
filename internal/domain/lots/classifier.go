package lots

import (
	"strings"
	"time"

	"github.com/mamadbah2/moulinette/internal/domain/models"
)

const (
	type1Length     = 15
	sitePrefixLen   = 5
	type2Prefix     = "LOT"
	embeddedDateLen = 6
)

// Classifier derives a lot classification and embedded date from a lot identifier.
type Classifier struct {
	sites *Registry
}

// NewClassifier builds a classifier backed by the provided site registry.
// A nil registry falls back to DefaultRegistry.
func NewClassifier(sites *Registry) *Classifier {
	if sites == nil {
		sites = DefaultRegistry()
	}
	return &Classifier{sites: sites}
}

// Classify never fails: identifiers matching no pattern are unknown with no date.
// A recognised pattern keeps its classification even when the embedded date
// is not a calendar date; only the date is dropped then.
func (c *Classifier) Classify(lot string) (models.LotClass, *time.Time) {
	runes := []rune(strings.TrimSpace(lot))

	if len(runes) == type1Length && c.sites.Contains(string(runes[:sitePrefixLen])) {
		digits := string(runes[sitePrefixLen : sitePrefixLen+embeddedDateLen])
		if isDigits(digits) {
			return models.LotType1, parseDDMMYY(digits)
		}
	}

	if len(runes) >= len(type2Prefix)+embeddedDateLen && string(runes[:len(type2Prefix)]) == type2Prefix {
		digits := string(runes[len(type2Prefix) : len(type2Prefix)+embeddedDateLen])
		if isDigits(digits) {
			return models.LotType2, parseDDMMYY(digits)
		}
	}

	return models.LotUnknown, nil
}

// parseDDMMYY maps YY to 2000+YY. Out-of-range days or months yield nil.
func parseDDMMYY(digits string) *time.Time {
	day := atoi2(digits[0:2])
	month := atoi2(digits[2:4])
	year := 2000 + atoi2(digits[4:6])

	if month < 1 || month > 12 || day < 1 {
		return nil
	}
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalises 31/04 into 01/05; reject anything that rolled over.
	if date.Day() != day || int(date.Month()) != month {
		return nil
	}
	return &date
}

func atoi2(s string) int {
	return int(s[0]-'0')*10 + int(s[1]-'0')
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
