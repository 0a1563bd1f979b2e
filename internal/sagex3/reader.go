package sagex3

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/mamadbah2/moulinette/internal/domain/lots"
	"github.com/mamadbah2/moulinette/internal/domain/models"
	apperrors "github.com/mamadbah2/moulinette/pkg/errors"
)

// Supported input encodings.
const (
	EncodingUTF8        = "utf-8"
	EncodingWindows1252 = "windows-1252"
)

const maxLineBytes = 1024 * 1024

// Export is a parsed theoretical snapshot.
type Export struct {
	Headers []string
	Records []models.OriginalRecord
	Issues  []models.RowIssue
}

// ReadOptions tunes ReadInventory.
type ReadOptions struct {
	Encoding   string
	Classifier *lots.Classifier
}

// DecodeReader wraps r so that it yields UTF-8 for the given encoding.
func DecodeReader(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", EncodingUTF8, "utf8":
		return SkipBOM(r), nil
	case EncodingWindows1252, "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(r), nil
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1.NewDecoder().Reader(r), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}

// SkipBOM drops a leading UTF-8 byte order mark.
func SkipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if peeked, err := br.Peek(3); err == nil && peeked[0] == 0xEF && peeked[1] == 0xBB && peeked[2] == 0xBF {
		_, _ = br.Discard(3)
	}
	return br
}

// ReadInventory parses a Sage X3 inventory export. E and L lines are kept
// verbatim as headers; S lines become original records. Unusable S lines are
// reported as issues. An export without a single usable stock line is unreadable.
func ReadInventory(r io.Reader, opts ReadOptions) (*Export, error) {
	classifier := opts.Classifier
	if classifier == nil {
		classifier = lots.NewClassifier(nil)
	}

	decoded, err := DecodeReader(r, opts.Encoding)
	if err != nil {
		return nil, apperrors.NewUnreadableInputError("inventory export", err)
	}

	scanner := bufio.NewScanner(decoded)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	export := &Export{}
	seen := make(map[models.Key]int)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		raw := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(raw) == "" {
			continue
		}

		kind := strings.TrimSpace(strings.SplitN(raw, Delimiter, 2)[0])
		switch kind {
		case KindEntete, KindInventory:
			export.Headers = append(export.Headers, raw)
			continue
		case KindStock:
		default:
			continue
		}

		record, err := stockRecord(raw, lineNo, classifier)
		if err != nil {
			export.Issues = append(export.Issues, models.IssueFromError(models.StageExport, lineNo, "", err))
			continue
		}

		key := record.Key()
		if first, dup := seen[key]; dup {
			export.Issues = append(export.Issues, models.RowIssue{
				Stage:  models.StageExport,
				Line:   lineNo,
				Key:    key.String(),
				Reason: fmt.Sprintf("duplicate of line %d", first),
			})
			continue
		}
		seen[key] = lineNo
		export.Records = append(export.Records, record)
	}

	if err := scanner.Err(); err != nil {
		return nil, apperrors.NewUnreadableInputError("inventory export", err)
	}
	if len(export.Records) == 0 {
		return nil, apperrors.NewUnreadableInputError("inventory export", errors.New("no stock lines found"))
	}

	return export, nil
}

func stockRecord(raw string, lineNo int, classifier *lots.Classifier) (models.OriginalRecord, error) {
	line, err := ParseLine(raw)
	if err != nil {
		return models.OriginalRecord{}, err
	}

	if line.Article() == "" {
		return models.OriginalRecord{}, apperrors.NewRowError(lineNo, "empty article code")
	}

	qty, err := line.Theoretical()
	if err != nil {
		return models.OriginalRecord{}, apperrors.NewRowError(lineNo, "non-numeric theoretical quantity %q", line.TheoreticalField())
	}
	if qty.IsNegative() {
		return models.OriginalRecord{}, apperrors.NewRowError(lineNo, "negative theoretical quantity %s", qty)
	}

	class, lotDate := classifier.Classify(line.Lot())

	return models.OriginalRecord{
		Article:     line.Article(),
		Inventory:   line.Inventory(),
		Lot:         line.Lot(),
		LotClass:    class,
		LotDate:     lotDate,
		Theoretical: qty,
		SourceLine:  lineNo,
		Raw:         raw,
	}, nil
}
