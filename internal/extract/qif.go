package extract

import (
	"bufio"
	"context"
	"os"
	"regexp"
	"strings"

	"github.com/platemark/platemark/pkg/errors"
	"github.com/platemark/platemark/pkg/metadata"
)

// QIF inspection files embed material and thickness as operator-entered
// annotation text. A line scan with two patterns is deliberately all this
// does: QIF documents in the wild are too inconsistent for schema-bound XML
// decoding to survive.
var (
	qifMaterialPattern  = regexp.MustCompile(`(?i)<Text>Material:\s*(.*?)</Text>`)
	qifThicknessPattern = regexp.MustCompile(`(?i)<Text>Thickness:\s*([\d.,]+\s*mm)`)
)

// QIF extracts material and thickness annotations from QIF inspection files.
type QIF struct{}

// NewQIF creates a QIF extractor.
func NewQIF() *QIF { return &QIF{} }

// Source implements Extractor.
func (q *QIF) Source() metadata.SourceID { return metadata.SourceQIF }

// Extract implements Extractor. The part ID is the filename stem; material
// and thickness come from the first matching annotation line each, and the
// scan stops as soon as both are found.
func (q *QIF) Extract(_ context.Context, path string) (*metadata.SourceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapIO("open", path, err)
	}
	defer f.Close()

	rec := &metadata.SourceRecord{
		Source:    metadata.SourceQIF,
		Material:  metadata.NotAvailable,
		Thickness: metadata.NotAvailable,
		PartID:    stem(path),
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if rec.Material == metadata.NotAvailable {
			if m := qifMaterialPattern.FindStringSubmatch(line); m != nil {
				rec.Material = strings.TrimSpace(m[1])
			}
		}
		if rec.Thickness == metadata.NotAvailable {
			if m := qifThicknessPattern.FindStringSubmatch(line); m != nil {
				rec.Thickness = strings.TrimSpace(m[1])
			}
		}
		if rec.Material != metadata.NotAvailable && rec.Thickness != metadata.NotAvailable {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewParseError("qif", path, "line scan failed", err)
	}
	return rec, nil
}
