package extract

import (
	"context"
	"os"
	"strings"

	"github.com/platemark/platemark/pkg/errors"
	"github.com/platemark/platemark/pkg/metadata"
)

// Doc reads pre-extracted drawing text or tabular sidecars (.txt, .csv) as
// free text. The text feeds prompt context only; it never supplies a field
// value and never participates in contradiction checks.
type Doc struct{}

// NewDoc creates a Doc extractor.
func NewDoc() *Doc { return &Doc{} }

// Source implements Extractor.
func (d *Doc) Source() metadata.SourceID { return metadata.SourceDoc }

// Extract implements Extractor.
func (d *Doc) Extract(_ context.Context, path string) (*metadata.SourceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	return &metadata.SourceRecord{
		Source: metadata.SourceDoc,
		PartID: stem(path),
		Text:   strings.TrimSpace(string(data)),
	}, nil
}
