// Package extract holds the per-source metadata extractors. Each extractor
// reads one sidecar file for a part and returns an immutable SourceRecord;
// reconciliation across sources happens elsewhere.
package extract

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/platemark/platemark/pkg/metadata"
)

// Extractor reads one source's sidecar file for a part.
type Extractor interface {
	// Source returns the source this extractor feeds.
	Source() metadata.SourceID

	// Extract parses the file at path into a source record.
	Extract(ctx context.Context, path string) (*metadata.SourceRecord, error)
}

// stem returns the filename without directory or extension, the pipeline's
// fallback part identifier. "plate_7.faces.json" stems to "plate_7".
func stem(path string) string {
	name := filepath.Base(path)
	for {
		ext := filepath.Ext(name)
		if ext == "" {
			return name
		}
		name = strings.TrimSuffix(name, ext)
	}
}
