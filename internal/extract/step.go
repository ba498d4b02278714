package extract

import (
	"context"
	"encoding/json"
	"os"
	"strconv"

	"github.com/platemark/platemark/pkg/errors"
	"github.com/platemark/platemark/pkg/gauge"
	"github.com/platemark/platemark/pkg/logging"
	"github.com/platemark/platemark/pkg/metadata"
)

// faceExport is the sample file the external CAD kernel writes per part:
// every parallel planar face pair's separation and the smaller face's area.
// This pipeline never opens STEP geometry itself.
type faceExport struct {
	PartID  string         `json:"part_id"`
	Samples []gauge.Sample `json:"samples"`
}

// STEP derives sheet thickness from exported face-pair distance samples.
type STEP struct {
	params gauge.Params
}

// NewSTEP creates a STEP extractor with the given voting parameters.
func NewSTEP(params gauge.Params) *STEP {
	return &STEP{params: params}
}

// Source implements Extractor.
func (s *STEP) Source() metadata.SourceID { return metadata.SourceSTEP }

// Extract implements Extractor. It runs the thickness vote over the sample
// export; an inconclusive vote yields an N/A thickness, not an error, so the
// part can still be annotated from other sources.
func (s *STEP) Extract(_ context.Context, path string) (*metadata.SourceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}

	var export faceExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, errors.NewParseError("json", path, "face sample export expected", err)
	}

	partID := export.PartID
	if partID == "" {
		partID = stem(path)
	}

	est := s.params.Infer(export.Samples)
	rec := &metadata.SourceRecord{
		Source:    metadata.SourceSTEP,
		Thickness: metadata.NotAvailable,
		PartID:    partID,
		Text:      est.Rationale,
	}
	if est.Valid {
		rec.Thickness = strconv.FormatFloat(est.Value, 'f', -1, 64)
		logging.Debug().
			Str("part", partID).
			Float64("thickness_mm", est.Value).
			Str("method", string(est.Method)).
			Int("count", est.Count).
			Msg("Inferred thickness from face pairs")
	} else {
		logging.Debug().Str("part", partID).Str("rationale", est.Rationale).Msg("Thickness vote inconclusive")
	}
	return rec, nil
}
