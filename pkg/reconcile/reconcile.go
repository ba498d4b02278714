// Package reconcile merges per-source metadata records into one unified
// record per part and validates the sources against each other. Field values
// are picked by source authority; contradiction checks run across every
// structured source regardless of who won the merge.
package reconcile

import (
	"strconv"
	"strings"

	"github.com/platemark/platemark/pkg/errors"
	"github.com/platemark/platemark/pkg/logging"
	"github.com/platemark/platemark/pkg/metadata"
)

// Reconciler merges metadata records from multiple sources.
type Reconciler interface {
	// Unify builds the unified record for one part. fallbackID is used for
	// part_id when no authoritative source supplies one, typically the
	// filename stem. Returns a NoMetadataError when every record is empty.
	Unify(fallbackID string, records map[metadata.SourceID]metadata.SourceRecord) (*metadata.Unified, error)
}

// reconciler is the default implementation of Reconciler.
type reconciler struct {
	authorities AuthorityProvider
}

// Option configures a Reconciler.
type Option func(*reconciler) error

// New creates a new Reconciler with options.
func New(opts ...Option) (Reconciler, error) {
	r := &reconciler{
		authorities: NewDefaultAuthorityProvider(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// WithAuthorities overrides the field trust policy.
func WithAuthorities(authorities AuthorityProvider) Option {
	return func(r *reconciler) error {
		if authorities == nil {
			return errors.NewConfigError("reconciler", "authorities cannot be nil", nil)
		}
		r.authorities = authorities
		return nil
	}
}

// Unify merges records into a unified record and records contradictions.
func (r *reconciler) Unify(fallbackID string, records map[metadata.SourceID]metadata.SourceRecord) (*metadata.Unified, error) {
	if allEmpty(records) {
		return nil, errors.NewNoMetadataError(fallbackID)
	}

	u := &metadata.Unified{
		Material:  r.pick(FieldMaterial, records),
		Thickness: r.pick(FieldThickness, records),
		PartID:    r.pick(FieldPartID, records),
		Sources:   make(map[metadata.SourceID]metadata.SourceRecord, len(records)),
	}
	for id, rec := range records {
		u.Sources[id] = rec
	}

	if u.Material == "" {
		u.Material = metadata.NotAvailable
	}
	if u.Thickness == "" {
		u.Thickness = metadata.NotAvailable
	}
	if u.PartID == "" {
		u.PartID = fallbackID
		logging.Debug().Str("part", fallbackID).Msg("No source supplied a part ID, using filename stem")
	}

	for _, field := range Fields() {
		if err := checkContradiction(u.PartID, field, records); err != nil {
			u.ValidationErrors = append(u.ValidationErrors, err.Error())
		}
	}
	return u, nil
}

// pick returns the first present value in the field's authority order, or "".
func (r *reconciler) pick(field Field, records map[metadata.SourceID]metadata.SourceRecord) string {
	for _, id := range r.authorities.Priority(field) {
		v := fieldValue(field, records[id])
		if metadata.Present(v) {
			return v
		}
	}
	return ""
}

// checkContradiction compares the field across all structured sources. A
// free-text source never participates: its values are prompt context, not
// measurements. Thickness is compared in normalized millimetre form so
// "3,00 mm" and "3.0" agree; the raw strings are still what gets reported.
func checkContradiction(partID string, field Field, records map[metadata.SourceID]metadata.SourceRecord) error {
	var values []string
	for _, id := range metadata.SourceIDs() {
		if id.FreeText() {
			continue
		}
		if v := fieldValue(field, records[id]); metadata.Present(v) {
			values = append(values, v)
		}
	}
	if len(values) < 2 {
		return nil
	}

	if distinct(field, values) {
		return errors.NewContradictionError(partID, field.String(), values)
	}
	return nil
}

// distinct reports whether the values disagree under the field's equality.
func distinct(field Field, values []string) bool {
	first := compareForm(field, values[0])
	for _, v := range values[1:] {
		if compareForm(field, v) != first {
			return true
		}
	}
	return false
}

// compareForm maps a raw value to its comparison form.
func compareForm(field Field, v string) string {
	if field == FieldThickness {
		if mm, ok := metadata.NormalizeThickness(v); ok {
			return strconv.FormatFloat(mm, 'f', -1, 64)
		}
	}
	return strings.TrimSpace(v)
}

// fieldValue extracts the named field from a record.
func fieldValue(field Field, rec metadata.SourceRecord) string {
	switch field {
	case FieldMaterial:
		return rec.Material
	case FieldThickness:
		return rec.Thickness
	case FieldPartID:
		return rec.PartID
	default:
		return ""
	}
}

// allEmpty reports whether no record carries any usable data.
func allEmpty(records map[metadata.SourceID]metadata.SourceRecord) bool {
	for _, rec := range records {
		if !rec.Empty() {
			return false
		}
	}
	return true
}
