// Package metadata defines the records exchanged between extractors, the
// consistency validator, and patch renderers: one SourceRecord per
// (part, source) and one Unified record per part after reconciliation.
package metadata

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// NotAvailable is the placeholder extractors and the validator use for a
// field no source could supply.
const NotAvailable = "N/A"

// SourceID identifies one metadata extractor.
type SourceID string

// String returns the string representation of a source ID.
func (id SourceID) String() string {
	return string(id)
}

// Known sources, in descending general reliability.
const (
	// SourceQIF extracts material/thickness text blocks from QIF inspection files.
	SourceQIF SourceID = "qif"
	// SourceSTEP derives thickness from 3-D geometry face-pair distances.
	SourceSTEP SourceID = "step"
	// SourceDoc carries free text extracted from drawings and tabular documents.
	SourceDoc SourceID = "doc"
)

// SourceIDs returns all defined source IDs in deterministic order.
func SourceIDs() []SourceID {
	return []SourceID{SourceQIF, SourceSTEP, SourceDoc}
}

// IsValid returns true if the ID is one of the defined constants.
func (id SourceID) IsValid() bool {
	return slices.Contains(SourceIDs(), id)
}

// FreeText reports whether the source produces unstructured text rather
// than field values. Free-text sources feed prompt context only and are
// excluded from contradiction checks.
func (id SourceID) FreeText() bool {
	return id == SourceDoc
}

// SourceRecord is an immutable snapshot of one extractor's findings for one
// part. Absent fields are "" (or NotAvailable, treated the same). Thickness
// keeps the raw textual form the source produced ("3,00 mm", "2.5"); it is
// normalized for comparison only, never rewritten.
type SourceRecord struct {
	Source    SourceID `json:"source" yaml:"source"`
	Material  string   `json:"material,omitempty" yaml:"material,omitempty"`
	Thickness string   `json:"thickness,omitempty" yaml:"thickness,omitempty"`
	PartID    string   `json:"part_id,omitempty" yaml:"part_id,omitempty"`
	Text      string   `json:"text,omitempty" yaml:"text,omitempty"`
}

// Empty reports whether the record carries no usable field at all.
func (r SourceRecord) Empty() bool {
	return !Present(r.Material) && !Present(r.Thickness) && !Present(r.PartID) && r.Text == ""
}

// Unified is the single reconciled record for one part. ValidationErrors
// non-empty means the record is diagnostic only and must not drive patch
// generation.
type Unified struct {
	Material         string                    `json:"material" yaml:"material"`
	Thickness        string                    `json:"thickness" yaml:"thickness"`
	PartID           string                    `json:"part_id" yaml:"part_id"`
	Sources          map[SourceID]SourceRecord `json:"sources" yaml:"sources"`
	ValidationErrors []string                  `json:"validation_errors" yaml:"validation_errors"`
}

// Consistent reports whether the validator found no contradictions.
func (u *Unified) Consistent() bool {
	return len(u.ValidationErrors) == 0
}

// ThicknessMM returns the unified thickness as millimetres, when numeric.
func (u *Unified) ThicknessMM() (float64, bool) {
	return NormalizeThickness(u.Thickness)
}

// Present reports whether a field value is actually supplied: non-empty and
// not the NotAvailable placeholder.
func Present(v string) bool {
	return v != "" && v != NotAvailable
}

var numericToken = regexp.MustCompile(`\d+[.,]?\d*`)

// NormalizeThickness extracts the first numeric token from any textual
// thickness form for comparison purposes ("3,00 mm" -> 3.0). The stored
// value is left untouched by callers.
func NormalizeThickness(v string) (float64, bool) {
	if !Present(v) {
		return 0, false
	}
	token := numericToken.FindString(v)
	if token == "" {
		return 0, false
	}
	token = strings.ReplaceAll(token, ",", ".")
	f, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
