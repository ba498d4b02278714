package reconcile

import (
	"github.com/platemark/platemark/pkg/metadata"
)

// Field identifies one reconciled metadata field.
type Field string

// String returns the string representation of a field name.
func (f Field) String() string {
	return string(f)
}

// Reconciled fields.
const (
	FieldMaterial  Field = "material"
	FieldThickness Field = "thickness"
	FieldPartID    Field = "part_id"
)

// Fields returns all reconciled fields in deterministic order.
func Fields() []Field {
	return []Field{FieldMaterial, FieldThickness, FieldPartID}
}

// AuthorityProvider decides which sources may supply a field, in descending
// priority. A source absent from a field's list never supplies that field,
// however plausible its value looks.
type AuthorityProvider interface {
	// Priority returns the sources allowed to supply the field, most
	// authoritative first.
	Priority(field Field) []metadata.SourceID
}

// defaultAuthorityProvider encodes the shop-floor trust policy: inspection
// files are authoritative for material and identity, geometry wins on
// thickness because QIF thickness blocks are hand-typed.
type defaultAuthorityProvider struct {
	priorities map[Field][]metadata.SourceID
}

// NewDefaultAuthorityProvider creates the default trust policy.
func NewDefaultAuthorityProvider() AuthorityProvider {
	return &defaultAuthorityProvider{
		priorities: map[Field][]metadata.SourceID{
			FieldMaterial:  {metadata.SourceQIF},
			FieldThickness: {metadata.SourceSTEP, metadata.SourceQIF},
			FieldPartID:    {metadata.SourceQIF, metadata.SourceSTEP},
		},
	}
}

// Priority returns the sources allowed to supply the field.
func (p *defaultAuthorityProvider) Priority(field Field) []metadata.SourceID {
	return p.priorities[field]
}
