package dxf_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platemark/platemark/pkg/dxf"
)

func TestParsePatch(t *testing.T) {
	t.Run("plain JSON", func(t *testing.T) {
		p, err := dxf.ParsePatch([]byte(`{
			"header_updates": [{"var": "$USERR1", "gcode": 40, "value": 3.0, "placement": "before_endsec"}],
			"layer_renames": [{"index": 0, "new": "MAT_AISI 304__THK_3.0mm__PART_plate_7", "placement": "update_specific_layer"}],
			"add_comments": [{"comment": "Material: AISI 304", "placement": "file_start"}]
		}`))
		require.NoError(t, err)
		require.Len(t, p.HeaderUpdates, 1)
		assert.Equal(t, "$USERR1", p.HeaderUpdates[0].Var)
		assert.Equal(t, "3.0", p.HeaderUpdates[0].Value.String())
		require.Len(t, p.LayerRenames, 1)
		require.Len(t, p.AddComments, 1)
	})

	t.Run("markdown fenced JSON", func(t *testing.T) {
		raw := "Here are the instructions:\n```json\n{\"add_comments\": [{\"comment\": \"hi\", \"placement\": \"file_end\"}]}\n```\n"
		p, err := dxf.ParsePatch([]byte(raw))
		require.NoError(t, err)
		require.Len(t, p.AddComments, 1)
		assert.Equal(t, "hi", p.AddComments[0].Text)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := dxf.ParsePatch([]byte("not json at all"))
		assert.Error(t, err)
	})
}

func TestApplyHeaderBeforeEndsec(t *testing.T) {
	doc := testDoc()
	_, end, err := dxf.FindSection(doc, "HEADER")
	require.NoError(t, err)

	patch := &dxf.Patch{HeaderUpdates: []dxf.HeaderUpdate{
		{Var: "$USERR1", GCode: 40, Value: json.Number("3.0"), Placement: dxf.PlacementBeforeEndsec},
	}}
	out := dxf.Apply(doc, patch)

	// Exactly 4 new lines, immediately before the end marker pair.
	require.Len(t, out, len(doc)+4)
	assert.Equal(t, []string{"  9", "$USERR1", "  40", "3.0"}, []string(out[end:end+4]))

	// Everything outside the inserted span is byte-identical.
	assert.Equal(t, []string(doc[:end]), []string(out[:end]))
	assert.Equal(t, []string(doc[end:]), []string(out[end+4:]))
}

func TestApplyHeaderUpdateExisting(t *testing.T) {
	doc := testDoc()

	t.Run("real value overwrites only the value line", func(t *testing.T) {
		patch := &dxf.Patch{HeaderUpdates: []dxf.HeaderUpdate{
			{Var: "$USERR1", GCode: 40, Value: json.Number("2.5"), Placement: dxf.PlacementUpdateExisting},
		}}
		out := dxf.Apply(doc, patch)
		require.Len(t, out, len(doc))
		assert.Equal(t, "2.5", out[11])
		out[11] = doc[11]
		assert.Equal(t, doc, out)
	})

	t.Run("integer value is right-aligned in a 6-character field", func(t *testing.T) {
		seeded := dxf.Apply(doc, &dxf.Patch{HeaderUpdates: []dxf.HeaderUpdate{
			{Var: "$USERI1", GCode: 70, Value: json.Number("1"), Placement: dxf.PlacementBeforeEndsec},
		}})
		out := dxf.Apply(seeded, &dxf.Patch{HeaderUpdates: []dxf.HeaderUpdate{
			{Var: "$USERI1", GCode: 70, Value: json.Number("42"), Placement: dxf.PlacementUpdateExisting},
		}})
		_, end, err := dxf.FindSection(doc, "HEADER")
		require.NoError(t, err)
		assert.Equal(t, "    42", out[end+3])
	})

	t.Run("missing variable is a no-op", func(t *testing.T) {
		patch := &dxf.Patch{HeaderUpdates: []dxf.HeaderUpdate{
			{Var: "$USERI1", GCode: 70, Value: json.Number("42"), Placement: dxf.PlacementUpdateExisting},
		}}
		out := dxf.Apply(doc, patch)
		assert.Equal(t, doc, out)
	})
}

func TestApplyHeaderIntegerFormatting(t *testing.T) {
	doc := testDoc()
	patch := &dxf.Patch{HeaderUpdates: []dxf.HeaderUpdate{
		{Var: "$USERI1", GCode: 70, Value: json.Number("42"), Placement: dxf.PlacementBeforeEndsec},
	}}
	out := dxf.Apply(doc, patch)

	_, end, err := dxf.FindSection(doc, "HEADER")
	require.NoError(t, err)
	assert.Equal(t, []string{"  9", "$USERI1", "  70", "    42"}, []string(out[end:end+4]))
}

func TestApplyHeaderRejectsInvalidEntries(t *testing.T) {
	doc := testDoc()

	tests := []struct {
		name   string
		update dxf.HeaderUpdate
	}{
		{"variable outside $USER family", dxf.HeaderUpdate{Var: "$ACADVER", GCode: 40, Value: json.Number("1"), Placement: dxf.PlacementBeforeEndsec}},
		{"user slot above 5", dxf.HeaderUpdate{Var: "$USERR6", GCode: 40, Value: json.Number("1"), Placement: dxf.PlacementBeforeEndsec}},
		{"disallowed group code", dxf.HeaderUpdate{Var: "$USERR1", GCode: 10, Value: json.Number("1"), Placement: dxf.PlacementBeforeEndsec}},
		{"unknown placement", dxf.HeaderUpdate{Var: "$USERR1", GCode: 40, Value: json.Number("1"), Placement: "replace_all"}},
		{"non-numeric value", dxf.HeaderUpdate{Var: "$USERR1", GCode: 40, Value: json.Number("abc"), Placement: dxf.PlacementBeforeEndsec}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := dxf.Apply(doc, &dxf.Patch{HeaderUpdates: []dxf.HeaderUpdate{tt.update}})
			assert.Equal(t, doc, out, "invalid entry must not touch the document")
		})
	}
}

func TestApplySkippedEntryDoesNotAbortPatch(t *testing.T) {
	doc := testDoc()
	patch := &dxf.Patch{HeaderUpdates: []dxf.HeaderUpdate{
		{Var: "$LIMMIN", GCode: 40, Value: json.Number("0"), Placement: dxf.PlacementBeforeEndsec},
		{Var: "$USERR2", GCode: 40, Value: json.Number("1.5"), Placement: dxf.PlacementBeforeEndsec},
	}}
	out := dxf.Apply(doc, patch)
	require.Len(t, out, len(doc)+4)
	assert.Contains(t, []string(out), "$USERR2")
	assert.NotContains(t, []string(out), "$LIMMIN")
}

func TestApplyLayerRename(t *testing.T) {
	doc := testDoc()

	t.Run("by index", func(t *testing.T) {
		patch := &dxf.Patch{LayerRenames: []dxf.LayerRename{
			{Index: 1, New: "MAT_AISI 304__THK_3.0mm__PART_plate_7", Placement: dxf.PlacementLayerIndex},
		}}
		out := dxf.Apply(doc, patch)
		require.Len(t, out, len(doc))
		assert.Equal(t, "MAT_AISI 304__THK_3.0mm__PART_plate_7", out[33])
		out[33] = doc[33]
		assert.Equal(t, doc, out)
	})

	t.Run("update_layer_0 forces the first layer", func(t *testing.T) {
		patch := &dxf.Patch{LayerRenames: []dxf.LayerRename{
			{Index: 3, New: "RENAMED", Placement: dxf.PlacementLayerZero},
		}}
		out := dxf.Apply(doc, patch)
		assert.Equal(t, "RENAMED", out[27])
		assert.Equal(t, "DIMENSIONS", out[33])
	})

	t.Run("forbidden characters are replaced", func(t *testing.T) {
		patch := &dxf.Patch{LayerRenames: []dxf.LayerRename{
			{Index: 0, New: `MAT_X5:CrNi*18__THK_2mm__PART_a/b`, Placement: dxf.PlacementLayerIndex},
		}}
		out := dxf.Apply(doc, patch)
		assert.Equal(t, "MAT_X5_CrNi_18__THK_2mm__PART_a_b", out[27])
	})

	t.Run("index beyond table is a warning no-op", func(t *testing.T) {
		patch := &dxf.Patch{LayerRenames: []dxf.LayerRename{
			{Index: 5, New: "NOPE", Placement: dxf.PlacementLayerIndex},
		}}
		out := dxf.Apply(doc, patch)
		assert.Equal(t, doc, out)
	})

	t.Run("unknown placement falls back to index", func(t *testing.T) {
		patch := &dxf.Patch{LayerRenames: []dxf.LayerRename{
			{Index: 1, New: "FALLBACK", Placement: "inside_LAYER_record_0"},
		}}
		out := dxf.Apply(doc, patch)
		assert.Equal(t, "FALLBACK", out[33])
	})
}

func TestSanitizeLayerName(t *testing.T) {
	assert.Equal(t, "a_b_c_d", dxf.SanitizeLayerName(`a<b>c=d`))
	assert.Equal(t, "plain_name", dxf.SanitizeLayerName("plain_name"))

	long := strings.Repeat("x", 300) + ":"
	got := dxf.SanitizeLayerName(long)
	assert.Len(t, got, 255)
	assert.NotContains(t, got, ":")
}

func TestApplyComments(t *testing.T) {
	doc := testDoc()

	t.Run("file_start inserts before the first SECTION marker", func(t *testing.T) {
		patch := &dxf.Patch{AddComments: []dxf.Comment{
			{Text: "Material: AISI 304, Thickness: 3.0mm, Part ID: plate_7", Placement: dxf.PlacementFileStart},
		}}
		out := dxf.Apply(doc, patch)
		require.Len(t, out, len(doc)+2)
		assert.Equal(t, "999", out[0])
		assert.Equal(t, "Material: AISI 304, Thickness: 3.0mm, Part ID: plate_7", out[1])
		assert.Equal(t, []string(doc), []string(out[2:]))
	})

	t.Run("file_end inserts before the EOF pair", func(t *testing.T) {
		patch := &dxf.Patch{AddComments: []dxf.Comment{
			{Text: "trailer", Placement: dxf.PlacementFileEnd},
		}}
		out := dxf.Apply(doc, patch)
		require.Len(t, out, len(doc)+2)
		n := len(out)
		assert.Equal(t, "999", out[n-4])
		assert.Equal(t, "trailer", out[n-3])
		assert.Equal(t, "  0", out[n-2])
		assert.Equal(t, "EOF", out[n-1])
	})

	t.Run("entities_end inserts at the section end", func(t *testing.T) {
		_, end, err := dxf.FindSection(doc, "ENTITIES")
		require.NoError(t, err)

		patch := &dxf.Patch{AddComments: []dxf.Comment{
			{Text: "entity trailer", Placement: dxf.PlacementEntitiesEnd},
		}}
		out := dxf.Apply(doc, patch)
		assert.Equal(t, "999", out[end])
		assert.Equal(t, "entity trailer", out[end+1])
	})

	t.Run("unknown placement falls back to entities_end", func(t *testing.T) {
		_, end, err := dxf.FindSection(doc, "ENTITIES")
		require.NoError(t, err)

		patch := &dxf.Patch{AddComments: []dxf.Comment{
			{Text: "fallback", Placement: "append_to_entity"},
		}}
		out := dxf.Apply(doc, patch)
		assert.Equal(t, "999", out[end])
		assert.Equal(t, "fallback", out[end+1])
	})

	t.Run("long comments are chunked in order", func(t *testing.T) {
		text := strings.Repeat("a", 256) + strings.Repeat("b", 256) + "ccc"
		patch := &dxf.Patch{AddComments: []dxf.Comment{
			{Text: text, Placement: dxf.PlacementFileStart},
		}}
		out := dxf.Apply(doc, patch)
		require.Len(t, out, len(doc)+6)
		assert.Equal(t, "999", out[0])
		assert.Equal(t, strings.Repeat("a", 256), out[1])
		assert.Equal(t, "999", out[2])
		assert.Equal(t, strings.Repeat("b", 256), out[3])
		assert.Equal(t, "999", out[4])
		assert.Equal(t, "ccc", out[5])
	})
}

func TestApplyMissingSectionSkipsCategoryOnly(t *testing.T) {
	// No HEADER section: header updates are skipped, comments still land.
	doc := dxf.Document{
		"  0", "SECTION", "  2", "ENTITIES",
		"  0", "ENDSEC",
		"  0", "EOF",
	}
	patch := &dxf.Patch{
		HeaderUpdates: []dxf.HeaderUpdate{
			{Var: "$USERR1", GCode: 40, Value: json.Number("3.0"), Placement: dxf.PlacementBeforeEndsec},
		},
		AddComments: []dxf.Comment{
			{Text: "still here", Placement: dxf.PlacementEntitiesEnd},
		},
	}
	out := dxf.Apply(doc, patch)
	require.Len(t, out, len(doc)+2)
	assert.NotContains(t, []string(out), "$USERR1")
	assert.Contains(t, []string(out), "still here")
}

func TestApplyCategoryOrderAndIdempotence(t *testing.T) {
	doc := testDoc()
	patch := &dxf.Patch{
		HeaderUpdates: []dxf.HeaderUpdate{
			{Var: "$USERI1", GCode: 70, Value: json.Number("7"), Placement: dxf.PlacementBeforeEndsec},
			{Var: "$USERR1", GCode: 40, Value: json.Number("3.0"), Placement: dxf.PlacementUpdateExisting},
		},
		LayerRenames: []dxf.LayerRename{
			{Index: 0, New: "MAT_AISI 304__THK_3.0mm__PART_plate_7", Placement: dxf.PlacementLayerIndex},
		},
		AddComments: []dxf.Comment{
			{Text: "Material: AISI 304, Thickness: 3.0mm, Part ID: plate_7", Placement: dxf.PlacementFileStart},
			{Text: "Material: AISI 304, Thickness: 3.0mm, Part ID: plate_7", Placement: dxf.PlacementFileEnd},
		},
	}

	first := dxf.Apply(doc, patch)
	second := dxf.Apply(doc, patch)

	// Same patch over the same original document: byte-identical output.
	assert.Equal(t, first, second)

	// The input document is never mutated.
	assert.Equal(t, testDoc(), doc)
}

func TestApplyBeforeEndsecDoubleInsertion(t *testing.T) {
	// before_endsec is documented as non-idempotent: applying the patch to
	// an already-patched document duplicates the declaration.
	doc := testDoc()
	patch := &dxf.Patch{HeaderUpdates: []dxf.HeaderUpdate{
		{Var: "$USERR2", GCode: 40, Value: json.Number("1.5"), Placement: dxf.PlacementBeforeEndsec},
	}}

	once := dxf.Apply(doc, patch)
	twice := dxf.Apply(once, patch)

	count := 0
	for _, line := range twice {
		if line == "$USERR2" {
			count++
		}
	}
	assert.Equal(t, 2, count)
	assert.Len(t, twice, len(doc)+8)
}

func TestPatchEmpty(t *testing.T) {
	var p *dxf.Patch
	assert.True(t, p.Empty())
	assert.True(t, (&dxf.Patch{}).Empty())
	assert.False(t, (&dxf.Patch{AddComments: []dxf.Comment{{Text: "x"}}}).Empty())
}
