package dxf_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platemark/platemark/pkg/dxf"
	"github.com/platemark/platemark/pkg/errors"
)

// testDoc is a minimal but structurally complete R12-style document:
// HEADER with two variables, a two-layer TABLES section, one ENTITIES line.
func testDoc() dxf.Document {
	return dxf.Document{
		"  0",
		"SECTION",
		"  2",
		"HEADER",
		"  9",
		"$ACADVER",
		"  1",
		"AC1009",
		"  9",
		"$USERR1",
		" 40",
		"0.0",
		"  0",
		"ENDSEC",
		"  0",
		"SECTION",
		"  2",
		"TABLES",
		"  0",
		"TABLE",
		"  2",
		"LAYER",
		" 70",
		"2",
		"  0",
		"LAYER",
		"  2",
		"0",
		" 70",
		"0",
		"  0",
		"LAYER",
		"  2",
		"DIMENSIONS",
		" 70",
		"0",
		"  0",
		"ENDTAB",
		"  0",
		"ENDSEC",
		"  0",
		"SECTION",
		"  2",
		"ENTITIES",
		"  0",
		"LINE",
		"  8",
		"0",
		" 10",
		"0.0",
		" 20",
		"0.0",
		"  0",
		"ENDSEC",
		"  0",
		"EOF",
	}
}

func TestParse(t *testing.T) {
	raw := "  0\r\nSECTION\r\n  2\r\nHEADER\r\n  0\r\nENDSEC\r\n  0\r\nEOF\r\n"
	doc, err := dxf.Parse(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, dxf.Document{"  0", "SECTION", "  2", "HEADER", "  0", "ENDSEC", "  0", "EOF"}, doc)
}

func TestWriteTo(t *testing.T) {
	doc := dxf.Document{"  0", "EOF"}
	var sb strings.Builder
	_, err := doc.WriteTo(&sb)
	require.NoError(t, err)
	assert.Equal(t, "  0\nEOF\n", sb.String())
}

func TestFindSection(t *testing.T) {
	doc := testDoc()

	t.Run("header", func(t *testing.T) {
		start, end, err := dxf.FindSection(doc, "HEADER")
		require.NoError(t, err)
		assert.Equal(t, 4, start)
		assert.Equal(t, 12, end)
		assert.Equal(t, "  0", doc[end])
		assert.Equal(t, "ENDSEC", doc[end+1])
	})

	t.Run("name is case-insensitive", func(t *testing.T) {
		_, _, err := dxf.FindSection(doc, "tables")
		assert.NoError(t, err)
	})

	t.Run("absent section", func(t *testing.T) {
		_, _, err := dxf.FindSection(doc, "BLOCKS")
		require.Error(t, err)
		assert.True(t, errors.IsSectionNotFound(err))
	})
}

func TestClone(t *testing.T) {
	doc := testDoc()
	clone := doc.Clone()
	clone[0] = "changed"
	assert.Equal(t, "  0", doc[0])
}

func TestSummarize(t *testing.T) {
	s := dxf.Summarize(testDoc())
	assert.Equal(t, []string{"HEADER", "TABLES", "ENTITIES"}, s.Sections)
	assert.Equal(t, []string{"0", "DIMENSIONS"}, s.Layers)
}

func TestSummarizeNoTables(t *testing.T) {
	doc := dxf.Document{"  0", "SECTION", "  2", "HEADER", "  0", "ENDSEC", "  0", "EOF"}
	s := dxf.Summarize(doc)
	assert.Equal(t, []string{"HEADER"}, s.Sections)
	assert.Empty(t, s.Layers)
}
