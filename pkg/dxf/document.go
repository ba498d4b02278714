// Package dxf mutates line-oriented DXF documents through declarative
// patches: header-variable upserts, layer-table renames, and free-text
// comment insertions. The document is handled as a raw line sequence on
// purpose: re-serializing from a parsed model would lose the whitespace
// quirks downstream CAM software depends on, so every line outside an
// explicitly targeted span is preserved byte for byte.
package dxf

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/platemark/platemark/pkg/errors"
)

// Structural tokens the engine searches for. SECTION/ENDSEC and EOF are the
// only structural markers recognized; everything else is opaque content.
const (
	markerSection = "SECTION"
	markerEndsec  = "ENDSEC"
	markerEOF     = "EOF"
	markerLayer   = "LAYER"

	// SectionHeader holds global variables ($USERI1-5, $USERR1-5 among them).
	SectionHeader = "HEADER"
	// SectionTables holds the layer table.
	SectionTables = "TABLES"
	// SectionEntities holds drawable geometry; the engine only ever appends
	// comments at its end, never touches its records.
	SectionEntities = "ENTITIES"
)

// Document is the raw line sequence of one DXF file. It is the patch
// engine's sole working set; one Apply call owns it exclusively.
type Document []string

// Load reads a DXF file into a Document.
func Load(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapIO("open", path, err)
	}
	defer f.Close()

	doc, err := Parse(f)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	return doc, nil
}

// Parse reads a Document from r, one line per element. Trailing carriage
// returns are dropped so CRLF files behave like LF files.
func Parse(r io.Reader) (Document, error) {
	var doc Document
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		doc = append(doc, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Clone returns an independent copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	copy(out, d)
	return out
}

// WriteTo writes the document as "\n"-joined lines with a trailing newline.
func (d Document) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, line := range d {
		n, err := io.WriteString(w, line)
		total += int64(n)
		if err != nil {
			return total, err
		}
		n, err = io.WriteString(w, "\n")
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Save writes the document to path.
func (d Document) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.WrapIO("create", path, err)
	}
	if _, err := d.WriteTo(f); err != nil {
		f.Close()
		return errors.WrapIO("write", path, err)
	}
	return errors.WrapIO("close", path, f.Close())
}

// FindSection locates a named section and returns the half-open line range
// strictly between the section-name line and its ENDSEC marker. end is the
// index of the "0" line of the ENDSEC pair. Group codes are compared with
// surrounding whitespace trimmed; names are case-insensitive.
func FindSection(lines []string, name string) (start, end int, err error) {
	name = strings.ToUpper(name)
	for i := 0; i+3 < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != "0" ||
			!strings.EqualFold(strings.TrimSpace(lines[i+1]), markerSection) ||
			strings.TrimSpace(lines[i+2]) != "2" ||
			strings.ToUpper(strings.TrimSpace(lines[i+3])) != name {
			continue
		}
		start = i + 4
		for j := start; j+1 < len(lines); j++ {
			if strings.TrimSpace(lines[j]) == "0" &&
				strings.EqualFold(strings.TrimSpace(lines[j+1]), markerEndsec) {
				return start, j, nil
			}
		}
		break
	}
	return 0, 0, errors.NewSectionNotFoundError(name)
}

// Structure is a digest of a document's shape: its section names and the
// layer names declared in TABLES. Retrieval-augmented prompt strategies use
// it as grounding context.
type Structure struct {
	Sections []string `json:"sections" yaml:"sections"`
	Layers   []string `json:"layers" yaml:"layers"`
}

// Summarize scans a document and returns its Structure.
func Summarize(doc Document) Structure {
	var s Structure
	for i := 0; i+3 < len(doc); i++ {
		if strings.TrimSpace(doc[i]) == "0" &&
			strings.EqualFold(strings.TrimSpace(doc[i+1]), markerSection) &&
			strings.TrimSpace(doc[i+2]) == "2" {
			s.Sections = append(s.Sections, strings.ToUpper(strings.TrimSpace(doc[i+3])))
		}
	}

	tStart, tEnd, err := FindSection(doc, SectionTables)
	if err != nil {
		return s
	}
	for i := tStart; i+1 < tEnd; i++ {
		if strings.TrimSpace(doc[i]) != "0" ||
			!strings.EqualFold(strings.TrimSpace(doc[i+1]), markerLayer) {
			continue
		}
		for j := i; j < i+layerLookahead && j+1 < tEnd; j++ {
			if strings.TrimSpace(doc[j]) == "2" {
				s.Layers = append(s.Layers, doc[j+1])
				break
			}
		}
	}
	return s
}
