package dxf

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/platemark/platemark/pkg/errors"
	"github.com/platemark/platemark/pkg/logging"
)

// Group codes the engine is allowed to write.
const (
	// GCodeReal marks a real-valued header variable ($USERR1-5).
	GCodeReal = 40
	// GCodeInteger marks an integer header variable ($USERI1-5).
	GCodeInteger = 70
	// groupComment is the reserved free-text comment group code.
	groupComment = "999"
)

// Placement keywords for patch entries.
const (
	// PlacementUpdateExisting overwrites the value line of an existing
	// header variable declaration; a no-op when the variable is absent.
	PlacementUpdateExisting = "update_existing"
	// PlacementBeforeEndsec always inserts a new four-line declaration block
	// before the HEADER end marker, even when a declaration already exists.
	// Applying it twice to the same document duplicates the declaration;
	// callers own that risk.
	PlacementBeforeEndsec = "before_endsec"
	// PlacementFileStart inserts comments before the first SECTION marker.
	PlacementFileStart = "file_start"
	// PlacementFileEnd inserts comments before the final EOF marker pair.
	PlacementFileEnd = "file_end"
	// PlacementEntitiesEnd inserts comments at the end of the ENTITIES
	// section; also the fallback for unrecognized comment placements.
	PlacementEntitiesEnd = "entities_end"
	// PlacementLayerZero renames the first layer regardless of index.
	PlacementLayerZero = "update_layer_0"
	// PlacementLayerIndex renames the layer at the entry's index; also the
	// fallback for unrecognized rename placements.
	PlacementLayerIndex = "update_specific_layer"
)

const (
	// maxLayerNameLen is the R13+ layer name limit.
	maxLayerNameLen = 255
	// maxCommentLen is the hard per-record comment limit of the format.
	maxCommentLen = 256
	// layerLookahead bounds the search for a layer record's name field.
	layerLookahead = 20
)

// headerVarPattern limits upserts to the numeric user slots; no string
// header slots exist in the format.
var headerVarPattern = regexp.MustCompile(`^\$USER[IR][1-5]$`)

// layerNameSanitizer replaces characters the format forbids in table names.
var layerNameSanitizer = strings.NewReplacer(
	"<", "_", ">", "_", "/", "_", "\\", "_", "\"", "_",
	":", "_", ";", "_", "?", "_", "*", "_", "|", "_", "=", "_",
)

// HeaderUpdate upserts one header variable. Value is kept as a json.Number
// so a real keeps exactly the decimal form the renderer produced.
type HeaderUpdate struct {
	Var       string      `json:"var"`
	GCode     int         `json:"gcode"`
	Value     json.Number `json:"value"`
	Placement string      `json:"placement"`
}

// LayerRename renames the layer at a zero-based encounter index in TABLES.
type LayerRename struct {
	Index     int    `json:"index"`
	New       string `json:"new"`
	Placement string `json:"placement"`
}

// Comment inserts one free-text comment, chunked to the format's limit.
type Comment struct {
	Text      string `json:"comment"`
	Placement string `json:"placement"`
}

// Patch is a declarative mutation request, shaped like the JSON the LLM
// renderer and the deterministic renderer both emit. It is consumed once
// by Apply and then discarded.
type Patch struct {
	HeaderUpdates []HeaderUpdate `json:"header_updates"`
	LayerRenames  []LayerRename  `json:"layer_renames"`
	AddComments   []Comment      `json:"add_comments"`
}

// Empty reports whether the patch requests no mutation at all.
func (p *Patch) Empty() bool {
	return p == nil || (len(p.HeaderUpdates) == 0 && len(p.LayerRenames) == 0 && len(p.AddComments) == 0)
}

// fencedJSON extracts a JSON object from a markdown code fence.
var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")

// ParsePatch decodes a patch from JSON. LLM responses often arrive wrapped
// in markdown code fences; those are stripped first. Deterministic
// renderers and LLM output are accepted without distinction.
func ParsePatch(data []byte) (*Patch, error) {
	if m := fencedJSON.FindSubmatch(data); m != nil {
		data = m[1]
	}
	var p Patch
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.NewParseError("json", "", "patch object expected", err)
	}
	return &p, nil
}

// SanitizeLayerName truncates a layer name to the format limit and replaces
// every forbidden character with an underscore.
func SanitizeLayerName(name string) string {
	if runes := []rune(name); len(runes) > maxLayerNameLen {
		name = string(runes[:maxLayerNameLen])
	}
	return layerNameSanitizer.Replace(name)
}

// Apply mutates a copy of doc according to the patch and returns it. The
// three categories apply in fixed order (header updates, layer renames,
// comment insertions) and every target position is resolved at the moment
// the mutation is applied, since each insertion shifts later line indices.
// Malformed entries and absent target sections are skipped with a log
// record; they never abort the rest of the patch, and no previously applied
// mutation is ever rolled back.
func Apply(doc Document, p *Patch) Document {
	modified := doc.Clone()
	if p.Empty() {
		return modified
	}
	modified = applyHeaderUpdates(modified, p.HeaderUpdates)
	modified = applyLayerRenames(modified, p.LayerRenames)
	modified = applyComments(modified, p.AddComments)
	return modified
}

// validateHeaderUpdate rejects entries outside the $USER{I,R}[1-5] family
// or with a group code the engine may not write.
func validateHeaderUpdate(u HeaderUpdate) error {
	if !headerVarPattern.MatchString(u.Var) {
		return errors.NewInvalidPatchEntryError("header_update", u.Var, "variable outside the $USER{I,R}[1-5] family")
	}
	if u.GCode != GCodeReal && u.GCode != GCodeInteger {
		return errors.NewInvalidPatchEntryError("header_update", u.Var, fmt.Sprintf("group code %d not in {40, 70}", u.GCode))
	}
	return nil
}

// formatHeaderValue renders a variable value line: integers right-aligned
// in a 6-character field, reals in their plain decimal form.
func formatHeaderValue(gcode int, v json.Number) (string, error) {
	if gcode == GCodeInteger {
		if i, err := v.Int64(); err == nil {
			return fmt.Sprintf("%6d", i), nil
		}
		f, err := v.Float64()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%6d", int64(f)), nil
	}
	if _, err := v.Float64(); err != nil {
		return "", err
	}
	return v.String(), nil
}

func applyHeaderUpdates(lines Document, updates []HeaderUpdate) Document {
	if len(updates) == 0 {
		return lines
	}
	if _, _, err := FindSection(lines, SectionHeader); err != nil {
		logging.Warn().Int("updates", len(updates)).Msg("HEADER section not found, skipping header updates")
		return lines
	}

	for _, u := range updates {
		if err := validateHeaderUpdate(u); err != nil {
			logging.Warn().Err(err).Str("var", u.Var).Msg("Skipping header update")
			continue
		}
		value, err := formatHeaderValue(u.GCode, u.Value)
		if err != nil {
			logging.Warn().Err(err).Str("var", u.Var).Str("value", u.Value.String()).Msg("Skipping header update with non-numeric value")
			continue
		}

		// Re-locate the section for every entry: earlier upserts shift the
		// end marker.
		start, end, err := FindSection(lines, SectionHeader)
		if err != nil {
			return lines
		}

		switch u.Placement {
		case PlacementUpdateExisting:
			idx := findHeaderVar(lines, start, end, u.Var)
			if idx < 0 {
				logging.Debug().Str("var", u.Var).Msg("Header variable not found, update_existing is a no-op")
				continue
			}
			lines[idx+3] = value
			logging.Debug().Str("var", u.Var).Int("line", idx+3).Msg("Updated header variable")

		case PlacementBeforeEndsec:
			lines = slices.Insert(lines, end,
				fmt.Sprintf("%3d", 9),
				u.Var,
				fmt.Sprintf(" %3d", u.GCode),
				value,
			)
			logging.Debug().Str("var", u.Var).Int("line", end).Msg("Inserted header variable before ENDSEC")

		default:
			logging.Warn().Str("var", u.Var).Str("placement", u.Placement).Msg("Skipping header update with unknown placement")
		}
	}
	return lines
}

// findHeaderVar returns the index of the group-9 line declaring the named
// variable within [start, end), or -1. The declaration spans four lines:
// "9", name, value group code, value.
func findHeaderVar(lines Document, start, end int, name string) int {
	for i := start; i+3 < end; i++ {
		if strings.TrimSpace(lines[i]) == "9" && strings.TrimSpace(lines[i+1]) == name {
			return i
		}
	}
	return -1
}

func applyLayerRenames(lines Document, renames []LayerRename) Document {
	if len(renames) == 0 {
		return lines
	}

	for _, r := range renames {
		index := r.Index
		switch r.Placement {
		case PlacementLayerZero:
			index = 0
		case PlacementLayerIndex, "":
		default:
			logging.Warn().Str("placement", r.Placement).Int("index", r.Index).Msg("Unknown rename placement, renaming by index")
		}

		// Resolved per entry: comment-free here, but header upserts above
		// may already have shifted TABLES.
		tStart, tEnd, err := FindSection(lines, SectionTables)
		if err != nil {
			logging.Warn().Int("renames", len(renames)).Msg("TABLES section not found, skipping layer renames")
			return lines
		}

		nameIdx := findLayerName(lines, tStart, tEnd, index)
		if nameIdx < 0 {
			logging.Warn().Int("index", index).Msg("Layer index beyond layer table, rename is a no-op")
			continue
		}
		lines[nameIdx] = SanitizeLayerName(r.New)
		logging.Debug().Int("index", index).Int("line", nameIdx).Msg("Renamed layer")
	}
	return lines
}

// findLayerName returns the absolute index of the name line of the layer at
// the given encounter index within TABLES, or -1. The name is the first
// group-2 line after the layer record marker, within a bounded lookahead.
func findLayerName(lines Document, start, end, index int) int {
	current := -1
	for i := start; i+1 < end; i++ {
		if strings.TrimSpace(lines[i]) != "0" ||
			!strings.EqualFold(strings.TrimSpace(lines[i+1]), markerLayer) {
			continue
		}
		current++
		if current != index {
			continue
		}
		for j := i; j < i+layerLookahead && j+1 < end; j++ {
			if strings.TrimSpace(lines[j]) == "2" {
				return j + 1
			}
		}
		return -1
	}
	return -1
}

func applyComments(lines Document, comments []Comment) Document {
	for _, c := range comments {
		pos := commentInsertPos(lines, c.Placement)
		for _, chunk := range chunkComment(c.Text) {
			lines = slices.Insert(lines, pos, groupComment, chunk)
			pos += 2
		}
	}
	return lines
}

// commentInsertPos resolves the insertion index for a comment placement at
// apply time. Unrecognized placements fall back to the ENTITIES end.
func commentInsertPos(lines Document, placement string) int {
	switch placement {
	case PlacementFileStart:
		for i := 0; i+1 < len(lines); i++ {
			if strings.TrimSpace(lines[i]) == "0" &&
				strings.EqualFold(strings.TrimSpace(lines[i+1]), markerSection) {
				return i
			}
		}
		return 0

	case PlacementFileEnd:
		for i := len(lines) - 2; i >= 0; i-- {
			if strings.TrimSpace(lines[i]) == "0" &&
				strings.EqualFold(strings.TrimSpace(lines[i+1]), markerEOF) {
				return i
			}
		}
		return len(lines)

	case PlacementEntitiesEnd:
	default:
		if placement != PlacementEntitiesEnd {
			logging.Warn().Str("placement", placement).Msg("Unknown comment placement, inserting at entities end")
		}
	}

	_, end, err := FindSection(lines, SectionEntities)
	if err != nil {
		logging.Warn().Msg("ENTITIES section not found, inserting comment at document end")
		return len(lines)
	}
	return end
}

// chunkComment splits a comment into format-limit chunks, whitespace-trimmed,
// preserving order.
func chunkComment(text string) []string {
	runes := []rune(text)
	var chunks []string
	for len(runes) > 0 {
		n := min(len(runes), maxCommentLen)
		chunks = append(chunks, strings.TrimSpace(string(runes[:n])))
		runes = runes[n:]
	}
	return chunks
}
