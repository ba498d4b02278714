// Package render turns a unified metadata record into a DXF patch. Two
// renderer families exist: prompt-driven renderers that ask an LLM for the
// patch JSON, and the deterministic TemplateRenderer that encodes the shop's
// mandatory storage rules directly. Both produce the same Patch shape.
package render

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/platemark/platemark/pkg/dxf"
	"github.com/platemark/platemark/pkg/errors"
	"github.com/platemark/platemark/pkg/metadata"
)

// Strategy names accepted on the command line.
const (
	StrategyZeroShot  = "zero-shot"
	StrategyFewShot   = "few-shot"
	StrategyRetrieval = "retrieval"
	StrategyTemplate  = "template"
)

// Renderer produces a patch for one part's unified metadata.
type Renderer interface {
	// Name identifies the renderer in logs and run summaries.
	Name() string

	// Render builds the patch. A nil patch with nil error means the record
	// carried nothing worth writing.
	Render(ctx context.Context, u *metadata.Unified) (*dxf.Patch, error)
}

// PromptContext carries the per-part context a strategy may weave into its
// prompt beyond the unified record itself.
type PromptContext struct {
	// CAM names the target CAM dialect, free-form ("hypertherm", "bystronic").
	CAM string
	// DocText is the free text the doc extractor found, if any.
	DocText string
	// Structure is the target document's section/layer digest, if parsed.
	Structure *dxf.Structure
	// Examples is the few-shot example pack, if loaded.
	Examples []Example
}

// Strategy renders the prompt sent to an LLM renderer.
type Strategy interface {
	Name() string
	Prompt(u *metadata.Unified, pc PromptContext) (string, error)
}

// Example is one worked annotation pair for few-shot prompting.
type Example struct {
	Description string           `yaml:"description"`
	Unified     metadata.Unified `yaml:"unified"`
	// Patch is the expected patch as literal JSON text.
	Patch string `yaml:"patch"`
}

// LoadExamples reads a few-shot example pack from a YAML file.
func LoadExamples(path string) ([]Example, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	var examples []Example
	if err := yaml.Unmarshal(data, &examples); err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}
	return examples, nil
}

// NewStrategy resolves a strategy by its command-line name.
func NewStrategy(name string) (Strategy, error) {
	switch name {
	case StrategyZeroShot, "":
		return ZeroShot{}, nil
	case StrategyFewShot:
		return FewShot{}, nil
	case StrategyRetrieval:
		return Retrieval{}, nil
	default:
		return nil, errors.NewConfigError("strategy", fmt.Sprintf("unknown strategy %q", name), nil)
	}
}

// promptPreamble states the task and the exact patch schema. Every strategy
// starts from this; what differs is the context appended after it.
const promptPreamble = `You are a CAM preparation assistant. Produce a JSON patch that embeds
manufacturing metadata into a DXF file. Respond with a single JSON object
and nothing else, using exactly this schema:

{
  "header_updates": [{"var": "$USERR1", "gcode": 40, "value": 3.0, "placement": "before_endsec"}],
  "layer_renames": [{"index": 0, "new": "NAME", "placement": "update_specific_layer"}],
  "add_comments": [{"comment": "TEXT", "placement": "file_start"}]
}

Rules:
- Only $USERI1-$USERI5 (gcode 70, integers) and $USERR1-$USERR5 (gcode 40,
  reals) may be written. Store the thickness in millimetres in $USERR1 and
  the numeric part number in $USERI1 when one exists.
- Rename layer 0 to MAT_<material>__THK_<thickness>mm__PART_<part_id>.
- Add a summary comment at file_start and at file_end reading
  "Material: <material>, Thickness: <thickness>mm, Part ID: <part_id>".
- Never invent values: a field shown as N/A stays out of the patch.`

// appendRecord renders the unified record block shared by all strategies.
func appendRecord(b *strings.Builder, u *metadata.Unified, pc PromptContext) error {
	record, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return errors.WrapParse("json", "", err)
	}
	b.WriteString("\n\nUnified metadata record:\n")
	b.Write(record)
	if pc.CAM != "" {
		fmt.Fprintf(b, "\n\nTarget CAM dialect: %s", pc.CAM)
	}
	if pc.DocText != "" {
		fmt.Fprintf(b, "\n\nAccompanying document text:\n%s", pc.DocText)
	}
	return nil
}

// ZeroShot sends the rules and the record, nothing else.
type ZeroShot struct{}

// Name implements Strategy.
func (ZeroShot) Name() string { return StrategyZeroShot }

// Prompt implements Strategy.
func (ZeroShot) Prompt(u *metadata.Unified, pc PromptContext) (string, error) {
	var b strings.Builder
	b.WriteString(promptPreamble)
	if err := appendRecord(&b, u, pc); err != nil {
		return "", err
	}
	return b.String(), nil
}

// FewShot prefixes worked examples from the loaded example pack.
type FewShot struct{}

// Name implements Strategy.
func (FewShot) Name() string { return StrategyFewShot }

// Prompt implements Strategy.
func (FewShot) Prompt(u *metadata.Unified, pc PromptContext) (string, error) {
	var b strings.Builder
	b.WriteString(promptPreamble)
	for i, ex := range pc.Examples {
		record, err := json.MarshalIndent(ex.Unified, "", "  ")
		if err != nil {
			return "", errors.WrapParse("json", "", err)
		}
		fmt.Fprintf(&b, "\n\nExample %d", i+1)
		if ex.Description != "" {
			fmt.Fprintf(&b, " (%s)", ex.Description)
		}
		b.WriteString(":\nInput:\n")
		b.Write(record)
		b.WriteString("\nOutput:\n")
		b.WriteString(strings.TrimSpace(ex.Patch))
	}
	if err := appendRecord(&b, u, pc); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Retrieval grounds the prompt in the target document's actual structure so
// the model picks layer indices and placements that exist.
type Retrieval struct{}

// Name implements Strategy.
func (Retrieval) Name() string { return StrategyRetrieval }

// Prompt implements Strategy.
func (Retrieval) Prompt(u *metadata.Unified, pc PromptContext) (string, error) {
	var b strings.Builder
	b.WriteString(promptPreamble)
	if err := appendRecord(&b, u, pc); err != nil {
		return "", err
	}
	if pc.Structure != nil {
		fmt.Fprintf(&b, "\n\nTarget DXF structure:\n  sections: %s\n  layers (in order): %s",
			strings.Join(pc.Structure.Sections, ", "),
			strings.Join(pc.Structure.Layers, ", "))
	}
	return b.String(), nil
}

// partNumberPattern extracts the numeric portion of a part identifier.
var partNumberPattern = regexp.MustCompile(`\d+`)

// TemplateRenderer is the deterministic fallback. It applies the mandatory
// storage rules verbatim and never consults a model, so it always succeeds
// for a record that carries at least one usable field.
type TemplateRenderer struct{}

// Name implements Renderer.
func (TemplateRenderer) Name() string { return StrategyTemplate }

// Render implements Renderer.
func (TemplateRenderer) Render(_ context.Context, u *metadata.Unified) (*dxf.Patch, error) {
	p := &dxf.Patch{}

	// Thickness label keeps the mm suffix only when a numeric value exists;
	// "N/A" passes through untouched.
	thickness := u.Thickness
	if mm, ok := u.ThicknessMM(); ok {
		thickness = strconv.FormatFloat(mm, 'f', -1, 64) + "mm"
		p.HeaderUpdates = append(p.HeaderUpdates, dxf.HeaderUpdate{
			Var:       "$USERR1",
			GCode:     dxf.GCodeReal,
			Value:     json.Number(strconv.FormatFloat(mm, 'f', -1, 64)),
			Placement: dxf.PlacementBeforeEndsec,
		})
	}
	if num := partNumberPattern.FindString(u.PartID); num != "" {
		p.HeaderUpdates = append(p.HeaderUpdates, dxf.HeaderUpdate{
			Var:       "$USERI1",
			GCode:     dxf.GCodeInteger,
			Value:     json.Number(num),
			Placement: dxf.PlacementBeforeEndsec,
		})
	}

	p.LayerRenames = append(p.LayerRenames, dxf.LayerRename{
		Index:     0,
		New:       fmt.Sprintf("MAT_%s__THK_%s__PART_%s", u.Material, thickness, u.PartID),
		Placement: dxf.PlacementLayerZero,
	})

	summary := fmt.Sprintf("Material: %s, Thickness: %s, Part ID: %s", u.Material, thickness, u.PartID)
	p.AddComments = append(p.AddComments,
		dxf.Comment{Text: summary, Placement: dxf.PlacementFileStart},
		dxf.Comment{Text: summary, Placement: dxf.PlacementFileEnd},
	)
	return p, nil
}
