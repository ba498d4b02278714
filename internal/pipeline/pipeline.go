// Package pipeline orchestrates a full annotation run: discover parts in the
// input directory, extract metadata from every sidecar, reconcile, render a
// patch, and write the annotated DXF plus the unified record. Parts are
// independent; one part's failure never stops the run.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/platemark/platemark/internal/extract"
	"github.com/platemark/platemark/pkg/dxf"
	"github.com/platemark/platemark/pkg/errors"
	"github.com/platemark/platemark/pkg/gauge"
	"github.com/platemark/platemark/pkg/logging"
	"github.com/platemark/platemark/pkg/metadata"
	"github.com/platemark/platemark/pkg/reconcile"
	"github.com/platemark/platemark/pkg/render"
)

// Config carries everything a run needs. No package-level state: two runs
// with different configs can execute in the same process.
type Config struct {
	InputDir  string
	OutputDir string
	// CAM names the target CAM dialect for prompt context.
	CAM string
	// Workers bounds part-level parallelism; values below 1 mean 1.
	Workers int
	// Params tunes the thickness vote.
	Params gauge.Params
	// Renderer produces the patch for each consistent part.
	Renderer render.Renderer
	// Fallback, when set, is tried after Renderer fails. Typically the
	// deterministic template renderer.
	Fallback render.Renderer
	// Examples is the few-shot example pack for prompt context.
	Examples []render.Example
}

// Part groups one part's input files by filename stem. DXF is always set;
// the sidecars are optional.
type Part struct {
	ID    string
	DXF   string
	QIF   string
	Faces string
	Doc   string
}

// Result is the outcome for one part.
type Result struct {
	PartID     string
	Unified    *metadata.Unified
	OutputPath string
	Err        error
}

// contextSetter is implemented by renderers that accept per-part prompt
// context, the Gemini renderer among them.
type contextSetter interface {
	SetContextFor(func(u *metadata.Unified) render.PromptContext)
}

// Discover groups the input directory's files into parts by filename stem.
// A part exists only if its DXF file does; sidecars without a DXF are
// logged and dropped. Results are sorted by part ID.
func Discover(inputDir string) ([]Part, error) {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, errors.WrapIO("read", inputDir, err)
	}

	parts := make(map[string]*Part)
	at := func(stem string) *Part {
		p, ok := parts[stem]
		if !ok {
			p = &Part{ID: stem}
			parts[stem] = p
		}
		return p
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(inputDir, name)
		lower := strings.ToLower(name)

		switch {
		case strings.HasSuffix(lower, ".faces.json"):
			at(name[:len(name)-len(".faces.json")]).Faces = path
		case strings.HasSuffix(lower, ".dxf"):
			at(name[:len(name)-len(".dxf")]).DXF = path
		case strings.HasSuffix(lower, ".qif"):
			at(name[:len(name)-len(".qif")]).QIF = path
		case strings.HasSuffix(lower, ".txt"), strings.HasSuffix(lower, ".csv"):
			at(name[:len(name)-len(".txt")]).Doc = path
		}
	}

	var out []Part
	for stem, p := range parts {
		if p.DXF == "" {
			logging.Warn().Str("part", stem).Msg("Sidecar files without a DXF, skipping")
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Run processes every discovered part and returns per-part results sorted by
// part ID.
func Run(ctx context.Context, cfg Config) ([]Result, error) {
	if cfg.Renderer == nil {
		return nil, errors.NewConfigError("pipeline", "renderer is required", nil)
	}
	parts, err := Discover(cfg.InputDir)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		logging.Warn().Str("dir", cfg.InputDir).Msg("No parts found")
		return nil, nil
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, errors.WrapIO("create", cfg.OutputDir, err)
	}

	r := newRunner(cfg)
	if setter, ok := cfg.Renderer.(contextSetter); ok {
		setter.SetContextFor(r.contextFor)
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(parts) {
		workers = len(parts)
	}

	jobs := make(chan Part)
	results := make(chan Result, len(parts))
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for part := range jobs {
				results <- r.process(ctx, part)
			}
		}()
	}
	for _, part := range parts {
		jobs <- part
	}
	close(jobs)
	wg.Wait()
	close(results)

	var out []Result
	failed := 0
	for res := range results {
		if res.Err != nil {
			failed++
		}
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartID < out[j].PartID })
	logging.Info().
		Int("parts", len(out)).
		Int("failed", failed).
		Str("renderer", cfg.Renderer.Name()).
		Msg("Annotation run complete")
	return out, nil
}

// Inspect extracts and unifies every discovered part without rendering or
// writing anything. Contradictions surface in each result's Unified record
// and Err.
func Inspect(ctx context.Context, cfg Config) ([]Result, error) {
	parts, err := Discover(cfg.InputDir)
	if err != nil {
		return nil, err
	}

	r := newRunner(cfg)
	results := make([]Result, 0, len(parts))
	for _, part := range parts {
		res := Result{PartID: part.ID}
		u, err := r.reconciler.Unify(part.ID, r.extractAll(ctx, part))
		if err != nil {
			res.Err = err
		} else {
			res.Unified = u
			if !u.Consistent() {
				res.Err = fmt.Errorf("%w: %s", errors.ErrContradiction, strings.Join(u.ValidationErrors, "; "))
			}
		}
		results = append(results, res)
	}
	return results, nil
}

// runner holds the per-run collaborators and the prompt-context registry.
type runner struct {
	cfg        Config
	qif        *extract.QIF
	step       *extract.STEP
	doc        *extract.Doc
	reconciler reconcile.Reconciler

	mu       sync.RWMutex
	contexts map[string]render.PromptContext
}

func newRunner(cfg Config) *runner {
	rec, _ := reconcile.New()
	return &runner{
		cfg:        cfg,
		qif:        extract.NewQIF(),
		step:       extract.NewSTEP(cfg.Params),
		doc:        extract.NewDoc(),
		reconciler: rec,
		contexts:   make(map[string]render.PromptContext),
	}
}

// contextFor returns the prompt context registered for a part.
func (r *runner) contextFor(u *metadata.Unified) render.PromptContext {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.contexts[u.PartID]
}

func (r *runner) setContext(partID string, pc render.PromptContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contexts[partID] = pc
}

// process runs one part end to end. The unified record is written even when
// the part is skipped for contradictions, so the run output is always a
// complete diagnostic picture.
func (r *runner) process(ctx context.Context, part Part) Result {
	res := Result{PartID: part.ID}
	log := logging.With().Str("part", part.ID).Logger()

	records := r.extractAll(ctx, part)
	u, err := r.reconciler.Unify(part.ID, records)
	if err != nil {
		log.Warn().Err(err).Msg("Part skipped")
		res.Err = err
		return res
	}
	res.Unified = u

	if err := r.writeUnified(part.ID, u); err != nil {
		res.Err = err
		return res
	}

	if !u.Consistent() {
		log.Warn().Strs("errors", u.ValidationErrors).Msg("Contradictory metadata, annotation skipped")
		res.Err = fmt.Errorf("%w: %s", errors.ErrContradiction, strings.Join(u.ValidationErrors, "; "))
		return res
	}

	doc, err := dxf.Load(part.DXF)
	if err != nil {
		res.Err = err
		return res
	}

	docText := ""
	if rec, ok := records[metadata.SourceDoc]; ok {
		docText = rec.Text
	}
	structure := dxf.Summarize(doc)
	r.setContext(part.ID, render.PromptContext{
		CAM:       r.cfg.CAM,
		DocText:   docText,
		Structure: &structure,
		Examples:  r.cfg.Examples,
	})

	patch, err := r.renderPatch(ctx, u)
	if err != nil {
		res.Err = err
		return res
	}

	out := dxf.Apply(doc, patch)
	res.OutputPath = filepath.Join(r.cfg.OutputDir, part.ID+"_annotated.dxf")
	if err := out.Save(res.OutputPath); err != nil {
		res.Err = err
		return res
	}
	log.Info().Str("output", res.OutputPath).Msg("Part annotated")
	return res
}

// extractAll runs every extractor whose sidecar exists. Extraction failures
// degrade to a missing source, not a failed part.
func (r *runner) extractAll(ctx context.Context, part Part) map[metadata.SourceID]metadata.SourceRecord {
	records := make(map[metadata.SourceID]metadata.SourceRecord)
	run := func(ex extract.Extractor, path string) {
		if path == "" {
			return
		}
		rec, err := ex.Extract(ctx, path)
		if err != nil {
			logging.Warn().Err(err).Str("part", part.ID).Str("source", ex.Source().String()).Msg("Extraction failed, source dropped")
			return
		}
		records[ex.Source()] = *rec
	}
	run(r.qif, part.QIF)
	run(r.step, part.Faces)
	run(r.doc, part.Doc)
	return records
}

// renderPatch tries the configured renderer and falls back to the
// deterministic one when it fails.
func (r *runner) renderPatch(ctx context.Context, u *metadata.Unified) (*dxf.Patch, error) {
	patch, err := r.cfg.Renderer.Render(ctx, u)
	if err == nil {
		return patch, nil
	}
	if r.cfg.Fallback == nil {
		return nil, err
	}
	logging.Warn().Err(err).
		Str("part", u.PartID).
		Str("fallback", r.cfg.Fallback.Name()).
		Msg("Renderer failed, using fallback")
	return r.cfg.Fallback.Render(ctx, u)
}

// writeUnified writes the unified record JSON next to the annotated DXF.
func (r *runner) writeUnified(partID string, u *metadata.Unified) error {
	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return errors.WrapParse("json", partID, err)
	}
	path := filepath.Join(r.cfg.OutputDir, partID+"_unified.json")
	return errors.WrapIO("write", path, os.WriteFile(path, append(data, '\n'), 0o644))
}
