// Package gemini implements the LLM-backed patch renderer on the Gemini API.
package gemini

import (
	"context"
	"os"

	"google.golang.org/genai"

	"github.com/platemark/platemark/pkg/dxf"
	"github.com/platemark/platemark/pkg/errors"
	"github.com/platemark/platemark/pkg/logging"
	"github.com/platemark/platemark/pkg/metadata"
	"github.com/platemark/platemark/pkg/render"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash"

// temperature is kept low: patch JSON is a transcription task, not a
// creative one.
const temperature float32 = 0.2

// Renderer asks a Gemini model for the patch JSON.
type Renderer struct {
	client   *genai.Client
	model    string
	strategy render.Strategy

	// ContextFor supplies per-part prompt context; nil means an empty
	// context for every part.
	ContextFor func(u *metadata.Unified) render.PromptContext
}

// New creates a Gemini renderer. The API key comes from GEMINI_API_KEY or
// GOOGLE_API_KEY; without one the renderer cannot be constructed and the
// caller should fall back to the deterministic renderer.
func New(ctx context.Context, model string, strategy render.Strategy) (*Renderer, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.ErrAPIKeyRequired
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, errors.NewConfigError("gemini", "client creation failed", err)
	}

	if model == "" {
		model = DefaultModel
	}
	return &Renderer{client: client, model: model, strategy: strategy}, nil
}

// Name implements render.Renderer.
func (r *Renderer) Name() string { return "gemini/" + r.strategy.Name() }

// SetContextFor installs the per-part prompt context lookup. The pipeline
// calls this once before processing starts.
func (r *Renderer) SetContextFor(f func(u *metadata.Unified) render.PromptContext) {
	r.ContextFor = f
}

// Render implements render.Renderer.
func (r *Renderer) Render(ctx context.Context, u *metadata.Unified) (*dxf.Patch, error) {
	var pc render.PromptContext
	if r.ContextFor != nil {
		pc = r.ContextFor(u)
	}
	prompt, err := r.strategy.Prompt(u, pc)
	if err != nil {
		return nil, errors.NewRenderError(r.Name(), u.PartID, "prompt construction failed", err)
	}

	resp, err := r.client.Models.GenerateContent(ctx, r.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(temperature),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, errors.NewRenderError(r.Name(), u.PartID, "generation failed", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, errors.NewRenderError(r.Name(), u.PartID, "empty response", nil)
	}

	patch, err := dxf.ParsePatch([]byte(text))
	if err != nil {
		return nil, errors.NewRenderError(r.Name(), u.PartID, "response is not a valid patch", err)
	}
	logging.Debug().
		Str("part", u.PartID).
		Str("model", r.model).
		Str("strategy", r.strategy.Name()).
		Int("header_updates", len(patch.HeaderUpdates)).
		Int("layer_renames", len(patch.LayerRenames)).
		Int("comments", len(patch.AddComments)).
		Msg("Rendered patch")
	return patch, nil
}
