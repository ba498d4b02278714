package cmd

import (
	"github.com/spf13/cobra"

	"github.com/platemark/platemark/internal/pipeline"
	"github.com/platemark/platemark/internal/renderers/gemini"
	"github.com/platemark/platemark/pkg/errors"
	"github.com/platemark/platemark/pkg/gauge"
	"github.com/platemark/platemark/pkg/logging"
	"github.com/platemark/platemark/pkg/render"
)

var annotateCmd = &cobra.Command{
	Use:   "annotate",
	Short: "Annotate every part in a directory",
	Long: `Discovers parts in the input directory by filename stem (X.dxf plus
optional X.qif, X.faces.json, X.txt/X.csv sidecars), reconciles their
metadata and writes <part>_annotated.dxf and <part>_unified.json to the
output directory. Parts with contradictory metadata are reported and left
unannotated.`,
	RunE: runAnnotate,
}

func init() {
	annotateCmd.Flags().String("input", "", "input directory (required)")
	annotateCmd.Flags().String("output", "", "output directory (required)")
	annotateCmd.Flags().String("strategy", render.StrategyZeroShot, "patch strategy: zero-shot, few-shot, retrieval or template")
	annotateCmd.Flags().String("model", gemini.DefaultModel, "Gemini model name")
	annotateCmd.Flags().Int("workers", 4, "parts processed in parallel")
	annotateCmd.Flags().String("params", "", "thickness vote parameter YAML")
	annotateCmd.Flags().String("examples", "", "few-shot example pack YAML")
	annotateCmd.Flags().String("cam", "", "target CAM dialect for prompt context")
	_ = annotateCmd.MarkFlagRequired("input")
	_ = annotateCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(annotateCmd)
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	pcfg, err := pipelineConfig(cmd)
	if err != nil {
		return err
	}

	results, err := pipeline.Run(cmd.Context(), *pcfg)
	if err != nil {
		return err
	}

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			logging.Error().Str("part", res.PartID).Err(res.Err).Msg("Part failed")
		}
	}
	if failed > 0 {
		return errors.NewValidationError("", nil, "some parts failed, see log")
	}
	return nil
}

// pipelineConfig assembles a pipeline.Config from flags and loaded config.
func pipelineConfig(cmd *cobra.Command) (*pipeline.Config, error) {
	flagString := func(name, fallback string) string {
		if cmd.Flags().Changed(name) || fallback == "" {
			v, _ := cmd.Flags().GetString(name)
			return v
		}
		return fallback
	}

	params := gauge.DefaultParams()
	if paramsFile := flagString("params", cfg.ParamsFile); paramsFile != "" {
		loaded, err := gauge.LoadParams(paramsFile)
		if err != nil {
			return nil, err
		}
		params = loaded
	}

	var examples []render.Example
	if examplesFile := flagString("examples", cfg.ExamplesFile); examplesFile != "" {
		loaded, err := render.LoadExamples(examplesFile)
		if err != nil {
			return nil, err
		}
		examples = loaded
	}

	workers, _ := cmd.Flags().GetInt("workers")
	if !cmd.Flags().Changed("workers") && cfg.Workers > 0 {
		workers = cfg.Workers
	}

	pcfg := &pipeline.Config{
		InputDir:  flagString("input", cfg.InputDir),
		OutputDir: flagString("output", cfg.OutputDir),
		CAM:       flagString("cam", cfg.CAM),
		Workers:   workers,
		Params:    params,
		Examples:  examples,
		Fallback:  render.TemplateRenderer{},
	}

	strategyName := flagString("strategy", cfg.Strategy)
	if strategyName == render.StrategyTemplate {
		pcfg.Renderer = render.TemplateRenderer{}
		pcfg.Fallback = nil
		return pcfg, nil
	}

	strategy, err := render.NewStrategy(strategyName)
	if err != nil {
		return nil, err
	}
	renderer, err := gemini.New(cmd.Context(), flagString("model", cfg.Model), strategy)
	if err != nil {
		return nil, err
	}
	pcfg.Renderer = renderer
	return pcfg, nil
}
