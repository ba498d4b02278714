package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/platemark/platemark/internal/cmd/output"
	"github.com/platemark/platemark/internal/pipeline"
	"github.com/platemark/platemark/pkg/gauge"
	"github.com/platemark/platemark/pkg/metadata"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Extract and reconcile metadata without touching any DXF",
	Long: `Runs extraction and reconciliation over the input directory and
prints the unified record per part, including validation errors. Nothing is
written; use this to audit a batch before annotating it.`,
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().String("input", "", "input directory (required)")
	inspectCmd.Flags().StringP("output", "o", "", "output format: table, json or yaml (default: table on a terminal, json otherwise)")
	inspectCmd.Flags().String("params", "", "thickness vote parameter YAML")
	_ = inspectCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(inspectCmd)
}

// inspectRow is one part's unified record flattened for output.
type inspectRow struct {
	Part       string `json:"part" yaml:"part"`
	Material   string `json:"material" yaml:"material"`
	Thickness  string `json:"thickness" yaml:"thickness"`
	PartID     string `json:"part_id" yaml:"part_id"`
	Sources    string `json:"sources" yaml:"sources"`
	Consistent bool   `json:"consistent" yaml:"consistent"`
	Errors     string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	inputDir, _ := cmd.Flags().GetString("input")

	params := gauge.DefaultParams()
	if paramsFile, _ := cmd.Flags().GetString("params"); paramsFile != "" {
		loaded, err := gauge.LoadParams(paramsFile)
		if err != nil {
			return err
		}
		params = loaded
	}

	results, err := pipeline.Inspect(cmd.Context(), pipeline.Config{
		InputDir: inputDir,
		Params:   params,
	})
	if err != nil {
		return err
	}

	rows := make([]inspectRow, 0, len(results))
	for _, res := range results {
		row := inspectRow{Part: res.PartID}
		if res.Unified != nil {
			row.Material = res.Unified.Material
			row.Thickness = res.Unified.Thickness
			row.PartID = res.Unified.PartID
			row.Sources = joinSources(res.Unified.Sources)
			row.Consistent = res.Unified.Consistent()
			row.Errors = strings.Join(res.Unified.ValidationErrors, "; ")
		} else if res.Err != nil {
			row.Errors = res.Err.Error()
		}
		rows = append(rows, row)
	}

	explicit, _ := cmd.Flags().GetString("output")
	format, err := output.ParseFormat(explicit)
	if err != nil {
		return err
	}
	return output.NewFormatter(output.DetectFormat(string(format))).Format(os.Stdout, rows)
}

// joinSources lists the sources that contributed, in deterministic order.
func joinSources(sources map[metadata.SourceID]metadata.SourceRecord) string {
	var ids []string
	for _, id := range metadata.SourceIDs() {
		if _, ok := sources[id]; ok {
			ids = append(ids, id.String())
		}
	}
	return strings.Join(ids, ",")
}
