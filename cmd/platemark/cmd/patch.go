package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/platemark/platemark/pkg/dxf"
	"github.com/platemark/platemark/pkg/errors"
	"github.com/platemark/platemark/pkg/logging"
)

var patchCmd = &cobra.Command{
	Use:   "patch",
	Short: "Apply one patch JSON to one DXF file",
	Long: `Applies a patch file (the JSON shape the renderers emit) directly
to a DXF file, bypassing extraction and reconciliation. Useful for replaying
a rendered patch or for hand-written fixes.`,
	RunE: runPatch,
}

func init() {
	patchCmd.Flags().String("dxf", "", "DXF file to patch (required)")
	patchCmd.Flags().String("patch", "", "patch JSON file (required)")
	patchCmd.Flags().String("output", "", "output path (default <dxf>_annotated.dxf)")
	_ = patchCmd.MarkFlagRequired("dxf")
	_ = patchCmd.MarkFlagRequired("patch")
	rootCmd.AddCommand(patchCmd)
}

func runPatch(cmd *cobra.Command, args []string) error {
	dxfPath, _ := cmd.Flags().GetString("dxf")
	patchPath, _ := cmd.Flags().GetString("patch")
	outPath, _ := cmd.Flags().GetString("output")

	doc, err := dxf.Load(dxfPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(patchPath)
	if err != nil {
		return errors.WrapIO("read", patchPath, err)
	}
	patch, err := dxf.ParsePatch(data)
	if err != nil {
		return err
	}
	if patch.Empty() {
		logging.Warn().Str("patch", patchPath).Msg("Patch requests no mutation")
	}

	if outPath == "" {
		outPath = strings.TrimSuffix(dxfPath, ".dxf") + "_annotated.dxf"
	}
	if err := dxf.Apply(doc, patch).Save(outPath); err != nil {
		return err
	}
	logging.Info().Str("output", outPath).Msg("Patch applied")
	return nil
}
