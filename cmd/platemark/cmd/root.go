// Package cmd implements the platemark command-line interface.
package cmd

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/platemark/platemark/pkg/logging"
)

var (
	cfg        *Config
	configFile string
	verbose    bool
	quiet      bool
)

// rootCmd is the base command for the platemark CLI.
var rootCmd = &cobra.Command{
	Use:   "platemark",
	Short: "Embed manufacturing metadata into DXF files",
	Long: `platemark reconciles part metadata scattered across QIF inspection
files, geometry-derived thickness samples and drawing text, and writes the
result into the part's DXF file as header variables, a descriptive layer
name and summary comments. Patches are rendered by an LLM or by a
deterministic template and applied by line-level mutation, so everything
outside the patched lines stays byte-identical.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return err
		}
		cfg.Verbose = cfg.Verbose || verbose
		cfg.Quiet = cfg.Quiet || quiet

		switch {
		case cfg.Quiet:
			zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		case cfg.Verbose:
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		if cfg.ConfigFile != "" {
			logging.Debug().Str("config", cfg.ConfigFile).Msg("Loaded config file")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ~/.platemark.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "errors only")
}

// ExecuteContext runs the root command with the given context.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
