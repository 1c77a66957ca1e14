// Package commands implements the flyerctl command tree.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/spherical/flyer-extractor/cmd/flyerctl/ui"
	"github.com/spherical/flyer-extractor/internal/config"
	"github.com/spherical/flyer-extractor/internal/observability"
)

var version = "0.1.0"

// environment is shared by every subcommand once the root pre-run has loaded it.
type environment struct {
	cfgFile string
	verbose bool
	noColor bool

	cfg    *config.Config
	logger *observability.Logger
	ui     *ui.UI
}

// NewRootCmd builds the flyerctl command tree.
func NewRootCmd() *cobra.Command {
	env := &environment{}

	root := &cobra.Command{
		Use:   "flyerctl",
		Short: "Extract and compare supermarket flyer offers",
		Long: `flyerctl extracts product offers from supermarket flyer PDFs with a vision model,
stores them in the catalog, and compares shopping lists against the stored offers.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return env.load(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&env.cfgFile, "config", "c", os.Getenv("CONFIG_PATH"), "config file path")
	root.PersistentFlags().BoolVarP(&env.verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().BoolVar(&env.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newExtractCmd(env),
		newFlyersCmd(env),
		newCompareCmd(env),
		newExportCmd(env),
	)
	return root
}

func (e *environment) load(cmd *cobra.Command) error {
	cfg, err := config.Load(e.cfgFile)
	if err != nil {
		return err
	}

	// Keep the terminal for progress output unless asked otherwise.
	level := "warn"
	if e.verbose {
		level = "debug"
	}

	e.cfg = cfg
	e.logger = observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      "console",
		Output:      cmd.ErrOrStderr(),
		ServiceName: cfg.Observability.ServiceName,
	})
	e.ui = ui.New(cmd.OutOrStdout(), cmd.ErrOrStderr(), e.noColor)
	return nil
}
