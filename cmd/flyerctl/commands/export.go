package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spherical/flyer-extractor/internal/export"
)

func newExportCmd(env *environment) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the stored catalog to an Excel workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := env.openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer catalog.Close()

			products, err := catalog.All(cmd.Context())
			if err != nil {
				return err
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}
			if err := export.WriteXLSX(f, products); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			env.ui.Success("%d prodotti esportati in %s", len(products), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "prodotti.xlsx", "output workbook path")
	return cmd
}
