package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spherical/flyer-extractor/internal/flyers"
)

func newFlyersCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "flyers",
		Short: "List the flyers currently published on the index page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scraper := flyers.NewScraper(flyers.ConfigFrom(env.cfg.Scraper), env.logger)

			spin := env.ui.NewSpinner("Lettura indice volantini...")
			spin.Start()
			found, err := scraper.Scrape(cmd.Context())
			spin.Stop()

			if err != nil {
				return fmt.Errorf("flyer index unavailable: %w", err)
			}
			if len(found) == 0 {
				env.ui.Warning("Nessun volantino trovato su %s", env.cfg.Scraper.IndexURL)
				return nil
			}

			rows := make([][]string, 0, len(found))
			for _, f := range found {
				rows = append(rows, []string{f.Name, f.Validity, f.URL})
			}
			env.ui.Table([]string{"Nome", "Validità", "URL"}, rows)
			env.ui.Success("%d volantini trovati", len(found))
			return nil
		},
	}
}
