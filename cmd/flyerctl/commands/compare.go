package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/spherical/flyer-extractor/internal/domain"
	"github.com/spherical/flyer-extractor/internal/pricing"
)

func newCompareCmd(env *environment) *cobra.Command {
	var items []string

	cmd := &cobra.Command{
		Use:     "compare",
		Short:   "Find the cheapest stored offer for each item of a shopping list",
		Example: `  flyerctl compare --item "pasta|barilla|2" --item "passata"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			queries := make([]domain.CompareQuery, 0, len(items))
			for _, it := range items {
				q, err := parseItem(it)
				if err != nil {
					return err
				}
				queries = append(queries, q)
			}

			catalog, err := env.openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer catalog.Close()

			cmp, closeCache := env.comparisonService(catalog)
			defer closeCache()

			result, err := cmp.Compare(cmd.Context(), queries)
			if err != nil {
				return err
			}

			printComparison(env, result)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&items, "item", "i", nil, `shopping list line as "nome|marca|qty" (repeatable)`)
	_ = cmd.MarkFlagRequired("item")
	return cmd
}

func printComparison(env *environment, result *domain.CompareResult) {
	rows := make([][]string, 0, len(result.Lines))
	missing := 0
	for _, line := range result.Lines {
		row := []string{line.Query.Name, strconv.Itoa(line.Query.Quantity), "-", "-", "-", "-"}
		if line.Best != nil {
			row[2] = line.Best.Name
			row[3] = orDash(line.Best.Retailer)
			row[4] = pricing.Format(line.Best.PriceValue)
			row[5] = pricing.Format(line.LineTotal)
		} else {
			missing++
		}
		rows = append(rows, row)
	}

	env.ui.Table([]string{"Articolo", "Qtà", "Offerta migliore", "Supermercato", "Prezzo", "Totale"}, rows)
	if missing > 0 {
		env.ui.Warning("%d articoli senza offerte", missing)
	}
	env.ui.Success("Totale: %s €", pricing.Format(result.Total))
}
