package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/spherical/flyer-extractor/cmd/flyerctl/ui"
	"github.com/spherical/flyer-extractor/internal/cards"
	"github.com/spherical/flyer-extractor/internal/domain"
	"github.com/spherical/flyer-extractor/internal/extract"
	"github.com/spherical/flyer-extractor/internal/pdf"
)

// maxListed bounds the product table printed after an extraction.
const maxListed = 25

func newExtractCmd(env *environment) *cobra.Command {
	var retailer, output string

	cmd := &cobra.Command{
		Use:   "extract <pdf|url>",
		Short: "Extract products from a flyer PDF",
		Long:  "Render every page of a flyer PDF, extract its products with the vision model and store them in the catalog.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd.Context(), env, args[0], retailer, output)
		},
	}

	cmd.Flags().StringVarP(&retailer, "retailer", "r", "", "supermarket name (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "also write the job summary as JSON to this file")
	return cmd
}

func runExtract(ctx context.Context, env *environment, arg, retailer, output string) error {
	source, kind, err := sourceOf(arg)
	if err != nil {
		return err
	}
	if !env.cfg.HasAPIKeys() {
		return fmt.Errorf("no vision API key configured: set GEMINI_API_KEY")
	}

	catalog, err := env.openCatalog(ctx)
	if err != nil {
		return err
	}
	defer catalog.Close()

	cmp, closeCache := env.comparisonService(catalog)
	defer closeCache()

	factory, err := extract.NewFactory(extract.ConfigFromSettings(env.cfg), extract.Dependencies{
		Resolver:    pdf.NewDownloader(nil, env.cfg.Extraction.DownloadTimeout, env.logger),
		Store:       catalog,
		Cards:       cards.NewFileStore(),
		Invalidator: cmp,
		Logger:      env.logger,
	})
	if err != nil {
		return err
	}

	jobID := strconv.FormatInt(time.Now().Unix(), 10)
	svc, err := factory.NewJob(jobID)
	if err != nil {
		return err
	}

	env.ui.Section("Estrazione volantino")
	env.ui.Info("Sorgente: %s", source)
	env.ui.Info("Job: %s", jobID)

	events := make(chan domain.StreamEvent, extract.EventBuffer)
	done := make(chan *domain.JobSummary, 1)
	start := time.Now()

	go func() {
		defer close(events)
		done <- svc.Stream(events).Run(ctx, domain.JobRequest{
			JobID:      jobID,
			Source:     source,
			SourceType: kind,
			Retailer:   retailer,
		})
	}()

	showProgress(env.ui, events)
	summary := <-done

	if summary.Status != domain.JobCompleted {
		env.ui.Error("%s", summary.Message)
		return fmt.Errorf("extraction failed: %s", summary.Message)
	}

	env.ui.Success("%d prodotti estratti in %s", summary.TotalProducts, ui.FormatDuration(time.Since(start)))
	printProducts(env.ui, summary.Products)

	if output != "" {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(output, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", output, err)
		}
		env.ui.Success("Risultati salvati in %s", output)
	}
	return nil
}

// showProgress drives a page progress bar until events is closed.
func showProgress(u *ui.UI, events <-chan domain.StreamEvent) {
	var bar *progressbar.ProgressBar
	pages := 0

	for event := range events {
		switch event.Type {
		case domain.EventPageProcessing:
			if bar == nil {
				bar = u.NewProgressBar(event.TotalPages, "Pagine")
			}
		case domain.EventPageComplete:
			pages++
			if bar != nil {
				_ = bar.Set(pages)
			}
		case domain.EventError:
			u.Warning("%v", event.Payload)
		case domain.EventComplete:
			if bar != nil {
				_ = bar.Finish()
			}
		}
	}
}

func printProducts(u *ui.UI, products []domain.ProductRecord) {
	if len(products) == 0 {
		return
	}

	rows := make([][]string, 0, maxListed)
	for i, p := range products {
		if i == maxListed {
			break
		}
		rows = append(rows, []string{strconv.Itoa(p.Page), p.Name, orDash(p.Brand), orDash(p.PriceText)})
	}
	u.Table([]string{"Pagina", "Nome", "Marca", "Prezzo"}, rows)
	if len(products) > maxListed {
		u.Info("... e altri %d prodotti", len(products)-maxListed)
	}
}
