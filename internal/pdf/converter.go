// Package pdf renders flyer PDFs into page images and resolves PDF sources.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"

	"github.com/spherical/flyer-extractor/internal/domain"
	"github.com/spherical/flyer-extractor/internal/observability"
)

// DefaultScale is the linear render scale; 72 DPI * 2.0 keeps small price
// labels legible without bloating the request payload.
const DefaultScale = 2.0

// ConverterOptions configures a Converter.
type ConverterOptions struct {
	Scale    float64
	TempRoot string // parent of the job temp dir; "" uses os.TempDir()
	JobID    string
	Logger   *observability.Logger
}

// Converter renders a PDF to PNG pages inside a job-scoped temp directory.
// A Converter serves a single job and is not safe for concurrent use.
type Converter struct {
	opts      ConverterOptions
	validator *Validator
	logger    *observability.Logger
	doc       *fitz.Document
	tempDir   string
}

// NewConverter creates a new PDF converter instance
func NewConverter(opts ConverterOptions) *Converter {
	if opts.Scale == 0 {
		opts.Scale = DefaultScale
	}
	if opts.Logger == nil {
		opts.Logger = observability.Nop()
	}
	logger := opts.Logger.WithOperation("render")

	return &Converter{
		opts:      opts,
		validator: NewValidator(logger),
		logger:    logger,
	}
}

// TempDir returns the job temp directory, creating it on first use.
func (c *Converter) TempDir() (string, error) {
	if c.tempDir != "" {
		return c.tempDir, nil
	}

	pattern := "flyer-*"
	if c.opts.JobID != "" {
		pattern = fmt.Sprintf("flyer-%s-*", c.opts.JobID)
	}
	dir, err := os.MkdirTemp(c.opts.TempRoot, pattern)
	if err != nil {
		return "", domain.IOError("failed to create temp directory", err)
	}
	c.tempDir = dir
	return dir, nil
}

// Convert renders every page of pdfPath to page_N.png. Any failure is reported
// once for the whole document: partial pages are removed and no pages are returned.
func (c *Converter) Convert(ctx context.Context, pdfPath string) ([]domain.PageImage, error) {
	pages, err := c.convert(ctx, pdfPath)
	if err != nil {
		c.removePages(pages)
		c.logger.Error().Err(err).Str("pdf", pdfPath).Msg("PDF rendering failed")
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if domain.TypeOf(err) == "" || domain.IsType(err, domain.ErrorTypeValidation) || domain.IsType(err, domain.ErrorTypeIO) {
			err = domain.RenderError("failed to render PDF", err)
		}
		return nil, err
	}

	c.logger.Info().Int("pages", len(pages)).Float64("scale", c.opts.Scale).Msg("PDF rendered")
	return pages, nil
}

func (c *Converter) convert(ctx context.Context, pdfPath string) ([]domain.PageImage, error) {
	if err := c.validator.ValidatePDFPath(pdfPath); err != nil {
		return nil, err
	}
	if err := c.validator.ValidateScale(c.opts.Scale); err != nil {
		return nil, err
	}

	dir, err := c.TempDir()
	if err != nil {
		return nil, err
	}

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, domain.RenderError("failed to open PDF", err)
	}
	c.doc = doc
	defer c.closeDoc()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, domain.RenderError("PDF has no pages", nil)
	}

	dpi := 72 * c.opts.Scale
	pages := make([]domain.PageImage, 0, pageCount)

	for n := 0; n < pageCount; n++ {
		if err := ctx.Err(); err != nil {
			return pages, err
		}

		img, err := doc.ImageDPI(n, dpi)
		if err != nil {
			return pages, domain.RenderError(fmt.Sprintf("failed to render page %d", n+1), err)
		}

		outputPath := filepath.Join(dir, fmt.Sprintf("page_%d.png", n+1))
		if err := writePNG(outputPath, img); err != nil {
			return pages, domain.IOError(fmt.Sprintf("failed to write page %d", n+1), err)
		}

		bounds := img.Bounds()
		pages = append(pages, domain.PageImage{
			PageNumber: n + 1,
			ImagePath:  outputPath,
			Width:      bounds.Dx(),
			Height:     bounds.Dy(),
		})
	}

	return pages, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (c *Converter) removePages(pages []domain.PageImage) {
	for _, p := range pages {
		_ = os.Remove(p.ImagePath)
	}
}

func (c *Converter) closeDoc() {
	if c.doc != nil {
		_ = c.doc.Close()
		c.doc = nil
	}
}

// Cleanup closes the document and removes the job temp directory. Safe to call repeatedly.
func (c *Converter) Cleanup() error {
	c.closeDoc()

	if c.tempDir == "" {
		return nil
	}
	dir := c.tempDir
	c.tempDir = ""

	if err := os.RemoveAll(dir); err != nil {
		return domain.IOError("failed to remove temp directory", err)
	}
	c.logger.Debug().Str("dir", dir).Msg("temp directory removed")
	return nil
}

var _ domain.Renderer = (*Converter)(nil)
