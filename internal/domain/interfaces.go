package domain

import "context"

// Renderer defines the interface for converting PDF to images
type Renderer interface {
	// Convert turns a PDF into a slice of page images, numbered from 1
	Convert(ctx context.Context, pdfPath string) ([]PageImage, error)

	// TempDir returns the job-scoped directory that Cleanup removes
	TempDir() (string, error)

	// Cleanup removes temporary files created during conversion
	Cleanup() error
}

// SourceResolver turns a PDF source locator into a local file path.
type SourceResolver interface {
	Resolve(ctx context.Context, source string, kind SourceType, dir, jobID string) (string, error)
}

// PageExtractor extracts raw products from one page image. It never fails:
// every problem degrades to an empty slice.
type PageExtractor interface {
	Extract(ctx context.Context, page PageImage) []RawProduct
}

// ProductStore is the persistence collaborator used during extraction.
type ProductStore interface {
	// Save inserts one batch and returns it with assigned IDs
	Save(ctx context.Context, jobID string, records []ProductRecord) ([]ProductRecord, error)

	// UpdateStatus records the latest state of a job
	UpdateStatus(ctx context.Context, job ExtractionJob) error
}

// CatalogReader is the read side of the persisted catalog.
type CatalogReader interface {
	All(ctx context.Context) ([]ProductRecord, error)
	List(ctx context.Context, filter ProductFilter) (*ProductPage, error)
	Search(ctx context.Context, query string, limit int) ([]ProductRecord, error)
	JobProducts(ctx context.Context, jobID string) ([]ProductRecord, error)
	Job(ctx context.Context, jobID string) (*ExtractionJob, error)
	LatestJob(ctx context.Context) (*ExtractionJob, error)
	Retailers(ctx context.Context) ([]string, error)
}

// Catalog is a store that can be written during extraction and queried afterwards.
type Catalog interface {
	ProductStore
	CatalogReader
	Close() error
}

// CardID names the parts that make a product card file unique.
type CardID struct {
	JobID        string
	Page         int
	ProductIndex int
}

// CardStore stores image artifacts derived from rendered pages.
type CardStore interface {
	SaveCard(product ProductRecord, sourceImage, outputDir string, id CardID) (string, error)
	SaveOriginal(sourceImage, outputDir, jobID string, page int) (string, error)
}
