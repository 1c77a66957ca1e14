package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// JobStatus is the lifecycle state of an extraction job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// SourceType tells the orchestrator how to resolve a PDF source.
type SourceType string

const (
	SourceURL  SourceType = "url"
	SourceFile SourceType = "file"
)

// ExtractionJob identifies one run over one flyer document.
type ExtractionJob struct {
	ID            string    `json:"job_id"`
	Status        JobStatus `json:"status"`
	Progress      int       `json:"progress"`
	TotalPages    int       `json:"total_pages"`
	TotalProducts int       `json:"total_products"`
	Message       string    `json:"message"`
	Retailer      string    `json:"supermercato,omitempty"`
	SourceURL     string    `json:"source_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// JobRequest is the input of a single extraction run.
type JobRequest struct {
	JobID      string
	Source     string
	SourceType SourceType
	Retailer   string
	Flyer      *Flyer
}

// JobSummary is what an extraction run hands back to its caller.
type JobSummary struct {
	JobID         string          `json:"job_id"`
	Status        JobStatus       `json:"status"`
	TotalProducts int             `json:"total_products"`
	Message       string          `json:"message,omitempty"`
	Products      []ProductRecord `json:"products"`
}

// PageImage represents a single rendered PDF page
type PageImage struct {
	PageNumber int
	ImagePath  string // Path inside the job temp dir
	Width      int
	Height     int
}

// PriceText holds the price exactly as the model wrote it. The model is told to
// answer with a string but numbers and nulls show up too.
type PriceText string

// UnmarshalJSON accepts a JSON string, number or null.
func (p *PriceText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*p = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = PriceText(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*p = PriceText(n.String())
		return nil
	}
}

// RawProduct is one item of the "prodotti" list returned by the vision model.
type RawProduct struct {
	Name        string    `json:"nome"`
	Brand       string    `json:"marca"`
	Category    string    `json:"categoria"`
	Price       PriceText `json:"prezzo"`
	Description string    `json:"descrizione"`
}

// ProductRecord is the canonical extracted entity.
type ProductRecord struct {
	ID            int64     `json:"db_id,omitempty"`
	JobID         string    `json:"job_id"`
	Retailer      string    `json:"supermercato"`
	Page          int       `json:"pagina"`
	Name          string    `json:"nome"`
	Brand         string    `json:"marca"`
	Category      string    `json:"categoria"`
	PriceText     string    `json:"prezzo"`
	PriceValue    float64   `json:"prezzo_float"`
	Description   string    `json:"descrizione"`
	CardImage     string    `json:"immagine_prodotto_card,omitempty"`
	FlyerURL      string    `json:"volantino_url,omitempty"`
	FlyerName     string    `json:"volantino_name,omitempty"`
	FlyerValidity string    `json:"volantino_validita,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
}

// NewProductRecord builds a record from a raw model item plus the page/job/retailer it came from.
func NewProductRecord(raw RawProduct, page int, jobID, retailer string, normalize func(string) float64) ProductRecord {
	rec := ProductRecord{
		JobID:       jobID,
		Retailer:    retailer,
		Page:        page,
		Name:        strings.TrimSpace(raw.Name),
		Brand:       strings.TrimSpace(raw.Brand),
		Category:    strings.TrimSpace(raw.Category),
		PriceText:   strings.TrimSpace(string(raw.Price)),
		Description: strings.TrimSpace(raw.Description),
	}
	if normalize != nil {
		rec.PriceValue = normalize(rec.PriceText)
	}
	return rec
}

// Enrichment carries the optional fields added after extraction.
type Enrichment struct {
	ID            int64
	CardImage     string
	FlyerURL      string
	FlyerName     string
	FlyerValidity string
}

// Enrich merges e into the record. Zero-valued fields of e leave the record untouched.
func (r *ProductRecord) Enrich(e Enrichment) {
	if e.ID != 0 {
		r.ID = e.ID
	}
	if e.CardImage != "" {
		r.CardImage = e.CardImage
	}
	if e.FlyerURL != "" {
		r.FlyerURL = e.FlyerURL
	}
	if e.FlyerName != "" {
		r.FlyerName = e.FlyerName
	}
	if e.FlyerValidity != "" {
		r.FlyerValidity = e.FlyerValidity
	}
}

// FlyerEnrichment returns the enrichment derived from a flyer descriptor.
func FlyerEnrichment(f *Flyer) Enrichment {
	if f == nil {
		return Enrichment{}
	}
	return Enrichment{FlyerURL: f.URL, FlyerName: f.Name, FlyerValidity: f.Validity}
}

// Flyer is a reference descriptor produced by the flyer index scraper.
type Flyer struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Validity string `json:"validity"`
}

// CompareQuery is one shopping-list line.
type CompareQuery struct {
	Name     string `json:"nome"`
	Brand    string `json:"marca,omitempty"`
	Quantity int    `json:"qty"`
}

// Offer is a catalog record projected with its line total.
type Offer struct {
	ProductRecord
	LineTotal float64 `json:"line_total"`
}

// CompareLine is the comparison outcome for one query.
type CompareLine struct {
	Query     CompareQuery `json:"query"`
	Best      *Offer       `json:"best"`
	Offers    []Offer      `json:"offers"`
	LineTotal float64      `json:"line_total"`
}

// CompareResult is the comparison outcome for a whole shopping list.
type CompareResult struct {
	Lines []CompareLine `json:"items"`
	Total float64       `json:"best_total"`
}

// ProductFilter drives catalog listing.
type ProductFilter struct {
	Query    string
	Retailer string
	Brand    string
	Category string
	PriceMin *float64
	PriceMax *float64
	Page     int
	PageSize int
}

// ProductPage is a page of catalog records.
type ProductPage struct {
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	Items    []ProductRecord `json:"products"`
}

// EventType represents the type of stream event
type EventType string

const (
	EventStart          EventType = "start"
	EventPageProcessing EventType = "page_processing"
	EventPageComplete   EventType = "page_complete"
	EventError          EventType = "error"
	EventComplete       EventType = "complete"
)

// StreamEvent represents an event emitted during processing
type StreamEvent struct {
	Type       EventType   `json:"type"`
	JobID      string      `json:"job_id"`
	PageNumber int         `json:"page_number,omitempty"`
	TotalPages int         `json:"total_pages,omitempty"`
	Products   int         `json:"products,omitempty"`
	Payload    interface{} `json:"payload,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}
