package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spherical/flyer-extractor/internal/domain"
)

// MemoryStore keeps the catalog in process memory. It is used when the
// database is switched off and in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	products []domain.ProductRecord
	jobs     map[string]domain.ExtractionJob
	latest   string
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory catalog.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]domain.ExtractionJob),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Save appends records; IDs continue from the number of stored products.
func (m *MemoryStore) Save(_ context.Context, jobID string, records []domain.ProductRecord) ([]domain.ProductRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := make([]domain.ProductRecord, len(records))
	now := m.now()
	for i, rec := range records {
		rec.JobID = jobID
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		rec.Enrich(domain.Enrichment{ID: int64(len(m.products) + 1)})
		m.products = append(m.products, rec)
		saved[i] = rec
	}
	return saved, nil
}

// UpdateStatus records the latest state of a job.
func (m *MemoryStore) UpdateStatus(_ context.Context, job domain.ExtractionJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if prev, ok := m.jobs[job.ID]; ok && !prev.CreatedAt.IsZero() {
		job.CreatedAt = prev.CreatedAt
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	m.jobs[job.ID] = job
	m.latest = job.ID
	return nil
}

func (m *MemoryStore) All(_ context.Context) ([]domain.ProductRecord, error) {
	m.mu.RLock()
	out := append([]domain.ProductRecord(nil), m.products...)
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].PriceValue < out[j].PriceValue })
	return out, nil
}

func (m *MemoryStore) List(_ context.Context, filter domain.ProductFilter) (*domain.ProductPage, error) {
	page, size := pagination(filter.Page, filter.PageSize)

	m.mu.RLock()
	var matched []domain.ProductRecord
	for i := len(m.products) - 1; i >= 0; i-- {
		if matches(m.products[i], filter) {
			matched = append(matched, m.products[i])
		}
	}
	m.mu.RUnlock()

	items := []domain.ProductRecord{}
	if start := (page - 1) * size; start < len(matched) {
		end := start + size
		if end > len(matched) {
			end = len(matched)
		}
		items = append(items, matched[start:end]...)
	}
	return &domain.ProductPage{Total: len(matched), Page: page, PageSize: size, Items: items}, nil
}

func (m *MemoryStore) Search(ctx context.Context, q string, limit int) ([]domain.ProductRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	all, _ := m.All(ctx)

	out := []domain.ProductRecord{}
	for _, p := range all {
		if len(out) == limit {
			break
		}
		if matches(p, domain.ProductFilter{Query: q}) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryStore) JobProducts(_ context.Context, jobID string) ([]domain.ProductRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []domain.ProductRecord{}
	for _, p := range m.products {
		if p.JobID == jobID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryStore) Job(_ context.Context, jobID string) (*domain.ExtractionJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return &job, nil
}

func (m *MemoryStore) LatestJob(_ context.Context) (*domain.ExtractionJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[m.latest]
	if !ok {
		return nil, ErrNotFound
	}
	return &job, nil
}

func (m *MemoryStore) Retailers(_ context.Context) ([]string, error) {
	m.mu.RLock()
	seen := make(map[string]struct{})
	for _, p := range m.products {
		if p.Retailer != "" {
			seen[p.Retailer] = struct{}{}
		}
	}
	m.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

func matches(p domain.ProductRecord, f domain.ProductFilter) bool {
	contains := func(field, v string) bool {
		return strings.Contains(strings.ToLower(field), strings.ToLower(strings.TrimSpace(v)))
	}

	if q := strings.TrimSpace(f.Query); q != "" &&
		!contains(p.Name, q) && !contains(p.Brand, q) && !contains(p.Category, q) && !contains(p.Description, q) {
		return false
	}
	if f.Retailer != "" && !contains(p.Retailer, f.Retailer) {
		return false
	}
	if f.Brand != "" && !contains(p.Brand, f.Brand) {
		return false
	}
	if f.Category != "" && !contains(p.Category, f.Category) {
		return false
	}
	if f.PriceMin != nil && p.PriceValue < *f.PriceMin {
		return false
	}
	if f.PriceMax != nil && p.PriceValue > *f.PriceMax {
		return false
	}
	return true
}

var _ domain.Catalog = (*MemoryStore)(nil)
