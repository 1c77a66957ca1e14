package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spherical/flyer-extractor/internal/domain"
	"github.com/spherical/flyer-extractor/internal/observability"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	defaultLimit    = 50
)

const productColumns = `id, job_id, supermercato, pagina, nome, marca, categoria, prezzo, prezzo_float,
	descrizione, immagine_prodotto_card, volantino_url, volantino_name, volantino_validita, created_at`

const jobColumns = `job_id, status, progress, total_pages, total_products, message,
	supermercato, source_url, created_at, updated_at`

// SQLStore is the catalog backed by database/sql. Queries are written with ?
// placeholders and rebound for the active driver.
type SQLStore struct {
	db     *sql.DB
	driver string
	logger *observability.Logger
	now    func() time.Time
}

// NewSQLStore wraps an open database. driver is the database/sql driver name.
func NewSQLStore(db *sql.DB, driver string, logger *observability.Logger) *SQLStore {
	if logger == nil {
		logger = observability.Nop()
	}
	return &SQLStore{
		db:     db,
		driver: driver,
		logger: logger.WithOperation("storage"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Migrate creates the tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if s.driver == "postgres" {
		schema = postgresSchema
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return domain.PersistenceError("apply schema", err)
	}
	return nil
}

func (s *SQLStore) q(query string) string {
	return rebind(s.driver, query)
}

// Save inserts one batch of records in a single transaction. On any failure the
// batch is rolled back and earlier batches stay untouched.
func (s *SQLStore) Save(ctx context.Context, jobID string, records []domain.ProductRecord) ([]domain.ProductRecord, error) {
	if len(records) == 0 {
		return records, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.PersistenceError("begin transaction", err)
	}

	query := s.q(`
		INSERT INTO products (job_id, supermercato, pagina, nome, marca, categoria, prezzo, prezzo_float,
			descrizione, immagine_prodotto_card, volantino_url, volantino_name, volantino_validita, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	saved := make([]domain.ProductRecord, len(records))
	now := s.now()
	for i, rec := range records {
		rec.JobID = jobID
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}

		var id int64
		err := tx.QueryRowContext(ctx, query,
			rec.JobID, rec.Retailer, rec.Page, rec.Name, rec.Brand, rec.Category,
			rec.PriceText, rec.PriceValue, rec.Description, rec.CardImage,
			rec.FlyerURL, rec.FlyerName, rec.FlyerValidity, rec.CreatedAt,
		).Scan(&id)
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error().Err(rbErr).Str("job_id", jobID).Msg("rollback failed")
			}
			return nil, domain.PersistenceError(fmt.Sprintf("insert product %q", rec.Name), err)
		}
		rec.Enrich(domain.Enrichment{ID: id})
		saved[i] = rec
	}

	if err := tx.Commit(); err != nil {
		return nil, domain.PersistenceError("commit products", err)
	}

	s.logger.Debug().Str("job_id", jobID).Int("count", len(saved)).Msg("products saved")
	return saved, nil
}

// UpdateStatus upserts the job row.
func (s *SQLStore) UpdateStatus(ctx context.Context, job domain.ExtractionJob) error {
	now := s.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}

	query := s.q(`
		INSERT INTO extraction_jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_id) DO UPDATE SET
			status = excluded.status,
			progress = excluded.progress,
			total_pages = excluded.total_pages,
			total_products = excluded.total_products,
			message = excluded.message,
			supermercato = excluded.supermercato,
			source_url = excluded.source_url,
			updated_at = excluded.updated_at
	`)
	_, err := s.db.ExecContext(ctx, query,
		job.ID, string(job.Status), job.Progress, job.TotalPages, job.TotalProducts, job.Message,
		job.Retailer, job.SourceURL, job.CreatedAt, now,
	)
	if err != nil {
		return domain.PersistenceError(fmt.Sprintf("update job %s", job.ID), err)
	}
	return nil
}

// All returns every product, cheapest first.
func (s *SQLStore) All(ctx context.Context) ([]domain.ProductRecord, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products ORDER BY prezzo_float ASC, id ASC`)
}

// List returns one page of products matching filter, newest first.
func (s *SQLStore) List(ctx context.Context, filter domain.ProductFilter) (*domain.ProductPage, error) {
	page, size := pagination(filter.Page, filter.PageSize)
	where, args := filterClause(filter)

	var total int
	if err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM products`+where), args...).Scan(&total); err != nil {
		return nil, domain.PersistenceError("count products", err)
	}

	query := `SELECT ` + productColumns + ` FROM products` + where + ` ORDER BY id DESC LIMIT ? OFFSET ?`
	items, err := s.queryProducts(ctx, query, append(args, size, (page-1)*size)...)
	if err != nil {
		return nil, err
	}

	return &domain.ProductPage{Total: total, Page: page, PageSize: size, Items: items}, nil
}

// Search matches q against name, brand, category and description, cheapest first.
func (s *SQLStore) Search(ctx context.Context, q string, limit int) ([]domain.ProductRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	where, args := filterClause(domain.ProductFilter{Query: q})
	query := `SELECT ` + productColumns + ` FROM products` + where + ` ORDER BY prezzo_float ASC, id ASC LIMIT ?`
	return s.queryProducts(ctx, query, append(args, limit)...)
}

// JobProducts returns the products of one job in insertion order.
func (s *SQLStore) JobProducts(ctx context.Context, jobID string) ([]domain.ProductRecord, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products WHERE job_id = ? ORDER BY id ASC`, jobID)
}

// Job retrieves a job by ID.
func (s *SQLStore) Job(ctx context.Context, jobID string) (*domain.ExtractionJob, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+jobColumns+` FROM extraction_jobs WHERE job_id = ?`), jobID)
	return scanJob(row)
}

// LatestJob returns the most recently updated job.
func (s *SQLStore) LatestJob(ctx context.Context) (*domain.ExtractionJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM extraction_jobs ORDER BY updated_at DESC LIMIT 1`)
	return scanJob(row)
}

// Retailers lists the distinct retailer names in the catalog.
func (s *SQLStore) Retailers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT supermercato FROM products WHERE supermercato <> '' ORDER BY supermercato`)
	if err != nil {
		return nil, domain.PersistenceError("list retailers", err)
	}
	defer rows.Close()

	retailers := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, domain.PersistenceError("scan retailer", err)
		}
		retailers = append(retailers, name)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.PersistenceError("list retailers", err)
	}
	return retailers, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) queryProducts(ctx context.Context, query string, args ...interface{}) ([]domain.ProductRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, domain.PersistenceError("query products", err)
	}
	defer rows.Close()

	products := []domain.ProductRecord{}
	for rows.Next() {
		var p domain.ProductRecord
		if err := rows.Scan(
			&p.ID, &p.JobID, &p.Retailer, &p.Page, &p.Name, &p.Brand, &p.Category,
			&p.PriceText, &p.PriceValue, &p.Description, &p.CardImage,
			&p.FlyerURL, &p.FlyerName, &p.FlyerValidity, &p.CreatedAt,
		); err != nil {
			return nil, domain.PersistenceError("scan product", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.PersistenceError("query products", err)
	}
	return products, nil
}

func scanJob(row *sql.Row) (*domain.ExtractionJob, error) {
	job := &domain.ExtractionJob{}
	var status string
	err := row.Scan(
		&job.ID, &status, &job.Progress, &job.TotalPages, &job.TotalProducts, &job.Message,
		&job.Retailer, &job.SourceURL, &job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, domain.PersistenceError("scan job", err)
	}
	job.Status = domain.JobStatus(status)
	return job, nil
}

func filterClause(f domain.ProductFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	like := func(v string) string { return "%" + strings.ToLower(strings.TrimSpace(v)) + "%" }

	if strings.TrimSpace(f.Query) != "" {
		conds = append(conds,
			"(LOWER(nome) LIKE ? OR LOWER(marca) LIKE ? OR LOWER(categoria) LIKE ? OR LOWER(descrizione) LIKE ?)")
		v := like(f.Query)
		args = append(args, v, v, v, v)
	}
	if strings.TrimSpace(f.Retailer) != "" {
		conds = append(conds, "LOWER(supermercato) LIKE ?")
		args = append(args, like(f.Retailer))
	}
	if strings.TrimSpace(f.Brand) != "" {
		conds = append(conds, "LOWER(marca) LIKE ?")
		args = append(args, like(f.Brand))
	}
	if strings.TrimSpace(f.Category) != "" {
		conds = append(conds, "LOWER(categoria) LIKE ?")
		args = append(args, like(f.Category))
	}
	if f.PriceMin != nil {
		conds = append(conds, "prezzo_float >= ?")
		args = append(args, *f.PriceMin)
	}
	if f.PriceMax != nil {
		conds = append(conds, "prezzo_float <= ?")
		args = append(args, *f.PriceMax)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func pagination(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}

var _ domain.Catalog = (*SQLStore)(nil)
