package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/flyer-extractor/cmd/flyer-api/handlers"
	"github.com/spherical/flyer-extractor/internal/cache"
	"github.com/spherical/flyer-extractor/internal/cards"
	"github.com/spherical/flyer-extractor/internal/comparison"
	"github.com/spherical/flyer-extractor/internal/config"
	"github.com/spherical/flyer-extractor/internal/domain"
	"github.com/spherical/flyer-extractor/internal/export"
	"github.com/spherical/flyer-extractor/internal/extract"
	"github.com/spherical/flyer-extractor/internal/metrics"
	"github.com/spherical/flyer-extractor/internal/observability"
	"github.com/spherical/flyer-extractor/internal/storage"
)

type stubRenderer struct{ dir string }

func (r *stubRenderer) Convert(_ context.Context, _ string) ([]domain.PageImage, error) {
	path := filepath.Join(r.dir, "page_1.png")
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 40, 60))); err != nil {
		return nil, err
	}
	return []domain.PageImage{{PageNumber: 1, ImagePath: path}}, nil
}
func (r *stubRenderer) TempDir() (string, error) { return r.dir, nil }
func (r *stubRenderer) Cleanup() error           { return nil }

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, _ string, _ domain.SourceType, dir, jobID string) (string, error) {
	return dir + "/" + jobID + ".pdf", nil
}

type stubExtractor struct{}

func (stubExtractor) Extract(_ context.Context, _ domain.PageImage) []domain.RawProduct {
	return []domain.RawProduct{
		{Name: "Pasta Barilla 500g", Brand: "Barilla", Category: "Pasta", Price: "1,20 €"},
		{Name: "Passata Mutti", Brand: "Mutti", Category: "Conserve", Price: "0,89"},
	}
}

// stubFactory builds jobs over stubs that share the app catalog.
type stubFactory struct {
	t         *testing.T
	catalog   domain.Catalog
	inval     extract.Invalidator
	imagesDir string
	err       error
}

func (f *stubFactory) NewJob(_ string) (*extract.Service, error) {
	if f.err != nil {
		return nil, f.err
	}
	return extract.NewService(extract.Dependencies{
		Renderer:    &stubRenderer{dir: f.t.TempDir()},
		Resolver:    stubResolver{},
		Extractor:   stubExtractor{},
		Store:       f.catalog,
		Cards:       cards.NewFileStore(),
		Invalidator: f.inval,
	}, extract.Options{
		ImagesDir: f.imagesDir,
		Sleep:     func(context.Context, time.Duration) error { return nil },
	}), nil
}

type stubFlyers struct {
	flyers []domain.Flyer
	err    error
}

func (s stubFlyers) Scrape(context.Context) ([]domain.Flyer, error) { return s.flyers, s.err }

type testServer struct {
	handler http.Handler
	app     *App
}

func newTestServer(t *testing.T, withKeys bool, mutate ...func(*config.Config)) *testServer {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Extraction.ImagesDir = t.TempDir()
	cfg.Extraction.DefaultRetailer = "Deco"
	cfg.Server.ExtractRatePerMinute = 0
	for _, m := range mutate {
		m(cfg)
	}

	catalog := storage.NewMemoryStore()
	cacheClient := cache.NewMemoryClient(16, time.Minute)
	app := &App{
		Catalog:    catalog,
		Cache:      cacheClient,
		Comparison: comparison.NewService(catalog, cacheClient, time.Minute, nil),
		Flyers: stubFlyers{flyers: []domain.Flyer{
			{Name: "Settimana", URL: "https://flyers.test/resources/a.pdf", Validity: "dal 1 al 7"},
			{Name: "Speciale", URL: "https://flyers.test/resources/b.pdf", Validity: "dal 8 al 14"},
		}},
		Metrics: metrics.New(),
	}
	if withKeys {
		app.Factory = &stubFactory{t: t, catalog: catalog, inval: app.Comparison, imagesDir: cfg.Extraction.ImagesDir}
	}

	return &testServer{handler: NewRouter(observability.Nop(), app, cfg), app: app}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, false)
	rec := srv.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, false)
	rec := srv.do(t, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExtractWithoutKeys(t *testing.T) {
	srv := newTestServer(t, false)
	rec := srv.do(t, http.MethodPost, "/extract", map[string]string{"url": "https://flyers.test/a.pdf"})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[handlers.ErrorDTO](t, rec)
	assert.Contains(t, body.Message, "GEMINI_API_KEY")
}

func TestExtractValidation(t *testing.T) {
	srv := newTestServer(t, true)

	tests := []struct {
		name string
		body any
	}{
		{"malformed json", "{"},
		{"missing url", map[string]string{}},
		{"relative url", map[string]string{"url": "volantino.pdf"}},
		{"unsupported scheme", map[string]string{"url": "ftp://flyers.test/a.pdf"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, "/extract", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestExtractPersistsAndServesCatalog(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.do(t, http.MethodPost, "/extract", map[string]string{
		"url":               "https://flyers.test/resources/a.pdf",
		"supermercato_nome": "Deco Arena",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[handlers.ExtractResponseDTO](t, rec)
	assert.Equal(t, domain.JobCompleted, resp.Status)
	assert.Equal(t, 2, resp.TotalProducts)
	require.Len(t, resp.Products, 2)
	assert.NotZero(t, resp.Products[0].ID)
	assert.Equal(t, "Deco Arena", resp.Products[0].Retailer)
	assert.InDelta(t, 1.20, resp.Products[0].PriceValue, 1e-9)
	assert.Equal(t, "https://flyers.test/resources/a.pdf", resp.Products[0].FlyerURL)

	job := decode[domain.ExtractionJob](t, srv.do(t, http.MethodGet, "/jobs/"+resp.JobID, nil))
	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)

	products := decode[handlers.ProductsResponseDTO](t, srv.do(t, http.MethodGet, "/jobs/"+resp.JobID+"/products", nil))
	assert.Equal(t, 2, products.Count)

	latest := decode[handlers.LatestResultsDTO](t, srv.do(t, http.MethodGet, "/results/latest", nil))
	assert.Equal(t, resp.JobID, latest.Job.ID)
	assert.Equal(t, 2, latest.TotalProducts)

	page := decode[domain.ProductPage](t, srv.do(t, http.MethodGet, "/products?supermarket=deco&price_max=1", nil))
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Passata Mutti", page.Items[0].Name)

	raw := decode[map[string]json.RawMessage](t, srv.do(t, http.MethodGet, "/products", nil))
	assert.Contains(t, raw, "products")
	assert.Contains(t, raw, "total")
	assert.Contains(t, raw, "page")
	assert.Contains(t, raw, "page_size")

	found := decode[handlers.ProductsResponseDTO](t, srv.do(t, http.MethodGet, "/search?q=barilla", nil))
	assert.Equal(t, 1, found.Count)

	rec = srv.do(t, http.MethodGet, "/supermarkets", nil)
	assert.JSONEq(t, `{"supermarkets":["Deco Arena"]}`, rec.Body.String())
}

func TestExtractFactoryFailure(t *testing.T) {
	srv := newTestServer(t, false)
	srv.app.Factory = &stubFactory{t: t, err: domain.ConfigError("no keys", nil)}
	srv.handler = NewRouter(observability.Nop(), srv.app, config.DefaultConfig())

	rec := srv.do(t, http.MethodPost, "/extract", map[string]string{"url": "https://flyers.test/a.pdf"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestExtractAll(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.do(t, http.MethodGet, "/extract_all?limit=1&supermercato_nome=Deco", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[handlers.ExtractAllResponseDTO](t, rec)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Jobs, 1)
	assert.True(t, strings.HasPrefix(resp.Jobs[0].JobID, "service_"))
	assert.Equal(t, "Settimana", resp.Products[0].FlyerName)
	assert.Equal(t, "dal 1 al 7", resp.Products[0].FlyerValidity)

	rec = srv.do(t, http.MethodGet, "/extract_all?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	none := decode[handlers.ExtractAllResponseDTO](t, srv.do(t, http.MethodGet, "/extract_all?limit=0", nil))
	assert.Empty(t, none.Jobs)
	assert.Zero(t, none.Count)

	all := decode[handlers.ExtractAllResponseDTO](t, srv.do(t, http.MethodGet, "/extract_all", nil))
	assert.Len(t, all.Jobs, 2)
}

func TestFlyersDegradesToEmpty(t *testing.T) {
	srv := newTestServer(t, false)
	srv.app.Flyers = stubFlyers{err: domain.SourceUnavailableError("index down", nil)}
	srv.handler = NewRouter(observability.Nop(), srv.app, config.DefaultConfig())

	rec := srv.do(t, http.MethodGet, "/flyers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":0,"flyers":[]}`, rec.Body.String())
}

func TestImportAndCompare(t *testing.T) {
	srv := newTestServer(t, false)

	rec := srv.do(t, http.MethodPost, "/import", map[string]any{
		"supermercato_nome": "Deco",
		"volantino_name":    "Settimana",
		"products": []map[string]any{
			{"nome": "Pasta Barilla 500g", "marca": "Barilla", "prezzo": "1,20 €", "pagina": 1},
			{"nome": "Pasta Barilla", "marca": "Barilla", "prezzo": 0.99},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	imported := decode[handlers.ExtractResponseDTO](t, rec)
	assert.True(t, strings.HasPrefix(imported.JobID, "import_"), imported.JobID)
	require.Len(t, imported.Products, 2)
	assert.InDelta(t, 0.99, imported.Products[1].PriceValue, 1e-9)
	assert.Equal(t, 1, imported.Products[1].Page)
	assert.Equal(t, "Settimana", imported.Products[0].FlyerName)

	rec = srv.do(t, http.MethodPost, "/compare", map[string]any{
		"items": []map[string]any{{"nome": "pasta barilla", "marca": "barilla", "qty": 2}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[domain.CompareResult](t, rec)
	require.Len(t, result.Lines, 1)
	require.NotNil(t, result.Lines[0].Best)
	assert.InDelta(t, 0.99, result.Lines[0].Best.PriceValue, 1e-9)
	assert.InDelta(t, 1.98, result.Total, 1e-9)

	raw := decode[map[string]json.RawMessage](t, srv.do(t, http.MethodPost, "/compare", map[string]any{
		"items": []map[string]any{{"nome": "pasta barilla", "qty": 1}},
	}))
	assert.JSONEq(t, "0.99", string(raw["best_total"]))
	assert.Contains(t, raw, "items")
}

func TestExtractedCardIsServed(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.do(t, http.MethodPost, "/extract", map[string]string{"url": "https://flyers.test/resources/a.pdf"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[handlers.ExtractResponseDTO](t, rec)
	require.NotEmpty(t, resp.Products)
	card := resp.Products[0].CardImage
	require.NotEmpty(t, card)
	assert.NotContains(t, card, string(filepath.Separator))

	img := srv.do(t, http.MethodGet, "/images/"+card, nil)
	require.Equal(t, http.StatusOK, img.Code)
	_, err := jpeg.Decode(img.Body)
	assert.NoError(t, err)
}

func TestImportValidation(t *testing.T) {
	srv := newTestServer(t, false)

	rec := srv.do(t, http.MethodPost, "/import", map[string]any{"products": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompareRequiresItems(t *testing.T) {
	srv := newTestServer(t, false)

	rec := srv.do(t, http.MethodPost, "/compare", map[string]any{"items": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCatalogErrors(t *testing.T) {
	srv := newTestServer(t, false)

	tests := []struct {
		path   string
		status int
	}{
		{"/jobs/missing", http.StatusNotFound},
		{"/results/latest", http.StatusNotFound},
		{"/products?page=zero", http.StatusBadRequest},
		{"/products?price_min=abc", http.StatusBadRequest},
		{"/search", http.StatusBadRequest},
		{"/search?q=pasta&limit=0", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := srv.do(t, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestExportWorkbook(t *testing.T) {
	srv := newTestServer(t, false)
	srv.do(t, http.MethodPost, "/import", map[string]any{
		"products": []map[string]any{{"nome": "Pasta", "prezzo": "1,00"}},
	})

	rec := srv.do(t, http.MethodGet, "/products/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "prodotti.xlsx")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}

func TestExtractRateLimit(t *testing.T) {
	srv := newTestServer(t, true, func(c *config.Config) {
		c.Server.ExtractRatePerMinute = 1
		c.Server.ExtractBurst = 1
	})

	first := srv.do(t, http.MethodPost, "/extract", "{")
	assert.Equal(t, http.StatusBadRequest, first.Code)

	second := srv.do(t, http.MethodPost, "/extract", "{")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))

	// Other routes are not limited.
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/health", nil).Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodOptions, "/products", nil)
	req.Header.Set("Origin", "https://app.test")
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.test", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAppCloseJoinsErrors(t *testing.T) {
	app := &App{Catalog: storage.NewMemoryStore(), Cache: failingCache{cache.NewMemoryClient(1, time.Minute)}}
	assert.Error(t, app.Close())
}

type failingCache struct{ *cache.MemoryClient }

func (failingCache) Close() error { return errors.New("close failed") }
