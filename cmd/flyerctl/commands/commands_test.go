package commands

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/spherical/flyer-extractor/internal/domain"
	"github.com/spherical/flyer-extractor/internal/storage"
)

type fixture struct {
	dir     string
	cfgPath string
	dbPath  string
}

func newFixture(t *testing.T, extraYAML string) *fixture {
	t.Helper()
	for _, k := range []string{"GEMINI_API_KEY", "GEMINI_API_KEY_2", "GEMINI_API_KEYS", "DATABASE_URL", "USE_DATABASE", "REDIS_URL"} {
		t.Setenv(k, "")
	}

	dir := t.TempDir()
	f := &fixture{dir: dir, cfgPath: filepath.Join(dir, "config.yaml"), dbPath: filepath.Join(dir, "flyers.db")}
	yaml := fmt.Sprintf("database:\n  driver: sqlite\n  sqlite:\n    path: %s\ncache:\n  driver: memory\n%s", f.dbPath, extraYAML)
	require.NoError(t, os.WriteFile(f.cfgPath, []byte(yaml), 0o644))
	return f
}

func (f *fixture) seed(t *testing.T, records ...domain.ProductRecord) {
	t.Helper()
	ctx := context.Background()
	store, err := storage.Open(ctx, storage.Options{Driver: "sqlite", DSN: f.dbPath})
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Save(ctx, "seed", records)
	require.NoError(t, err)
}

func (f *fixture) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", f.cfgPath, "--no-color"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func barilla() []domain.ProductRecord {
	return []domain.ProductRecord{
		{Retailer: "Deco", Page: 1, Name: "Pasta Barilla 500g", Brand: "Barilla", PriceText: "1,20 €", PriceValue: 1.20},
		{Retailer: "Deco", Page: 2, Name: "Pasta Barilla", Brand: "Barilla", PriceText: "0,99", PriceValue: 0.99},
	}
}

func TestParseItem(t *testing.T) {
	tests := []struct {
		in      string
		want    domain.CompareQuery
		wantErr bool
	}{
		{in: "pasta", want: domain.CompareQuery{Name: "pasta", Quantity: 1}},
		{in: "pasta|barilla", want: domain.CompareQuery{Name: "pasta", Brand: "barilla", Quantity: 1}},
		{in: " pasta | barilla | 3 ", want: domain.CompareQuery{Name: "pasta", Brand: "barilla", Quantity: 3}},
		{in: "pasta||2", want: domain.CompareQuery{Name: "pasta", Quantity: 2}},
		{in: "|barilla|2", wantErr: true},
		{in: "pasta|barilla|due", wantErr: true},
		{in: "pasta|barilla|0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseItem(tt.in)
			if tt.wantErr {
				assert.True(t, domain.IsType(err, domain.ErrorTypeValidation), "%v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSourceOf(t *testing.T) {
	src, kind, err := sourceOf("https://flyers.test/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceURL, kind)
	assert.Equal(t, "https://flyers.test/a.pdf", src)

	path := filepath.Join(t.TempDir(), "volantino.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))
	src, kind, err = sourceOf(path)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceFile, kind)
	assert.Equal(t, path, src)

	_, _, err = sourceOf(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.True(t, domain.IsType(err, domain.ErrorTypeSourceUnavailable))

	_, _, err = sourceOf(t.TempDir())
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
}

func TestCompareCommand(t *testing.T) {
	f := newFixture(t, "")
	f.seed(t, barilla()...)

	out, _, err := f.run(t, "compare", "--item", "Pasta Barilla|Barilla|2", "--item", "caviale")
	require.NoError(t, err)

	assert.Contains(t, out, "Pasta Barilla ")
	assert.Contains(t, out, "0.99")
	assert.Contains(t, out, "Totale: 1.98 €")
}

func TestCompareCommandRejectsBadItem(t *testing.T) {
	f := newFixture(t, "")

	_, _, err := f.run(t, "compare", "--item", "pasta|barilla|many")
	assert.Error(t, err)
}

func TestExportCommand(t *testing.T) {
	f := newFixture(t, "")
	f.seed(t, barilla()...)
	out := filepath.Join(f.dir, "catalogo.xlsx")

	stdout, _, err := f.run(t, "export", "-o", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "2 prodotti esportati")

	wb, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer wb.Close()

	rows, err := wb.GetRows("Prodotti")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestExtractRequiresKeys(t *testing.T) {
	f := newFixture(t, "")

	_, _, err := f.run(t, "extract", "https://flyers.test/a.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestExtractRejectsMissingFile(t *testing.T) {
	f := newFixture(t, "gemini:\n  api_keys: [k0]\n")

	_, _, err := f.run(t, "extract", filepath.Join(f.dir, "missing.pdf"))
	assert.True(t, domain.IsType(err, domain.ErrorTypeSourceUnavailable), "%v", err)
}

func TestFlyersCommand(t *testing.T) {
	index := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>
			<div class="flyer-card">
				<h4>Volantino Settimana</h4>
				<p class="flyer-validity">dal 1 al 7 marzo</p>
				<a href="/resources/settimana.pdf">Sfoglia</a>
			</div>
		</body></html>`)
	}))
	defer index.Close()

	f := newFixture(t, fmt.Sprintf("scraper:\n  index_url: %s\n  base_url: %s\n", index.URL, index.URL))

	out, _, err := f.run(t, "flyers")
	require.NoError(t, err)
	assert.Contains(t, out, "Volantino Settimana")
	assert.Contains(t, out, index.URL+"/resources/settimana.pdf")
	assert.Contains(t, out, "1 volantini trovati")
}

func TestVersionFlag(t *testing.T) {
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"--version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), version)
}
