package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/flyer-extractor/internal/domain"
)

// buildPDF assembles a minimal PDF with the given number of blank A6 pages.
func buildPDF(pages int) []byte {
	var objs []string
	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", 3+i)
	}
	objs = append(objs, "<< /Type /Catalog /Pages 2 0 R >>")
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages))
	for i := 0; i < pages; i++ {
		objs = append(objs, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 298 420] >>")
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestConverterRendersEveryPage(t *testing.T) {
	pdfPath := writeFile(t, "flyer.pdf", buildPDF(3))
	c := NewConverter(ConverterOptions{TempRoot: t.TempDir(), JobID: "123"})

	pages, err := c.Convert(context.Background(), pdfPath)
	require.NoError(t, err)
	require.Len(t, pages, 3)

	dir, err := c.TempDir()
	require.NoError(t, err)
	assert.Contains(t, filepath.Base(dir), "flyer-123-")

	for i, p := range pages {
		assert.Equal(t, i+1, p.PageNumber)
		assert.Equal(t, filepath.Join(dir, fmt.Sprintf("page_%d.png", i+1)), p.ImagePath)
		assert.FileExists(t, p.ImagePath)
		// 298pt at 144 DPI
		assert.InDelta(t, 596, p.Width, 2)
	}

	require.NoError(t, c.Cleanup())
	assert.NoDirExists(t, dir)
	require.NoError(t, c.Cleanup(), "cleanup is idempotent")
}

func TestConverterFailuresYieldNoPages(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing.pdf") }},
		{"not a pdf extension", func(t *testing.T) string { return writeFile(t, "flyer.txt", buildPDF(1)) }},
		{"corrupt document", func(t *testing.T) string { return writeFile(t, "broken.pdf", []byte("not a pdf at all")) }},
		{"empty file", func(t *testing.T) string { return writeFile(t, "empty.pdf", nil) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConverter(ConverterOptions{TempRoot: t.TempDir()})
			defer c.Cleanup()

			pages, err := c.Convert(context.Background(), tt.path(t))
			assert.Nil(t, pages)
			assert.True(t, domain.IsType(err, domain.ErrorTypeRenderFailure), "got %v", err)
		})
	}
}

func TestConverterRejectsBadScale(t *testing.T) {
	c := NewConverter(ConverterOptions{Scale: -1, TempRoot: t.TempDir()})
	defer c.Cleanup()

	pages, err := c.Convert(context.Background(), writeFile(t, "flyer.pdf", buildPDF(1)))
	assert.Nil(t, pages)
	assert.Error(t, err)
}

func TestConverterCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewConverter(ConverterOptions{TempRoot: t.TempDir()})
	defer c.Cleanup()

	pages, err := c.Convert(ctx, writeFile(t, "flyer.pdf", buildPDF(2)))
	assert.Nil(t, pages)
	assert.ErrorIs(t, err, context.Canceled)
}

func newMockDownloader() (*Downloader, *httpmock.MockTransport) {
	transport := httpmock.NewMockTransport()
	return NewDownloader(&http.Client{Transport: transport}, 0, nil), transport
}

func TestDownloaderFetchesURL(t *testing.T) {
	d, transport := newMockDownloader()
	payload := buildPDF(1)

	var ua string
	transport.RegisterResponder(http.MethodGet, "https://flyers.test/resources/volantino.pdf",
		func(req *http.Request) (*http.Response, error) {
			ua = req.Header.Get("User-Agent")
			return httpmock.NewBytesResponse(200, payload), nil
		})

	dir := t.TempDir()
	path, err := d.Resolve(context.Background(), "https://flyers.test/resources/volantino.pdf", domain.SourceURL, dir, "42")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "downloaded_pdf_42.pdf"), path)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Contains(t, ua, "Mozilla/5.0")
}

func TestDownloaderFailures(t *testing.T) {
	d, transport := newMockDownloader()
	transport.RegisterResponder(http.MethodGet, "https://flyers.test/missing.pdf", httpmock.NewStringResponder(404, "not found"))
	transport.RegisterResponder(http.MethodGet, "https://flyers.test/down.pdf", httpmock.NewErrorResponder(errors.New("dial tcp: refused")))

	tests := []struct {
		name   string
		source string
		kind   domain.SourceType
	}{
		{"http 404", "https://flyers.test/missing.pdf", domain.SourceURL},
		{"transport error", "https://flyers.test/down.pdf", domain.SourceURL},
		{"empty source", "  ", domain.SourceURL},
		{"missing local file", filepath.Join(t.TempDir(), "nope.pdf"), domain.SourceFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := d.Resolve(context.Background(), tt.source, tt.kind, t.TempDir(), "1")
			assert.Empty(t, path)
			assert.True(t, domain.IsType(err, domain.ErrorTypeSourceUnavailable), "got %v", err)
		})
	}
}

func TestDownloaderLocalFile(t *testing.T) {
	d, _ := newMockDownloader()
	local := writeFile(t, "local.pdf", buildPDF(1))

	path, err := d.Resolve(context.Background(), local, domain.SourceFile, t.TempDir(), "1")
	require.NoError(t, err)
	assert.Equal(t, local, path)

	_, err = d.Resolve(context.Background(), local, domain.SourceType("ftp"), t.TempDir(), "1")
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
}
