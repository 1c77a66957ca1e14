package pdf

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spherical/flyer-extractor/internal/domain"
	"github.com/spherical/flyer-extractor/internal/observability"
)

const (
	defaultDownloadTimeout = 30 * time.Second
	browserUserAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"
)

// Downloader resolves a PDF source to a local file, fetching URLs over HTTP.
type Downloader struct {
	client    *http.Client
	userAgent string
	logger    *observability.Logger
}

// NewDownloader creates a downloader. client may be nil.
func NewDownloader(client *http.Client, timeout time.Duration, logger *observability.Logger) *Downloader {
	if timeout <= 0 {
		timeout = defaultDownloadTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Downloader{
		client:    client,
		userAgent: browserUserAgent,
		logger:    logger.WithOperation("download"),
	}
}

// Resolve returns a local path for source. URLs are downloaded into dir as
// downloaded_pdf_<job>.pdf; files must exist.
func (d *Downloader) Resolve(ctx context.Context, source string, kind domain.SourceType, dir, jobID string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", domain.SourceUnavailableError("empty PDF source", nil)
	}

	switch kind {
	case domain.SourceURL, "":
		return d.download(ctx, source, dir, jobID)
	case domain.SourceFile:
		info, err := os.Stat(source)
		if err != nil {
			return "", domain.SourceUnavailableError(fmt.Sprintf("PDF file not found: %s", source), err)
		}
		if info.IsDir() {
			return "", domain.SourceUnavailableError(fmt.Sprintf("PDF source is a directory: %s", source), nil)
		}
		return source, nil
	default:
		return "", domain.ValidationError(fmt.Sprintf("unknown source type %q", kind), nil)
	}
}

func (d *Downloader) download(ctx context.Context, url, dir, jobID string) (string, error) {
	d.logger.Info().Str("url", url).Msg("downloading PDF")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", domain.SourceUnavailableError("invalid PDF URL", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", domain.SourceUnavailableError("PDF download failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", domain.SourceUnavailableError(fmt.Sprintf("PDF download returned status %d", resp.StatusCode), nil)
	}

	path := filepath.Join(dir, fmt.Sprintf("downloaded_pdf_%s.pdf", jobID))
	f, err := os.Create(path)
	if err != nil {
		return "", domain.IOError("create download file", err)
	}

	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path)
		if copyErr == nil {
			copyErr = closeErr
		}
		return "", domain.SourceUnavailableError("PDF download interrupted", copyErr)
	}

	d.logger.Info().Str("path", path).Int64("bytes", n).Msg("PDF downloaded")
	return path, nil
}

var _ domain.SourceResolver = (*Downloader)(nil)
