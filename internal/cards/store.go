// Package cards stores the image artifacts derived from rendered flyer pages.
package cards

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spherical/flyer-extractor/internal/domain"
	"github.com/spherical/flyer-extractor/internal/imaging"
)

const (
	cardWidth   = 600
	cardHeight  = 400
	cardQuality = 85
	maxNameLen  = 30
)

var (
	unsafeChars = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	separators  = regexp.MustCompile(`[-\s]+`)
)

// FileStore writes product cards and fallback page copies to the local filesystem.
type FileStore struct{}

// NewFileStore creates a file-backed card store.
func NewFileStore() *FileStore {
	return &FileStore{}
}

// SaveCard writes a 600x400 JPEG thumbnail of the page the product was found on
// and returns its file name relative to outputDir, as served under /images/.
func (s *FileStore) SaveCard(product domain.ProductRecord, sourceImage, outputDir string, id domain.CardID) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", domain.IOError("create card directory", err)
	}

	filename := fmt.Sprintf("job%s_page%d_prod%d_%s_card_%s.jpg",
		id.JobID, id.Page, id.ProductIndex, CleanName(product.Name), id.JobID)
	path := filepath.Join(outputDir, filename)

	if err := imaging.Thumbnail(sourceImage, path, cardWidth, cardHeight, cardQuality); err != nil {
		return "", domain.IOError("write product card", err)
	}
	return filename, nil
}

// SaveOriginal copies a page image unchanged, for pages where no product was
// extracted. The returned name is relative to outputDir.
func (s *FileStore) SaveOriginal(sourceImage, outputDir, jobID string, page int) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", domain.IOError("create fallback directory", err)
	}

	ext := filepath.Ext(sourceImage)
	if ext == "" {
		ext = ".png"
	}
	filename := fmt.Sprintf("job%s_page%d_original%s", jobID, page, ext)

	if err := copyFile(sourceImage, filepath.Join(outputDir, filename)); err != nil {
		return "", domain.IOError("copy original page", err)
	}
	return filename, nil
}

// CleanName turns a product name into a filename fragment of at most 30 characters.
func CleanName(name string) string {
	cleaned := strings.TrimSpace(unsafeChars.ReplaceAllString(name, ""))
	cleaned = separators.ReplaceAllString(cleaned, "_")
	if r := []rune(cleaned); len(r) > maxNameLen {
		cleaned = string(r[:maxNameLen])
	}
	if cleaned == "" {
		cleaned = "prodotto"
	}
	return cleaned
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}

var _ domain.CardStore = (*FileStore)(nil)
