// Package imaging prepares rendered flyer pages for the vision service and for product cards.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png" // rendered pages are PNG
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

// Load decodes a PNG or JPEG file.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// Fit shrinks img to fit inside maxW x maxH preserving the aspect ratio and
// flattens it onto an opaque RGB canvas. Images already small enough keep their size.
func Fit(img image.Image, maxW, maxH int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if w > maxW || h > maxH {
		// the binding side lands exactly on its limit
		if float64(w)/float64(maxW) >= float64(h)/float64(maxH) {
			w, h = maxW, max(1, h*maxW/w)
		} else {
			w, h = max(1, w*maxH/h), maxH
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// EncodeJPEG encodes img at the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeForVision loads a page, fits it in maxSide x maxSide, re-encodes it as
// JPEG and returns the base64 payload sent inline to the vision service.
func EncodeForVision(path string, maxSide, quality int) (string, error) {
	img, err := Load(path)
	if err != nil {
		return "", err
	}

	data, err := EncodeJPEG(Fit(img, maxSide, maxSide), quality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// VisionEncoder returns EncodeForVision bound to fixed limits.
func VisionEncoder(maxSide, quality int) func(string) (string, error) {
	return func(path string) (string, error) {
		return EncodeForVision(path, maxSide, quality)
	}
}

// Thumbnail writes a JPEG of src fitted inside w x h to dst.
func Thumbnail(src, dst string, w, h, quality int) error {
	img, err := Load(src)
	if err != nil {
		return err
	}

	data, err := EncodeJPEG(Fit(img, w, h), quality)
	if err != nil {
		return err
	}

	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("write thumbnail: %w", err)
	}
	return nil
}
