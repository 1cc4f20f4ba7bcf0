// Package images normalizes page images into a single encoding the
// converter handles reliably.
package images

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // Register GIF decoder
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// JPEGQuality is the quality every normalized page is re-encoded with.
const JPEGQuality = 90

// Normalizer turns an arbitrary page image into a baseline JPEG.
type Normalizer interface {
	Normalize(data []byte) ([]byte, error)
}

// JPEGNormalizer flattens transparency onto white and re-encodes as JPEG.
type JPEGNormalizer struct {
	Quality int
}

// NewNormalizer returns the default normalizer.
func NewNormalizer() *JPEGNormalizer {
	return &JPEGNormalizer{Quality: JPEGQuality}
}

// Normalize decodes data, flattens any alpha channel onto a white
// background and encodes the result as a baseline JPEG.
func (n *JPEGNormalizer) Normalize(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return EncodeJPEG(Flatten(img), n.Quality)
}

// NormalizeFile normalizes the image at src and writes the JPEG to dst.
func NormalizeFile(n Normalizer, src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	out, err := n.Normalize(data)
	if err != nil {
		return fmt.Errorf("%s: %w", src, err)
	}
	return os.WriteFile(dst, out, 0644)
}

// Flatten composites img over an opaque white canvas of the same size.
func Flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
}

// EncodeJPEG encodes img as a baseline JPEG; quality <= 0 selects JPEGQuality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 {
		quality = JPEGQuality
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
