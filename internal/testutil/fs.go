package testutil

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// CreateTestCBZ is a helper function that creates a temporary CBZ file with
// a given set of page names. It's useful for testing archive parsing.
func CreateTestCBZ(t *testing.T, dir, name string, pages []string) string {
	t.Helper()
	filePath := filepath.Join(dir, name)
	if err := os.WriteFile(filePath, CBZBytes(t, pages), 0644); err != nil {
		t.Fatalf("Failed to write cbz file: %v", err)
	}
	return filePath
}

// CBZBytes builds an in-memory zip whose entries are small PNG images.
func CBZBytes(t *testing.T, pages []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zipWriter := zip.NewWriter(&buf)
	for _, page := range pages {
		w, err := zipWriter.Create(page)
		if err != nil {
			t.Fatalf("Failed to create entry '%s' in zip: %v", page, err)
		}
		if _, err := w.Write(PNGBytes(t, 4, 6, false)); err != nil {
			t.Fatalf("Failed to write entry '%s': %v", page, err)
		}
	}
	if err := zipWriter.Close(); err != nil {
		t.Fatalf("Failed to finalize zip: %v", err)
	}
	return buf.Bytes()
}

// PNGBytes encodes a w x h PNG. With alpha set, the left half is fully
// transparent.
func PNGBytes(t *testing.T, w, h int, alpha bool) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{R: 20, G: 20, B: 20, A: 255}
			if alpha && x < w/2 {
				c.A = 0
			}
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// JPEGBytes encodes a w x h gray JPEG.
func JPEGBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("Failed to encode jpeg: %v", err)
	}
	return buf.Bytes()
}
