package images

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

// Device screen size in portrait orientation.
const (
	DeviceWidth  uint = 480
	DeviceHeight uint = 800
)

// RotatedCover turns the first page of a landscape flow into a portrait
// cover: rotated by 90 degrees, scaled down to fit the screen, flattened
// and encoded as JPEG.
func RotatedCover(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode cover: %w", err)
	}

	rotated := imaging.Rotate90(img)
	// Thumbnail keeps the aspect ratio and never upscales.
	fitted := resize.Thumbnail(DeviceWidth, DeviceHeight, rotated, resize.Lanczos3)

	return EncodeJPEG(Flatten(fitted), JPEGQuality)
}
