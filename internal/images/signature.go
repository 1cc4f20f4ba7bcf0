package images

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Format names a recognised frame encoding.
type Format string

const (
	FormatUnknown Format = ""
	FormatPNG     Format = "png"
	FormatJPEG    Format = "jpeg"
)

var (
	pngHead  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	pngTail  = []byte{'I', 'E', 'N', 'D', 0xae, 0x42, 0x60, 0x82}
	jpegHead = []byte{0xff, 0xd8, 0xff}
	jpegTail = []byte{0xff, 0xd9}
)

// CheckComplete reports whether the file at path is a fully written PNG or
// JPEG: its first bytes carry the format signature and its last bytes the
// end-of-stream marker. A file still being written fails the tail check.
func CheckComplete(path string) (Format, bool) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() < int64(len(pngHead)+len(pngTail)) {
		return FormatUnknown, false
	}

	head := make([]byte, len(pngHead))
	if _, err := io.ReadFull(f, head); err != nil {
		return FormatUnknown, false
	}
	tail := make([]byte, len(pngTail))
	if _, err := f.ReadAt(tail, info.Size()-int64(len(tail))); err != nil {
		return FormatUnknown, false
	}

	switch {
	case bytes.HasPrefix(head, pngHead):
		return FormatPNG, bytes.Equal(tail, pngTail)
	case bytes.HasPrefix(head, jpegHead):
		return FormatJPEG, bytes.HasSuffix(tail, jpegTail)
	}
	return FormatUnknown, false
}

// IsFrameName reports whether a file name has an extension the converter
// writes frames with.
func IsFrameName(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".png" || ext == ".jpg" || ext == ".jpeg"
}
