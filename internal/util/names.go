package util

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/vrsandeep/inkbridge/internal/models"
)

// MaxDownloadNameLength caps the suggested file name, extension excluded.
const MaxDownloadNameLength = 120

// DownloadName builds the suggested file name of a converted archive:
// "[artist] title.ext", falling back to the group tag, then to the bare
// title. ext keeps the converter's extension (".xtc" or ".xtch").
func DownloadName(meta models.ArchiveMetadata, ext string) string {
	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = strings.TrimSuffix(meta.Filename, "."+meta.Extension)
	}
	if title == "" {
		title = meta.ArcID
	}

	creators := meta.TagValues("artist")
	if len(creators) == 0 {
		creators = meta.TagValues("group")
	}
	base := title
	if len(creators) > 0 {
		base = "[" + strings.Join(creators, ", ") + "] " + title
	}

	base = SanitizeName(norm.NFC.String(base))
	base = truncateRunes(base, MaxDownloadNameLength)
	base = strings.TrimRight(base, " .-")
	if base == "" {
		base = "converted"
	}
	return base + ext
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
