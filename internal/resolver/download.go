package resolver

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/go-fitz"
	"github.com/mholt/archives"

	"github.com/vrsandeep/inkbridge/internal/assembler"
	"github.com/vrsandeep/inkbridge/internal/fetcher"
	"github.com/vrsandeep/inkbridge/internal/images"
	"github.com/vrsandeep/inkbridge/internal/models"
	"github.com/vrsandeep/inkbridge/internal/util"
)

type containerKind string

const (
	kindZip      containerKind = "zip"
	kindRar      containerKind = "rar"
	kindSevenZip containerKind = "7z"
	kindPDF      containerKind = "pdf"
)

// download fetches the raw archive into the workspace and turns it into a
// zip container. Zip sources are used as they are unless a cover has to be
// prepended; rar and 7z sources are repacked and PDFs are rendered.
func (r *Resolver) download(ctx context.Context, job *Job, reporter models.Reporter) (string, error) {
	raw, err := r.fetchRaw(ctx, job)
	if err != nil {
		return "", err
	}
	keep := false
	defer func() {
		if !keep {
			os.Remove(raw)
		}
	}()

	kind, err := sniffContainer(ctx, raw)
	if err != nil {
		return "", err
	}
	r.log.Debugf("Archive %s: raw download identified as %s", job.Meta.ArcID, kind)

	if kind == kindZip && !job.Settings.IsLandscape() {
		container := filepath.Join(job.Workspace, containerName(job))
		if err := os.Rename(raw, container); err != nil {
			return "", err
		}
		keep = true
		return container, nil
	}

	staging := filepath.Join(job.Workspace, assembler.StagingDir)
	if err := os.MkdirAll(staging, 0755); err != nil {
		return "", err
	}

	var pages []string
	if kind == kindPDF {
		pages, err = renderPDF(raw, staging, reporter)
	} else {
		pages, err = r.extractPages(ctx, raw, staging, reporter)
	}
	if err != nil {
		return "", err
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("%w: no page images inside", ErrNotContainer)
	}
	return r.builder.Package(ctx, pages, job.Workspace, job.packOptions(), reporter)
}

func containerName(job *Job) string {
	name := job.Name
	if name == "" {
		name = "input"
	}
	return name + ".cbz"
}

func (r *Resolver) fetchRaw(ctx context.Context, job *Job) (string, error) {
	stream, err := r.source.DownloadArchive(ctx, job.Meta.ArcID)
	if err != nil {
		return "", err
	}
	defer stream.Body.Close()

	if err := checkDeclaredType(stream.ContentType); err != nil {
		return "", err
	}

	ext := strings.ToLower(strings.TrimPrefix(job.Meta.Extension, "."))
	raw := filepath.Join(job.Workspace, "source."+ext)
	out, err := os.Create(raw)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, stream.Body); err != nil {
		out.Close()
		os.Remove(raw)
		return "", fmt.Errorf("failed to save archive: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(raw)
		return "", err
	}
	return raw, nil
}

// checkDeclaredType rejects responses declared as images or error pages.
// The server answers with the cover thumbnail for some archives.
func checkDeclaredType(contentType string) error {
	if contentType == "" {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(contentType)
	}
	if strings.HasPrefix(mediaType, "image/") || fetcher.IsErrorContentType(mediaType) {
		return fmt.Errorf("%w: declared content type %s", ErrNotContainer, mediaType)
	}
	return nil
}

// sniffContainer identifies a downloaded file by its leading bytes.
func sniffContainer(ctx context.Context, path string) (containerKind, error) {
	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return "", err
	}
	if detected.Is("application/pdf") {
		return kindPDF, nil
	}
	if strings.HasPrefix(detected.String(), "image/") || fetcher.IsErrorContentType(detected.String()) {
		return "", fmt.Errorf("%w: content sniffed as %s", ErrNotContainer, detected.String())
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	format, _, err := archives.Identify(ctx, "", f)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotContainer, err)
	}
	switch format.Extension() {
	case ".zip":
		return kindZip, nil
	case ".rar":
		return kindRar, nil
	case ".7z":
		return kindSevenZip, nil
	}
	return "", fmt.Errorf("%w: unsupported format %s", ErrNotContainer, format.Extension())
}

type extractedPage struct {
	name string
	path string
}

// extractPages pulls every page image out of an archive, normalizes the
// pages in natural name order and returns their paths.
func (r *Resolver) extractPages(ctx context.Context, raw, staging string, reporter models.Reporter) ([]string, error) {
	f, err := os.Open(raw)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	format, stream, err := archives.Identify(ctx, "", f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotContainer, err)
	}
	extractor, ok := format.(archives.Extractor)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot be extracted", ErrNotContainer, format.Extension())
	}
	// Zip and 7z need random access; the file itself provides it.
	var input io.Reader = f
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		input = stream
	}

	var extracted []extractedPage
	err = extractor.Extract(ctx, input, func(ctx context.Context, info archives.FileInfo) error {
		if info.IsDir() || !isPageImage(info.NameInArchive) {
			return nil
		}
		src, err := info.Open()
		if err != nil {
			return err
		}
		defer src.Close()

		dst := filepath.Join(staging, fmt.Sprintf("raw_%04d%s", len(extracted), strings.ToLower(filepath.Ext(info.NameInArchive))))
		out, err := os.Create(dst)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, src); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
		extracted = append(extracted, extractedPage{name: info.NameInArchive, path: dst})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract archive: %w", err)
	}

	slices.SortFunc(extracted, func(a, b extractedPage) int {
		return util.ComparePageNames(a.name, b.name)
	})

	labels := make([]string, len(extracted))
	for i, p := range extracted {
		labels[i] = filepath.Base(p.name)
	}
	reporter.Report(models.Event{Kind: models.EventPages, Total: len(extracted), Labels: labels})

	pages := make([]string, len(extracted))
	for i, p := range extracted {
		dst := filepath.Join(staging, fmt.Sprintf("page_%04d.jpg", i+1))
		if err := images.NormalizeFile(r.normalizer, p.path, dst); err != nil {
			return nil, err
		}
		os.Remove(p.path)
		pages[i] = dst
		reporter.Report(models.Event{Kind: models.EventPageDone, Index: i, Total: len(extracted), Label: labels[i]})
	}
	return pages, nil
}

// isPageImage filters archive entries down to decodable page images,
// skipping resource forks and hidden files.
func isPageImage(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.Contains(name, "__MACOSX/") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	}
	return false
}

// renderPDF rasterizes every page of a PDF into a JPEG file, reporting
// pages the way archive extraction does.
func renderPDF(raw, staging string, reporter models.Reporter) ([]string, error) {
	doc, err := fitz.New(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotContainer, err)
	}
	defer doc.Close()

	total := doc.NumPage()
	labels := make([]string, total)
	for n := range labels {
		labels[n] = fmt.Sprintf("Page %d", n+1)
	}
	reporter.Report(models.Event{Kind: models.EventPages, Total: total, Labels: labels})

	pages := make([]string, 0, total)
	for n := 0; n < total; n++ {
		img, err := doc.Image(n)
		if err != nil {
			return nil, fmt.Errorf("failed to render pdf page %d: %w", n+1, err)
		}
		data, err := images.EncodeJPEG(images.Flatten(img), images.JPEGQuality)
		if err != nil {
			return nil, err
		}
		dst := filepath.Join(staging, fmt.Sprintf("page_%04d.jpg", n+1))
		if err := os.WriteFile(dst, data, 0644); err != nil {
			return nil, err
		}
		pages = append(pages, dst)
		reporter.Report(models.Event{Kind: models.EventPageDone, Index: n, Total: total, Label: labels[n]})
	}
	return pages, nil
}
