package resolver

import (
	"context"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/inkbridge/internal/models"
	"github.com/vrsandeep/inkbridge/internal/testutil"
)

func (r *recorder) ofKind(kind models.EventKind) []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func TestResolve_SevenZipIsRepacked(t *testing.T) {
	archive := &testutil.FakeArchive{
		Meta:           models.ArchiveMetadata{ArcID: "s1", Extension: "cb7", PageCount: 3},
		Raw:            readFixture(t, "three-pages.7z"),
		RawContentType: "application/x-7z-compressed",
	}
	r, server := setupResolver(t, archive)

	rec := &recorder{}
	result, err := r.Resolve(context.Background(), archive.Meta, models.DefaultSettings(), t.TempDir(), "book", &State{}, rec)
	require.NoError(t, err)

	assert.Equal(t, StrategyArchiveDownload, result.Strategy)
	assert.Equal(t, 3, countEntries(t, result.ContainerPath))
	assert.Zero(t, server.Hits("page:s1"))

	listed := rec.ofKind(models.EventPages)
	require.Len(t, listed, 1)
	assert.Equal(t, []string{"1.png", "2.png", "10.png"}, listed[0].Labels)
	assert.Len(t, rec.ofKind(models.EventPageDone), 3)
}

func TestResolve_PDFIsRendered(t *testing.T) {
	archive := &testutil.FakeArchive{
		Meta:           models.ArchiveMetadata{ArcID: "p1", Extension: "pdf"},
		Raw:            readFixture(t, "two-pages.pdf"),
		RawContentType: "application/pdf",
	}
	r, _ := setupResolver(t, archive)

	settings := models.DefaultSettings()
	settings.Orientation = models.OrientationLandscape

	rec := &recorder{}
	result, err := r.Resolve(context.Background(), archive.Meta, settings, t.TempDir(), "book", &State{}, rec)
	require.NoError(t, err)

	assert.Equal(t, StrategyArchiveDownload, result.Strategy)
	// Two rendered pages plus the rotated cover.
	assert.Equal(t, 3, countEntries(t, result.ContainerPath))
	assert.Contains(t, rec.stages(), models.StageCoverPrep)

	listed := rec.ofKind(models.EventPages)
	require.Len(t, listed, 1)
	assert.Equal(t, 2, listed[0].Total)
	assert.Equal(t, []string{"Page 1", "Page 2"}, listed[0].Labels)
	done := rec.ofKind(models.EventPageDone)
	require.Len(t, done, 2)
	assert.Equal(t, "Page 2", done[1].Label)
}

func TestRenderPDF(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "source.pdf")
	require.NoError(t, os.WriteFile(raw, readFixture(t, "two-pages.pdf"), 0644))
	staging := filepath.Join(dir, "pages")
	require.NoError(t, os.MkdirAll(staging, 0755))

	rec := &recorder{}
	pages, err := renderPDF(raw, staging, rec)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(staging, "page_0001.jpg"),
		filepath.Join(staging, "page_0002.jpg"),
	}, pages)

	f, err := os.Open(pages[0])
	require.NoError(t, err)
	defer f.Close()
	_, err = jpeg.DecodeConfig(f)
	assert.NoError(t, err)

	assert.Len(t, rec.ofKind(models.EventPageDone), 2)
}

func TestSniffContainer(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    containerKind
		wantErr bool
	}{
		{name: "zip", data: testutil.CBZBytes(t, []string{"01.png"}), want: kindZip},
		{name: "7z", data: readFixture(t, "three-pages.7z"), want: kindSevenZip},
		{name: "pdf", data: readFixture(t, "two-pages.pdf"), want: kindPDF},
		{name: "image", data: testutil.JPEGBytes(t, 4, 4), wantErr: true},
		{name: "html", data: []byte("<html><body>error</body></html>"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "source")
			require.NoError(t, os.WriteFile(path, tt.data, 0644))

			kind, err := sniffContainer(context.Background(), path)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotContainer)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, kind)
		})
	}
}
