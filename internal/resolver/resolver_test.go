package resolver

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/inkbridge/internal/assembler"
	"github.com/vrsandeep/inkbridge/internal/fetcher"
	"github.com/vrsandeep/inkbridge/internal/lrr"
	"github.com/vrsandeep/inkbridge/internal/models"
	"github.com/vrsandeep/inkbridge/internal/testutil"
)

type recorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recorder) Report(e models.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) stages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.Kind == models.EventStage {
			out = append(out, e.Stage)
		}
	}
	return out
}

func pngPages(t *testing.T, n int) [][]byte {
	pages := make([][]byte, n)
	for i := range pages {
		pages[i] = testutil.PNGBytes(t, 8, 12, i%2 == 0)
	}
	return pages
}

func setupResolver(t *testing.T, archives ...*testutil.FakeArchive) (*Resolver, *testutil.FakeArchiveServer) {
	t.Helper()
	server := testutil.NewFakeArchiveServer(t, archives...)
	client := lrr.New(lrr.Options{BaseURL: server.URL, PageCacheTTL: time.Minute})
	t.Cleanup(func() { client.Close() })
	asm := assembler.New(fetcher.New(client, 2, time.Millisecond, nil), nil, 2, nil)
	return New(client, asm, nil), server
}

func countEntries(t *testing.T, path string) int {
	t.Helper()
	n, err := assembler.CountEntries(context.Background(), path)
	require.NoError(t, err)
	return n
}

func TestResolve_DisguisedImageFallsBackToPageAssembly(t *testing.T) {
	archive := &testutil.FakeArchive{
		Meta:           models.ArchiveMetadata{ArcID: "d1", Title: "Disguised", Extension: "cbz", PageCount: 3},
		Pages:          pngPages(t, 3),
		Raw:            testutil.JPEGBytes(t, 10, 10),
		RawContentType: "image/jpeg",
	}
	r, server := setupResolver(t, archive)

	for run := 1; run <= 2; run++ {
		rec := &recorder{}
		result, err := r.Resolve(context.Background(), archive.Meta, models.DefaultSettings(), t.TempDir(), "input", &State{}, rec)
		require.NoError(t, err)

		assert.Equal(t, StrategyPageAssembly, result.Strategy)
		assert.Equal(t, 3, countEntries(t, result.ContainerPath))
		assert.Contains(t, rec.stages(), models.StageArchiveDownload)
		assert.Equal(t, run, server.Hits("download:d1"))
		assert.Equal(t, run, server.Hits("files-force:d1"))
	}
}

func TestResolve_SniffedImageWithGenericTypeFallsBack(t *testing.T) {
	archive := &testutil.FakeArchive{
		Meta:           models.ArchiveMetadata{ArcID: "d2", Extension: "zip", PageCount: 2},
		Pages:          pngPages(t, 2),
		Raw:            testutil.JPEGBytes(t, 10, 10),
		RawContentType: "application/octet-stream",
	}
	r, _ := setupResolver(t, archive)

	workspace := t.TempDir()
	result, err := r.Resolve(context.Background(), archive.Meta, models.DefaultSettings(), workspace, "input", &State{}, nil)
	require.NoError(t, err)
	assert.Equal(t, StrategyPageAssembly, result.Strategy)

	_, err = os.Stat(filepath.Join(workspace, "source.zip"))
	assert.True(t, os.IsNotExist(err), "rejected download must be discarded")
}

func TestResolve_DirectZipUsedAsIs(t *testing.T) {
	archive := &testutil.FakeArchive{
		Meta:           models.ArchiveMetadata{ArcID: "z1", Extension: "cbz", PageCount: 3},
		Raw:            testutil.CBZBytes(t, []string{"01.png", "02.png", "03.png"}),
		RawContentType: "application/zip",
	}
	r, server := setupResolver(t, archive)

	workspace := t.TempDir()
	result, err := r.Resolve(context.Background(), archive.Meta, models.DefaultSettings(), workspace, "book", &State{}, nil)
	require.NoError(t, err)

	assert.Equal(t, StrategyArchiveDownload, result.Strategy)
	assert.Equal(t, filepath.Join(workspace, "book.cbz"), result.ContainerPath)
	assert.Equal(t, 3, countEntries(t, result.ContainerPath))
	assert.Zero(t, server.Hits("page:z1"))
}

func TestResolve_LandscapeRepacksDirectZipWithCover(t *testing.T) {
	archive := &testutil.FakeArchive{
		Meta:           models.ArchiveMetadata{ArcID: "z2", Extension: "cbz", PageCount: 3},
		Raw:            testutil.CBZBytes(t, []string{"10.png", "2.png", "1.png", "__MACOSX/._1.png", "info.txt"}),
		RawContentType: "application/zip",
	}
	r, _ := setupResolver(t, archive)

	settings := models.DefaultSettings()
	settings.Orientation = models.OrientationLandscape
	settings.DontSplit = "2"

	rec := &recorder{}
	result, err := r.Resolve(context.Background(), archive.Meta, settings, t.TempDir(), "book", &State{}, rec)
	require.NoError(t, err)

	assert.Equal(t, StrategyArchiveDownload, result.Strategy)
	assert.Equal(t, 4, countEntries(t, result.ContainerPath))
	assert.Equal(t, "1,3", result.Settings.DontSplit)
	assert.Contains(t, rec.stages(), models.StageCoverPrep)
}

func TestResolve_ExtractPagesRefreshesStaleList(t *testing.T) {
	archive := &testutil.FakeArchive{
		Meta:          models.ArchiveMetadata{ArcID: "e1", Extension: "cbz", PageCount: 3},
		Pages:         pngPages(t, 3),
		StalePageList: true,
	}
	r, server := setupResolver(t, archive)

	settings := models.DefaultSettings()
	settings.ExtractPages = true

	rec := &recorder{}
	result, err := r.Resolve(context.Background(), archive.Meta, settings, t.TempDir(), "input", &State{}, rec)
	require.NoError(t, err)

	assert.Equal(t, StrategyExtractPages, result.Strategy)
	assert.Equal(t, 1, server.Hits("files:e1"))
	assert.Equal(t, 1, server.Hits("files-force:e1"))
	assert.Equal(t, 3, server.Hits("page:e1"))
	assert.Zero(t, server.Hits("download:e1"))
	assert.Equal(t, 3, countEntries(t, result.ContainerPath))

	var done int
	for _, e := range rec.events {
		if e.Kind == models.EventPageDone {
			done++
		}
	}
	assert.Equal(t, 3, done)
}

func TestResolve_ExtractPagesDistrustsSinglePage(t *testing.T) {
	archive := &testutil.FakeArchive{
		Meta:  models.ArchiveMetadata{ArcID: "e2", PageCount: 1},
		Pages: pngPages(t, 1),
	}
	r, server := setupResolver(t, archive)

	settings := models.DefaultSettings()
	settings.ExtractPages = true

	result, err := r.Resolve(context.Background(), archive.Meta, settings, t.TempDir(), "input", &State{}, nil)
	require.NoError(t, err)
	assert.Equal(t, StrategyPageAssembly, result.Strategy)
	assert.Equal(t, 1, server.Hits("files-force:e2"))
	assert.Equal(t, 1, countEntries(t, result.ContainerPath))
}

func TestResolve_NoPagesIsFatal(t *testing.T) {
	archive := &testutil.FakeArchive{
		Meta: models.ArchiveMetadata{ArcID: "n1", Extension: "cbz"},
	}
	r, _ := setupResolver(t, archive)

	_, err := r.Resolve(context.Background(), archive.Meta, models.DefaultSettings(), t.TempDir(), "input", &State{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoPages)
}

func TestResolve_PortraitCountsPagesWhenMetadataLacksThem(t *testing.T) {
	archive := &testutil.FakeArchive{
		Meta:  models.ArchiveMetadata{ArcID: "p1"},
		Pages: pngPages(t, 5),
	}
	r, server := setupResolver(t, archive)

	settings := models.DefaultSettings()
	settings.Orientation = models.OrientationPortrait

	result, err := r.Resolve(context.Background(), archive.Meta, settings, t.TempDir(), "input", &State{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "1,2,3,4,5", result.Settings.DontSplit)
	assert.False(t, result.Settings.Overlap)
	assert.Equal(t, 1, server.Hits("files:p1"))
}

type stubStrategy struct {
	name    string
	applies bool
	path    string
	err     error
	calls   int
}

func (s *stubStrategy) Name() string      { return s.name }
func (s *stubStrategy) Applies(*Job) bool { return s.applies }
func (s *stubStrategy) Resolve(context.Context, *Job, models.Reporter) (string, error) {
	s.calls++
	return s.path, s.err
}

func TestResolve_ChainOrder(t *testing.T) {
	container := filepath.Join(t.TempDir(), "c.cbz")
	require.NoError(t, os.WriteFile(container, []byte("x"), 0644))

	skipped := &stubStrategy{name: "skipped", applies: false, path: container}
	empty := &stubStrategy{name: "empty", applies: true}
	winner := &stubStrategy{name: "winner", applies: true, path: container}
	never := &stubStrategy{name: "never", applies: true, path: container}

	r := New(nil, nil, nil).WithStrategies(skipped, empty, winner, never)
	result, err := r.Resolve(context.Background(), models.ArchiveMetadata{ArcID: "x"}, models.DefaultSettings(), t.TempDir(), "input", &State{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "winner", result.Strategy)
	assert.Zero(t, skipped.calls)
	assert.Equal(t, 1, empty.calls)
	assert.Zero(t, never.calls)
}

func TestResolve_ChainExhausted(t *testing.T) {
	r := New(nil, nil, nil).WithStrategies(&stubStrategy{name: "empty", applies: true})
	_, err := r.Resolve(context.Background(), models.ArchiveMetadata{ArcID: "x"}, models.DefaultSettings(), t.TempDir(), "input", &State{}, nil)
	assert.ErrorIs(t, err, ErrNoPages)
}
