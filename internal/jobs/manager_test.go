package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/inkbridge/internal/jobs"
	"github.com/vrsandeep/inkbridge/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type runFunc func(ctx context.Context, archiveID string, settings models.ConversionSettings, reporter models.Reporter) (*jobs.Artifact, error)

type fakeRunner struct {
	preflightErr error
	run          runFunc
}

func (r *fakeRunner) Preflight() error { return r.preflightErr }

func (r *fakeRunner) Run(ctx context.Context, archiveID string, settings models.ConversionSettings, reporter models.Reporter) (*jobs.Artifact, error) {
	return r.run(ctx, archiveID, settings, reporter)
}

// recordingNotifier keeps every job snapshot pushed by the manager.
type recordingNotifier struct {
	mu        sync.Mutex
	snapshots []models.ConversionJob
}

func (n *recordingNotifier) BroadcastJSON(v any) {
	update := v.(models.ProgressUpdate)
	if update.Job == nil {
		return
	}
	// Round trip through JSON like a websocket client would.
	data, _ := json.Marshal(update)
	var decoded models.ProgressUpdate
	json.Unmarshal(data, &decoded)
	n.mu.Lock()
	n.snapshots = append(n.snapshots, *decoded.Job)
	n.mu.Unlock()
}

func (n *recordingNotifier) all() []models.ConversionJob {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.ConversionJob(nil), n.snapshots...)
}

func makeArtifact(t *testing.T, content string) (*jobs.Artifact, string) {
	t.Helper()
	workspace := filepath.Join(t.TempDir(), "job-1")
	require.NoError(t, os.MkdirAll(workspace, 0755))
	path := filepath.Join(workspace, "out.xtc")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	artifact, err := jobs.NewArtifact(path, "[artist] Title.xtc", workspace)
	require.NoError(t, err)
	return artifact, workspace
}

func newManager(t *testing.T, runner jobs.Runner, notifier jobs.Notifier) (*jobs.Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	m := jobs.NewManager(jobs.NewMemoryRepository(), runner, notifier, jobs.Options{
		TTL: 10 * time.Minute,
		Now: clock.Now,
	}, nil)
	t.Cleanup(m.Shutdown)
	return m, clock
}

func TestManager_StartCompletes(t *testing.T) {
	artifact, _ := makeArtifact(t, "xtc-data")
	runner := &fakeRunner{run: func(ctx context.Context, id string, s models.ConversionSettings, r models.Reporter) (*jobs.Artifact, error) {
		r.Report(models.StageEvent(models.StageMetadata, "Loading metadata"))
		return artifact, nil
	}}
	m, _ := newManager(t, runner, nil)

	job, err := m.Start("arc-1", models.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, job.Status)
	assert.Equal(t, "arc-1", job.ArchiveID)
	assert.NotEmpty(t, job.JobID)

	m.Wait()
	final, err := m.Snapshot(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, final.Status)
	assert.Equal(t, models.StageCompleted, final.Stage)
	assert.Equal(t, 1.0, final.Progress)
	assert.Equal(t, "[artist] Title.xtc", final.DownloadName)
	assert.Equal(t, int64(len("xtc-data")), final.FileSize)
	assert.Len(t, m.List(), 1)
}

func TestManager_ProgressIsMonotonic(t *testing.T) {
	artifact, _ := makeArtifact(t, "x")
	runner := &fakeRunner{run: func(ctx context.Context, id string, s models.ConversionSettings, r models.Reporter) (*jobs.Artifact, error) {
		r.Report(models.StageEvent(models.StageMetadata, ""))
		r.Report(models.StageEvent(models.StageArchiveDownload, ""))
		r.Report(models.StageEvent(models.StageFetchingPages, ""))
		r.Report(models.Event{Kind: models.EventPages, Total: 4, Labels: []string{"a", "b", "c", "d"}})
		r.Report(models.StageEvent(models.StageBuildingInput, ""))
		for _, i := range []int{2, 0, 3, 1} {
			r.Report(models.Event{Kind: models.EventPageDone, Index: i, Total: 4})
		}
		r.Report(models.Event{Kind: models.EventCbzReady, Total: 4})
		r.Report(models.StageEvent(models.StageConvert, "Converting"))
		r.Report(models.Event{Kind: models.EventFrame, Path: "/tmp/f1.png", Label: "f1"})
		r.Report(models.Event{Kind: models.EventLog, Message: "page 1 split"})
		r.Report(models.Event{Kind: models.EventFrame, Path: "/tmp/f2.png", Label: "f2"})
		return artifact, nil
	}}
	notifier := &recordingNotifier{}
	m, _ := newManager(t, runner, notifier)

	job, err := m.Start("arc", models.DefaultSettings())
	require.NoError(t, err)
	m.Wait()

	snapshots := notifier.all()
	require.NotEmpty(t, snapshots)
	prev := snapshots[0]
	for _, s := range snapshots[1:] {
		if prev.Status == models.JobRunning && s.Status == models.JobRunning {
			assert.GreaterOrEqual(t, s.Progress, prev.Progress)
		}
		assert.GreaterOrEqual(t, len(s.Pages), len(prev.Pages))
		assert.GreaterOrEqual(t, s.ConvertedFrameVersion, prev.ConvertedFrameVersion)
		if s.TotalPages > 0 {
			assert.LessOrEqual(t, len(s.Pages), s.TotalPages)
		}
		prev = s
	}

	final, err := m.Snapshot(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, final.Progress)
	assert.Equal(t, 4, final.CompletedPages)
	assert.Equal(t, 2, final.ConvertedFrameVersion)
	assert.Equal(t, "f2", final.CurrentConvertedFrameLabel)
	for _, p := range final.Pages {
		assert.True(t, p.Done)
	}
}

func TestManager_PreflightFailsBeforeCreatingJob(t *testing.T) {
	called := false
	runner := &fakeRunner{
		preflightErr: errors.New("converter script missing"),
		run: func(context.Context, string, models.ConversionSettings, models.Reporter) (*jobs.Artifact, error) {
			called = true
			return nil, nil
		},
	}
	m, _ := newManager(t, runner, nil)

	_, err := m.Start("arc", models.DefaultSettings())
	assert.ErrorContains(t, err, "converter script missing")
	_, err = m.Run(context.Background(), "arc", models.DefaultSettings())
	assert.Error(t, err)

	assert.Empty(t, m.List())
	assert.False(t, called)
}

func TestManager_FailureIsRecordedAndReclaimed(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, id string, s models.ConversionSettings, r models.Reporter) (*jobs.Artifact, error) {
		r.Report(models.StageEvent(models.StageConvert, ""))
		return nil, errors.New("converter exited with status 2")
	}}
	m, clock := newManager(t, runner, nil)

	job, err := m.Start("arc", models.DefaultSettings())
	require.NoError(t, err)
	m.Wait()

	final, err := m.Snapshot(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, final.Status)
	assert.Equal(t, models.StageFailed, final.Stage)
	assert.Equal(t, "converter exited with status 2", final.Error)
	assert.Equal(t, final.Error, final.Message)

	_, err = m.TakeArtifact(job.JobID)
	assert.ErrorIs(t, err, jobs.ErrArtifactUnavailable)

	assert.Equal(t, 1, m.Reclaimer().Len())
	clock.Advance(11 * time.Minute)
	assert.Equal(t, 1, m.Reclaimer().Sweep(clock.Now()))
	_, err = m.Snapshot(job.JobID)
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
}

func TestManager_PanicFailsJob(t *testing.T) {
	runner := &fakeRunner{run: func(context.Context, string, models.ConversionSettings, models.Reporter) (*jobs.Artifact, error) {
		panic("fail")
	}}
	m, _ := newManager(t, runner, nil)

	job, err := m.Start("arc", models.DefaultSettings())
	require.NoError(t, err)
	m.Wait()

	final, err := m.Snapshot(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, final.Status)
	assert.Contains(t, final.Message, "panicked")
}

func TestManager_TakeArtifactOnce(t *testing.T) {
	artifact, workspace := makeArtifact(t, "data")
	runner := &fakeRunner{run: func(context.Context, string, models.ConversionSettings, models.Reporter) (*jobs.Artifact, error) {
		return artifact, nil
	}}
	m, clock := newManager(t, runner, nil)

	job, err := m.Run(context.Background(), "arc", models.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, job.Status)

	taken, err := m.TakeArtifact(job.JobID)
	require.NoError(t, err)
	assert.Same(t, artifact, taken)
	assert.Zero(t, m.Reclaimer().Len())

	_, err = m.TakeArtifact(job.JobID)
	assert.Error(t, err)
	_, err = m.Snapshot(job.JobID)
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)

	// The TTL no longer applies; the caller owns the files now.
	clock.Advance(time.Hour)
	assert.Zero(t, m.Reclaimer().Sweep(clock.Now()))
	assert.DirExists(t, workspace)

	require.NoError(t, taken.Dispose())
	assert.NoDirExists(t, workspace)
	require.NoError(t, taken.Dispose())
	_, err = taken.Open()
	assert.ErrorIs(t, err, jobs.ErrArtifactUnavailable)
}

func TestManager_TTLDisposesUncollectedArtifact(t *testing.T) {
	artifact, workspace := makeArtifact(t, "data")
	runner := &fakeRunner{run: func(context.Context, string, models.ConversionSettings, models.Reporter) (*jobs.Artifact, error) {
		return artifact, nil
	}}
	m, clock := newManager(t, runner, nil)

	job, err := m.Run(context.Background(), "arc", models.DefaultSettings())
	require.NoError(t, err)

	clock.Advance(9 * time.Minute)
	assert.Zero(t, m.Reclaimer().Sweep(clock.Now()))
	assert.DirExists(t, workspace)

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, m.Reclaimer().Sweep(clock.Now()))
	assert.NoDirExists(t, workspace)
	assert.True(t, artifact.Disposed())

	_, err = m.Snapshot(job.JobID)
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
	_, err = m.TakeArtifact(job.JobID)
	assert.Error(t, err)
}

func TestManager_StreamArtifactDisposesOnClose(t *testing.T) {
	artifact, workspace := makeArtifact(t, "streamed")
	runner := &fakeRunner{run: func(context.Context, string, models.ConversionSettings, models.Reporter) (*jobs.Artifact, error) {
		return artifact, nil
	}}
	m, _ := newManager(t, runner, nil)

	job, err := m.Run(context.Background(), "arc", models.DefaultSettings())
	require.NoError(t, err)

	rc, name, size, err := m.StreamArtifact(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, "[artist] Title.xtc", name)
	assert.Equal(t, int64(8), size)

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "streamed", string(data))
	assert.DirExists(t, workspace)

	require.NoError(t, rc.Close())
	assert.NoDirExists(t, workspace)

	_, _, _, err = m.StreamArtifact(job.JobID)
	assert.Error(t, err)
}

func TestManager_LiveFrame(t *testing.T) {
	release := make(chan struct{})
	framed := make(chan struct{})
	artifact, _ := makeArtifact(t, "x")
	runner := &fakeRunner{run: func(ctx context.Context, id string, s models.ConversionSettings, r models.Reporter) (*jobs.Artifact, error) {
		r.Report(models.Event{Kind: models.EventFrame, Path: "/ws/.preview/frame_000001.png", Label: "0001.png"})
		close(framed)
		<-release
		return artifact, nil
	}}
	m, _ := newManager(t, runner, nil)

	job, err := m.Start("arc", models.DefaultSettings())
	require.NoError(t, err)

	_, _, err = m.LiveFrame("missing")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)

	<-framed
	path, at, err := m.LiveFrame(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, "/ws/.preview/frame_000001.png", path)
	assert.False(t, at.IsZero())

	running, err := m.Snapshot(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobRunning, running.Status)
	assert.Equal(t, running.FrameUpdatedAt, at)
	_, err = m.TakeArtifact(job.JobID)
	assert.ErrorIs(t, err, jobs.ErrArtifactUnavailable)

	close(release)
	m.Wait()
}

func TestManager_RunReturnsJobError(t *testing.T) {
	runner := &fakeRunner{run: func(context.Context, string, models.ConversionSettings, models.Reporter) (*jobs.Artifact, error) {
		return nil, errors.New("no pages")
	}}
	m, _ := newManager(t, runner, nil)

	job, err := m.Run(context.Background(), "arc", models.DefaultSettings())
	assert.EqualError(t, err, "no pages")
	assert.Equal(t, models.JobFailed, job.Status)
}

func TestManager_ConcurrentJobs(t *testing.T) {
	var mu sync.Mutex
	count := 0
	runner := &fakeRunner{run: func(context.Context, string, models.ConversionSettings, models.Reporter) (*jobs.Artifact, error) {
		mu.Lock()
		count++
		mu.Unlock()
		return nil, errors.New("stop")
	}}
	m, _ := newManager(t, runner, nil)

	ids := make(map[string]bool)
	for i := 0; i < 5; i++ {
		job, err := m.Start("arc", models.DefaultSettings())
		require.NoError(t, err)
		ids[job.JobID] = true
	}
	m.Wait()

	assert.Len(t, ids, 5, "job ids must be unique")
	assert.Equal(t, 5, count)
	assert.Len(t, m.List(), 5)
}
