package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/inkbridge/internal/models"
	"github.com/vrsandeep/inkbridge/internal/testutil"
)

type eventLog struct {
	frameLog
	logs []string
}

func (l *eventLog) Report(e models.Event) {
	l.frameLog.Report(e)
	if e.Kind == models.EventLog {
		l.mu.Lock()
		l.logs = append(l.logs, e.Message)
		l.mu.Unlock()
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-converter.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func newTestSupervisor(script string) *Supervisor {
	return NewSupervisor(Options{
		Command:      "sh",
		Script:       script,
		PollInterval: 10 * time.Millisecond,
	}, nil)
}

func TestSupervisor_Success(t *testing.T) {
	fixture := filepath.Join(t.TempDir(), "frame.png")
	require.NoError(t, os.WriteFile(fixture, testutil.PNGBytes(t, 4, 4, false), 0644))

	script := writeScript(t, fmt.Sprintf(`
echo "Extracting pages from input.cbz"
echo "noise"
mkdir -p frames
cp %q frames/0001.png
sleep 0.1
echo "warning: low contrast on page 2" >&2
mkdir -p xtc_output
printf 'XTC' > xtc_output/book.xtc
echo "Done. Output written"
`, fixture))

	workspace := t.TempDir()
	log := &eventLog{}
	out, err := newTestSupervisor(script).Run(context.Background(), workspace, []string{"--clean"}, log)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(workspace, "xtc_output", "book.xtc"), out.Path)
	assert.Contains(t, out.Summary, "Extracting pages")
	assert.Contains(t, out.Summary, "warning: low contrast")
	assert.Contains(t, out.Summary, "Done. Output written")
	assert.NotContains(t, out.Summary, "noise")

	frames := log.all()
	require.NotEmpty(t, frames)
	assert.Equal(t, "0001.png", frames[0].Label)
	assert.NotEmpty(t, log.logs)
}

func TestSupervisor_PassesFlagsAndWorkspace(t *testing.T) {
	script := writeScript(t, `
echo "output args: $*"
printf 'XTC' > out.xtch
`)
	workspace := t.TempDir()
	out, err := newTestSupervisor(script).Run(context.Background(), workspace, []string{"--overlap", "--clean"}, nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(workspace, "out.xtch"), out.Path)
	assert.Contains(t, out.Summary, "--overlap --clean "+workspace)
}

func TestSupervisor_NonzeroExit(t *testing.T) {
	script := writeScript(t, `
echo "reading page 1"
echo "Traceback: something broke" >&2
exit 3
`)
	_, err := newTestSupervisor(script).Run(context.Background(), t.TempDir(), nil, nil)
	require.Error(t, err)

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, 3, toolErr.ExitCode)
	assert.Contains(t, toolErr.Stderr, "something broke")
	assert.Contains(t, toolErr.Stdout, "reading page 1")
	assert.Contains(t, err.Error(), "status 3")
}

func TestSupervisor_NoOutput(t *testing.T) {
	script := writeScript(t, `echo "done"`)
	_, err := newTestSupervisor(script).Run(context.Background(), t.TempDir(), nil, nil)
	assert.ErrorIs(t, err, ErrNoOutput)
}

func TestSupervisor_Preflight(t *testing.T) {
	script := writeScript(t, `exit 0`)
	assert.NoError(t, newTestSupervisor(script).Preflight())

	missingScript := newTestSupervisor(filepath.Join(t.TempDir(), "nope.py"))
	assert.ErrorIs(t, missingScript.Preflight(), ErrToolMissing)

	missingCommand := NewSupervisor(Options{Command: "inkbridge-no-such-command"}, nil)
	assert.ErrorIs(t, missingCommand.Preflight(), ErrToolMissing)
}

func TestToolError_Truncation(t *testing.T) {
	long := strings.Repeat("x", outputLimit*2)
	truncated := tail(long, outputLimit)
	assert.Len(t, truncated, outputLimit+len("..."))
	assert.True(t, strings.HasPrefix(truncated, "..."))
}

func TestSummaryIsCapped(t *testing.T) {
	c := newOutputCollector(models.NopReporter)
	c.consume(strings.NewReader(strings.Repeat("page processed\n", 100)), &c.stdout)
	summary := c.summary()
	assert.LessOrEqual(t, len(summary), SummaryLimit+len("..."))
	assert.True(t, strings.HasSuffix(summary, "page processed"))
}

func TestFindOutput_PicksNewest(t *testing.T) {
	workspace := t.TempDir()
	older := filepath.Join(workspace, "a.xtc")
	newer := filepath.Join(workspace, "sub", "b.xtch")
	require.NoError(t, os.WriteFile(older, []byte("1"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Dir(newer), 0755))
	require.NoError(t, os.WriteFile(newer, []byte("2"), 0644))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	path, err := FindOutput(workspace)
	require.NoError(t, err)
	assert.Equal(t, newer, path)
}
