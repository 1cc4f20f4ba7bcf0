// Package converter drives the external cbz2xtc converter: it builds the
// flag list, runs the process, streams its output and watches the
// workspace for frames to preview.
package converter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vrsandeep/inkbridge/internal/models"
)

const (
	// SummaryLimit caps the summarized output message.
	SummaryLimit = 400
	// outputLimit caps the stdout/stderr kept for a ToolError.
	outputLimit = 2000
)

var (
	// ErrToolMissing is returned by Preflight when the converter cannot run.
	ErrToolMissing = errors.New("converter is not available")
	// ErrNoOutput is returned when the converter exits cleanly without
	// writing an output file.
	ErrNoOutput = errors.New("converter produced no output file")

	progressLine = regexp.MustCompile(`(?i)(page|extract|split|output|done|warning|error)`)
)

// ToolError is a nonzero converter exit.
type ToolError struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("converter exited with status %d", e.ExitCode)
	if tail := strings.TrimSpace(e.Stderr); tail != "" {
		return msg + ": " + tail
	}
	if tail := strings.TrimSpace(e.Stdout); tail != "" {
		return msg + ": " + tail
	}
	return msg
}

// Options configure a Supervisor.
type Options struct {
	Command string
	// Script is passed as the first argument when set, for interpreters.
	Script       string
	OutputDir    string
	PollInterval time.Duration
	MinAge       time.Duration
}

// Output is a successful conversion.
type Output struct {
	Path    string
	Summary string
}

// Supervisor runs the converter against job workspaces.
type Supervisor struct {
	opts Options
	log  *zap.SugaredLogger
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(opts Options, log *zap.SugaredLogger) *Supervisor {
	if opts.OutputDir == "" {
		opts.OutputDir = "xtc_output"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Supervisor{opts: opts, log: log}
}

// Preflight checks that the converter command and script exist.
func (s *Supervisor) Preflight() error {
	if s.opts.Command == "" {
		return fmt.Errorf("%w: no command configured", ErrToolMissing)
	}
	if _, err := exec.LookPath(s.opts.Command); err != nil {
		return fmt.Errorf("%w: %v", ErrToolMissing, err)
	}
	if s.opts.Script != "" {
		info, err := os.Stat(s.opts.Script)
		if err != nil {
			return fmt.Errorf("%w: script %s: %v", ErrToolMissing, s.opts.Script, err)
		}
		if info.IsDir() {
			return fmt.Errorf("%w: script %s is a directory", ErrToolMissing, s.opts.Script)
		}
	}
	return nil
}

// Run converts the container in workspace. Output lines are streamed as
// log events while a FrameWatcher reports frames; both stop when the
// process exits.
func (s *Supervisor) Run(ctx context.Context, workspace string, flags []string, reporter models.Reporter) (*Output, error) {
	if reporter == nil {
		reporter = models.NopReporter
	}

	var args []string
	if s.opts.Script != "" {
		script, err := filepath.Abs(s.opts.Script)
		if err != nil {
			return nil, err
		}
		args = append(args, script)
	}
	args = append(args, flags...)
	args = append(args, workspace)

	cmd := exec.CommandContext(ctx, s.opts.Command, args...)
	cmd.Dir = workspace
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	s.log.Debugf("Running %s %s", s.opts.Command, strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start converter: %w", err)
	}

	watcher := NewFrameWatcher(workspace, WatchOptions{
		SkipDirs:     []string{s.opts.OutputDir, PreviewDir, "pages"},
		PollInterval: s.opts.PollInterval,
		MinAge:       s.opts.MinAge,
	}, s.log)
	watchCtx, stopWatching := context.WithCancel(ctx)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		watcher.Run(watchCtx, reporter)
	}()

	out := newOutputCollector(reporter)
	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		out.consume(stdout, &out.stdout)
	}()
	go func() {
		defer readers.Done()
		out.consume(stderr, &out.stderr)
	}()
	readers.Wait()
	waitErr := cmd.Wait()

	stopWatching()
	<-watchDone

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return nil, &ToolError{
				ExitCode: exitErr.ExitCode(),
				Stdout:   tail(out.stdout.String(), outputLimit),
				Stderr:   tail(out.stderr.String(), outputLimit),
			}
		}
		return nil, fmt.Errorf("converter failed: %w", waitErr)
	}

	path, err := FindOutput(workspace)
	if err != nil {
		return nil, err
	}
	summary := out.summary()
	if summary != "" {
		reporter.Report(models.Event{Kind: models.EventLog, Message: summary})
	}
	return &Output{Path: path, Summary: summary}, nil
}

// outputCollector keeps the converter's stdout and stderr apart for error
// reports and the progress relevant lines of both for the summary.
type outputCollector struct {
	mu       sync.Mutex
	stdout   strings.Builder
	stderr   strings.Builder
	progress []string
	reporter models.Reporter
}

func newOutputCollector(reporter models.Reporter) *outputCollector {
	return &outputCollector{reporter: reporter}
}

func (c *outputCollector) consume(r io.Reader, buf *strings.Builder) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		c.mu.Lock()
		buf.WriteString(line)
		buf.WriteByte('\n')
		keep := line != "" && progressLine.MatchString(line)
		if keep {
			c.progress = append(c.progress, line)
		}
		c.mu.Unlock()
		if keep {
			c.reporter.Report(models.Event{Kind: models.EventLog, Message: line})
		}
	}
	// Drain whatever the scanner refused so the process never blocks.
	io.Copy(io.Discard, r)
}

// summary joins the progress lines, keeping the most recent ones when the
// result would exceed SummaryLimit.
func (c *outputCollector) summary() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return tail(strings.Join(c.progress, " | "), SummaryLimit)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[len(s)-n:]
	// Do not start in the middle of a UTF-8 sequence.
	for i := 0; i < len(cut) && i < 4; i++ {
		if cut[i]&0xC0 != 0x80 {
			return "..." + cut[i:]
		}
	}
	return "..." + cut
}

// FindOutput returns the newest .xtc or .xtch file under workspace.
func FindOutput(workspace string) (string, error) {
	var newest string
	var newestTime time.Time
	err := filepath.WalkDir(workspace, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".xtc" && ext != ".xtch" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest, newestTime = path, info.ModTime()
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to scan for output: %w", err)
	}
	if newest == "" {
		return "", ErrNoOutput
	}
	return newest, nil
}
