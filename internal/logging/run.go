package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hochfrequenz/task-orchestrator/internal/runctx"
)

// RunSource reports the run context current at the time a record is handled
type RunSource interface {
	Current() runctx.Context
}

const timeFormat = "2006-01-02 15:04:05"

func formatLine(t time.Time, level slog.Level, msg string) string {
	if t.IsZero() {
		t = time.Now()
	}
	return fmt.Sprintf("%s %s %s\n", t.Format(timeFormat), strings.ToUpper(LevelName(level)), msg)
}

// FileHandler writes the records of the current run to per-run files below
// dir: task/<name>/<store>/<id>.log for records under the run's error
// threshold and <id>.err for the rest. Files are opened on first use.
type FileHandler struct {
	*fileState
	attrs AttrSet
}

type fileState struct {
	dir    string
	source RunSource

	mu    sync.Mutex
	files map[string]*os.File
}

// NewFileHandler creates a FileHandler rooted at dir
func NewFileHandler(dir string, source RunSource) *FileHandler {
	return &FileHandler{fileState: &fileState{dir: dir, source: source, files: make(map[string]*os.File)}}
}

// RunFilePath returns the log file path of a run without extension
func RunFilePath(dir string, c runctx.Context) string {
	return filepath.Join(dir, "task", c.TaskName, c.StoreCode, c.TaskID)
}

func (h *FileHandler) Enabled(_ context.Context, level slog.Level) bool {
	c := h.source.Current()
	if !c.Active() {
		return false
	}
	return level >= c.LogLevel || level >= c.ErrorThreshold()
}

func (h *FileHandler) Handle(_ context.Context, r slog.Record) error {
	c := h.source.Current()
	if !c.Active() {
		return nil
	}

	ext := ".log"
	if r.Level >= c.ErrorThreshold() {
		ext = ".err"
	} else if r.Level < c.LogLevel {
		return nil
	}

	return h.write(RunFilePath(h.dir, c)+ext, formatLine(r.Time, r.Level, h.attrs.Format(r)))
}

func (s *fileState) write(path, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[path]
	if !ok {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		s.files[path] = f
	}
	_, err := io.WriteString(f, line)
	return err
}

// CloseRun closes the files of one run
func (h *FileHandler) CloseRun(c runctx.Context) error {
	base := RunFilePath(h.dir, c)

	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	for _, ext := range []string{".log", ".err"} {
		if f, ok := h.files[base+ext]; ok {
			if err := f.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
			delete(h.files, base+ext)
		}
	}
	return firstErr
}

// Close closes every open file
func (h *FileHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	for path, f := range h.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(h.files, path)
	}
	return firstErr
}

func (h *FileHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &FileHandler{fileState: h.fileState, attrs: h.attrs.WithAttrs(attrs)}
}

func (h *FileHandler) WithGroup(name string) slog.Handler {
	return &FileHandler{fileState: h.fileState, attrs: h.attrs.WithGroup(name)}
}

// ConsoleHandler echoes run records to w when the current run has its console
// flag set.
type ConsoleHandler struct {
	*consoleState
	attrs AttrSet
}

type consoleState struct {
	mu     sync.Mutex
	w      io.Writer
	source RunSource
}

// NewConsoleHandler creates a ConsoleHandler writing to w
func NewConsoleHandler(w io.Writer, source RunSource) *ConsoleHandler {
	return &ConsoleHandler{consoleState: &consoleState{w: w, source: source}}
}

func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	c := h.source.Current()
	return c.Active() && c.Console && level >= c.LogLevel
}

func (h *ConsoleHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.Enabled(ctx, r.Level) {
		return nil
	}
	line := formatLine(r.Time, r.Level, h.attrs.Format(r))

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, line)
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ConsoleHandler{consoleState: h.consoleState, attrs: h.attrs.WithAttrs(attrs)}
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	return &ConsoleHandler{consoleState: h.consoleState, attrs: h.attrs.WithGroup(name)}
}
