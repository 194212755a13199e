package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hochfrequenz/task-orchestrator/internal/runctx"
)

func TestFileHandler_SplitsByThreshold(t *testing.T) {
	dir := t.TempDir()
	reg := runctx.New()
	run := runctx.Context{TaskName: "import-orders", TaskID: "1", StoreCode: "admin", LogLevel: LevelInfo, WarnAsError: true}
	reg.Publish(run)

	h := NewFileHandler(dir, reg)
	defer h.Close()
	logger := slog.New(h)

	logger.Debug("hidden")
	logger.Info("started")
	logger.Warn("odd row")
	logger.Error("failed")

	if err := h.CloseRun(run); err != nil {
		t.Fatal(err)
	}

	base := RunFilePath(dir, run)
	logData, err := os.ReadFile(base + ".log")
	if err != nil {
		t.Fatal(err)
	}
	errData, err := os.ReadFile(base + ".err")
	if err != nil {
		t.Fatal(err)
	}

	if strings.Contains(string(logData), "hidden") {
		t.Error(".log should not contain records below the run level")
	}
	if !strings.Contains(string(logData), "INFO started") {
		t.Errorf(".log = %q", logData)
	}
	if strings.Contains(string(logData), "odd row") {
		t.Error("warning should go to .err when warnings count as errors")
	}
	for _, want := range []string{"WARNING odd row", "ERROR failed"} {
		if !strings.Contains(string(errData), want) {
			t.Errorf(".err missing %q: %q", want, errData)
		}
	}
}

func TestFileHandler_NoRun(t *testing.T) {
	dir := t.TempDir()
	h := NewFileHandler(dir, runctx.New())

	if h.Enabled(t.Context(), LevelEmergency) {
		t.Error("handler should be disabled without a current run")
	}
	slog.New(h).Error("dropped")

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("no files expected, got %d entries", len(entries))
	}
}

func TestRunFilePath(t *testing.T) {
	got := RunFilePath("/var/log/orch", runctx.Context{TaskName: "t", StoreCode: "admin", TaskID: "42"})
	if want := filepath.Join("/var/log/orch", "task", "t", "admin", "42"); got != want {
		t.Errorf("RunFilePath = %q", got)
	}
}

func TestConsoleHandler(t *testing.T) {
	var buf bytes.Buffer
	reg := runctx.New()
	logger := slog.New(NewConsoleHandler(&buf, reg))

	reg.Publish(runctx.Context{TaskName: "t", TaskID: "1", LogLevel: LevelInfo})
	logger.Info("quiet")
	if buf.Len() != 0 {
		t.Fatalf("console disabled, got %q", buf.String())
	}

	reg.Publish(runctx.Context{TaskName: "t", TaskID: "1", LogLevel: LevelInfo, Console: true})
	logger.Debug("below level")
	logger.Info("Running task: t", "store", "admin")

	out := buf.String()
	if strings.Contains(out, "below level") {
		t.Error("records below the run level should not be echoed")
	}
	if !strings.Contains(out, "INFO Running task: t store=admin") {
		t.Errorf("console output = %q", out)
	}
}
