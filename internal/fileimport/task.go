// Package fileimport is the base for tasks that import files from a
// directory and archive them afterwards.
package fileimport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/hochfrequenz/task-orchestrator/internal/archive"
	"github.com/hochfrequenz/task-orchestrator/internal/config"
	"github.com/hochfrequenz/task-orchestrator/internal/domain"
	"github.com/hochfrequenz/task-orchestrator/internal/runner"
)

// TypeName is the settings.type that selects a configured file import
const TypeName = "file_import"

// Importer imports one file. A returned error marks the file as failed; the
// remaining files are still imported.
type Importer interface {
	Import(ctx context.Context, c *runner.Controller, path string) error
}

// Settings are read from the task's settings section in Prepare
type Settings struct {
	Path               string
	FilePattern        string
	ArchivePath        string
	ErrorPath          string
	SuppressEmptyMails bool
}

// Task imports every matching file with its Importer and moves the file to
// the archive path, or the error path if its import failed. In test mode the
// files are copied instead.
type Task struct {
	importer Importer
	store    config.ObjectStoreConfig

	settings Settings
	pattern  *regexp.Regexp
	files    []string
	results  map[string]bool
}

// New creates a file import task
func New(importer Importer, store config.ObjectStoreConfig) *Task {
	return &Task{importer: importer, store: store}
}

// Factory builds JSON file imports from task settings
func Factory(store config.ObjectStoreConfig) runner.Factory {
	return func(cfg *config.Config, taskName string) (runner.Task, error) {
		required := domain.ParseTaskList(cfg.TaskString(taskName, "settings", "required_fields", "", true))
		return New(&JSONImporter{RequiredFields: required}, store), nil
	}
}

func (t *Task) Prepare(_ context.Context, c *runner.Controller) error {
	t.settings = Settings{
		Path:               c.SettingString("path", ""),
		FilePattern:        c.SettingString("file_pattern", ""),
		ArchivePath:        c.SettingString("archive_path", ""),
		ErrorPath:          c.SettingString("error_path", ""),
		SuppressEmptyMails: c.SettingBool("suppress_empty_mails", false),
	}
	t.files = nil
	t.results = make(map[string]bool)
	t.pattern = nil

	switch {
	case strings.TrimSpace(t.settings.Path) == "":
		return errors.New("no path to import specified")
	case strings.TrimSpace(t.settings.ArchivePath) == "":
		return errors.New("no archive path specified")
	case strings.TrimSpace(t.settings.ErrorPath) == "":
		return errors.New("no error path specified")
	}

	if t.settings.FilePattern != "" {
		re, err := regexp.Compile(t.settings.FilePattern)
		if err != nil {
			return fmt.Errorf("invalid file pattern: %w", err)
		}
		t.pattern = re
	}
	return nil
}

func (t *Task) Run(ctx context.Context, c *runner.Controller) error {
	files, err := t.importFiles()
	if err != nil {
		return err
	}

	logger := c.Logger()
	if len(files) == 0 {
		c.SetProhibitSummarySending(domain.SummaryAll, t.settings.SuppressEmptyMails)
		logger.Info("Nothing to import")
		return nil
	}

	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger.Info(fmt.Sprintf("Importing file %d/%d: %s", i+1, len(files), file))

		if err := t.importer.Import(ctx, c, file); err != nil {
			logger.Debug(fmt.Sprintf("Could not finish import of file: %s because: %v", file, err))
			logger.Error(err.Error())
			t.results[file] = false
			continue
		}
		logger.Debug(fmt.Sprintf("Successfully finished import of file: %s", file))
		t.results[file] = true
	}
	return nil
}

func (t *Task) Dismantle(ctx context.Context, c *runner.Controller, _ bool) error {
	logger := c.Logger()
	for _, file := range t.files {
		ok, imported := t.results[file]
		if !imported {
			continue
		}
		target := t.settings.ArchivePath
		if !ok {
			target = t.settings.ErrorPath
		}

		a, err := archive.ForPath(t.store, target)
		if err != nil {
			return err
		}
		location, err := a.Archive(ctx, file, filepath.Base(file), c.IsTest())
		if err != nil {
			return fmt.Errorf("moving import file %s to %s: %w", file, target, err)
		}
		logger.Info(fmt.Sprintf("Moved import file: %s to archive file: %s", file, location))
	}
	return nil
}

// IsEmptyRun reports whether there was nothing to import
func (t *Task) IsEmptyRun() bool {
	return len(t.files) == 0
}

// importFiles lists the files below Path, or matching Path as a glob, that
// match the file pattern. The result is sorted and cached for the run.
func (t *Task) importFiles() ([]string, error) {
	if t.files != nil {
		return t.files, nil
	}

	var candidates []string
	path := t.settings.Path
	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("reading import path: %w", err)
		}
		for _, e := range entries {
			if e.Type().IsRegular() {
				candidates = append(candidates, filepath.Join(path, e.Name()))
			}
		}
	case err == nil:
		candidates = []string{path}
	default:
		matches, globErr := filepath.Glob(path)
		if globErr != nil {
			return nil, fmt.Errorf("invalid import path: %w", globErr)
		}
		candidates = matches
	}

	files := []string{}
	for _, f := range candidates {
		if t.pattern == nil || t.pattern.MatchString(f) {
			files = append(files, f)
		}
	}
	sort.Strings(files)
	t.files = files
	return files, nil
}
