// Package reconcile finishes run records left open by processes that died
// without writing their terminal state.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hochfrequenz/task-orchestrator/internal/config"
	"github.com/hochfrequenz/task-orchestrator/internal/domain"
	"github.com/hochfrequenz/task-orchestrator/internal/runner"
)

// TaskName is the catalog name of the reconcile task
const TaskName = "reconcile"

// Repository is the part of the run store the checker needs
type Repository interface {
	Save(ctx context.Context, run *domain.Run) error
	ListRunning(ctx context.Context) ([]*domain.Run, error)
}

// Checker marks running records of dead processes as broken
type Checker struct {
	repo   Repository
	alive  func(pid int) bool
	now    func() time.Time
	logger *slog.Logger
}

// NewChecker creates a Checker probing process liveness with signal 0
func NewChecker(repo Repository, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{repo: repo, alive: processAlive, now: time.Now, logger: logger}
}

// Check finishes every running record whose process id is zero or whose
// process no longer exists. It returns the records it finished.
func (c *Checker) Check(ctx context.Context) ([]*domain.Run, error) {
	running, err := c.repo.ListRunning(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing running runs: %w", err)
	}

	var finished []*domain.Run
	for _, run := range running {
		if run.ProcessID != 0 && c.alive(run.ProcessID) {
			continue
		}

		run.Finish(run.MaxMemoryUsageMB, false, run.EmptyRun, c.now())
		if err := c.repo.Save(ctx, run); err != nil {
			return finished, fmt.Errorf("finishing run %d: %w", run.ID, err)
		}
		c.logger.Warn(fmt.Sprintf("Finished run %d of task %s with id %s because process %d is no longer running",
			run.ID, run.TaskName, run.TaskID, run.ProcessID))
		finished = append(finished, run)
	}
	return finished, nil
}

// Task runs the checker under the lifecycle controller
type Task struct {
	repo     Repository
	finished int
}

// NewTask creates the reconcile task
func NewTask(repo Repository) *Task {
	return &Task{repo: repo}
}

// Factory returns a catalog factory for the reconcile task
func Factory(repo Repository) runner.Factory {
	return func(*config.Config, string) (runner.Task, error) {
		return NewTask(repo), nil
	}
}

func (t *Task) Prepare(context.Context, *runner.Controller) error {
	t.finished = 0
	return nil
}

func (t *Task) Run(ctx context.Context, c *runner.Controller) error {
	finished, err := NewChecker(t.repo, c.Logger()).Check(ctx)
	t.finished = len(finished)
	if err != nil {
		return err
	}
	if t.finished == 0 {
		c.Logger().Info("No stale runs found")
	}
	return nil
}

func (t *Task) Dismantle(context.Context, *runner.Controller, bool) error {
	return nil
}

// IsEmptyRun reports whether the last run finished no records
func (t *Task) IsEmptyRun() bool {
	return t.finished == 0
}
