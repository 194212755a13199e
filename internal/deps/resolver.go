// Package deps checks task dependencies: at run time against the task locks,
// and statically as a graph of the configured depends_on lists.
package deps

import (
	"fmt"
	"log/slog"
	"slices"
)

// Prober reports whether a task's lock is currently held
type Prober interface {
	Probe(taskName string) (bool, error)
}

// BlockedError names the running task that blocks another
type BlockedError struct {
	Task    string
	Blocker string
	Err     error
}

func (e *BlockedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task %s blocked: checking %s: %v", e.Task, e.Blocker, e.Err)
	}
	return fmt.Sprintf("task %s blocked by running task %s", e.Task, e.Blocker)
}

func (e *BlockedError) Unwrap() error {
	return e.Err
}

// Resolver checks dependency lists against the lock coordinator
type Resolver struct {
	locks  Prober
	logger *slog.Logger
}

// NewResolver creates a Resolver logging blocks to logger
func NewResolver(locks Prober, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{locks: locks, logger: logger}
}

// Effective returns the list to check for a task. Unless the task waits for
// its predecessor, its own name is appended so a second instance cannot start
// while the first is running.
func Effective(taskName string, dependsOn []string, waitForPredecessor bool) []string {
	out := slices.Clone(dependsOn)
	if !waitForPredecessor {
		out = append(out, taskName)
	}
	return out
}

// Check probes each dependency in order and stops at the first one that is
// running. It returns nil when none is, or a *BlockedError. A failed probe
// counts as a block.
func (r *Resolver) Check(taskName string, dependsOn []string) error {
	for _, dep := range dependsOn {
		running, err := r.locks.Probe(dep)
		if err != nil {
			r.logger.Error(fmt.Sprintf("Could not check whether task %s is running: %v", dep, err))
			return &BlockedError{Task: taskName, Blocker: dep, Err: err}
		}
		if running {
			r.logger.Error(fmt.Sprintf("The task: %s is still running and block the process of this task: %s.", dep, taskName))
			return &BlockedError{Task: taskName, Blocker: dep}
		}
	}
	return nil
}
