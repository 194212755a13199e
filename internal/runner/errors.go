package runner

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks errors that stop a run before it is recorded
	ErrConfiguration = errors.New("task configuration error")
	// ErrNotInitialized is returned by Launch before Init
	ErrNotInitialized = errors.New("task controller not initialized")
	// ErrUnknownTask is returned when no task is registered under a name
	ErrUnknownTask = errors.New("unknown task")
)

// Stage names a step of the run lifecycle
type Stage string

const (
	StageDependency Stage = "dependency"
	StageLock       Stage = "lock"
	StagePrepare    Stage = "prepare"
	StageRun        Stage = "run"
	StageDismantle  Stage = "dismantle"
	StageSummary    Stage = "summary"
)

// StageError is a failure confined to one lifecycle stage. Stage errors are
// logged and collected; they do not abort the run.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// safeCall runs fn and turns a returned error or a panic into a StageError
func safeCall(stage Stage, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := fn(); err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}
