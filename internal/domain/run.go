package domain

import "time"

// Run is the persisted record of one execution of a task.
// A run with a nil FinishAt is in progress.
type Run struct {
	ID               int64
	StoreCode        string
	TaskName         string
	TaskID           string
	ProcessID        int
	Test             bool
	Success          bool
	EmptyRun         bool
	MaxMemoryUsageMB int64
	StartAt          time.Time
	FinishAt         *time.Time
}

// Start fills the fields known when a run begins
func (r *Run) Start(storeCode, taskName, taskID string, test bool, pid int, at time.Time) {
	r.StoreCode = storeCode
	r.TaskName = taskName
	r.TaskID = taskID
	r.ProcessID = pid
	r.Test = test
	r.Success = false
	r.StartAt = at
	r.FinishAt = nil
}

// Finish records the terminal state of a run
func (r *Run) Finish(memoryMB int64, success, emptyRun bool, at time.Time) {
	if memoryMB < 0 {
		memoryMB = 0
	}
	r.MaxMemoryUsageMB = memoryMB
	r.Success = success
	r.EmptyRun = emptyRun
	r.FinishAt = &at
}

// IsRunning reports whether the run has not been finished yet
func (r *Run) IsRunning() bool {
	return r.FinishAt == nil
}

// Status derives the run status from finish time and success flag
func (r *Run) Status() RunStatus {
	switch {
	case r.FinishAt == nil:
		return RunRunning
	case r.Success:
		return RunFinished
	default:
		return RunBroken
	}
}

// Duration returns the wall-clock duration of a finished run, or the time
// elapsed since start for a running one
func (r *Run) Duration(now time.Time) time.Duration {
	if r.FinishAt != nil {
		return r.FinishAt.Sub(r.StartAt)
	}
	return now.Sub(r.StartAt)
}
