package domain

// RunStatus is the derived state of a run record. It is never stored.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunFinished RunStatus = "finished"
	RunBroken   RunStatus = "broken"
)

// ParseRunStatus returns the status for s, or false if s is not a known status
func ParseRunStatus(s string) (RunStatus, bool) {
	switch RunStatus(s) {
	case RunRunning, RunFinished, RunBroken:
		return RunStatus(s), true
	}
	return "", false
}

// SummaryType names one of the three summary streams kept per run
type SummaryType string

const (
	SummaryAll     SummaryType = "all"
	SummarySuccess SummaryType = "success"
	SummaryError   SummaryType = "error"
)

// SummaryTypes lists the summary streams in the order they are copied and reported
var SummaryTypes = []SummaryType{SummaryAll, SummarySuccess, SummaryError}
