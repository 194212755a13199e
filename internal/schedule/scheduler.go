// Package schedule triggers configured task runs on cron expressions.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hochfrequenz/task-orchestrator/internal/config"
	"github.com/hochfrequenz/task-orchestrator/internal/domain"
	"github.com/hochfrequenz/task-orchestrator/internal/runner"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a five-field cron expression or a descriptor such as
// @daily
func ParseCron(expr string) (cron.Schedule, error) {
	return parser.Parse(expr)
}

// Validate checks a schedule entry
func Validate(e config.ScheduleEntry) error {
	if e.Task == "" {
		return fmt.Errorf("task name is required")
	}
	if e.Cron == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := ParseCron(e.Cron); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// LaunchFunc runs one scheduled entry
type LaunchFunc func(ctx context.Context, e config.ScheduleEntry) error

// Entry is a scheduled entry with its next activation
type Entry struct {
	config.ScheduleEntry
	Next time.Time
}

// Scheduler runs LaunchFunc for each entry on its cron expression. An entry
// whose previous run has not finished is skipped.
type Scheduler struct {
	cron   *cron.Cron
	chain  cron.Chain
	launch LaunchFunc
	logger *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	ids     []cron.EntryID
	entries []config.ScheduleEntry
}

// New creates a Scheduler
func New(launch LaunchFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	l := cronLogger{logger: logger}
	chain := cron.NewChain(cron.Recover(l), cron.SkipIfStillRunning(l))
	return &Scheduler{
		cron:   cron.New(cron.WithParser(parser), cron.WithLogger(l)),
		chain:  chain,
		launch: launch,
		logger: logger,
		ctx:    context.Background(),
	}
}

// Reload replaces the scheduled entries. If any entry is invalid nothing is
// changed.
func (s *Scheduler) Reload(entries []config.ScheduleEntry) error {
	for i, e := range entries {
		if err := Validate(e); err != nil {
			return fmt.Errorf("schedule entry %d: %w", i, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.ids {
		s.cron.Remove(id)
	}
	s.ids = s.ids[:0]
	s.entries = nil

	for _, e := range entries {
		id, err := s.cron.AddJob(e.Cron, s.job(e))
		if err != nil {
			return fmt.Errorf("scheduling %s: %w", e.Task, err)
		}
		s.ids = append(s.ids, id)
		s.entries = append(s.entries, e)
	}
	s.logger.Info("schedule loaded", "entries", len(entries))
	return nil
}

func (s *Scheduler) job(e config.ScheduleEntry) cron.Job {
	return s.chain.Then(cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()

		s.logger.Info("scheduled run starting", "task", e.Task)
		if err := s.launch(ctx, e); err != nil {
			s.logger.Error("scheduled run failed", "task", e.Task, "error", err)
			return
		}
		s.logger.Info("scheduled run finished", "task", e.Task)
	}))
}

// Entries lists the scheduled entries ordered by next activation
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	out := make([]Entry, 0, len(s.ids))
	for i, id := range s.ids {
		ce := s.cron.Entry(id)
		next := ce.Next
		if next.IsZero() && ce.Schedule != nil {
			next = ce.Schedule.Next(now)
		}
		out = append(out, Entry{ScheduleEntry: s.entries[i], Next: next})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Next.Before(out[j].Next) })
	return out
}

// Start runs the scheduler in the background. Launches receive ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

// Stop stops scheduling and waits for running launches to return
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Launch returns a LaunchFunc executing entries with r. A run whose error
// summary is not empty is reported as a *RunError.
func Launch(r *runner.Runner) LaunchFunc {
	return func(ctx context.Context, e config.ScheduleEntry) error {
		c, err := r.Execute(ctx, runner.InitOptions{
			StoreCode: e.StoreCode,
			TaskName:  e.Task,
			LogLevel:  e.LogLevel,
			Test:      e.Test,
		})
		if err != nil {
			return err
		}
		if summary, _ := c.FlatSummary(domain.SummaryError, false); summary != "" {
			return &RunError{Task: e.Task, TaskID: c.TaskID(), Summary: summary}
		}
		return nil
	}
}

// RunError carries the error summary of a scheduled run
type RunError struct {
	Task    string
	TaskID  string
	Summary string
}

func (e *RunError) Error() string {
	return fmt.Sprintf("task %s (%s) reported errors:\n%s", e.Task, e.TaskID, e.Summary)
}

// cronLogger adapts slog to the cron logger interface
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
