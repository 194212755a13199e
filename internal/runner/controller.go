package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/hochfrequenz/task-orchestrator/internal/deps"
	"github.com/hochfrequenz/task-orchestrator/internal/domain"
	"github.com/hochfrequenz/task-orchestrator/internal/lock"
	"github.com/hochfrequenz/task-orchestrator/internal/logging"
	"github.com/hochfrequenz/task-orchestrator/internal/runctx"
)

// InitOptions identifies a run
type InitOptions struct {
	StoreCode string
	TaskName  string
	TaskID    string
	// LogLevel overrides the configured level when set
	LogLevel string
	Console  bool
	Test     bool
}

// Controller runs one task through its lifecycle. Create it with
// Runner.NewController, or Controller.NewChild for a sub-task whose output
// should land in the parent's summaries.
type Controller struct {
	runner *Runner
	fam    *family
	task   Task

	mu                 sync.Mutex
	initialized        bool
	snapshot           runctx.Snapshot
	run                runctx.Context
	test               bool
	dependsOn          []string
	waitForPredecessor bool
	allowAdminStore    bool
	prohibit           map[domain.SummaryType]bool
	record             *domain.Run
	success            bool
	failures           []error
}

func newController(r *Runner, fam *family, task Task) *Controller {
	return &Controller{
		runner:          r,
		fam:             fam,
		task:            task,
		allowAdminStore: true,
		prohibit:        make(map[domain.SummaryType]bool),
	}
}

// NewChild creates a controller for a sub-task sharing this controller's
// run context registry and summary sinks
func (c *Controller) NewChild(task Task) *Controller {
	return newController(c.runner, c.fam, task)
}

// Init prepares a run: it saves the current run context for restoration,
// reads the task settings and publishes the new run context.
func (c *Controller) Init(opts InitOptions) error {
	if opts.TaskName == "" {
		return fmt.Errorf("%w: please specify a task name", ErrConfiguration)
	}
	if err := domain.ValidateTaskName(opts.TaskName); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	cfg := c.runner.cfg
	name := opts.TaskName

	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshot = c.fam.registry.Snapshot()
	c.test = opts.Test
	c.record = nil
	c.success = false
	c.failures = nil

	c.runner.limits.release(c)
	if maxMemory := cfg.TaskInt(name, "settings", "max_memory", 0, true); maxMemory > 0 {
		c.runner.limits.apply(c, maxMemory<<20)
	}

	c.dependsOn = domain.ParseTaskList(cfg.TaskString(name, "settings", "depends_on", "", true))
	c.waitForPredecessor = cfg.TaskBool(name, "settings", "wait_for_predecessor", false, true)

	levelName := opts.LogLevel
	if levelName == "" {
		levelName = cfg.TaskString(name, "logging", "log_level", "info", false)
	}
	level, _ := logging.ParseLevel(levelName)

	c.run = runctx.Context{
		TaskName:    name,
		TaskID:      opts.TaskID,
		StoreCode:   opts.StoreCode,
		LogLevel:    level,
		WarnAsError: cfg.TaskBool(name, "logging", "log_warn_as_error", true, false),
		Console:     opts.Console,
	}
	c.fam.registry.Publish(c.run)
	c.initialized = true
	return nil
}

// Launch runs the task lifecycle. Stage failures are logged, recorded in
// Failures and mark the run unsuccessful; they are not returned. Launch
// returns an error when the controller is not initialized, when the task may
// not run in the admin store, or when the run record cannot be saved.
func (c *Controller) Launch(ctx context.Context) error {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	run := c.run
	snapshot := c.snapshot
	allowAdmin := c.allowAdminStore
	test := c.test
	dependsOn := c.dependsOn
	waitForPredecessor := c.waitForPredecessor
	c.failures = nil
	c.mu.Unlock()

	reg := c.fam.registry
	reg.Publish(run)
	defer reg.Restore(snapshot)
	defer c.runner.limits.release(c)

	r := c.runner
	logger := c.fam.logger
	locks := r.locks
	name := run.TaskName

	memoryStart := r.memory.CurrentMB()
	start := r.now()

	if !allowAdmin && strings.EqualFold(strings.TrimSpace(run.StoreCode), r.cfg.General.AdminStore) {
		return fmt.Errorf("%w: task %s is not allowed to run with admin store", ErrConfiguration, name)
	}

	record := &domain.Run{}
	record.Start(run.StoreCode, name, run.TaskID, test, r.pid, start)
	if err := r.repo.Save(ctx, record); err != nil {
		return fmt.Errorf("saving run record: %w", err)
	}
	c.setRecord(record)

	var held *lock.Handle
	// Released again below; this covers panics in the summary dispatch.
	defer func() { held.Release() }()

	success := true

	list := deps.Effective(name, dependsOn, waitForPredecessor)
	if err := deps.NewResolver(locks, logger).Check(name, list); err != nil {
		c.addFailure(&StageError{Stage: StageDependency, Err: err})
		success = false
	} else if waitForPredecessor {
		h, err := locks.AcquireBlocking(name)
		if err != nil {
			logger.Error(fmt.Sprintf("Could not lock task %s: %v", name, err))
			c.addFailure(&StageError{Stage: StageLock, Err: err})
			success = false
		}
		held = h
	} else {
		h, err := locks.AcquireNonBlocking(name)
		switch {
		case err != nil:
			logger.Error(fmt.Sprintf("Could not lock task %s: %v", name, err))
			c.addFailure(&StageError{Stage: StageLock, Err: err})
			success = false
		case h == nil:
			logger.Error(fmt.Sprintf("The task: %s is still running and block the process of this task: %s.", name, name))
			c.addFailure(&StageError{Stage: StageDependency, Err: &deps.BlockedError{Task: name, Blocker: name}})
			success = false
		}
		held = h
	}

	if test {
		logger.Info("Task is running in test mode")
	}

	if err := safeCall(StagePrepare, func() error { return c.task.Prepare(ctx, c) }); err != nil {
		logger.Error(fmt.Sprintf("Could not prepare task because: %v", errors.Unwrap(err)))
		c.addFailure(err)
		success = false
	}

	if success {
		logger.Info(fmt.Sprintf("Running task: %s", name))
		if err := safeCall(StageRun, func() error { return c.task.Run(ctx, c) }); err != nil {
			logger.Error(fmt.Sprintf("Could not run task because: %v", errors.Unwrap(err)))
			c.addFailure(err)
			success = false
		} else {
			logger.Info(fmt.Sprintf("Finished task: %s", name))
		}
	}
	c.setSuccess(success)

	if err := safeCall(StageDismantle, func() error { return c.task.Dismantle(ctx, c, success) }); err != nil {
		logger.Error(fmt.Sprintf("Could not dismantle task because: %v", errors.Unwrap(err)))
		c.addFailure(err)
	}

	for _, typ := range []domain.SummaryType{domain.SummarySuccess, domain.SummaryError} {
		if err := safeCall(StageSummary, func() error { return c.SendSummary(ctx, typ) }); err != nil {
			logger.Error(fmt.Sprintf("Could not send %s summary because: %v", typ, errors.Unwrap(err)))
			c.addFailure(err)
		}
	}

	if err := held.Release(); err != nil {
		logger.Warn(fmt.Sprintf("Could not release lock of task %s: %v", name, err))
	}

	end := r.now()
	duration := end.Sub(start)
	memoryUsed := r.memory.CurrentMB() - memoryStart
	if memoryUsed < 0 {
		memoryUsed = 0
	}

	logger.Info(fmt.Sprintf("Duration: %d minute(s), %d second(s)", int(duration.Minutes()), int(duration.Seconds())%60))
	logger.Info(fmt.Sprintf("Max memory usage: %s MB", humanize.Comma(memoryUsed)))

	emptyRun := false
	if err := safeCall(StageRun, func() error { emptyRun = c.task.IsEmptyRun(); return nil }); err != nil {
		c.addFailure(err)
	}

	record.Finish(memoryUsed, success, emptyRun, end)

	if c.fam.files != nil {
		if err := c.fam.files.CloseRun(run); err != nil {
			slog.Default().Warn("closing run log files", "task", name, "error", err)
		}
	}

	// The terminal record is written even if ctx was cancelled meanwhile.
	if err := r.repo.Save(context.WithoutCancel(ctx), record); err != nil {
		return fmt.Errorf("saving finished run record: %w", err)
	}
	return nil
}

// LaunchFromAdmin initializes and launches a run with a timestamp id and
// returns the flat all summary with header.
func (c *Controller) LaunchFromAdmin(ctx context.Context, storeCode, taskName string, test bool) (string, error) {
	err := c.Init(InitOptions{
		StoreCode: storeCode,
		TaskName:  taskName,
		TaskID:    c.runner.now().Format(TaskIDFormat),
		Test:      test,
	})
	if err != nil {
		return "", err
	}
	if err := c.Launch(ctx); err != nil {
		return "", err
	}
	flat, _ := c.FlatSummary(domain.SummaryAll, true)
	return flat, nil
}

func (c *Controller) setRecord(r *domain.Run) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record = r
}

func (c *Controller) setSuccess(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.success = ok
}

func (c *Controller) addFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, err)
}

// Failures returns the stage errors of the last launch
func (c *Controller) Failures() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]error, len(c.failures))
	copy(out, c.failures)
	return out
}

// Success reports the outcome of the last launch
func (c *Controller) Success() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.success
}

// Record returns the run record of the last launch, or nil
func (c *Controller) Record() *domain.Run {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record
}

// Logger returns the logger whose records feed this run's summaries
func (c *Controller) Logger() *slog.Logger {
	return c.fam.logger
}

func (c *Controller) TaskName() string  { return c.run.TaskName }
func (c *Controller) TaskID() string    { return c.run.TaskID }
func (c *Controller) StoreCode() string { return c.run.StoreCode }

// SetTestMode switches test mode, in which tasks must not change external
// state irreversibly
func (c *Controller) SetTestMode(test bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.test = test
}

// IsTest reports whether the run is in test mode
func (c *Controller) IsTest() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.test
}

// SetAllowAdminStore controls whether the task may run with the admin store
func (c *Controller) SetAllowAdminStore(allow bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allowAdminStore = allow
}

// ConfigValue resolves a setting of this task
func (c *Controller) ConfigValue(section, field string, def any, isFlag, force bool) any {
	return c.runner.cfg.TaskConfigValue(c.run.TaskName, section, field, def, isFlag, force)
}

// SettingString reads a string from the task's settings section
func (c *Controller) SettingString(field, def string) string {
	return c.runner.cfg.TaskString(c.run.TaskName, "settings", field, def, true)
}

// SettingBool reads a flag from the task's settings section
func (c *Controller) SettingBool(field string, def bool) bool {
	return c.runner.cfg.TaskBool(c.run.TaskName, "settings", field, def, true)
}

// SettingInt reads an integer from the task's settings section
func (c *Controller) SettingInt(field string, def int64) int64 {
	return c.runner.cfg.TaskInt(c.run.TaskName, "settings", field, def, true)
}
