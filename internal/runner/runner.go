// Package runner drives task runs: it initializes the run context, takes the
// task lock, checks dependencies, calls the task's prepare, run and dismantle
// steps, dispatches the summaries and records the run.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/hochfrequenz/task-orchestrator/internal/config"
	"github.com/hochfrequenz/task-orchestrator/internal/domain"
	"github.com/hochfrequenz/task-orchestrator/internal/lock"
	"github.com/hochfrequenz/task-orchestrator/internal/logging"
	"github.com/hochfrequenz/task-orchestrator/internal/memprobe"
	"github.com/hochfrequenz/task-orchestrator/internal/notify"
	"github.com/hochfrequenz/task-orchestrator/internal/runctx"
	"github.com/hochfrequenz/task-orchestrator/internal/summary"
)

// TaskIDFormat is the layout of generated task ids
const TaskIDFormat = "2006-01-02_15-04-05"

// Task is implemented by every concrete task
type Task interface {
	Prepare(ctx context.Context, c *Controller) error
	Run(ctx context.Context, c *Controller) error
	Dismantle(ctx context.Context, c *Controller, success bool) error
	IsEmptyRun() bool
}

// RunRepository persists run records
type RunRepository interface {
	Save(ctx context.Context, run *domain.Run) error
	Load(ctx context.Context, id int64) (*domain.Run, error)
	ListRunning(ctx context.Context) ([]*domain.Run, error)
}

// Options configures a Runner
type Options struct {
	Config     *config.Config
	Repository RunRepository
	Locks      *lock.Coordinator
	Notifier   notify.Notifier
	Memory     memprobe.Probe
	Catalog    *Catalog

	// Logger receives every run record in addition to the run's own
	// handlers. Nil disables process-level output.
	Logger *slog.Logger
	// Console receives run records of runs started with the console flag
	Console io.Writer

	Now func() time.Time
	PID int
}

// Runner holds the collaborators shared by all controllers
type Runner struct {
	cfg      *config.Config
	repo     RunRepository
	locks    *lock.Coordinator
	notifier notify.Notifier
	memory   memprobe.Probe
	catalog  *Catalog
	limits   *memoryLimits
	base     slog.Handler
	console  io.Writer
	now      func() time.Time
	pid      int
}

// New creates a Runner. Config and Repository are required.
func New(opts Options) (*Runner, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("%w: config is required", ErrConfiguration)
	}
	if opts.Repository == nil {
		return nil, fmt.Errorf("%w: run repository is required", ErrConfiguration)
	}

	r := &Runner{
		cfg:      opts.Config,
		repo:     opts.Repository,
		locks:    opts.Locks,
		notifier: opts.Notifier,
		memory:   opts.Memory,
		catalog:  opts.Catalog,
		limits:   newMemoryLimits(debug.SetMemoryLimit),
		console:  opts.Console,
		now:      opts.Now,
		pid:      opts.PID,
	}
	if r.locks == nil {
		r.locks = lock.New(opts.Config.General.LockDir)
	}
	if r.notifier == nil {
		r.notifier = notify.NoopNotifier{}
	}
	if r.memory == nil {
		r.memory = memprobe.New()
	}
	if r.catalog == nil {
		r.catalog = NewCatalog()
	}
	if opts.Logger != nil {
		r.base = opts.Logger.Handler()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.pid == 0 {
		r.pid = os.Getpid()
	}
	return r, nil
}

// Config returns the configuration the Runner was created with
func (r *Runner) Config() *config.Config {
	return r.cfg
}

// Catalog returns the task catalog
func (r *Runner) Catalog() *Catalog {
	return r.catalog
}

// Locks returns the lock coordinator
func (r *Runner) Locks() *lock.Coordinator {
	return r.locks
}

// family is the state shared by a top-level controller and the controllers
// of its nested sub-tasks
type family struct {
	registry *runctx.Registry
	sinks    *summary.Store
	files    *logging.FileHandler
	logger   *slog.Logger
}

func (r *Runner) newFamily() *family {
	reg := runctx.New()
	f := &family{registry: reg, sinks: summary.NewStore()}

	handlers := []slog.Handler{summary.NewHandler(reg, f.sinks)}
	if r.base != nil {
		handlers = append(handlers, r.base)
	}
	if dir := r.cfg.General.LogDir; dir != "" {
		f.files = logging.NewFileHandler(dir, reg)
		handlers = append(handlers, f.files)
	}
	if r.console != nil {
		handlers = append(handlers, logging.NewConsoleHandler(r.console, reg))
	}
	f.logger = slog.New(logging.NewFanout(handlers...))
	return f
}

// NewController creates a controller for task with its own run context
func (r *Runner) NewController(task Task) *Controller {
	return newController(r, r.newFamily(), task)
}

// Execute resolves a task by name from the catalog, then initializes and
// launches it. An empty store code means the admin store, an empty task id a
// timestamp.
func (r *Runner) Execute(ctx context.Context, opts InitOptions) (*Controller, error) {
	task, err := r.catalog.Resolve(r.cfg, opts.TaskName)
	if err != nil {
		return nil, err
	}

	if opts.StoreCode == "" {
		opts.StoreCode = r.cfg.General.AdminStore
	}
	if opts.TaskID == "" {
		opts.TaskID = r.now().Format(TaskIDFormat)
	}

	c := r.NewController(task)
	if err := c.Init(opts); err != nil {
		return c, err
	}
	return c, c.Launch(ctx)
}
