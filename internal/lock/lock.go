// Package lock coordinates same-host mutual exclusion between task processes
// with advisory locks on per-task files in a shared directory.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Coordinator acquires task locks. Every acquisition opens its own file
// handle, so two acquisitions of one task conflict whether they come from
// this process or another one. The operating system drops a lock when its
// process exits.
type Coordinator struct {
	dir string

	mu   sync.Mutex
	held map[*Handle]struct{}
}

// Handle is one acquisition of a task lock. Only its owner releases it.
type Handle struct {
	c    *Coordinator
	name string

	once sync.Once
	f    *os.File
	err  error
}

// New creates a Coordinator keeping lock files in dir, or the system temp
// directory if dir is empty.
func New(dir string) *Coordinator {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Coordinator{dir: dir, held: make(map[*Handle]struct{})}
}

// Dir returns the lock directory
func (c *Coordinator) Dir() string {
	return c.dir
}

// Path returns the lock file path for a task
func (c *Coordinator) Path(taskName string) string {
	return filepath.Join(c.dir, "task_"+taskName+".lock")
}

// AcquireBlocking waits until the task's lock is obtained. There is no
// timeout.
func (c *Coordinator) AcquireBlocking(taskName string) (*Handle, error) {
	return c.acquire(taskName, true)
}

// AcquireNonBlocking tries to obtain the task's lock. It returns a nil
// Handle and no error at once if anyone else holds it, including another
// acquisition in this process.
func (c *Coordinator) AcquireNonBlocking(taskName string) (*Handle, error) {
	return c.acquire(taskName, false)
}

func (c *Coordinator) acquire(taskName string, block bool) (*Handle, error) {
	f, err := c.open(taskName)
	if err != nil {
		return nil, err
	}

	ok, err := lockFile(f, block)
	if err != nil || !ok {
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("locking %s: %w", f.Name(), err)
		}
		return nil, nil
	}

	// Informational only; the lock itself is what matters.
	_ = f.Truncate(0)
	_, _ = f.WriteAt([]byte(time.Now().Format(time.RFC3339)), 0)

	h := &Handle{c: c, name: taskName, f: f}
	c.mu.Lock()
	c.held[h] = struct{}{}
	c.mu.Unlock()
	return h, nil
}

func (c *Coordinator) open(taskName string) (*os.File, error) {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	f, err := os.OpenFile(c.Path(taskName), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	return f, nil
}

// TaskName returns the name of the locked task
func (h *Handle) TaskName() string {
	return h.name
}

// Release gives up the lock. Calling it again, or on a nil Handle, is a
// no-op.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	h.once.Do(func() {
		h.c.mu.Lock()
		delete(h.c.held, h)
		h.c.mu.Unlock()

		unlockErr := unlockFile(h.f)
		closeErr := h.f.Close()
		switch {
		case unlockErr != nil:
			h.err = fmt.Errorf("unlocking %s: %w", h.f.Name(), unlockErr)
		case closeErr != nil:
			h.err = closeErr
		}
	})
	return h.err
}

// Held reports whether an acquisition through this Coordinator currently
// holds the task's lock
func (c *Coordinator) Held(taskName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for h := range c.held {
		if h.name == taskName {
			return true
		}
	}
	return false
}

// Probe reports whether the task's lock is currently held, by this process
// or anyone else, without keeping it.
func (c *Coordinator) Probe(taskName string) (bool, error) {
	f, err := c.open(taskName)
	if err != nil {
		return false, err
	}
	defer f.Close()

	ok, err := lockFile(f, false)
	if err != nil {
		return false, fmt.Errorf("probing %s: %w", f.Name(), err)
	}
	if !ok {
		return true, nil
	}
	return false, unlockFile(f)
}

// ReleaseAll releases every lock still held through this Coordinator
func (c *Coordinator) ReleaseAll() error {
	c.mu.Lock()
	handles := make([]*Handle, 0, len(c.held))
	for h := range c.held {
		handles = append(handles, h)
	}
	c.mu.Unlock()

	var firstErr error
	for _, h := range handles {
		if err := h.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
