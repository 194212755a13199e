// Package runctx holds the identity of the task run that is currently
// executing: task name and id, log level and console settings.
//
// A Registry is owned by one top-level execution. Nested task invocations
// share their parent's Registry and save/restore it around the child run, so
// the parent sees its own context again after the child has finished.
package runctx

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Key names a tracked registry value
type Key string

const (
	KeyTaskName    Key = "current_task_name"
	KeyTaskID      Key = "current_task_id"
	KeyLogLevel    Key = "current_task_log_level"
	KeyWarnAsError Key = "current_task_log_warn_as_error"
	KeyConsole     Key = "current_task_console"
	KeyStoreCode   Key = "current_task_store_code"
)

// Keys lists every tracked key
var Keys = []Key{KeyTaskName, KeyTaskID, KeyLogLevel, KeyWarnAsError, KeyConsole, KeyStoreCode}

// Context is the typed view of the registry values
type Context struct {
	TaskName    string
	TaskID      string
	StoreCode   string
	LogLevel    slog.Level
	WarnAsError bool
	Console     bool
}

// Active reports whether a run is current
func (c Context) Active() bool {
	return c.TaskName != "" || c.TaskID != ""
}

// RunKey returns the key identifying the run's summary streams and log files
func (c Context) RunKey() string {
	return RunKey(c.TaskName, c.TaskID)
}

// ErrorThreshold is the lowest level that counts as an error for this run
func (c Context) ErrorThreshold() slog.Level {
	if c.WarnAsError {
		return slog.LevelWarn
	}
	return slog.LevelError
}

// RunKey hashes a task name and id into a stable run key
func RunKey(taskName, taskID string) string {
	data, _ := json.Marshal([]string{taskName, taskID})
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// Snapshot is a value copy of the registry, restorable with Registry.Restore
type Snapshot struct {
	values map[Key]any
}

// Registry stores the current run context
type Registry struct {
	mu     sync.RWMutex
	values map[Key]any
}

// New creates an empty Registry
func New() *Registry {
	return &Registry{values: make(map[Key]any)}
}

// Set stores value under key. The value type must match the key.
func (r *Registry) Set(key Key, value any) error {
	if value != nil {
		if err := checkType(key, value); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if value == nil {
		delete(r.values, key)
		return nil
	}
	r.values[key] = value
	return nil
}

// Get returns the value stored under key, or nil
func (r *Registry) Get(key Key) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.values[key]
}

// Current returns the typed run context. Unset values take their zero value,
// an unset log level reads as info.
func (r *Registry) Current() Context {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var c Context
	c.TaskName, _ = r.values[KeyTaskName].(string)
	c.TaskID, _ = r.values[KeyTaskID].(string)
	c.StoreCode, _ = r.values[KeyStoreCode].(string)
	c.LogLevel, _ = r.values[KeyLogLevel].(slog.Level)
	c.WarnAsError, _ = r.values[KeyWarnAsError].(bool)
	c.Console, _ = r.values[KeyConsole].(bool)
	return c
}

// Publish replaces every tracked value with the fields of c
func (r *Registry) Publish(c Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.values = map[Key]any{
		KeyTaskName:    c.TaskName,
		KeyTaskID:      c.TaskID,
		KeyStoreCode:   c.StoreCode,
		KeyLogLevel:    c.LogLevel,
		KeyWarnAsError: c.WarnAsError,
		KeyConsole:     c.Console,
	}
}

// Snapshot captures all tracked values
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	values := make(map[Key]any, len(r.values))
	for k, v := range r.values {
		values[k] = v
	}
	return Snapshot{values: values}
}

// Restore reapplies a snapshot, dropping values set after it was taken
func (r *Registry) Restore(s Snapshot) {
	values := make(map[Key]any, len(s.values))
	for k, v := range s.values {
		values[k] = v
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = values
}

func checkType(key Key, value any) error {
	var ok bool
	switch key {
	case KeyTaskName, KeyTaskID, KeyStoreCode:
		_, ok = value.(string)
	case KeyLogLevel:
		_, ok = value.(slog.Level)
	case KeyWarnAsError, KeyConsole:
		_, ok = value.(bool)
	default:
		return fmt.Errorf("unknown registry key %q", key)
	}
	if !ok {
		return fmt.Errorf("registry key %q: unexpected value type %T", key, value)
	}
	return nil
}
