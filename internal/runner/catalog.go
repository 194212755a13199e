package runner

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hochfrequenz/task-orchestrator/internal/config"
)

// Factory builds a task instance for a configured task name
type Factory func(cfg *config.Config, taskName string) (Task, error)

// Catalog maps task names, and task types from configuration, to factories
type Catalog struct {
	mu    sync.RWMutex
	names map[string]Factory
	types map[string]Factory
}

// NewCatalog creates an empty Catalog
func NewCatalog() *Catalog {
	return &Catalog{names: make(map[string]Factory), types: make(map[string]Factory)}
}

// Register binds a factory to a task name
func (c *Catalog) Register(name string, f Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names[name] = f
}

// RegisterType binds a factory to a settings.type value
func (c *Catalog) RegisterType(typ string, f Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types[typ] = f
}

// Lookup returns the factory registered under name
func (c *Catalog) Lookup(name string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.names[name]
	return f, ok
}

// Names returns the names of registered tasks plus configured tasks whose
// type is registered, sorted
func (c *Catalog) Names(cfg *config.Config) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool)
	for name := range c.names {
		seen[name] = true
	}
	if cfg != nil {
		for _, name := range cfg.TaskNames() {
			if _, ok := c.types[cfg.TaskString(name, "settings", "type", "", true)]; ok {
				seen[name] = true
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve builds the task for name. Names registered directly win over
// the type configured in settings.type.
func (c *Catalog) Resolve(cfg *config.Config, name string) (Task, error) {
	if f, ok := c.Lookup(name); ok {
		return f(cfg, name)
	}

	typ := ""
	if cfg != nil {
		typ = cfg.TaskString(name, "settings", "type", "", true)
	}
	c.mu.RLock()
	f, ok := c.types[typ]
	c.mu.RUnlock()
	if typ == "" || !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return f(cfg, name)
}
