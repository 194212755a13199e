// Package summary collects the log records of a task run into the three
// summary streams (all, success, error) keyed by run key.
package summary

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/hochfrequenz/task-orchestrator/internal/domain"
)

// Record is one log line captured for a summary
type Record struct {
	Level   slog.Level
	Message string
}

// Sink is an append-only, ordered record collector
type Sink struct {
	mu      sync.Mutex
	records []Record
}

// Append adds records in order
func (s *Sink) Append(records ...Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
}

// Records returns a copy of the collected records
func (s *Sink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of collected records
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type sinkKey struct {
	typ    domain.SummaryType
	runKey string
}

// Store holds the sinks of every run logged through it
type Store struct {
	mu    sync.Mutex
	sinks map[sinkKey]*Sink
}

// NewStore creates an empty Store
func NewStore() *Store {
	return &Store{sinks: make(map[sinkKey]*Sink)}
}

// Lookup returns the sink for typ and runKey, or nil if the run never logged
func (s *Store) Lookup(typ domain.SummaryType, runKey string) *Sink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sinks[sinkKey{typ, runKey}]
}

// Ensure creates the three sinks of runKey if they do not exist yet
func (s *Store) Ensure(runKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, typ := range domain.SummaryTypes {
		k := sinkKey{typ, runKey}
		if s.sinks[k] == nil {
			s.sinks[k] = &Sink{}
		}
	}
}

// Append adds records to the typ sink of runKey, creating the run's sinks first
func (s *Store) Append(typ domain.SummaryType, runKey string, records ...Record) {
	s.Ensure(runKey)
	s.Lookup(typ, runKey).Append(records...)
}

// Drop forgets all sinks of runKey
func (s *Store) Drop(runKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, typ := range domain.SummaryTypes {
		delete(s.sinks, sinkKey{typ, runKey})
	}
}

// Flat joins the trimmed messages of records with newlines
func Flat(records []Record) string {
	lines := make([]string, len(records))
	for i, r := range records {
		lines[i] = strings.TrimSpace(r.Message)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
