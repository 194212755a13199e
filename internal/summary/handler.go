package summary

import (
	"context"
	"log/slog"

	"github.com/hochfrequenz/task-orchestrator/internal/domain"
	"github.com/hochfrequenz/task-orchestrator/internal/logging"
	"github.com/hochfrequenz/task-orchestrator/internal/runctx"
)

// Source reports the run context that is current when a record is handled
type Source interface {
	Current() runctx.Context
}

// Handler is an slog.Handler that routes records into the summary sinks of the
// current run. Records emitted while no run is current are dropped.
//
// all receives records at or above the run log level, success the subset
// below the error threshold, error every record at or above the threshold.
type Handler struct {
	source Source
	store  *Store
	attrs  logging.AttrSet
}

// NewHandler creates a Handler writing into store
func NewHandler(source Source, store *Store) *Handler {
	return &Handler{source: source, store: store}
}

// Enabled reports true whenever a run is current. A run's sinks are created
// by its first record even if that record lands in none of them.
func (h *Handler) Enabled(_ context.Context, _ slog.Level) bool {
	return h.source.Current().Active()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	c := h.source.Current()
	if !c.Active() {
		return nil
	}

	key := c.RunKey()
	h.store.Ensure(key)

	rec := Record{Level: r.Level, Message: h.attrs.Format(r)}
	threshold := c.ErrorThreshold()

	if r.Level >= c.LogLevel {
		h.store.Append(domain.SummaryAll, key, rec)
		if r.Level < threshold {
			h.store.Append(domain.SummarySuccess, key, rec)
		}
	}
	if r.Level >= threshold {
		h.store.Append(domain.SummaryError, key, rec)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{source: h.source, store: h.store, attrs: h.attrs.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{source: h.source, store: h.store, attrs: h.attrs.WithGroup(name)}
}
