package logging

import (
	"context"
	"log/slog"
	"strings"
)

// Syslog-ordered levels on top of slog. Debug, Info, Warning and Error match
// the slog built-ins so plain logger.Warn/Error calls land on the right level.
const (
	LevelDebug     = slog.LevelDebug
	LevelInfo      = slog.LevelInfo
	LevelNotice    = slog.Level(2)
	LevelWarning   = slog.LevelWarn
	LevelError     = slog.LevelError
	LevelCritical  = slog.Level(12)
	LevelAlert     = slog.Level(16)
	LevelEmergency = slog.Level(20)

	// LevelOff is above every level; a handler set to it accepts nothing.
	LevelOff = slog.Level(1 << 30)
)

var levelNames = []struct {
	level slog.Level
	name  string
}{
	{LevelDebug, "debug"},
	{LevelInfo, "info"},
	{LevelNotice, "notice"},
	{LevelWarning, "warning"},
	{LevelError, "error"},
	{LevelCritical, "critical"},
	{LevelAlert, "alert"},
	{LevelEmergency, "emergency"},
	{LevelOff, "off"},
}

// ParseLevel maps a level name to its slog level. Unknown names yield info
// and false.
func ParseLevel(s string) (slog.Level, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warn" {
		return LevelWarning, true
	}
	for _, ln := range levelNames {
		if ln.name == s {
			return ln.level, true
		}
	}
	return LevelInfo, false
}

// LevelName returns the lower-case name of l. Levels between two named levels
// are reported as the next lower named level.
func LevelName(l slog.Level) string {
	name := levelNames[0].name
	for _, ln := range levelNames {
		if l >= ln.level {
			name = ln.name
		}
	}
	return name
}

// replaceLevel renders level attributes with the names above instead of
// slog's "WARN+2" notation
func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey && len(groups) == 0 {
		if l, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(strings.ToUpper(LevelName(l)))
		}
	}
	return a
}

// Notice logs at notice level
func Notice(ctx context.Context, l *slog.Logger, msg string, args ...any) {
	l.Log(ctx, LevelNotice, msg, args...)
}

// Critical logs at critical level
func Critical(ctx context.Context, l *slog.Logger, msg string, args ...any) {
	l.Log(ctx, LevelCritical, msg, args...)
}

// Alert logs at alert level
func Alert(ctx context.Context, l *slog.Logger, msg string, args ...any) {
	l.Log(ctx, LevelAlert, msg, args...)
}

// Emergency logs at emergency level
func Emergency(ctx context.Context, l *slog.Logger, msg string, args ...any) {
	l.Log(ctx, LevelEmergency, msg, args...)
}
