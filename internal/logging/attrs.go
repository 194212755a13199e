package logging

import (
	"log/slog"
	"strconv"
	"strings"
)

// AttrSet carries the attributes and group prefix accumulated through
// WithAttrs/WithGroup for handlers that render records themselves.
type AttrSet struct {
	attrs  []slog.Attr
	prefix string
}

// WithAttrs returns a copy with attrs appended under the current group
func (s AttrSet) WithAttrs(attrs []slog.Attr) AttrSet {
	next := AttrSet{prefix: s.prefix, attrs: make([]slog.Attr, 0, len(s.attrs)+len(attrs))}
	next.attrs = append(next.attrs, s.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, slog.Attr{Key: s.prefix + a.Key, Value: a.Value})
	}
	return next
}

// WithGroup returns a copy whose later attributes are qualified by name
func (s AttrSet) WithGroup(name string) AttrSet {
	if name == "" {
		return s
	}
	return AttrSet{attrs: s.attrs, prefix: s.prefix + name + "."}
}

// Format renders the record message followed by " key=value" pairs for the
// accumulated attributes and the record's own attributes.
func (s AttrSet) Format(r slog.Record) string {
	var b strings.Builder
	b.WriteString(r.Message)
	for _, a := range s.attrs {
		writeAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, s.prefix, a)
		return true
	})
	return b.String()
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, ga := range v.Group() {
			writeAttr(b, p, ga)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	s := v.String()
	if strings.ContainsAny(s, " \t\n\"=") {
		s = strconv.Quote(s)
	}
	b.WriteString(s)
}
