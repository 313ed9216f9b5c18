package publisher

import (
	"fmt"

	"github.com/gobwas/glob"

	"github.com/intimehq/txlog-publisher/txlog"
)

// TypeFilter decides whether a fetched record should be published, matching
// glob patterns against a classification column. No patterns means everything
// matches; records missing the column pass through untouched.
type TypeFilter struct {
	field string
	globs []glob.Glob
}

// NewTypeFilter compiles the patterns for the given record field.
func NewTypeFilter(field string, patterns []string) (*TypeFilter, error) {
	f := &TypeFilter{
		field: field,
		globs: make([]glob.Glob, 0, len(patterns)),
	}
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid event type pattern %q: %w", pattern, err)
		}
		f.globs = append(f.globs, g)
	}
	return f, nil
}

// Match returns true if the record should be published.
func (f *TypeFilter) Match(rec txlog.Record) bool {
	if len(f.globs) == 0 {
		return true
	}
	v, ok := rec.Get(f.field)
	if !ok {
		return true
	}
	for _, g := range f.globs {
		if g.Match(v.Text()) {
			return true
		}
	}
	return false
}
