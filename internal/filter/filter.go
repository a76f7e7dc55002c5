// Package filter holds the in-memory filter state of a list view and the
// descriptors of the widgets that edit it.
package filter

import (
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/simp-lee/stockroom/internal/domain"
)

// Values maps a filter key to its current value.
type Values map[string]string

// Clone returns a copy of v.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Canonical returns a stable string form of v, sorted by key, suitable for
// use in a comparable cache key.
func (v Values) Canonical() string {
	q := make(url.Values, len(v))
	for k, val := range v {
		q.Set(k, val)
	}
	return q.Encode()
}

// Config declares the filters of one resource type.
type Config struct {
	// Fields lists the widgets in display order.
	Fields []Field
	// Initial holds the value of every key when a view is mounted.
	Initial Values
	// ResetOn lists keys whose change sends the view back to page 1.
	ResetOn []string
	// Sentinels holds the "no filter" value of a key. Keys without an entry
	// use the empty string.
	Sentinels Values
}

// IsSentinel reports whether value means "no constraint" for key. A value
// of only whitespace counts as empty.
func (c Config) IsSentinel(key, value string) bool {
	v := strings.TrimSpace(value)
	return v == "" || v == c.Sentinels[key]
}

func (c Config) known(key string) bool {
	if _, ok := c.Initial[key]; ok {
		return true
	}
	return slices.ContainsFunc(c.Fields, func(f Field) bool { return f.FieldKey() == key })
}

// Change describes the effect of State.Set.
type Change struct {
	// Changed is false when the value was already current.
	Changed bool
	// ResetPage is true when the view must go back to page 1.
	ResetPage bool
}

// State is the filter state of one mounted view. It is safe for concurrent use.
type State struct {
	cfg Config

	mu     sync.RWMutex
	values Values
}

// NewState creates a State holding cfg.Initial. Field keys missing from
// Initial start at their sentinel.
func NewState(cfg Config) *State {
	values := cfg.Initial.Clone()
	for _, f := range cfg.Fields {
		if _, ok := values[f.FieldKey()]; !ok {
			values[f.FieldKey()] = cfg.Sentinels[f.FieldKey()]
		}
	}
	return &State{cfg: cfg, values: values}
}

// Config returns the configuration the state was created with.
func (s *State) Config() Config { return s.cfg }

// Get returns a snapshot of every filter value.
func (s *State) Get() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.Clone()
}

// Set updates one filter value.
func (s *State) Set(key, value string) (Change, error) {
	if !s.cfg.known(key) {
		return Change{}, &domain.ValidationError{Fields: map[string]string{key: "Unknown filter"}}
	}
	if err := s.checkOption(key, value); err != nil {
		return Change{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values[key] == value {
		return Change{}, nil
	}
	s.values[key] = value
	return Change{
		Changed:   true,
		ResetPage: slices.Contains(s.cfg.ResetOn, key) && !s.cfg.IsSentinel(key, value),
	}, nil
}

// Active returns the values that constrain the query: sentinel and empty
// values are left out.
func (s *State) Active() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(Values, len(s.values))
	for k, v := range s.values {
		if !s.cfg.IsSentinel(k, v) {
			out[k] = v
		}
	}
	return out
}

// Widgets describes every field with its current value.
func (s *State) Widgets() []Widget {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Widget, 0, len(s.cfg.Fields))
	for _, f := range s.cfg.Fields {
		w := Describe(f)
		w.Value = s.values[f.FieldKey()]
		out = append(out, w)
	}
	return out
}

// checkOption rejects values outside a choice field's option list.
func (s *State) checkOption(key, value string) error {
	for _, f := range s.cfg.Fields {
		if f.FieldKey() != key {
			continue
		}
		opts := Describe(f).Options
		if len(opts) == 0 || value == s.cfg.Sentinels[key] {
			return nil
		}
		if slices.ContainsFunc(opts, func(o Option) bool { return o.Value == value }) {
			return nil
		}
		return &domain.ValidationError{Fields: map[string]string{key: "Unsupported filter value"}}
	}
	return nil
}
