package filter

import (
	"strings"
	"sync"
	"time"
)

// DefaultDebounce is the delay between the last keystroke and the search
// value reaching the filter state.
const DefaultDebounce = 400 * time.Millisecond

// Timer is the handle returned by an AfterFunc.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// KeyEvent is a keyboard event forwarded from the browser.
type KeyEvent struct {
	Key  string `json:"key"`
	Ctrl bool   `json:"ctrl"`
	Meta bool   `json:"meta"`
	// InEditable is true when another input, textarea or contenteditable
	// element holds focus.
	InEditable bool `json:"inEditable"`
}

// SearchInput debounces search keystrokes before handing the value to
// propagate. It also tracks focus so the focus shortcut and Escape behave
// like the search box of the list screen.
type SearchInput struct {
	delay     time.Duration
	after     AfterFunc
	propagate func(string)

	mu      sync.Mutex
	value   string
	focused bool
	timer   Timer
	gen     uint64
	closed  bool
}

// SearchOption configures a SearchInput.
type SearchOption func(*SearchInput)

// WithDelay overrides DefaultDebounce.
func WithDelay(d time.Duration) SearchOption {
	return func(s *SearchInput) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithAfterFunc replaces the timer source, mainly for tests.
func WithAfterFunc(f AfterFunc) SearchOption {
	return func(s *SearchInput) {
		if f != nil {
			s.after = f
		}
	}
}

// NewSearchInput creates an input holding initial. propagate is called from
// the timer goroutine, or synchronously on Escape.
func NewSearchInput(initial string, propagate func(string), opts ...SearchOption) *SearchInput {
	s := &SearchInput{
		delay:     DefaultDebounce,
		after:     realAfterFunc,
		propagate: propagate,
		value:     initial,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Input records a keystroke and restarts the debounce.
func (s *SearchInput) Input(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.value = value
	s.stopLocked()
	gen := s.gen
	s.timer = s.after(s.delay, func() { s.fire(gen) })
}

func (s *SearchInput) fire(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	value := s.value
	s.mu.Unlock()

	s.propagate(value)
}

// stopLocked cancels the pending debounce. Bumping gen also neutralises a
// timer that already fired and is waiting for the lock.
func (s *SearchInput) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

// HandleKey applies a keyboard event and reports whether it was consumed.
func (s *SearchInput) HandleKey(ev KeyEvent) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}

	if ev.Key == "Escape" {
		if !s.focused {
			s.mu.Unlock()
			return false
		}
		s.stopLocked()
		s.value = ""
		s.focused = false
		s.mu.Unlock()

		s.propagate("")
		return true
	}

	defer s.mu.Unlock()
	if ev.InEditable || s.focused {
		return false
	}
	slash := ev.Key == "/" && !ev.Ctrl && !ev.Meta
	ctrlK := strings.EqualFold(ev.Key, "k") && (ev.Ctrl || ev.Meta)
	if slash || ctrlK {
		s.focused = true
		return true
	}
	return false
}

// Focus marks the input focused.
func (s *SearchInput) Focus() {
	s.mu.Lock()
	s.focused = true
	s.mu.Unlock()
}

// Blur marks the input unfocused. A pending debounce still fires.
func (s *SearchInput) Blur() {
	s.mu.Lock()
	s.focused = false
	s.mu.Unlock()
}

// Focused reports whether the input has focus.
func (s *SearchInput) Focused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focused
}

// Value returns the text in the input, which may be ahead of the filter state
// while a debounce is pending.
func (s *SearchInput) Value() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Pending reports whether a debounced value is waiting to propagate.
func (s *SearchInput) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Close cancels any pending debounce and ignores further input.
func (s *SearchInput) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.closed = true
}
