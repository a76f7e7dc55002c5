// Package pagestate persists the page position of each list view.
//
// Values live under "{storageKey}:page" and "{storageKey}:pageSize" as
// JSON-encoded integers. Reads never write; an absent or unreadable value
// falls back to the default for that field alone.
package pagestate

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/simp-lee/stockroom/internal/domain"
	"github.com/simp-lee/stockroom/internal/store"
)

// Store reads and writes PageState through a KV.
type Store struct {
	kv     store.KV
	logger *slog.Logger
}

// New creates a Store. A nil logger falls back to slog.Default.
func New(kv store.KV, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kv, logger: logger}
}

// PageKey returns the storage key holding the page number.
func PageKey(storageKey string) string { return storageKey + ":page" }

// PageSizeKey returns the storage key holding the page size.
func PageSizeKey(storageKey string) string { return storageKey + ":pageSize" }

// Get returns the stored state for storageKey.
func (s *Store) Get(ctx context.Context, storageKey string) domain.PageState {
	state := domain.DefaultPageState()
	if n, ok := s.readInt(ctx, PageKey(storageKey)); ok && n >= 1 {
		state.Page = n
	}
	if n, ok := s.readInt(ctx, PageSizeKey(storageKey)); ok && domain.ValidPageSize(n) {
		state.PageSize = n
	}
	return state
}

// SetPage persists the page number. n must be at least 1.
func (s *Store) SetPage(ctx context.Context, storageKey string, n int) error {
	if n < 1 {
		return &domain.ValidationError{Fields: map[string]string{"page": "Page must be at least 1"}}
	}
	return s.kv.Set(ctx, PageKey(storageKey), encodeInt(n))
}

// SetPageSize persists the page size and moves back to page 1 in one write.
func (s *Store) SetPageSize(ctx context.Context, storageKey string, n int) error {
	if !domain.ValidPageSize(n) {
		return &domain.ValidationError{Fields: map[string]string{"pageSize": "Page size is not supported"}}
	}
	return s.kv.SetMany(ctx, map[string]string{
		PageSizeKey(storageKey): encodeInt(n),
		PageKey(storageKey):     encodeInt(domain.DefaultPage),
	})
}

func (s *Store) readInt(ctx context.Context, key string) (int, bool) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "page state read failed, using default",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return 0, false
	}
	if !ok {
		return 0, false
	}
	var n int
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		s.logger.DebugContext(ctx, "ignoring corrupt page state",
			slog.String("key", key),
			slog.String("value", raw),
		)
		return 0, false
	}
	return n, true
}

func encodeInt(n int) string {
	return strconv.Itoa(n)
}
