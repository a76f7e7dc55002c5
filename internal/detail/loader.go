// Package detail loads single records for detail and edit views through the
// shared query cache.
package detail

import (
	"context"
	"strconv"
	"time"

	"github.com/simp-lee/stockroom/internal/querycache"
	"golang.org/x/sync/singleflight"
)

// State is the load state of one record: NotLoaded, Loaded or Failed.
type State[T any] interface {
	isState()
}

// NotLoaded means nothing is cached for the record.
type NotLoaded[T any] struct{}

// Loaded holds a fetched record. Stale is set after an update event until
// the next successful load.
type Loaded[T any] struct {
	Value T
	Stale bool
}

// Failed holds the error of the last load.
type Failed[T any] struct {
	Err error
}

func (NotLoaded[T]) isState() {}
func (Loaded[T]) isState()    {}
func (Failed[T]) isState()    {}

// DefaultFetchTimeout bounds a shared fetch, which does not end when the
// caller that started it goes away.
const DefaultFetchTimeout = 30 * time.Second

// FetchFunc fetches one record by id.
type FetchFunc[T any] func(ctx context.Context, id uint) (T, error)

// Loader reads records through the cache and collapses concurrent loads of
// the same id into one request.
type Loader[T any] struct {
	resource string
	cache    *querycache.Cache
	fetch    FetchFunc[T]
	timeout  time.Duration
	group    singleflight.Group
}

// Option configures a Loader.
type Option func(*options)

type options struct {
	timeout time.Duration
}

// WithFetchTimeout overrides DefaultFetchTimeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// NewLoader creates a Loader for records of resource.
func NewLoader[T any](resource string, cache *querycache.Cache, fetch FetchFunc[T], opts ...Option) *Loader[T] {
	o := options{timeout: DefaultFetchTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return &Loader[T]{resource: resource, cache: cache, fetch: fetch, timeout: o.timeout}
}

func (l *Loader[T]) key(id uint) querycache.DetailKey {
	return querycache.DetailKey{Resource: l.resource, ID: id}
}

// Peek returns the cached state without fetching.
func (l *Loader[T]) Peek(id uint) State[T] {
	e, ok := l.cache.GetDetail(l.key(id))
	if !ok {
		return NotLoaded[T]{}
	}
	v, ok := e.Value.(T)
	if !ok {
		return NotLoaded[T]{}
	}
	return Loaded[T]{Value: v, Stale: e.Stale}
}

// Load returns the record, fetching it unless a fresh copy is cached. The
// result is always Loaded or Failed.
//
// Concurrent loads of one id share a fetch. The fetch keeps the values of
// the first caller's context but not its cancellation, so a caller that
// gives up fails alone. A fetched record is cached only if the record was
// not put, invalidated or removed while the fetch ran.
func (l *Loader[T]) Load(ctx context.Context, id uint) State[T] {
	if s, ok := l.Peek(id).(Loaded[T]); ok && !s.Stale {
		return s
	}
	if err := ctx.Err(); err != nil {
		return Failed[T]{Err: err}
	}

	k := l.key(id)
	ch := l.group.DoChan(strconv.FormatUint(uint64(id), 10), func() (any, error) {
		gen := l.cache.DetailGeneration(k)
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()

		rec, err := l.fetch(fetchCtx, id)
		if err != nil {
			return nil, err
		}
		l.cache.PutDetailIf(k, rec, gen)
		return rec, nil
	})

	select {
	case <-ctx.Done():
		return Failed[T]{Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return Failed[T]{Err: res.Err}
		}
		return Loaded[T]{Value: res.Val.(T)}
	}
}

// Forget drops the cached record, for example after it was deleted.
func (l *Loader[T]) Forget(id uint) {
	l.cache.RemoveDetail(l.key(id))
}
