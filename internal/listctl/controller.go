// Package listctl implements the paginated list controller behind every list
// view: persisted page position, in-memory filters, a cached remote query
// and background refresh when the cache is invalidated.
package listctl

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/simp-lee/stockroom/internal/domain"
	"github.com/simp-lee/stockroom/internal/filter"
	"github.com/simp-lee/stockroom/internal/pagestate"
	"github.com/simp-lee/stockroom/internal/pkg"
	"github.com/simp-lee/stockroom/internal/querycache"
)

// Query is what a controller asks its QueryFunc for. Filters holds only
// active values; sentinels are already removed.
type Query struct {
	Page     int
	PageSize int
	Filters  filter.Values
}

// QueryFunc fetches one page of T.
type QueryFunc[T any] func(ctx context.Context, q Query) (domain.ListResult[T], error)

// Options configures a Controller.
type Options[T any] struct {
	// Resource names the cache namespace, e.g. "inventory/items".
	Resource string
	// StorageKey prefixes the persisted page state keys.
	StorageKey string
	Filters    filter.Config
	Fetch      QueryFunc[T]
	Pages      *pagestate.Store
	Cache      *querycache.Cache
	Logger     *slog.Logger
}

// View is a snapshot of a controller for rendering. Version grows with every
// notification, so a later snapshot always has a higher Version.
type View[T any] struct {
	Version    uint64         `json:"version"`
	Resource   string         `json:"resource"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalPages int            `json:"totalPages"`
	Pages      []pkg.PageLink `json:"pages"`
	Filters    filter.Values  `json:"filters"`
	Data       []T            `json:"data"`
	Total      int            `json:"total"`
	IsLoading  bool           `json:"isLoading"`
	IsFetching bool           `json:"isFetching"`
	IsStale    bool           `json:"isStale"`
	IsError    bool           `json:"isError"`
	Error      string         `json:"error,omitempty"`
}

// Controller owns one list view. It is safe for concurrent use.
type Controller[T any] struct {
	resource   string
	storageKey string
	fetch      QueryFunc[T]
	pages      *pagestate.Store
	cache      *querycache.Cache
	filters    *filter.State
	logger     *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	unwatch func()
	wg      sync.WaitGroup

	mu       sync.Mutex
	page     int
	pageSize int
	shown    *domain.ListResult[T]
	shownKey querycache.Key
	stale    bool
	err      error
	errKey   querycache.Key
	inflight map[querycache.Key]int
	subs     map[uint64]func(View[T])
	nextSub  uint64
	version  uint64
	closed   bool

	// notifyMu orders deliveries; delivered is the last Version sent.
	notifyMu  sync.Mutex
	delivered uint64
}

// New mounts a controller: it restores the persisted page state, starts
// watching the cache for invalidations of opts.Resource and dispatches the
// initial fetch. ctx bounds the lifetime of every fetch; Close also ends it.
func New[T any](ctx context.Context, opts Options[T]) (*Controller[T], error) {
	switch {
	case opts.Resource == "":
		return nil, errors.New("listctl: resource is required")
	case opts.Fetch == nil:
		return nil, errors.New("listctl: fetch func is required")
	case opts.Pages == nil:
		return nil, errors.New("listctl: page state store is required")
	case opts.Cache == nil:
		return nil, errors.New("listctl: cache is required")
	}
	if opts.StorageKey == "" {
		opts.StorageKey = opts.Resource
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	state := opts.Pages.Get(ctx, opts.StorageKey)
	cctx, cancel := context.WithCancel(ctx)
	c := &Controller[T]{
		resource:   opts.Resource,
		storageKey: opts.StorageKey,
		fetch:      opts.Fetch,
		pages:      opts.Pages,
		cache:      opts.Cache,
		filters:    filter.NewState(opts.Filters),
		logger:     logger.With(slog.String("resource", opts.Resource)),
		ctx:        cctx,
		cancel:     cancel,
		page:       state.Page,
		pageSize:   state.PageSize,
		inflight:   make(map[querycache.Key]int),
		subs:       make(map[uint64]func(View[T])),
	}
	c.unwatch = opts.Cache.Watch(opts.Resource, c.invalidated)

	c.mu.Lock()
	c.dispatchLocked(false)
	c.mu.Unlock()
	return c, nil
}

// Resource returns the cache namespace of the controller.
func (c *Controller[T]) Resource() string { return c.resource }

// FilterState exposes the filter state, mainly for widget descriptions.
func (c *Controller[T]) FilterState() *filter.State { return c.filters }

// Page returns the current page.
func (c *Controller[T]) Page() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// PageSize returns the current page size.
func (c *Controller[T]) PageSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pageSize
}

// Filters returns a snapshot of every filter value.
func (c *Controller[T]) Filters() filter.Values {
	return c.filters.Get()
}

// Key returns the query key of the current position.
func (c *Controller[T]) Key() querycache.Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keyLocked()
}

// SetPage moves to page n. Setting the current page does nothing. Pages
// past the end of a loaded result are rejected.
func (c *Controller[T]) SetPage(ctx context.Context, n int) error {
	c.mu.Lock()
	if c.closed || n == c.page {
		c.mu.Unlock()
		return nil
	}
	if n < 1 {
		c.mu.Unlock()
		return &domain.ValidationError{Fields: map[string]string{"page": "Page must be at least 1"}}
	}
	if last, known := c.lastPageLocked(); known && n > last {
		c.mu.Unlock()
		return &domain.ValidationError{Fields: map[string]string{"page": "Page is out of range"}}
	}
	c.persist(ctx, func() error { return c.pages.SetPage(ctx, c.storageKey, n) })
	c.page = n
	c.dispatchLocked(false)
	c.mu.Unlock()

	c.notify()
	return nil
}

// SetPageSize changes the page size and goes back to page 1.
func (c *Controller[T]) SetPageSize(ctx context.Context, n int) error {
	if !domain.ValidPageSize(n) {
		return &domain.ValidationError{Fields: map[string]string{"pageSize": "Page size is not supported"}}
	}

	c.mu.Lock()
	if c.closed || (n == c.pageSize && c.page == domain.DefaultPage) {
		c.mu.Unlock()
		return nil
	}
	c.persist(ctx, func() error { return c.pages.SetPageSize(ctx, c.storageKey, n) })
	c.pageSize = n
	c.page = domain.DefaultPage
	c.dispatchLocked(false)
	c.mu.Unlock()

	c.notify()
	return nil
}

// SetFilter updates one filter. A change to a reset trigger sends the view
// back to page 1; setting the current value does nothing.
func (c *Controller[T]) SetFilter(ctx context.Context, key, value string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	ch, err := c.filters.Set(key, value)
	if err != nil || !ch.Changed {
		c.mu.Unlock()
		return err
	}
	if ch.ResetPage && c.page != domain.DefaultPage {
		c.persist(ctx, func() error { return c.pages.SetPage(ctx, c.storageKey, domain.DefaultPage) })
		c.page = domain.DefaultPage
	}
	c.dispatchLocked(false)
	c.mu.Unlock()

	c.notify()
	return nil
}

// Navigate applies a pagination shortcut key. It reports whether the page
// changed.
func (c *Controller[T]) Navigate(ctx context.Context, key string, typing bool) (bool, error) {
	v := c.View()
	target, ok := pkg.ShortcutTarget(key, v.Page, v.TotalPages, typing, v.IsLoading)
	if !ok {
		return false, nil
	}
	if err := c.SetPage(ctx, target); err != nil {
		return false, err
	}
	return true, nil
}

// Refetch fetches the current query again even when the cached result is
// fresh.
func (c *Controller[T]) Refetch() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.dispatchLocked(true)
	c.mu.Unlock()

	c.notify()
}

// View returns a snapshot for rendering.
func (c *Controller[T]) View() View[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Subscribe registers fn to receive a View after every change. fn runs on
// the goroutine that caused the change and must not block or call back into
// the controller. Views arrive in Version order; a view overtaken by a newer
// one before delivery is skipped. The returned
// cancel func is idempotent.
func (c *Controller[T]) Subscribe(fn func(View[T])) (cancel func()) {
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Close unmounts the controller. It stops watching the cache, cancels
// in-flight fetches and waits for their goroutines. Results that arrive
// afterwards are never committed.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.subs = make(map[uint64]func(View[T]))
	c.mu.Unlock()

	c.unwatch()
	c.cancel()
	c.wg.Wait()
}

func (c *Controller[T]) keyLocked() querycache.Key {
	return querycache.Key{
		Resource: c.resource,
		Page:     c.page,
		PageSize: c.pageSize,
		Filters:  c.filters.Active().Canonical(),
	}
}

// lastPageLocked returns the number of pages of the shown result when it
// belongs to the current filters and page size.
func (c *Controller[T]) lastPageLocked() (int, bool) {
	if c.shown == nil {
		return 0, false
	}
	k := c.keyLocked()
	if c.shownKey.PageSize != k.PageSize || c.shownKey.Filters != k.Filters {
		return 0, false
	}
	return pkg.TotalPages(c.shown.Total, c.pageSize), true
}

// persist writes page state through. A failed write is logged and the
// in-memory state still moves, so the view keeps working.
func (c *Controller[T]) persist(ctx context.Context, write func() error) {
	if err := write(); err != nil {
		c.logger.WarnContext(ctx, "persist page state failed", slog.String("error", err.Error()))
	}
}

// dispatchLocked brings the view in line with the current key. A fresh
// cache entry is shown directly. Otherwise any cached value is shown and a
// fetch starts, unless one for the same key is already running and force is
// false.
func (c *Controller[T]) dispatchLocked(force bool) {
	k := c.keyLocked()

	if e, ok := c.cache.Get(k); ok {
		if res, ok := e.Value.(domain.ListResult[T]); ok {
			c.shown = &res
			c.shownKey = k
			c.stale = e.Stale
			if c.errKey == k {
				c.err = nil
			}
			if !e.Stale && !force {
				return
			}
		}
	}

	if !force && c.inflight[k] > 0 {
		return
	}

	c.inflight[k]++
	c.wg.Add(1)
	q := Query{Page: k.Page, PageSize: k.PageSize, Filters: c.filters.Active()}
	go c.run(k, q)
}

func (c *Controller[T]) run(k querycache.Key, q Query) {
	defer c.wg.Done()

	start := time.Now()
	res, err := c.fetch(c.ctx, q)
	FetchDuration.WithLabelValues(c.resource).Observe(time.Since(start).Seconds())

	if err == nil {
		FetchesTotal.WithLabelValues(c.resource, "success").Inc()
		c.cache.Put(k, res)
	} else {
		FetchesTotal.WithLabelValues(c.resource, "error").Inc()
	}

	c.mu.Lock()
	c.inflight[k]--
	if c.inflight[k] <= 0 {
		delete(c.inflight, k)
	}
	if c.closed {
		c.mu.Unlock()
		return
	}
	if k != c.keyLocked() {
		c.mu.Unlock()
		SupersededTotal.WithLabelValues(c.resource).Inc()
		c.logger.Debug("discarding superseded list result",
			slog.Int("page", k.Page),
			slog.Int("page_size", k.PageSize),
			slog.String("filters", k.Filters),
		)
		return
	}
	if err != nil {
		c.err = err
		c.errKey = k
		c.logger.Warn("list fetch failed",
			slog.Int("page", k.Page),
			slog.String("error", err.Error()),
		)
	} else {
		if res.Data == nil {
			res.Data = []T{}
		}
		c.shown = &res
		c.shownKey = k
		c.stale = false
		c.err = nil
	}
	c.mu.Unlock()

	c.notify()
}

// invalidated runs when the cache marks this resource's lists stale.
func (c *Controller[T]) invalidated() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.stale = true
	c.dispatchLocked(true)
	c.mu.Unlock()

	c.notify()
}

func (c *Controller[T]) viewLocked() View[T] {
	k := c.keyLocked()
	v := View[T]{
		Version:  c.version,
		Resource: c.resource,
		Page:     c.page,
		PageSize: c.pageSize,
		Filters:  c.filters.Get(),
		Data:     []T{},
	}
	if c.shown != nil {
		v.Data = c.shown.Data
		v.Total = c.shown.Total
	}
	v.TotalPages = pkg.TotalPages(v.Total, c.pageSize)
	v.Pages = pkg.PageWindow(c.page, v.TotalPages, pkg.MaxPageButtons)

	v.IsFetching = c.inflight[k] > 0
	v.IsLoading = v.IsFetching && !c.cache.HasList(c.resource)
	if c.err != nil && c.errKey == k {
		v.IsError = true
		v.Error = c.err.Error()
	}
	v.IsStale = c.shown != nil && (c.stale || c.shownKey != k || v.IsError)
	return v
}

func (c *Controller[T]) notify() {
	c.mu.Lock()
	if c.closed || len(c.subs) == 0 {
		c.mu.Unlock()
		return
	}
	c.version++
	v := c.viewLocked()
	subs := make([]func(View[T]), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if v.Version <= c.delivered {
		return
	}
	c.delivered = v.Version
	for _, fn := range subs {
		fn(v)
	}
}
