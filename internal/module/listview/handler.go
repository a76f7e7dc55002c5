// Package listview exposes a mounted list controller over HTTP: the view
// snapshot, a server-sent-events stream of updates and the endpoints that
// move the page, change filters and forward keyboard shortcuts.
package listview

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/stockroom/internal/domain"
	"github.com/simp-lee/stockroom/internal/filter"
	"github.com/simp-lee/stockroom/internal/listctl"
	"github.com/simp-lee/stockroom/internal/pkg"
)

// Handler serves one list controller. The search box of the view is held
// here so keystrokes are debounced before they reach the filter state.
type Handler[T any] struct {
	ctl       *listctl.Controller[T]
	search    *filter.SearchInput
	searchKey string
	logger    *slog.Logger
}

// NewHandler wraps ctl. When ctl's filter config has a Search field, a
// debounced SearchInput is attached to it.
func NewHandler[T any](ctl *listctl.Controller[T], logger *slog.Logger, opts ...filter.SearchOption) *Handler[T] {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler[T]{
		ctl:    ctl,
		logger: logger.With(slog.String("resource", ctl.Resource())),
	}
	for _, f := range ctl.FilterState().Config().Fields {
		if s, ok := f.(filter.Search); ok {
			h.searchKey = s.Key
			break
		}
	}
	if h.searchKey != "" {
		initial := ctl.Filters()[h.searchKey]
		h.search = filter.NewSearchInput(initial, h.propagateSearch, opts...)
	}
	return h
}

// propagateSearch runs on the debounce timer, outside any request.
func (h *Handler[T]) propagateSearch(value string) {
	if err := h.ctl.SetFilter(context.Background(), h.searchKey, value); err != nil {
		h.logger.Warn("apply search filter failed", slog.String("error", err.Error()))
	}
}

// Close stops the pending search debounce.
func (h *Handler[T]) Close() {
	if h.search != nil {
		h.search.Close()
	}
}

// Register mounts the view endpoints on g.
func (h *Handler[T]) Register(g *gin.RouterGroup) {
	g.GET("/filters", h.Filters)
	g.GET("/view", h.View)
	g.GET("/view/stream", h.Stream)
	g.PUT("/view/page", h.SetPage)
	g.PUT("/view/page-size", h.SetPageSize)
	g.PUT("/view/filters/:key", h.SetFilter)
	g.PUT("/view/search", h.Search)
	g.POST("/view/search/focus", h.FocusSearch)
	g.POST("/view/search/blur", h.BlurSearch)
	g.POST("/view/keys", h.Key)
	g.POST("/view/refetch", h.Refetch)
}

// View handles GET .../view.
func (h *Handler[T]) View(c *gin.Context) {
	pkg.List(c, h.ctl.View())
}

// Filters handles GET .../filters.
func (h *Handler[T]) Filters(c *gin.Context) {
	pkg.Success(c, h.ctl.FilterState().Widgets())
}

// SetPage handles PUT .../view/page.
func (h *Handler[T]) SetPage(c *gin.Context) {
	var req PageRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	if err := h.ctl.SetPage(c.Request.Context(), req.Page); err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.List(c, h.ctl.View())
}

// SetPageSize handles PUT .../view/page-size.
func (h *Handler[T]) SetPageSize(c *gin.Context) {
	var req PageSizeRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	if err := h.ctl.SetPageSize(c.Request.Context(), req.PageSize); err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.List(c, h.ctl.View())
}

// SetFilter handles PUT .../view/filters/:key. The search key is applied
// immediately here; the debounced route is PUT .../view/search.
func (h *Handler[T]) SetFilter(c *gin.Context) {
	var req FilterRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	key := c.Param("key")
	if err := h.ctl.SetFilter(c.Request.Context(), key, req.Value); err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.List(c, h.ctl.View())
}

// Search handles PUT .../view/search. The value reaches the filter state
// after the debounce delay.
func (h *Handler[T]) Search(c *gin.Context) {
	if h.search == nil {
		pkg.Error(c, domain.NewAppError(domain.CodeNotFound, "view has no search field", nil))
		return
	}
	var req FilterRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	h.search.Input(req.Value)
	pkg.Success(c, h.searchState())
}

// FocusSearch handles POST .../view/search/focus.
func (h *Handler[T]) FocusSearch(c *gin.Context) {
	if h.search == nil {
		pkg.Error(c, domain.NewAppError(domain.CodeNotFound, "view has no search field", nil))
		return
	}
	h.search.Focus()
	pkg.Success(c, h.searchState())
}

// BlurSearch handles POST .../view/search/blur.
func (h *Handler[T]) BlurSearch(c *gin.Context) {
	if h.search == nil {
		pkg.Error(c, domain.NewAppError(domain.CodeNotFound, "view has no search field", nil))
		return
	}
	h.search.Blur()
	pkg.Success(c, h.searchState())
}

// Key handles POST .../view/keys. Search shortcuts win over pagination
// shortcuts; pagination keys are ignored while the user is typing.
func (h *Handler[T]) Key(c *gin.Context) {
	var ev filter.KeyEvent
	if !pkg.BindAndValidate(c, &ev) {
		return
	}

	resp := KeyResponse[T]{}
	if h.search != nil && h.search.HandleKey(ev) {
		resp.Handled = true
	} else {
		typing := ev.InEditable || (h.search != nil && h.search.Focused())
		moved, err := h.ctl.Navigate(c.Request.Context(), ev.Key, typing)
		if err != nil {
			pkg.Error(c, err)
			return
		}
		resp.Handled = moved
	}
	if h.search != nil {
		s := h.searchState()
		resp.Search = &s
	}
	resp.View = h.ctl.View()
	pkg.Success(c, resp)
}

// Refetch handles POST .../view/refetch.
func (h *Handler[T]) Refetch(c *gin.Context) {
	h.ctl.Refetch()
	pkg.List(c, h.ctl.View())
}

// Stream handles GET .../view/stream. The current view is sent first, then
// every change until the client goes away. A slow client only ever sees the
// latest view.
func (h *Handler[T]) Stream(c *gin.Context) {
	updates := make(chan listctl.View[T], 1)
	cancel := h.ctl.Subscribe(func(v listctl.View[T]) {
		for {
			select {
			case updates <- v:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	first := h.ctl.View()
	c.SSEvent("view", first)
	c.Writer.Flush()
	last := first.Version

	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case v := <-updates:
			if v.Version <= last {
				return true
			}
			last = v.Version
			c.SSEvent("view", v)
			return true
		}
	})
}

func (h *Handler[T]) searchState() SearchState {
	return SearchState{
		Value:   h.search.Value(),
		Focused: h.search.Focused(),
		Pending: h.search.Pending(),
	}
}
