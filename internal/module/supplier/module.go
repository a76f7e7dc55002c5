package supplier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/stockroom/internal/domain"
	"github.com/simp-lee/stockroom/internal/filter"
	"github.com/simp-lee/stockroom/internal/listctl"
	"github.com/simp-lee/stockroom/internal/module/listview"
	"github.com/simp-lee/stockroom/internal/pagestate"
	"github.com/simp-lee/stockroom/internal/querycache"
	"github.com/simp-lee/stockroom/internal/realtime"
)

// StorageKey prefixes the persisted page state of the supplier list.
const StorageKey = "inventory-suppliers"

// Topics returns the push events that invalidate supplier data.
func Topics() []realtime.Topic {
	return realtime.Topics("supplier", Resource)
}

// Deps holds what the supplier module needs from the app.
type Deps struct {
	Service Service
	Pages   *pagestate.Store
	Cache   *querycache.Cache
	Logger  *slog.Logger
	// Search options, e.g. the debounce delay.
	Search []filter.SearchOption
}

// Module implements the app.Module interface for suppliers. It owns
// the mounted supplier list.
type Module struct {
	list    *listctl.Controller[domain.Supplier]
	view    *listview.Handler[domain.Supplier]
	handler *Handler
}

// NewModule mounts the supplier list and builds the handlers. ctx bounds the
// lifetime of list fetches.
func NewModule(ctx context.Context, deps Deps) (*Module, error) {
	if deps.Service == nil {
		return nil, fmt.Errorf("supplier.NewModule: service must not be nil")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	list, err := listctl.New(ctx, listctl.Options[domain.Supplier]{
		Resource:   Resource,
		StorageKey: StorageKey,
		Filters:    Filters(),
		Fetch:      deps.Service.List,
		Pages:      deps.Pages,
		Cache:      deps.Cache,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("supplier.NewModule: %w", err)
	}

	return &Module{
		list:    list,
		view:    listview.NewHandler(list, logger, deps.Search...),
		handler: NewHandler(deps.Service, deps.Cache, logger),
	}, nil
}

// RegisterRoutes registers the supplier view and REST routes.
func (m *Module) RegisterRoutes(api *gin.RouterGroup) {
	g := api.Group("/inventory/suppliers")
	m.view.Register(g)

	g.POST("", m.handler.Create)
	g.GET("/:id", m.handler.Get)
	g.PATCH("/:id", m.handler.Update)
	g.DELETE("/:id", m.handler.Delete)
}

// Close unmounts the supplier list.
func (m *Module) Close() {
	m.view.Close()
	m.list.Close()
}
