package item

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/stockroom/internal/detail"
	"github.com/simp-lee/stockroom/internal/domain"
	"github.com/simp-lee/stockroom/internal/pkg"
	"github.com/simp-lee/stockroom/internal/querycache"
)

// Handler handles item detail and mutation requests. Successful mutations
// invalidate the local cache so mounted views refresh even without a push
// event.
type Handler struct {
	svc    Service
	loader *detail.Loader[domain.Item]
	cache  *querycache.Cache
	logger *slog.Logger
}

// NewHandler creates a Handler reading details through cache.
func NewHandler(svc Service, cache *querycache.Cache, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:    svc,
		loader: detail.NewLoader(Resource, cache, svc.Get),
		cache:  cache,
		logger: logger,
	}
}

// Options handles GET /api/v1/inventory/items/options.
func (h *Handler) Options(c *gin.Context) {
	pkg.Success(c, formOptions())
}

// Get handles GET /api/v1/inventory/items/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := pkg.ParseID(c)
	if err != nil {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, err.Error(), nil))
		return
	}

	switch s := h.loader.Load(c.Request.Context(), id).(type) {
	case detail.Loaded[domain.Item]:
		pkg.Success(c, newDetail(s.Value, s.Stale))
	case detail.Failed[domain.Item]:
		pkg.Error(c, s.Err)
	default:
		pkg.Error(c, domain.ErrInternal)
	}
}

// Create handles POST /api/v1/inventory/items.
func (h *Handler) Create(c *gin.Context) {
	var in domain.ItemInput
	if !pkg.BindAndValidate(c, &in) {
		return
	}

	it, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	h.cache.PutDetail(querycache.DetailKey{Resource: Resource, ID: it.ID}, it)
	h.cache.InvalidateList(Resource)
	h.logger.InfoContext(c.Request.Context(), "item created", slog.Uint64("id", uint64(it.ID)))
	pkg.Created(c, newDetail(it, false))
}

// Update handles PATCH /api/v1/inventory/items/:id.
func (h *Handler) Update(c *gin.Context) {
	id, err := pkg.ParseID(c)
	if err != nil {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, err.Error(), nil))
		return
	}

	var in domain.ItemInput
	if !pkg.BindAndValidate(c, &in) {
		return
	}

	it, err := h.svc.Update(c.Request.Context(), id, in)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	h.cache.PutDetail(querycache.DetailKey{Resource: Resource, ID: id}, it)
	h.cache.InvalidateList(Resource)
	pkg.Success(c, newDetail(it, false))
}

// Delete handles DELETE /api/v1/inventory/items/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := pkg.ParseID(c)
	if err != nil {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, err.Error(), nil))
		return
	}

	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		pkg.Error(c, err)
		return
	}

	h.loader.Forget(id)
	h.cache.InvalidateList(Resource)
	h.logger.InfoContext(c.Request.Context(), "item deleted", slog.Uint64("id", uint64(id)))
	pkg.Success(c, nil)
}
