package supplier

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/stockroom/internal/detail"
	"github.com/simp-lee/stockroom/internal/domain"
	"github.com/simp-lee/stockroom/internal/pkg"
	"github.com/simp-lee/stockroom/internal/querycache"
)

// Handler handles supplier detail and mutation requests. Successful mutations
// invalidate the local cache so mounted views refresh even without a push
// event.
type Handler struct {
	svc    Service
	loader *detail.Loader[domain.Supplier]
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

// Get handles GET /api/v1/inventory/suppliers/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := pkg.ParseID(c)
	if err != nil {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, err.Error(), nil))
		return
	}

	switch st := h.loader.Load(c.Request.Context(), id).(type) {
	case detail.Loaded[domain.Supplier]:
		pkg.Success(c, newDetail(st.Value, st.Stale))
	case detail.Failed[domain.Supplier]:
		pkg.Error(c, st.Err)
	default:
		pkg.Error(c, domain.ErrInternal)
	}
}

// Create handles POST /api/v1/inventory/suppliers.
func (h *Handler) Create(c *gin.Context) {
	var in domain.SupplierInput
	if !pkg.BindAndValidate(c, &in) {
		return
	}

	s, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	h.cache.PutDetail(querycache.DetailKey{Resource: Resource, ID: s.ID}, s)
	h.cache.InvalidateList(Resource)
	h.logger.InfoContext(c.Request.Context(), "supplier created", slog.Uint64("id", uint64(s.ID)))
	pkg.Created(c, newDetail(s, false))
}

// Update handles PATCH /api/v1/inventory/suppliers/:id.
func (h *Handler) Update(c *gin.Context) {
	id, err := pkg.ParseID(c)
	if err != nil {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, err.Error(), nil))
		return
	}

	var in domain.SupplierInput
	if !pkg.BindAndValidate(c, &in) {
		return
	}

	s, err := h.svc.Update(c.Request.Context(), id, in)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	h.cache.PutDetail(querycache.DetailKey{Resource: Resource, ID: id}, s)
	h.cache.InvalidateList(Resource)
	pkg.Success(c, newDetail(s, false))
}

// Delete handles DELETE /api/v1/inventory/suppliers/:id.
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
	h.logger.InfoContext(c.Request.Context(), "supplier deleted", slog.Uint64("id", uint64(id)))
	pkg.Success(c, nil)
}
