package supplier

import (
	"context"
	"net/url"
	"strconv"

	"github.com/simp-lee/stockroom/internal/apiclient"
	"github.com/simp-lee/stockroom/internal/domain"
	"github.com/simp-lee/stockroom/internal/listctl"
)

// Resource is the cache namespace of supplier lists and details.
const Resource = "inventory/suppliers"

const basePath = "/inventory/suppliers"

// Service is the remote supplier API as seen by the handlers.
type Service interface {
	List(ctx context.Context, q listctl.Query) (domain.ListResult[domain.Supplier], error)
	Get(ctx context.Context, id uint) (domain.Supplier, error)
	Create(ctx context.Context, in domain.SupplierInput) (domain.Supplier, error)
	Update(ctx context.Context, id uint, in domain.SupplierInput) (domain.Supplier, error)
	Delete(ctx context.Context, id uint) error
}

// API implements Service over the inventory HTTP API.
type API struct {
	client *apiclient.Client
}

// NewAPI creates an API backed by client.
func NewAPI(client *apiclient.Client) *API {
	return &API{client: client}
}

// List fetches one page. Only active filters are sent; sentinel values and
// an empty search never reach the server.
func (a *API) List(ctx context.Context, q listctl.Query) (domain.ListResult[domain.Supplier], error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("pageSize", strconv.Itoa(q.PageSize))
	for k, v := range q.Filters {
		params.Set(k, v)
	}

	var out domain.ListResult[domain.Supplier]
	if err := a.client.Get(ctx, basePath, params, &out); err != nil {
		return domain.ListResult[domain.Supplier]{}, err
	}
	if out.Data == nil {
		out.Data = []domain.Supplier{}
	}
	return out, nil
}

// Get fetches one supplier with its contacts.
func (a *API) Get(ctx context.Context, id uint) (domain.Supplier, error) {
	var out domain.Supplier
	err := a.client.Get(ctx, supplierPath(id), nil, &out)
	return out, err
}

// Create validates in and posts it. Invalid input never reaches the server.
func (a *API) Create(ctx context.Context, in domain.SupplierInput) (domain.Supplier, error) {
	if err := domain.ValidateSupplier(in); err != nil {
		return domain.Supplier{}, err
	}
	var out domain.Supplier
	err := a.client.Post(ctx, basePath, in, &out)
	return out, err
}

// Update validates in and patches supplier id.
func (a *API) Update(ctx context.Context, id uint, in domain.SupplierInput) (domain.Supplier, error) {
	if err := domain.ValidateSupplier(in); err != nil {
		return domain.Supplier{}, err
	}
	var out domain.Supplier
	err := a.client.Patch(ctx, supplierPath(id), in, &out)
	return out, err
}

// Delete removes supplier id and its contacts.
func (a *API) Delete(ctx context.Context, id uint) error {
	return a.client.Delete(ctx, supplierPath(id))
}

func supplierPath(id uint) string {
	return basePath + "/" + strconv.FormatUint(uint64(id), 10)
}
