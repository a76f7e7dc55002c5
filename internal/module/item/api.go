package item

import (
	"context"
	"net/url"
	"strconv"

	"github.com/simp-lee/stockroom/internal/apiclient"
	"github.com/simp-lee/stockroom/internal/domain"
	"github.com/simp-lee/stockroom/internal/listctl"
)

// Resource is the cache namespace of item lists and details.
const Resource = "inventory/items"

const basePath = "/inventory/items"

// Service is the remote item API as seen by the handlers.
type Service interface {
	List(ctx context.Context, q listctl.Query) (domain.ListResult[domain.Item], error)
	Get(ctx context.Context, id uint) (domain.Item, error)
	Create(ctx context.Context, in domain.ItemInput) (domain.Item, error)
	Update(ctx context.Context, id uint, in domain.ItemInput) (domain.Item, error)
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
func (a *API) List(ctx context.Context, q listctl.Query) (domain.ListResult[domain.Item], error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("pageSize", strconv.Itoa(q.PageSize))
	for k, v := range q.Filters {
		params.Set(k, v)
	}

	var out domain.ListResult[domain.Item]
	if err := a.client.Get(ctx, basePath, params, &out); err != nil {
		return domain.ListResult[domain.Item]{}, err
	}
	if out.Data == nil {
		out.Data = []domain.Item{}
	}
	return out, nil
}

// Get fetches one item.
func (a *API) Get(ctx context.Context, id uint) (domain.Item, error) {
	var out domain.Item
	err := a.client.Get(ctx, itemPath(id), nil, &out)
	return out, err
}

// Create validates in and posts it. Invalid input never reaches the server.
func (a *API) Create(ctx context.Context, in domain.ItemInput) (domain.Item, error) {
	if err := domain.ValidateItem(in); err != nil {
		return domain.Item{}, err
	}
	var out domain.Item
	err := a.client.Post(ctx, basePath, in, &out)
	return out, err
}

// Update validates in and patches item id.
func (a *API) Update(ctx context.Context, id uint, in domain.ItemInput) (domain.Item, error) {
	if err := domain.ValidateItem(in); err != nil {
		return domain.Item{}, err
	}
	var out domain.Item
	err := a.client.Patch(ctx, itemPath(id), in, &out)
	return out, err
}

// Delete removes item id.
func (a *API) Delete(ctx context.Context, id uint) error {
	return a.client.Delete(ctx, itemPath(id))
}

func itemPath(id uint) string {
	return basePath + "/" + strconv.FormatUint(uint64(id), 10)
}
