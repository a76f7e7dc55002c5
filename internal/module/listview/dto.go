package listview

import "github.com/simp-lee/stockroom/internal/listctl"

// PageRequest is the body of PUT .../view/page.
type PageRequest struct {
	Page int `json:"page" binding:"required,min=1"`
}

// PageSizeRequest is the body of PUT .../view/page-size. The allowed sizes
// are checked by the controller.
type PageSizeRequest struct {
	PageSize int `json:"pageSize" binding:"required"`
}

// FilterRequest carries one filter value. An empty value clears the filter.
type FilterRequest struct {
	Value string `json:"value"`
}

// SearchState describes the search box of a view.
type SearchState struct {
	Value   string `json:"value"`
	Focused bool   `json:"focused"`
	Pending bool   `json:"pending"`
}

// KeyResponse is returned by POST .../view/keys.
type KeyResponse[T any] struct {
	Handled bool            `json:"handled"`
	Search  *SearchState    `json:"search,omitempty"`
	View    listctl.View[T] `json:"view"`
}
