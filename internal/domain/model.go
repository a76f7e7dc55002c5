package domain

import "slices"

// Pagination defaults shared by every list view.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
)

// PageSizes is the set of page sizes a list view accepts.
var PageSizes = []int{10, 20, 25, 50, 100}

// ValidPageSize reports whether n is one of PageSizes.
func ValidPageSize(n int) bool {
	return slices.Contains(PageSizes, n)
}

// PageState is the persisted pagination position of one list view.
type PageState struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// DefaultPageState returns the state used when nothing has been stored yet.
func DefaultPageState() PageState {
	return PageState{Page: DefaultPage, PageSize: DefaultPageSize}
}

// ListResult is one page of a remote list query. Total is the full filtered
// count on the server, independent of the page size.
type ListResult[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// Entity is implemented by records addressable by a numeric id.
type Entity interface {
	EntityID() uint
}
