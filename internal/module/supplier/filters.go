package supplier

import (
	"github.com/simp-lee/stockroom/internal/domain"
	"github.com/simp-lee/stockroom/internal/filter"
)

// Filter keys of the supplier list.
const (
	FilterSearch    = "search"
	FilterSortBy    = "sortBy"
	FilterSortOrder = "sortOrder"
)

// Filters returns the filter bar of the supplier list. Suppliers have no
// select filter, so only the search box resets the page.
func Filters() filter.Config {
	return filter.Config{
		Fields: []filter.Field{
			filter.Search{Key: FilterSearch, Placeholder: "Search by company or contact"},
			filter.Sort{Key: FilterSortBy, Options: []filter.Option{
				{Value: domain.SupplierSortName, Label: "Company"},
				{Value: domain.SupplierSortContact, Label: "Primary contact"},
			}},
			filter.SortOrderToggle{Key: FilterSortOrder},
		},
		Initial: filter.Values{
			FilterSearch:    "",
			FilterSortBy:    domain.SupplierSortName,
			FilterSortOrder: filter.OrderAsc,
		},
		ResetOn: []string{FilterSearch},
	}
}
