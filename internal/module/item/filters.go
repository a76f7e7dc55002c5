package item

import (
	"github.com/simp-lee/stockroom/internal/domain"
	"github.com/simp-lee/stockroom/internal/filter"
)

// Filter keys of the item list.
const (
	FilterSearch    = "search"
	FilterCategory  = "category"
	FilterSortBy    = "sortBy"
	FilterSortOrder = "sortOrder"
)

// AllCategories is the category select value meaning "no constraint".
const AllCategories = "all"

// Filters returns the filter bar of the item list.
func Filters() filter.Config {
	categories := []filter.Option{{Value: AllCategories, Label: "All categories"}}
	for _, c := range domain.Categories {
		categories = append(categories, filter.Option{Value: string(c), Label: c.Label()})
	}

	return filter.Config{
		Fields: []filter.Field{
			filter.Search{Key: FilterSearch, Placeholder: "Search by name or SKU"},
			filter.Select{Key: FilterCategory, Label: "Category", Options: categories},
			filter.Sort{Key: FilterSortBy, Options: []filter.Option{
				{Value: domain.ItemSortName, Label: "Name"},
				{Value: domain.ItemSortSKU, Label: "SKU"},
				{Value: domain.ItemSortCategory, Label: "Category"},
				{Value: domain.ItemSortQuantity, Label: "Quantity"},
			}},
			filter.SortOrderToggle{Key: FilterSortOrder},
		},
		Initial: filter.Values{
			FilterSearch:    "",
			FilterCategory:  AllCategories,
			FilterSortBy:    domain.ItemSortName,
			FilterSortOrder: filter.OrderAsc,
		},
		ResetOn:   []string{FilterSearch, FilterCategory},
		Sentinels: filter.Values{FilterCategory: AllCategories},
	}
}
