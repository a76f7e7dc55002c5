package item

import "github.com/simp-lee/stockroom/internal/domain"

// Detail is the item detail response: the record plus the labels and stock
// status the detail screen shows.
type Detail struct {
	domain.Item
	CategoryLabel string             `json:"categoryLabel"`
	UnitLabel     string             `json:"unitLabel"`
	StockStatus   domain.StockStatus `json:"stockStatus"`
	Stale         bool               `json:"stale"`
}

func newDetail(it domain.Item, stale bool) Detail {
	return Detail{
		Item:          it,
		CategoryLabel: it.Category.Label(),
		UnitLabel:     it.Unit.Label(),
		StockStatus:   it.StockStatus(),
		Stale:         stale,
	}
}

// Choice is one selectable value of a form field.
type Choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// FormOptions lists the choices of the item form.
type FormOptions struct {
	Categories []Choice `json:"categories"`
	Units      []Choice `json:"units"`
}

func formOptions() FormOptions {
	opts := FormOptions{}
	for _, c := range domain.Categories {
		opts.Categories = append(opts.Categories, Choice{Value: string(c), Label: c.Label()})
	}
	for _, u := range domain.Units {
		opts.Units = append(opts.Units, Choice{Value: string(u), Label: u.Label()})
	}
	return opts
}
