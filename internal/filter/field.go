package filter

import "fmt"

// Field is one filter widget. The set of implementations is closed:
// Search, Select, Sort and SortOrderToggle.
type Field interface {
	FieldKey() string
	isField()
}

// Option is one choice of a Select or Sort field.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Search is a free-text input.
type Search struct {
	Key         string
	Placeholder string
}

// Select picks one value from Options.
type Select struct {
	Key     string
	Label   string
	Options []Option
}

// Sort picks the sort column.
type Sort struct {
	Key     string
	Options []Option
}

// SortOrderToggle flips between ascending and descending order.
type SortOrderToggle struct {
	Key string
}

func (f Search) FieldKey() string          { return f.Key }
func (f Select) FieldKey() string          { return f.Key }
func (f Sort) FieldKey() string            { return f.Key }
func (f SortOrderToggle) FieldKey() string { return f.Key }

func (Search) isField()          {}
func (Select) isField()          {}
func (Sort) isField()            {}
func (SortOrderToggle) isField() {}

// Sort orders accepted by SortOrderToggle.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Widget is the serialisable description of a field for the filter bar.
type Widget struct {
	Type        string   `json:"type"`
	Key         string   `json:"key"`
	Label       string   `json:"label,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Options     []Option `json:"options,omitempty"`
	Value       string   `json:"value"`
}

// Describe converts a field into its widget description.
func Describe(f Field) Widget {
	switch f := f.(type) {
	case Search:
		return Widget{Type: "search", Key: f.Key, Placeholder: f.Placeholder}
	case Select:
		return Widget{Type: "select", Key: f.Key, Label: f.Label, Options: f.Options}
	case Sort:
		return Widget{Type: "sort", Key: f.Key, Label: "Sort by", Options: f.Options}
	case SortOrderToggle:
		return Widget{
			Type: "sortOrder",
			Key:  f.Key,
			Options: []Option{
				{Value: OrderAsc, Label: "Ascending"},
				{Value: OrderDesc, Label: "Descending"},
			},
		}
	default:
		panic(fmt.Sprintf("filter: unknown field type %T", f))
	}
}
