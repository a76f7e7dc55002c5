package domain

// Category classifies an inventory item.
type Category string

const (
	CategoryRawMaterial  Category = "RAW_MATERIAL"
	CategoryConsumable   Category = "CONSUMABLE"
	CategoryComponent    Category = "COMPONENT"
	CategoryFinishedGood Category = "FINISHED_GOOD"
	CategoryPackaging    Category = "PACKAGING"
	CategoryChemical     Category = "CHEMICAL"
	CategoryOther        Category = "OTHER"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryRawMaterial,
	CategoryConsumable,
	CategoryComponent,
	CategoryFinishedGood,
	CategoryPackaging,
	CategoryChemical,
	CategoryOther,
}

var categoryLabels = map[Category]string{
	CategoryRawMaterial:  "Raw Material",
	CategoryConsumable:   "Consumable",
	CategoryComponent:    "Component",
	CategoryFinishedGood: "Finished Good",
	CategoryPackaging:    "Packaging",
	CategoryChemical:     "Chemical",
	CategoryOther:        "Other",
}

// Label returns the display name of the category.
func (c Category) Label() string {
	return categoryLabels[c]
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Unit is the unit of measure an item is counted in.
type Unit string

const (
	UnitPieces Unit = "PCS"
	UnitKG     Unit = "KG"
	UnitG      Unit = "G"
	UnitL      Unit = "L"
	UnitML     Unit = "ML"
	UnitM      Unit = "M"
	UnitCM     Unit = "CM"
	UnitSheet  Unit = "SHEET"
	UnitRoll   Unit = "ROLL"
	UnitSet    Unit = "SET"
	UnitBox    Unit = "BOX"
)

// Units lists every unit in display order.
var Units = []Unit{
	UnitPieces, UnitKG, UnitG, UnitL, UnitML, UnitM,
	UnitCM, UnitSheet, UnitRoll, UnitSet, UnitBox,
}

var unitLabels = map[Unit]string{
	UnitPieces: "Pcs",
	UnitKG:     "kg",
	UnitG:      "g",
	UnitL:      "l",
	UnitML:     "ml",
	UnitM:      "m",
	UnitCM:     "cm",
	UnitSheet:  "Sheet",
	UnitRoll:   "Roll",
	UnitSet:    "Set",
	UnitBox:    "Box",
}

// Label returns the display name of the unit.
func (u Unit) Label() string {
	return unitLabels[u]
}

// Valid reports whether u is a known unit.
func (u Unit) Valid() bool {
	_, ok := unitLabels[u]
	return ok
}

// Item sort fields accepted by the inventory API.
const (
	ItemSortName     = "name"
	ItemSortSKU      = "sku"
	ItemSortCategory = "category"
	ItemSortQuantity = "quantity"
)

// ItemInput is the create/update payload for an inventory item.
type ItemInput struct {
	SKU         string   `json:"sku" validate:"required"`
	Name        string   `json:"name" validate:"required"`
	Category    Category `json:"category" validate:"category"`
	Description string   `json:"description,omitempty"`
	Quantity    float64  `json:"quantity" validate:"gte=0"`
	Unit        Unit     `json:"unit" validate:"unit"`
	MinQuantity *float64 `json:"minQuantity,omitempty" validate:"omitempty,gte=0"`
	MaxQuantity *float64 `json:"maxQuantity,omitempty" validate:"omitempty,gte=0"`
}

// Item is an inventory item as returned by the API.
type Item struct {
	ID uint `json:"id"`
	ItemInput
}

// EntityID implements Entity.
func (i Item) EntityID() uint { return i.ID }

// StockStatus describes how an item's quantity relates to its thresholds.
type StockStatus string

const (
	StockOut    StockStatus = "Out Of Stock"
	StockLow    StockStatus = "Low Stock"
	StockNormal StockStatus = "Normal Stock"
	StockMax    StockStatus = "Max Stock"
)

// StockStatus classifies the item's quantity. Missing thresholds count as 0.
func (i Item) StockStatus() StockStatus {
	lo, hi := 0.0, 0.0
	if i.MinQuantity != nil {
		lo = *i.MinQuantity
	}
	if i.MaxQuantity != nil {
		hi = *i.MaxQuantity
	}
	switch q := i.Quantity; {
	case q <= 0:
		return StockOut
	case q < lo:
		return StockLow
	case q <= hi:
		return StockNormal
	default:
		return StockMax
	}
}
