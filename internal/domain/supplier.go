package domain

// Supplier sort fields accepted by the inventory API. The API sorts
// suppliers by primary contact under the "sku" key.
const (
	SupplierSortName    = "name"
	SupplierSortContact = "sku"
)

// ContactInput is one supplier contact in a create/update payload.
type ContactInput struct {
	Name      string `json:"name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone,omitempty" validate:"omitempty,min=3,max=30,phone_chars,phone_digit"`
	Notes     string `json:"notes,omitempty"`
	IsPrimary bool   `json:"isPrimary,omitempty"`
}

// Contact is a stored supplier contact.
type Contact struct {
	ID uint `json:"id"`
	ContactInput
}

// SupplierInput is the create/update payload for a supplier.
type SupplierInput struct {
	Name     string         `json:"name" validate:"required"`
	Address  string         `json:"address,omitempty"`
	Notes    string         `json:"notes,omitempty"`
	Contacts []ContactInput `json:"contacts,omitempty" validate:"omitempty,dive"`
}

// Supplier is a supplier as returned by the API.
type Supplier struct {
	ID       uint      `json:"id"`
	Name     string    `json:"name"`
	Address  string    `json:"address,omitempty"`
	Notes    string    `json:"notes,omitempty"`
	Contacts []Contact `json:"contacts"`
}

// EntityID implements Entity.
func (s Supplier) EntityID() uint { return s.ID }

// PrimaryContact returns the contact flagged as primary, if any.
func (s Supplier) PrimaryContact() (Contact, bool) {
	for _, c := range s.Contacts {
		if c.IsPrimary {
			return c, true
		}
	}
	return Contact{}, false
}
