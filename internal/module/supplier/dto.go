package supplier

import "github.com/simp-lee/stockroom/internal/domain"

// Detail is the supplier detail response.
type Detail struct {
	domain.Supplier
	PrimaryContact *domain.Contact `json:"primaryContact"`
	Stale          bool            `json:"stale"`
}

func newDetail(s domain.Supplier, stale bool) Detail {
	d := Detail{Supplier: s, Stale: stale}
	if d.Contacts == nil {
		d.Contacts = []domain.Contact{}
	}
	if c, ok := s.PrimaryContact(); ok {
		d.PrimaryContact = &c
	}
	return d
}
