package contacts

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/balances"
)

// Contact is a customer, a vendor or both. The balance fields are derived and
// maintained by the balances package.
type Contact struct {
	ID              int64           `json:"id"`
	ContactUID      string          `json:"contactUid"`
	Name            string          `json:"name"`
	Email           *string         `json:"email,omitempty"`
	Phone           *string         `json:"phone,omitempty"`
	Address         *string         `json:"address,omitempty"`
	IsCustomer      bool            `json:"isCustomer"`
	IsVendor        bool            `json:"isVendor"`
	CustomerBalance decimal.Decimal `json:"customerBalance"`
	VendorBalance   decimal.Decimal `json:"vendorBalance"`
	NetBalance      decimal.Decimal `json:"netBalance"`
	Notes           *string         `json:"notes,omitempty"`
	PortalEnabled   bool            `json:"portalEnabled"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func (c Contact) eventRow() balances.Row {
	return balances.Row{
		"id":              c.ID,
		"customerBalance": c.CustomerBalance.String(),
		"vendorBalance":   c.VendorBalance.String(),
		"netBalance":      c.NetBalance.String(),
	}
}
