package contacts

import "github.com/odyssey-erp/odyssey-books/internal/shared"

type CreateContactRequest struct {
	Name       string  `json:"name" validate:"required,max=200"`
	Email      *string `json:"email,omitempty" validate:"omitempty,email,max=200"`
	Phone      *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Address    *string `json:"address,omitempty" validate:"omitempty,max=500"`
	IsCustomer *bool   `json:"isCustomer,omitempty"`
	IsVendor   *bool   `json:"isVendor,omitempty"`
	Notes      *string `json:"notes,omitempty"`
}

type UpdateContactRequest struct {
	Name       *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Email      *string `json:"email,omitempty" validate:"omitempty,email,max=200"`
	Phone      *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Address    *string `json:"address,omitempty" validate:"omitempty,max=500"`
	IsCustomer *bool   `json:"isCustomer,omitempty"`
	IsVendor   *bool   `json:"isVendor,omitempty"`
	Notes      *string `json:"notes,omitempty"`
}

type ListContactsRequest struct {
	Search string
	// Kind is "customer", "vendor" or empty for all.
	Kind string `validate:"omitempty,oneof=customer vendor"`
	Page shared.PageRequest
}

// PortalAccessRequest sets or rotates the portal PIN of a contact.
type PortalAccessRequest struct {
	PIN      string `json:"pin" validate:"required,len=6,numeric"`
	IsActive *bool  `json:"isActive,omitempty"`
}
