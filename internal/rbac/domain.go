package rbac

import "slices"

// Role is the coarse role stored on a user and copied into the session.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleStaff  Role = "staff"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleStaff || r == RoleViewer
}

// Permissions checked by the HTTP layer.
const (
	PermContactsView    = "contacts.view"
	PermContactsEdit    = "contacts.edit"
	PermPortalManage    = "portal.manage"
	PermProductsView    = "products.view"
	PermProductsEdit    = "products.edit"
	PermSalesView       = "sales.view"
	PermSalesEdit       = "sales.edit"
	PermPaymentsApprove = "payments.approve"
	PermPurchasingView  = "purchasing.view"
	PermPurchasingEdit  = "purchasing.edit"
	PermExpensesView    = "expenses.view"
	PermExpensesEdit    = "expenses.edit"
	PermMessagesView    = "messages.view"
	PermMessagesEdit    = "messages.edit"
	PermDashboardView   = "dashboard.view"
	PermJobsView        = "jobs.view"
)

var viewerPermissions = []string{
	PermContactsView,
	PermProductsView,
	PermSalesView,
	PermPurchasingView,
	PermExpensesView,
	PermMessagesView,
	PermDashboardView,
}

var staffPermissions = append(slices.Clone(viewerPermissions),
	PermContactsEdit,
	PermProductsEdit,
	PermSalesEdit,
	PermPurchasingEdit,
	PermExpensesEdit,
	PermMessagesEdit,
)

var adminPermissions = append(slices.Clone(staffPermissions),
	PermPortalManage,
	PermPaymentsApprove,
	PermJobsView,
)

// Principal describes the authenticated actor.
type Principal struct {
	UserID int64  `json:"userId"`
	Role   Role   `json:"role"`
	Email  string `json:"email,omitempty"`
}
