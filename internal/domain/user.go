package domain

import "github.com/meshcompute/inference-marketplace/internal/money"

// UserRole is display-only metadata; eligibility never consults it (per
// spec: eligibility is active-flag plus ownership, nothing role-based).
type UserRole string

const (
	UserRoleRequestor UserRole = "requestor"
	UserRoleProvider  UserRole = "provider"
	UserRoleBoth      UserRole = "both"
)

// ApplicationUser is an account that can requisition work (requestor) or
// execute it (provider), or both.
type ApplicationUser struct {
	ID                   string
	Active               bool
	Balance              money.Amount
	ResourceCapabilities *string
	Role                 UserRole
}
