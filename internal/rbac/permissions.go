// Package rbac implements the role-based access policy: a static table from
// role to five capability flags, the call row-visibility predicate, and gin
// middleware enforcing both.
package rbac

import (
	"errors"

	"github.com/tbourn/callqa-backend/internal/domain"
)

var (
	// ErrUnauthorized means no authenticated caller is present.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the caller's role lacks the required permission.
	ErrForbidden = errors.New("forbidden")
)

// Permission names one capability flag.
type Permission string

const (
	ViewAllCalls    Permission = "canViewAllCalls"
	SendToAnalysis  Permission = "canSendToAnalysis"
	ManageTemplates Permission = "canManageTemplates"
	ManageUsers     Permission = "canManageUsers"
	DeleteCalls     Permission = "canDeleteCalls"
)

// Permissions is the capability set of one role.
type Permissions struct {
	CanViewAllCalls    bool `json:"canViewAllCalls"`
	CanSendToAnalysis  bool `json:"canSendToAnalysis"`
	CanManageTemplates bool `json:"canManageTemplates"`
	CanManageUsers     bool `json:"canManageUsers"`
	CanDeleteCalls     bool `json:"canDeleteCalls"`
}

var table = map[domain.Role]Permissions{
	domain.RoleAdministrator: {
		CanViewAllCalls:    true,
		CanSendToAnalysis:  true,
		CanManageTemplates: true,
		CanManageUsers:     true,
		CanDeleteCalls:     true,
	},
	domain.RoleOCCManager: {
		CanViewAllCalls:    true,
		CanSendToAnalysis:  true,
		CanManageTemplates: true,
		CanDeleteCalls:     true,
	},
	// Supervisors only see calls attributed to their own name.
	domain.RoleSupervisor: {},
}

// PermissionsFor returns the capability set of role. Unknown roles get none.
func PermissionsFor(role domain.Role) Permissions {
	return table[role]
}

// Has reports whether the set grants perm.
func (p Permissions) Has(perm Permission) bool {
	switch perm {
	case ViewAllCalls:
		return p.CanViewAllCalls
	case SendToAnalysis:
		return p.CanSendToAnalysis
	case ManageTemplates:
		return p.CanManageTemplates
	case ManageUsers:
		return p.CanManageUsers
	case DeleteCalls:
		return p.CanDeleteCalls
	}
	return false
}

// Can reports whether role grants perm.
func Can(role domain.Role, perm Permission) bool {
	return PermissionsFor(role).Has(perm)
}

// CanViewCall reports whether a caller with role and display name may see a
// call attributed to employeeName. The name comparison is case-sensitive.
func CanViewCall(role domain.Role, name, employeeName string) bool {
	if Can(role, ViewAllCalls) {
		return true
	}
	return name != "" && name == employeeName
}

// CallScope returns the employee-name filter for listings: nil when the
// caller sees every call.
func CallScope(p domain.Principal) *string {
	if Can(p.Role, ViewAllCalls) {
		return nil
	}
	name := p.Name
	return &name
}

// Check gates a privileged operation.
func Check(p *domain.Principal, perm Permission) error {
	if p == nil || p.UserID == "" {
		return ErrUnauthorized
	}
	if !Can(p.Role, perm) {
		return ErrForbidden
	}
	return nil
}
