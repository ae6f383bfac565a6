package access

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/salesledger/pkg/db/models"
	"github.com/angelmondragon/salesledger/pkg/enums"
)

// Permissions are the order feature flags of a principal.
type Permissions struct {
	CanCreate bool `json:"can_create"`
	CanEdit   bool `json:"can_edit"`
	CanDelete bool `json:"can_delete"`
}

// DefaultPermissions is what a principal without a stored row gets.
func DefaultPermissions() Permissions {
	return Permissions{CanCreate: true, CanEdit: true, CanDelete: true}
}

// Allows reports whether the flag gating action is set.
func (p Permissions) Allows(action enums.OrderAction) bool {
	switch action {
	case enums.OrderActionCreate:
		return p.CanCreate
	case enums.OrderActionEdit:
		return p.CanEdit
	case enums.OrderActionDelete:
		return p.CanDelete
	default:
		return false
	}
}

// Principal is a loaded identity: role plus effective permissions.
type Principal struct {
	ID          uuid.UUID   `json:"id"`
	Email       string      `json:"email"`
	DisplayName string      `json:"display_name"`
	Role        enums.Role  `json:"role"`
	CreatedAt   time.Time   `json:"created_at"`
	LastSignIn  *time.Time  `json:"last_sign_in,omitempty"`
	Permissions Permissions `json:"permissions"`
	// Explicit is false when Permissions were synthesized from the default.
	Explicit bool `json:"explicit_permissions"`
}

// IsAdmin is a pure function of the loaded role.
func IsAdmin(p Principal) bool {
	return p.Role == enums.RoleAdmin
}

func (p Principal) IsAdmin() bool {
	return IsAdmin(p)
}

// Can reports whether the principal may perform action, judged only on the
// loaded state.
func (p Principal) Can(action enums.OrderAction) bool {
	if p.Role == enums.RoleBlocked || !p.Role.IsValid() {
		return false
	}
	return p.Permissions.Allows(action)
}

// fromModels applies the default-allow policy. This is the only place a
// missing permissions row is turned into flags.
func fromModels(row models.Principal, perms *models.FeaturePermissions) Principal {
	out := Principal{
		ID:          row.ID,
		Email:       row.Email,
		DisplayName: row.DisplayName,
		Role:        row.Role,
		CreatedAt:   row.CreatedAt,
		LastSignIn:  row.LastSignInAt,
		Permissions: DefaultPermissions(),
	}
	if perms != nil {
		out.Explicit = true
		out.Permissions = Permissions{
			CanCreate: perms.CanCreate,
			CanEdit:   perms.CanEdit,
			CanDelete: perms.CanDelete,
		}
	}
	return out
}

// Result is the structured outcome of a privileged role change.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
