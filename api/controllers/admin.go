package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/salesledger/api/responses"
	"github.com/angelmondragon/salesledger/api/validators"
	"github.com/angelmondragon/salesledger/internal/access"
	"github.com/angelmondragon/salesledger/pkg/logger"
)

type updateRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// Pointers so an omitted flag is a validation error rather than false.
type updatePermissionsRequest struct {
	CanCreate *bool `json:"can_create" validate:"required"`
	CanEdit   *bool `json:"can_edit" validate:"required"`
	CanDelete *bool `json:"can_delete" validate:"required"`
}

func (p updatePermissionsRequest) permissions() access.Permissions {
	return access.Permissions{CanCreate: *p.CanCreate, CanEdit: *p.CanEdit, CanDelete: *p.CanDelete}
}

func AdminListUsers(svc access.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, func(w http.ResponseWriter, r *http.Request) error {
		if svc == nil {
			return unavailable("access")
		}
		actor, err := principalFrom(r)
		if err != nil {
			return err
		}
		list, err := svc.ListPrincipals(r.Context(), actor.ID)
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, list)
		return nil
	})
}

// adminTarget reads the acting admin and the {userID} being changed.
func adminTarget(r *http.Request) (actor, target uuid.UUID, err error) {
	principal, err := principalFrom(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	target, err = pathUUID(r, "userID", "user id")
	return principal.ID, target, err
}

// AdminUpdateRole answers with the structured role-change result. Refusals
// still carry the matching error status.
func AdminUpdateRole(svc access.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, func(w http.ResponseWriter, r *http.Request) error {
		if svc == nil {
			return unavailable("access")
		}
		actor, target, err := adminTarget(r)
		if err != nil {
			return err
		}
		var body updateRoleRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return err
		}
		result, err := svc.UpdateRole(r.Context(), actor, target, body.Role)
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, result)
		return nil
	})
}

func AdminUpdatePermissions(svc access.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, func(w http.ResponseWriter, r *http.Request) error {
		if svc == nil {
			return unavailable("access")
		}
		actor, target, err := adminTarget(r)
		if err != nil {
			return err
		}
		var body updatePermissionsRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return err
		}
		updated, err := svc.UpdatePermissions(r.Context(), actor, target, body.permissions())
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, updated)
		return nil
	})
}
