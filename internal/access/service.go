package access

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/salesledger/pkg/db"
	"github.com/angelmondragon/salesledger/pkg/db/models"
	"github.com/angelmondragon/salesledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesledger/pkg/errors"
	"github.com/angelmondragon/salesledger/pkg/logger"
	"github.com/angelmondragon/salesledger/pkg/metrics"
	"github.com/angelmondragon/salesledger/pkg/outbox"
	"github.com/angelmondragon/salesledger/pkg/outbox/payloads"
)

// Service loads principals and answers authorization questions. Every call
// reads the store; nothing about a principal is cached between calls.
type Service interface {
	Resolve(ctx context.Context, principalID uuid.UUID) (*Principal, error)
	Authorize(ctx context.Context, principalID uuid.UUID, action enums.OrderAction) (*Principal, error)
	RequireAdmin(ctx context.Context, principalID uuid.UUID) (*Principal, error)
	UpdateRole(ctx context.Context, actorID, targetID uuid.UUID, role string) (Result, error)
	AssignRole(ctx context.Context, email string, role string) (*Principal, error)
	UpdatePermissions(ctx context.Context, actorID, targetID uuid.UUID, perms Permissions) (*Principal, error)
	ListPrincipals(ctx context.Context, actorID uuid.UUID) ([]Principal, error)
	CountPrincipals(ctx context.Context) (int64, error)
}

type principalRepository interface {
	WithTx(tx *gorm.DB) *Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Principal, error)
	FindByEmail(ctx context.Context, email string) (*models.Principal, error)
	FindPermissions(ctx context.Context, principalID uuid.UUID) (*models.FeaturePermissions, error)
	List(ctx context.Context) ([]models.Principal, map[uuid.UUID]models.FeaturePermissions, error)
	Count(ctx context.Context) (int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repo    principalRepository
	TX      txRunner
	Outbox  outbox.Emitter
	Logger  *logger.Logger
	Metrics *metrics.OperationMetrics
}

type service struct {
	repo    principalRepository
	tx      txRunner
	outbox  outbox.Emitter
	logg    *logger.Logger
	metrics *metrics.OperationMetrics
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("principal repository required")
	}
	if params.TX == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox emitter required")
	}
	return &service{
		repo:    params.Repo,
		tx:      params.TX,
		outbox:  params.Outbox,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

func (s *service) Resolve(ctx context.Context, principalID uuid.UUID) (*Principal, error) {
	row, err := s.load(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if row.Role == enums.RoleBlocked {
		return nil, pkgerrors.New(pkgerrors.CodeAccessRevoked, "access revoked")
	}
	if !row.Role.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeForbidden, "unknown role %q", row.Role)
	}
	perms, err := s.repo.FindPermissions(ctx, principalID)
	if err != nil {
		return nil, dbpkg.StoreError(err, "load permissions")
	}
	principal := fromModels(*row, perms)
	return &principal, nil
}

func (s *service) Authorize(ctx context.Context, principalID uuid.UUID, action enums.OrderAction) (*Principal, error) {
	if !action.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown action %q", action)
	}
	principal, err := s.Resolve(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if !principal.Can(action) {
		return nil, pkgerrors.Newf(pkgerrors.CodeForbidden, "%s not permitted", action).
			WithDetails(map[string]string{"action": action.String()})
	}
	return principal, nil
}

func (s *service) RequireAdmin(ctx context.Context, principalID uuid.UUID) (*Principal, error) {
	principal, err := s.Resolve(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if !principal.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	return principal, nil
}

// UpdateRole is the privileged role change: an admin acting on a
// non-admin principal other than themselves.
func (s *service) UpdateRole(ctx context.Context, actorID, targetID uuid.UUID, role string) (Result, error) {
	done := s.metrics.Track("role_update", metrics.ClassifyError)
	err := s.updateRole(ctx, actorID, targetID, role)
	done(err)
	if err != nil {
		s.logFailure(ctx, "role update failed", targetID, err)
		msg := err.Error()
		if te := pkgerrors.As(err); te != nil {
			msg = te.Message()
		}
		return Result{Success: false, Error: msg}, err
	}
	return Result{Success: true}, nil
}

func (s *service) updateRole(ctx context.Context, actorID, targetID uuid.UUID, role string) error {
	actor, err := s.RequireAdmin(ctx, actorID)
	if err != nil {
		return err
	}
	next, err := parseRole(role)
	if err != nil {
		return err
	}
	if targetID == actor.ID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "cannot change your own role")
	}
	target, err := s.load(ctx, targetID)
	if err != nil {
		return err
	}
	if target.Role == enums.RoleAdmin {
		return pkgerrors.New(pkgerrors.CodeForbidden, "cannot change the role of an admin")
	}
	return s.applyRole(ctx, actor, target, next)
}

// AssignRole is for trusted operator tooling and skips the actor checks.
func (s *service) AssignRole(ctx context.Context, email string, role string) (*Principal, error) {
	next, err := parseRole(role)
	if err != nil {
		return nil, err
	}
	target, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "principal %s not found", strings.TrimSpace(email))
		}
		return nil, dbpkg.StoreError(err, "load principal")
	}
	if err := s.applyRole(ctx, nil, target, next); err != nil {
		return nil, err
	}
	perms, err := s.repo.FindPermissions(ctx, target.ID)
	if err != nil {
		return nil, dbpkg.StoreError(err, "load permissions")
	}
	target.Role = next
	principal := fromModels(*target, perms)
	return &principal, nil
}

func (s *service) applyRole(ctx context.Context, actor *Principal, target *models.Principal, next enums.Role) error {
	if target.Role == next {
		return nil
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpdateRole(ctx, target.ID, next); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPrincipalRoleChanged,
			AggregateType: enums.AggregatePrincipal,
			AggregateID:   target.ID.String(),
			Actor:         actorRef(actor),
			Data: payloads.PrincipalRoleChangedEvent{
				PrincipalID:  target.ID,
				PreviousRole: target.Role.String(),
				Role:         next.String(),
			},
		})
	})
	if err != nil {
		return dbpkg.StoreError(err, "update role")
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"target_id": target.ID.String(),
			"from_role": target.Role.String(),
			"to_role":   next.String(),
		})
		s.logg.Info(logCtx, "principal role changed")
	}
	return nil
}

// UpdatePermissions lets an admin set the feature flags of any non-blocked
// principal other than themselves. The first change persists the row.
func (s *service) UpdatePermissions(ctx context.Context, actorID, targetID uuid.UUID, perms Permissions) (*Principal, error) {
	done := s.metrics.Track("permissions_update", metrics.ClassifyError)
	principal, err := s.updatePermissions(ctx, actorID, targetID, perms)
	done(err)
	if err != nil {
		s.logFailure(ctx, "permissions update failed", targetID, err)
	}
	return principal, err
}

func (s *service) updatePermissions(ctx context.Context, actorID, targetID uuid.UUID, perms Permissions) (*Principal, error) {
	actor, err := s.RequireAdmin(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if targetID == actor.ID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot change your own permissions")
	}
	target, err := s.load(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target.Role == enums.RoleBlocked {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot change permissions of a blocked principal")
	}

	row := models.FeaturePermissions{
		PrincipalID: target.ID,
		CanCreate:   perms.CanCreate,
		CanEdit:     perms.CanEdit,
		CanDelete:   perms.CanDelete,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpsertPermissions(ctx, &row); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPrincipalPermissionsChanged,
			AggregateType: enums.AggregatePrincipal,
			AggregateID:   target.ID.String(),
			Actor:         actorRef(actor),
			Data: payloads.PrincipalPermissionsChangedEvent{
				PrincipalID: target.ID,
				CanCreate:   perms.CanCreate,
				CanEdit:     perms.CanEdit,
				CanDelete:   perms.CanDelete,
			},
		})
	})
	if err != nil {
		return nil, dbpkg.StoreError(err, "update permissions")
	}
	principal := fromModels(*target, &row)
	return &principal, nil
}

func (s *service) ListPrincipals(ctx context.Context, actorID uuid.UUID) ([]Principal, error) {
	if _, err := s.RequireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	rows, perms, err := s.repo.List(ctx)
	if err != nil {
		return nil, dbpkg.StoreError(err, "list principals")
	}
	out := make([]Principal, 0, len(rows))
	for _, row := range rows {
		var p *models.FeaturePermissions
		if found, ok := perms[row.ID]; ok {
			p = &found
		}
		out = append(out, fromModels(row, p))
	}
	return out, nil
}

func (s *service) CountPrincipals(ctx context.Context) (int64, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return 0, dbpkg.StoreError(err, "count principals")
	}
	return count, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Principal, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "principal required")
	}
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "principal %s not found", id)
		}
		return nil, dbpkg.StoreError(err, "load principal")
	}
	return row, nil
}

func (s *service) logFailure(ctx context.Context, msg string, targetID uuid.UUID, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"target_id":  targetID.String(),
		"error_code": pkgerrors.CodeOf(err),
	}), msg)
}

func parseRole(value string) (enums.Role, error) {
	role, err := enums.ParseRole(strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role").
			WithDetails(map[string]string{"role": value})
	}
	return role, nil
}

func actorRef(actor *Principal) *outbox.ActorRef {
	if actor == nil {
		return nil
	}
	return &outbox.ActorRef{PrincipalID: actor.ID, Role: actor.Role.String()}
}
