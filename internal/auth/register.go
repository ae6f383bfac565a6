package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/salesledger/internal/access"
	"github.com/angelmondragon/salesledger/pkg/config"
	dbpkg "github.com/angelmondragon/salesledger/pkg/db"
	"github.com/angelmondragon/salesledger/pkg/db/models"
	"github.com/angelmondragon/salesledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesledger/pkg/errors"
	"github.com/angelmondragon/salesledger/pkg/security"
)

const tempPasswordLength = 16

// RegisterRequest is the self-service sign-up payload.
type RegisterRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=120"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
}

// ProvisionRequest is used by operator tooling to create a principal with a
// chosen role and a generated password.
type ProvisionRequest struct {
	DisplayName string
	Email       string
	Role        string
}

// RegisterService creates principals.
type RegisterService interface {
	Register(ctx context.Context, req RegisterRequest) (*access.Principal, error)
	Provision(ctx context.Context, req ProvisionRequest) (*access.Principal, string, error)
}

type principalCreator interface {
	Create(ctx context.Context, row *models.Principal) error
}

// RegisterServiceParams packages the dependencies for the registration flow.
type RegisterServiceParams struct {
	Principals        principalCreator
	PasswordConfig    config.PasswordConfig
	AllowRegistration bool
}

type registerService struct {
	principals  principalCreator
	passwordCfg config.PasswordConfig
	allow       bool
}

func NewRegisterService(params RegisterServiceParams) (RegisterService, error) {
	if params.Principals == nil {
		return nil, fmt.Errorf("principal repository is required")
	}
	return &registerService{
		principals:  params.Principals,
		passwordCfg: params.PasswordConfig,
		allow:       params.AllowRegistration,
	}, nil
}

// Register always creates a plain user; roles are only raised by an admin.
func (s *registerService) Register(ctx context.Context, req RegisterRequest) (*access.Principal, error) {
	if !s.allow {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "registration is disabled")
	}
	return s.create(ctx, req.DisplayName, req.Email, req.Password, enums.RoleUser)
}

func (s *registerService) Provision(ctx context.Context, req ProvisionRequest) (*access.Principal, string, error) {
	role := enums.RoleUser
	if raw := strings.TrimSpace(req.Role); raw != "" {
		parsed, err := enums.ParseRole(strings.ToLower(raw))
		if err != nil {
			return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role")
		}
		role = parsed
	}
	password, err := security.GenerateTempPassword(tempPasswordLength)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate password")
	}
	principal, err := s.create(ctx, req.DisplayName, req.Email, password, role)
	if err != nil {
		return nil, "", err
	}
	return principal, password, nil
}

func (s *registerService) create(ctx context.Context, displayName, email, password string, role enums.Role) (*access.Principal, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "display_name is required")
	}
	hash, err := security.HashPassword(password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid password")
	}

	row := &models.Principal{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.principals.Create(ctx, row); err != nil {
		if access.IsDuplicateEmail(err) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		}
		return nil, dbpkg.StoreError(err, "create principal")
	}
	return &access.Principal{
		ID:          row.ID,
		Email:       row.Email,
		DisplayName: row.DisplayName,
		Role:        row.Role,
		CreatedAt:   row.CreatedAt,
		Permissions: access.DefaultPermissions(),
	}, nil
}
