package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/salesledger/internal/access"
	pkgAuth "github.com/angelmondragon/salesledger/pkg/auth"
	"github.com/angelmondragon/salesledger/pkg/auth/session"
	"github.com/angelmondragon/salesledger/pkg/config"
	dbpkg "github.com/angelmondragon/salesledger/pkg/db"
	"github.com/angelmondragon/salesledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/salesledger/pkg/errors"
	"github.com/angelmondragon/salesledger/pkg/logger"
	"github.com/angelmondragon/salesledger/pkg/security"
)

const invalidCredentialsMessage = "invalid credentials"

// Service signs principals in and out and rotates their sessions.
type Service interface {
	SignIn(ctx context.Context, req SignInRequest) (*TokenResponse, error)
	Refresh(ctx context.Context, req RefreshRequest) (*TokenResponse, error)
	SignOut(ctx context.Context, accessID string) error
}

type principalStore interface {
	FindByEmail(ctx context.Context, email string) (*models.Principal, error)
	UpdateLastSignIn(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

type principalResolver interface {
	Resolve(ctx context.Context, principalID uuid.UUID) (*access.Principal, error)
}

type sessionManager interface {
	Create(ctx context.Context, principalID uuid.UUID) (session.Session, error)
	Rotate(ctx context.Context, oldAccessID, provided string) (session.Session, error)
	Revoke(ctx context.Context, accessID string) error
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	Principals     principalStore
	Access         principalResolver
	Sessions       sessionManager
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
	Logger         *logger.Logger
	Now            func() time.Time
}

type service struct {
	principals  principalStore
	access      principalResolver
	sessions    sessionManager
	jwtCfg      config.JWTConfig
	passwordCfg config.PasswordConfig
	logg        *logger.Logger
	now         func() time.Time
}

// NewService constructs the sign-in service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Principals == nil {
		return nil, fmt.Errorf("principal repository is required")
	}
	if params.Access == nil {
		return nil, fmt.Errorf("access service is required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		principals:  params.Principals,
		access:      params.Access,
		sessions:    params.Sessions,
		jwtCfg:      params.JWTConfig,
		passwordCfg: params.PasswordConfig,
		logg:        params.Logger,
		now:         now,
	}, nil
}

func (s *service) SignIn(ctx context.Context, req SignInRequest) (*TokenResponse, error) {
	row, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	// Blocked principals never get tokens.
	principal, err := s.access.Resolve(ctx, row.ID)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeAccessRevoked) {
			s.warn(ctx, row.ID, "sign in refused")
		}
		return nil, err
	}

	now := s.now()
	if err := s.principals.UpdateLastSignIn(ctx, row.ID, now); err != nil {
		return nil, dbpkg.StoreError(err, "record sign in")
	}
	principal.LastSignIn = &now
	s.rehashIfNeeded(ctx, row, req.Password)

	sess, err := s.sessions.Create(ctx, row.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create session")
	}
	return s.issue(ctx, now, principal, sess)
}

func (s *service) Refresh(ctx context.Context, req RefreshRequest) (*TokenResponse, error) {
	claims, err := pkgAuth.ParseAccessTokenAllowExpired(s.jwtCfg, strings.TrimSpace(req.AccessToken))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if claims.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}

	sess, err := s.sessions.Rotate(ctx, claims.ID, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotate session")
	}
	if sess.PrincipalID != claims.PrincipalID {
		s.revoke(ctx, sess.AccessID)
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
	}

	principal, err := s.access.Resolve(ctx, sess.PrincipalID)
	if err != nil {
		s.revoke(ctx, sess.AccessID)
		return nil, err
	}
	return s.issue(ctx, s.now(), principal, sess)
}

func (s *service) SignOut(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}
	if err := s.sessions.Revoke(ctx, accessID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

func (s *service) issue(ctx context.Context, now time.Time, principal *access.Principal, sess session.Session) (*TokenResponse, error) {
	token, err := pkgAuth.MintAccessToken(s.jwtCfg, now, pkgAuth.AccessTokenPayload{
		PrincipalID: principal.ID,
		Email:       principal.Email,
		Role:        principal.Role,
		JTI:         sess.AccessID,
	})
	if err != nil {
		s.revoke(ctx, sess.AccessID)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	return &TokenResponse{
		AccessToken:  token,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    now.Add(s.jwtCfg.AccessTokenTTL()),
		Principal:    principal,
	}, nil
}

func (s *service) authenticate(ctx context.Context, email, password string) (*models.Principal, error) {
	input := strings.TrimSpace(email)
	if input == "" || password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	row, err := s.principals.FindByEmail(ctx, input)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, dbpkg.StoreError(err, "lookup principal")
	}
	valid, err := security.VerifyPassword(password, row.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	return row, nil
}

func (s *service) rehashIfNeeded(ctx context.Context, row *models.Principal, password string) {
	if !security.NeedsRehash(row.PasswordHash, s.passwordCfg) {
		return
	}
	hash, err := security.HashPassword(password, s.passwordCfg)
	if err == nil {
		err = s.principals.UpdatePasswordHash(ctx, row.ID, hash)
	}
	if err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithPrincipal(ctx, row.ID.String(), row.Role.String()), "password rehash failed", err)
	}
}

func (s *service) revoke(ctx context.Context, accessID string) {
	if err := s.sessions.Revoke(ctx, accessID); err != nil && s.logg != nil {
		s.logg.Error(ctx, "revoke session", err)
	}
}

func (s *service) warn(ctx context.Context, principalID uuid.UUID, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "principal_id", principalID.String()), msg)
}
