package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/salesledger/pkg/config"
	redisclient "github.com/angelmondragon/salesledger/pkg/redis"
)

const refreshTokenBytes = 32

var ErrInvalidRefreshToken = errors.New("invalid refresh token")

type sessionStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	AccessSessionKey(accessID string) string
}

// Session is one issued refresh session. RefreshToken is only populated when
// the session is created; the store keeps a digest.
type Session struct {
	AccessID     string
	PrincipalID  uuid.UUID
	RefreshToken string
}

// Checker is the read-only surface the auth middleware needs.
type Checker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

// Manager issues, rotates and revokes refresh sessions in Redis.
type Manager struct {
	store sessionStore
	ttl   time.Duration
}

func NewManager(client *redisclient.Client, cfg config.JWTConfig) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return newManager(client, cfg)
}

func newManager(store sessionStore, cfg config.JWTConfig) (*Manager, error) {
	ttl := cfg.RefreshTokenTTL()
	if ttl <= 0 {
		return nil, fmt.Errorf("refresh token ttl must be positive")
	}
	if accessTTL := cfg.AccessTokenTTL(); ttl <= accessTTL {
		return nil, fmt.Errorf("refresh token ttl (%s) must exceed access token ttl (%s)", ttl, accessTTL)
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// Create opens a session for principalID under a new access id.
func (m *Manager) Create(ctx context.Context, principalID uuid.UUID) (Session, error) {
	if principalID == uuid.Nil {
		return Session{}, fmt.Errorf("principal id is required")
	}
	return m.issue(ctx, principalID)
}

// Rotate checks the refresh token presented for oldAccessID, retires that
// session and opens a replacement for the same principal.
func (m *Manager) Rotate(ctx context.Context, oldAccessID, provided string) (Session, error) {
	if strings.TrimSpace(oldAccessID) == "" || strings.TrimSpace(provided) == "" {
		return Session{}, ErrInvalidRefreshToken
	}

	key := m.store.AccessSessionKey(oldAccessID)
	stored, err := m.store.Get(ctx, key)
	if err != nil {
		return Session{}, wrapNotFound(err)
	}
	principalID, digest, ok := decodeValue(stored)
	if !ok || subtle.ConstantTimeCompare([]byte(digest), []byte(hashToken(provided))) != 1 {
		return Session{}, ErrInvalidRefreshToken
	}

	next, err := m.issue(ctx, principalID)
	if err != nil {
		return Session{}, err
	}
	if err := m.store.Del(ctx, key); err != nil {
		return Session{}, err
	}
	return next, nil
}

// Revoke ends the session tied to accessID.
func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return fmt.Errorf("access id is required")
	}
	return m.store.Del(ctx, m.store.AccessSessionKey(accessID))
}

func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	if strings.TrimSpace(accessID) == "" {
		return false, fmt.Errorf("access id is required")
	}
	if _, err := m.store.Get(ctx, m.store.AccessSessionKey(accessID)); err != nil {
		if errors.Is(err, redisclient.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (m *Manager) issue(ctx context.Context, principalID uuid.UUID) (Session, error) {
	token, err := generateRefreshToken()
	if err != nil {
		return Session{}, err
	}
	accessID := uuid.NewString()
	value := principalID.String() + ":" + hashToken(token)
	if err := m.store.Set(ctx, m.store.AccessSessionKey(accessID), value, m.ttl); err != nil {
		return Session{}, err
	}
	return Session{AccessID: accessID, PrincipalID: principalID, RefreshToken: token}, nil
}

func decodeValue(value string) (uuid.UUID, string, bool) {
	id, digest, found := strings.Cut(value, ":")
	if !found || digest == "" {
		return uuid.Nil, "", false
	}
	principalID, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, "", false
	}
	return principalID, digest, true
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func generateRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func wrapNotFound(err error) error {
	if errors.Is(err, redisclient.Nil) {
		return ErrInvalidRefreshToken
	}
	return err
}
