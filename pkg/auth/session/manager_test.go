package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/salesledger/pkg/config"
	redisclient "github.com/angelmondragon/salesledger/pkg/redis"
)

type mockStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMockStore() *mockStore {
	return &mockStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *mockStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return nil
}

func (m *mockStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return "", redisclient.Nil
	}
	return val, nil
}

func (m *mockStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *mockStore) AccessSessionKey(accessID string) string {
	return "sess:" + accessID
}

func testConfig() config.JWTConfig {
	return config.JWTConfig{ExpirationMinutes: 15, RefreshTokenTTLMinutes: 60}
}

func TestCreateAndRotate(t *testing.T) {
	store := newMockStore()
	manager, err := newManager(store, testConfig())
	require.NoError(t, err)

	ctx := context.Background()
	principalID := uuid.New()
	first, err := manager.Create(ctx, principalID)
	require.NoError(t, err)
	assert.NotEmpty(t, first.RefreshToken)

	stored := store.data[store.AccessSessionKey(first.AccessID)]
	assert.True(t, strings.HasPrefix(stored, principalID.String()+":"))
	assert.NotContains(t, stored, first.RefreshToken, "raw token is never stored")
	assert.Equal(t, time.Hour, store.ttls[store.AccessSessionKey(first.AccessID)])

	_, err = manager.Rotate(ctx, first.AccessID, "wrong")
	assert.True(t, errors.Is(err, ErrInvalidRefreshToken))

	second, err := manager.Rotate(ctx, first.AccessID, first.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, principalID, second.PrincipalID)
	assert.NotEqual(t, first.AccessID, second.AccessID)

	active, err := manager.HasSession(ctx, first.AccessID)
	require.NoError(t, err)
	assert.False(t, active, "rotated session is retired")

	_, err = manager.Rotate(ctx, first.AccessID, first.RefreshToken)
	assert.True(t, errors.Is(err, ErrInvalidRefreshToken), "refresh tokens are single use")
}

func TestRevoke(t *testing.T) {
	store := newMockStore()
	manager, err := newManager(store, testConfig())
	require.NoError(t, err)

	ctx := context.Background()
	sess, err := manager.Create(ctx, uuid.New())
	require.NoError(t, err)

	active, err := manager.HasSession(ctx, sess.AccessID)
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, manager.Revoke(ctx, sess.AccessID))
	active, err = manager.HasSession(ctx, sess.AccessID)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestNewManagerRejectsShortRefreshTTL(t *testing.T) {
	_, err := newManager(newMockStore(), config.JWTConfig{ExpirationMinutes: 30, RefreshTokenTTLMinutes: 10})
	require.Error(t, err)

	_, err = NewManager(nil, testConfig())
	require.Error(t, err)
}

func TestCorruptStoredValue(t *testing.T) {
	store := newMockStore()
	manager, err := newManager(store, testConfig())
	require.NoError(t, err)

	store.data[store.AccessSessionKey("a1")] = "not-a-session"
	_, err = manager.Rotate(context.Background(), "a1", "token")
	assert.True(t, errors.Is(err, ErrInvalidRefreshToken))
}
