package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/salesledger/pkg/config"
	"github.com/angelmondragon/salesledger/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "salesledger",
		ExpirationMinutes: 30,
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()
	principalID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		PrincipalID: principalID,
		Email:       "ana@example.com",
		Role:        enums.RoleAdmin,
		JTI:         "session-1",
	})
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, principalID, claims.PrincipalID)
	assert.Equal(t, enums.RoleAdmin, claims.Role)
	assert.Equal(t, "ana@example.com", claims.Email)
	assert.Equal(t, "session-1", claims.ID)
	assert.Equal(t, cfg.Issuer, claims.Issuer)
	assert.WithinDuration(t, now.Add(30*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestMintGeneratesJTI(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{PrincipalID: uuid.New(), Role: enums.RoleUser})
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
	_, err = uuid.Parse(claims.ID)
	assert.NoError(t, err)
}

func TestParseAccessTokenInvalidSignature(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{PrincipalID: uuid.New(), Role: enums.RoleUser})
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token+"x")
	require.Error(t, err)

	other := cfg
	other.Secret = "different"
	_, err = ParseAccessToken(other, token)
	require.Error(t, err)
}

func TestParseAccessTokenExpired(t *testing.T) {
	cfg := testJWTConfig()
	principalID := uuid.New()
	token, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), AccessTokenPayload{PrincipalID: principalID, Role: enums.RoleUser, JTI: "old"})
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")

	claims, err := ParseAccessTokenAllowExpired(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, principalID, claims.PrincipalID)
	assert.Equal(t, "old", claims.ID)
}

func TestMintAccessTokenValidates(t *testing.T) {
	cfg := testJWTConfig()

	_, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{PrincipalID: uuid.New(), Role: "root"})
	assert.Error(t, err)

	_, err = MintAccessToken(cfg, time.Now(), AccessTokenPayload{Role: enums.RoleUser})
	assert.Error(t, err)

	noSecret := cfg
	noSecret.Secret = ""
	_, err = MintAccessToken(noSecret, time.Now(), AccessTokenPayload{PrincipalID: uuid.New(), Role: enums.RoleUser})
	assert.Error(t, err)
}

func TestParseAccessTokenRejectsOtherAlgorithms(t *testing.T) {
	cfg := testJWTConfig()
	claims := AccessTokenClaims{
		PrincipalID: uuid.New(),
		Role:        enums.RoleUser,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestParseAccessTokenToleratesClockSkew(t *testing.T) {
	cfg := testJWTConfig()
	// Minted by an instance whose clock runs slightly ahead.
	token, err := MintAccessToken(cfg, time.Now().Add(10*time.Second), AccessTokenPayload{PrincipalID: uuid.New(), Role: enums.RoleUser})
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token)
	require.NoError(t, err)
}

func TestParseAccessTokenRequiresPrincipal(t *testing.T) {
	cfg := testJWTConfig()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
		Role: enums.RoleUser,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token)
	assert.ErrorIs(t, err, ErrMissingPrincipal)
}
