package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/salesledger/pkg/config"
)

// clockSkew is tolerated between the API instances that mint and verify.
const clockSkew = 30 * time.Second

var (
	signingMethod = jwt.SigningMethodHS256

	ErrMissingSecret    = errors.New("jwt secret is required")
	ErrMissingPrincipal = errors.New("token has no principal id")
)

// MintAccessToken issues an HS256 JWT for payload, valid from now for
// cfg.AccessTokenTTL().
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", ErrMissingSecret
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case payload.PrincipalID == uuid.Nil:
		return "", ErrMissingPrincipal
	case !payload.Role.IsValid():
		return "", fmt.Errorf("cannot mint token for role %q", payload.Role)
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	issued := jwt.NewNumericDate(now)

	signed, err := jwt.NewWithClaims(signingMethod, AccessTokenClaims{
		PrincipalID: payload.PrincipalID,
		Email:       payload.Email,
		Role:        payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    cfg.Issuer,
			Subject:   payload.PrincipalID.String(),
			IssuedAt:  issued,
			NotBefore: issued,
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.AccessTokenTTL())),
		},
	}).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken checks signature, algorithm, issuer and the time claims.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	return parse(cfg, raw, jwt.WithIssuer(cfg.Issuer), jwt.WithLeeway(clockSkew), jwt.WithExpirationRequired())
}

// ParseAccessTokenAllowExpired only checks the signature and algorithm. The
// refresh flow uses it to read the jti of a token that has already expired.
func ParseAccessTokenAllowExpired(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	return parse(cfg, raw, jwt.WithoutClaimsValidation())
}

func parse(cfg config.JWTConfig, raw string, opts ...jwt.ParserOption) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	key := []byte(cfg.Secret)
	parser := jwt.NewParser(append(opts, jwt.WithValidMethods([]string{signingMethod.Alg()}))...)

	claims := new(AccessTokenClaims)
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}); err != nil {
		return nil, err
	}
	if claims.PrincipalID == uuid.Nil {
		return nil, ErrMissingPrincipal
	}
	return claims, nil
}
