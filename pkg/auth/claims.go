package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/salesledger/pkg/enums"
)

// AccessTokenPayload is the data needed to mint an access token.
type AccessTokenPayload struct {
	PrincipalID uuid.UUID
	Email       string
	Role        enums.Role
	// JTI doubles as the refresh session key; a fresh one is generated when empty.
	JTI string
}

// AccessTokenClaims is the typed JWT issued to clients. Role is informational:
// authorization always re-reads the principal from the store.
type AccessTokenClaims struct {
	PrincipalID uuid.UUID  `json:"principal_id"`
	Email       string     `json:"email,omitempty"`
	Role        enums.Role `json:"role"`
	jwt.RegisteredClaims
}
