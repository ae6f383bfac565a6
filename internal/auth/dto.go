package auth

import (
	"time"

	"github.com/angelmondragon/salesledger/internal/access"
)

// SignInRequest captures the credentials sent to the sign-in endpoint.
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest pairs the last access token, which may be expired, with its
// refresh token.
type RefreshRequest struct {
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// TokenResponse is returned by sign-in and refresh.
type TokenResponse struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	ExpiresAt    time.Time         `json:"expires_at"`
	Principal    *access.Principal `json:"principal"`
}
