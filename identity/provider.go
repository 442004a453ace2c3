package identity

import (
	"context"
	"errors"

	"github.com/jrsteele09/stratgate/sessions"
)

var (
	ErrNotConfigured      = errors.New("identity provider not configured")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSignupRejected     = errors.New("signup rejected")
)

// User is the identity behind an access token.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// SignupResult carries the new account. Session is nil when the provider
// requires out-of-band verification before issuing tokens.
type SignupResult struct {
	UserID  string
	Email   string
	Session *sessions.Snapshot
}

// Provider is the set of identity-provider operations the gateway uses.
type Provider interface {
	// Refresh exchanges a refresh token for a new snapshot. A rejected exchange
	// returns (nil, nil); only transport or configuration failures return an error.
	Refresh(ctx context.Context, refreshToken, fallbackUserID, fallbackEmail string) (*sessions.Snapshot, error)
	// CurrentUser returns nil for any lookup failure.
	CurrentUser(ctx context.Context, accessToken string) (*User, error)
	Login(ctx context.Context, email, password string) (*sessions.Snapshot, error)
	Signup(ctx context.Context, email, password string) (*SignupResult, error)
	// Logout revokes the tokens. Callers destroy the local session regardless of the result.
	Logout(ctx context.Context, accessToken, refreshToken string) error
}
