package sessions

import "time"

// Snapshot is one authenticated user session as issued by the identity provider.
// It is replaced wholesale on refresh, never patched.
type Snapshot struct {
	AccessToken  string // short-lived bearer credential
	RefreshToken string // long-lived, rotates on every use
	ExpiresAt    int64  // absolute expiry, epoch seconds
	UserID       string // stable subject identifier
	Email        string // informational, may be empty
}

// Valid reports whether both tokens are present. An invalid snapshot is treated as no session.
func (s *Snapshot) Valid() bool {
	return s != nil && s.AccessToken != "" && s.RefreshToken != ""
}

func (s *Snapshot) Expiry() time.Time {
	return time.Unix(s.ExpiresAt, 0)
}

// ShouldRefresh reports whether the access token expires within leeway of now.
// The boundary is inclusive: expiresAt == now+leeway refreshes.
func ShouldRefresh(s *Snapshot, now time.Time, leeway time.Duration) bool {
	return s.ExpiresAt <= now.Unix()+int64(leeway/time.Second)
}
