package identityfake

import (
	"context"
	"sync"

	"github.com/jrsteele09/stratgate/identity"
	"github.com/jrsteele09/stratgate/sessions"
)

var _ identity.Provider = (*FakeProvider)(nil)

// FakeProvider is an in-memory identity.Provider. Results are configured via
// the exported fields; calls are counted.
type FakeProvider struct {
	mu sync.Mutex

	RefreshResult *sessions.Snapshot
	RefreshErr    error
	RefreshFunc   func(refreshToken, fallbackUserID, fallbackEmail string) (*sessions.Snapshot, error)

	Users map[string]*identity.User // access token -> user

	LoginResult *sessions.Snapshot
	LoginErr    error

	SignupResult *identity.SignupResult
	SignupErr    error

	LogoutErr error

	refreshCalls   int
	refreshTokens  []string
	logoutCalls    int
	currentUserErr error
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{Users: make(map[string]*identity.User)}
}

func (f *FakeProvider) Refresh(_ context.Context, refreshToken, fallbackUserID, fallbackEmail string) (*sessions.Snapshot, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.refreshTokens = append(f.refreshTokens, refreshToken)
	fn := f.RefreshFunc
	result, err := f.RefreshResult, f.RefreshErr
	f.mu.Unlock()

	if fn != nil {
		return fn(refreshToken, fallbackUserID, fallbackEmail)
	}
	if result == nil {
		return nil, err
	}
	s := *result
	return &s, err
}

func (f *FakeProvider) CurrentUser(_ context.Context, accessToken string) (*identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.currentUserErr != nil {
		return nil, f.currentUserErr
	}
	u, ok := f.Users[accessToken]
	if !ok {
		return nil, nil
	}
	user := *u
	return &user, nil
}

func (f *FakeProvider) Login(_ context.Context, email, password string) (*sessions.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LoginErr != nil {
		return nil, f.LoginErr
	}
	if f.LoginResult == nil {
		return nil, identity.ErrInvalidCredentials
	}
	s := *f.LoginResult
	return &s, nil
}

func (f *FakeProvider) Signup(_ context.Context, email, password string) (*identity.SignupResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SignupErr != nil {
		return nil, f.SignupErr
	}
	if f.SignupResult == nil {
		return &identity.SignupResult{UserID: "new-user", Email: email}, nil
	}
	r := *f.SignupResult
	return &r, nil
}

func (f *FakeProvider) Logout(_ context.Context, accessToken, refreshToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	return f.LogoutErr
}

// SetCurrentUserErr makes every CurrentUser call fail with err.
func (f *FakeProvider) SetCurrentUserErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentUserErr = err
}

func (f *FakeProvider) RefreshCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

func (f *FakeProvider) RefreshTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.refreshTokens...)
}

func (f *FakeProvider) LogoutCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logoutCalls
}
