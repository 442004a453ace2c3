package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	gwerrors "github.com/jrsteele09/stratgate/internal/errors"
	"github.com/jrsteele09/stratgate/sessions"
	"github.com/rs/zerolog/log"
)

// DefaultRefreshLeeway absorbs the latency of the refresh round trip itself.
const DefaultRefreshLeeway = 30 * time.Second

// ServiceSubjectID is the subject reported for service-authenticated requests.
const ServiceSubjectID = "admin"

// CredentialResolver decides which credential, if any, a request carries.
type CredentialResolver interface {
	Resolve(ctx context.Context, store sessions.Store) (ProxyAuthState, error)
}

// Refresher exchanges a refresh token. A rejected exchange is (nil, nil).
type Refresher interface {
	Refresh(ctx context.Context, refreshToken, fallbackUserID, fallbackEmail string) (*sessions.Snapshot, error)
}

var (
	_ CredentialResolver = (*UserSessionResolver)(nil)
	_ CredentialResolver = (*ServiceResolver)(nil)
)

// UserSessionResolver resolves the user's persisted session, refreshing it at
// most once per call when it is inside the leeway.
type UserSessionResolver struct {
	codec     *sessions.Codec
	refresher Refresher
	leeway    time.Duration
	nowTime   func() time.Time
	observe   func(State)
}

// ResolverOption modifies a UserSessionResolver.
type ResolverOption func(*UserSessionResolver)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ResolverOption {
	return func(r *UserSessionResolver) {
		r.nowTime = nowFunc
	}
}

func WithLeeway(leeway time.Duration) ResolverOption {
	return func(r *UserSessionResolver) {
		if leeway >= 0 {
			r.leeway = leeway
		}
	}
}

// WithStateObserver is called with every resolved state, e.g. for metrics.
func WithStateObserver(observe func(State)) ResolverOption {
	return func(r *UserSessionResolver) {
		r.observe = observe
	}
}

func NewUserSessionResolver(codec *sessions.Codec, refresher Refresher, options ...ResolverOption) (*UserSessionResolver, error) {
	if codec == nil {
		return nil, errors.New("[NewUserSessionResolver] codec is required")
	}
	if refresher == nil {
		return nil, errors.New("[NewUserSessionResolver] refresher is required")
	}

	r := &UserSessionResolver{
		codec:     codec,
		refresher: refresher,
		leeway:    DefaultRefreshLeeway,
		nowTime:   time.Now,
		observe:   func(State) {},
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

func (r *UserSessionResolver) Resolve(ctx context.Context, store sessions.Store) (ProxyAuthState, error) {
	snapshot := r.codec.Read(store)
	if snapshot == nil {
		return r.done(ProxyAuthState{Mode: ModeUser, State: StateNoSession, MustClearSession: true}), nil
	}

	if !sessions.ShouldRefresh(snapshot, r.nowTime(), r.leeway) {
		return r.done(ProxyAuthState{
			Mode:       ModeUser,
			State:      StateValid,
			Credential: snapshot.AccessToken,
			SubjectID:  snapshot.UserID,
			Email:      snapshot.Email,
		}), nil
	}

	refreshed, err := r.refresher.Refresh(ctx, snapshot.RefreshToken, snapshot.UserID, snapshot.Email)
	if err != nil {
		return ProxyAuthState{}, fmt.Errorf("[UserSessionResolver Resolve] refresh: %w", err)
	}

	// Once a refresh has been attempted and rejected the old access token is
	// no longer trusted, even if it has not technically expired.
	if !refreshed.Valid() {
		log.Info().Str("user_id", snapshot.UserID).Msg("session refresh rejected, clearing session")
		return r.done(ProxyAuthState{Mode: ModeUser, State: StateInvalid, MustClearSession: true}), nil
	}

	log.Debug().Str("user_id", refreshed.UserID).Int64("expires_at", refreshed.ExpiresAt).Msg("session refreshed")
	return r.done(ProxyAuthState{
		Mode:              ModeUser,
		State:             StateRefreshed,
		Credential:        refreshed.AccessToken,
		SubjectID:         refreshed.UserID,
		Email:             refreshed.Email,
		RefreshedSnapshot: refreshed,
	}), nil
}

func (r *UserSessionResolver) done(state ProxyAuthState) ProxyAuthState {
	r.observe(state.State)
	return state
}

// ServiceResolver authenticates every request as the fixed service identity.
type ServiceResolver struct {
	token string
}

func NewServiceResolver(token string) *ServiceResolver {
	return &ServiceResolver{token: token}
}

func (r *ServiceResolver) Resolve(context.Context, sessions.Store) (ProxyAuthState, error) {
	if r.token == "" {
		return ProxyAuthState{}, fmt.Errorf("[ServiceResolver Resolve] service token: %w", gwerrors.ErrMissingConfig)
	}
	return ProxyAuthState{
		Mode:       ModeService,
		State:      StateDisabled,
		Credential: r.token,
		SubjectID:  ServiceSubjectID,
	}, nil
}
