package auth

import "github.com/jrsteele09/stratgate/sessions"

// Mode identifies which credential is injected into forwarded requests.
type Mode string

const (
	ModeUser    Mode = "user"
	ModeService Mode = "service"
)

// State is the outcome of resolving a request's session.
type State int

const (
	StateDisabled  State = iota // user sessions switched off, service credential in use
	StateNoSession              // nothing (or nothing readable) persisted
	StateValid                  // access token outside the refresh leeway
	StateRefreshed              // was expiring soon, refresh succeeded
	StateInvalid                // was expiring soon, refresh rejected
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateNoSession:
		return "no_session"
	case StateValid:
		return "valid"
	case StateRefreshed:
		return "refreshed"
	case StateInvalid:
		return "invalid"
	}
	return "unknown"
}

// ProxyAuthState is the per-request credential decision. It is never persisted.
type ProxyAuthState struct {
	Mode       Mode
	State      State
	Credential string // bearer value to inject, empty when none
	SubjectID  string
	Email      string

	// RefreshedSnapshot is set only when a refresh happened during this request
	// and must be written back even though the request is already authorized.
	RefreshedSnapshot *sessions.Snapshot

	// MustClearSession asks the caller to wipe every persisted slot.
	MustClearSession bool
}

// Authenticated reports whether a usable credential was resolved.
func (p ProxyAuthState) Authenticated() bool {
	return p.Credential != ""
}
