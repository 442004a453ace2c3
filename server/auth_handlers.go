package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/jrsteele09/stratgate/auth"
	"github.com/jrsteele09/stratgate/identity"
	gwerrors "github.com/jrsteele09/stratgate/internal/errors"
	"github.com/rs/zerolog/log"
)

const maxCredentialsBody = 64 * 1024

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	User      identity.User `json:"user"`
	ExpiresAt int64         `json:"expiresAt,omitempty"`
}

type signupResponse struct {
	User                 identity.User `json:"user"`
	RequiresVerification bool          `json:"requiresVerification"`
}

type meResponse struct {
	User identity.User `json:"user"`
	Mode auth.Mode     `json:"mode"`
}

func decodeCredentials(r *http.Request) (credentialsRequest, error) {
	var req credentialsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxCredentialsBody)).Decode(&req); err != nil {
		return req, gwerrors.Wrapf(gwerrors.ErrInvalidRequest, "decode credentials: %v", err)
	}
	req.Email = strings.TrimSpace(req.Email)
	return req, nil
}

// writeInvalid answers 400. Validation messages are our own and safe to show.
func writeInvalid(w http.ResponseWriter, err error) {
	var verr *auth.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, verr.Message)
		return
	}
	writeError(w, http.StatusBadRequest, errInvalidRequest)
}

// writeProviderError maps identity failures to client statuses without
// exposing provider messages.
func writeProviderError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, errInvalidCredentials)
	case errors.Is(err, identity.ErrSignupRejected):
		writeError(w, http.StatusBadRequest, errSignupRejected)
	case errors.Is(err, identity.ErrNotConfigured):
		log.Err(err).Str("op", op).Msg("identity provider not configured")
		writeError(w, http.StatusInternalServerError, errMisconfigured)
	default:
		log.Err(err).Str("op", op).Msg("identity provider call failed")
		writeError(w, http.StatusBadGateway, errUpstream)
	}
}

// LoginHandler exchanges email and password for a session.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeCredentials(r)
		if err == nil {
			err = s.validator.ValidateUserCredentials(req.Email, req.Password)
		}
		if err != nil {
			writeInvalid(w, err)
			return
		}

		snapshot, err := s.identity.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			writeProviderError(w, "login", err)
			return
		}

		s.codec.Write(s.sessionStore(w, r), snapshot)
		writeJSON(w, http.StatusOK, userResponse{
			User:      identity.User{ID: snapshot.UserID, Email: snapshot.Email},
			ExpiresAt: snapshot.ExpiresAt,
		})
	}
}

// SignupHandler registers an account. A session is only written when the
// provider issues one straight away.
func (s *Server) SignupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeCredentials(r)
		if err == nil {
			err = s.validator.ValidateUserCredentials(req.Email, req.Password)
		}
		if err == nil {
			err = s.validator.ValidateNewPassword(req.Password)
		}
		if err != nil {
			writeInvalid(w, err)
			return
		}

		result, err := s.identity.Signup(r.Context(), req.Email, req.Password)
		if err != nil {
			writeProviderError(w, "signup", err)
			return
		}

		resp := signupResponse{User: identity.User{ID: result.UserID, Email: result.Email}}
		if result.Session.Valid() {
			s.codec.Write(s.sessionStore(w, r), result.Session)
		} else {
			resp.RequiresVerification = true
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

// LogoutHandler revokes the session at the provider and always clears it locally.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store := s.sessionStore(w, r)
		if snapshot := s.codec.Read(store); snapshot != nil {
			if err := s.identity.Logout(r.Context(), snapshot.AccessToken, snapshot.RefreshToken); err != nil {
				log.Warn().Err(err).Str("user_id", snapshot.UserID).Msg("token revocation failed, clearing session anyway")
			}
		}
		s.codec.Clear(store)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// MeHandler reports who the current credential belongs to.
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store := s.sessionStore(w, r)
		state, err := s.resolver.Resolve(r.Context(), store)
		if err != nil {
			if errors.Is(err, gwerrors.ErrMissingConfig) {
				writeError(w, http.StatusInternalServerError, errMisconfigured)
				return
			}
			log.Err(err).Msg("[MeHandler] session resolution failed")
			writeError(w, http.StatusInternalServerError, errInternal)
			return
		}
		s.gateway.persist(store, state)

		if !state.Authenticated() {
			writeError(w, http.StatusUnauthorized, errUnauthorized)
			return
		}
		if state.Mode == auth.ModeService {
			writeJSON(w, http.StatusOK, meResponse{User: identity.User{ID: state.SubjectID}, Mode: state.Mode})
			return
		}

		user, err := s.identity.CurrentUser(r.Context(), state.Credential)
		if err != nil {
			if !errors.Is(err, identity.ErrNotConfigured) {
				writeProviderError(w, "me", err)
				return
			}
			// Without a userinfo endpoint the session's own identity is all there is.
			user = &identity.User{ID: state.SubjectID, Email: state.Email}
		}
		if user == nil {
			s.codec.Clear(store)
			writeError(w, http.StatusUnauthorized, errUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, meResponse{User: *user, Mode: state.Mode})
	}
}

// HealthHandler answers liveness probes.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
