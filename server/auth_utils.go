package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/stratgate/sessions"
	"github.com/rs/zerolog/log"
)

// Client-facing error bodies. Provider and origin details never reach the client.
const (
	errUnauthorized       = "unauthorized"
	errInternal           = "internal error"
	errMisconfigured      = "gateway misconfigured"
	errUpstream           = "upstream unavailable"
	errInvalidRequest     = "invalid request"
	errInvalidCredentials = "invalid credentials"
	errSignupRejected     = "signup rejected"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Err(err).Msg("[writeJSON] encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// StoreFunc binds a session store to one request/response pair.
type StoreFunc func(w http.ResponseWriter, r *http.Request) sessions.Store

// sessionStore persists slots as cookies, sealed when a cookie secret is
// configured. With Redis the cookies carry only the session id.
func (s *Server) sessionStore(w http.ResponseWriter, r *http.Request) sessions.Store {
	var store sessions.Store = sessions.NewCookieStore(r, w, s.config.IsProduction() || getScheme(r) == "https")
	if s.sealer != nil {
		store = s.sealer.Seal(store)
	}
	if s.redis != nil {
		store = sessions.NewRedisStore(r.Context(), s.redis, store, s.config.GetCookiePrefix())
	}
	return store
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
