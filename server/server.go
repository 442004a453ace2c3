package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/stratgate/auth"
	"github.com/jrsteele09/stratgate/identity"
	"github.com/jrsteele09/stratgate/internal/config"
	"github.com/jrsteele09/stratgate/sessions"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env       string // Environment (e.g., "DEV", "PRODUCTION")
	mux       *http.ServeMux
	routes    []string
	config    config.Config
	identity  identity.Provider
	codec     *sessions.Codec
	sealer    *sessions.Sealer
	redis     *redis.Client
	resolver  auth.CredentialResolver
	validator *auth.Validator
	gateway   *Gateway
	metrics   *Metrics

	originClient *http.Client
	nowTime      func() time.Time
}

// ServerOption modifies a Server.
type ServerOption func(*Server)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServerOption {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

// WithHTTPClient replaces the client used to reach the API origin.
func WithHTTPClient(client *http.Client) ServerOption {
	return func(s *Server) {
		s.originClient = client
	}
}

func New(cfg config.Config, provider identity.Provider, options ...ServerOption) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("[Server New] config is required")
	}
	if provider == nil {
		return nil, errors.New("[Server New] identity provider is required")
	}

	s := &Server{
		env:       cfg.GetEnv(),
		mux:       http.NewServeMux(),
		config:    cfg,
		identity:  provider,
		validator: auth.NewValidator(),
		metrics:   NewMetrics(),
		nowTime:   time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.originClient == nil {
		s.originClient = NewOriginClient(cfg.GetUpstreamTimeout())
	}

	s.codec = sessions.NewCodec(cfg.GetCookiePrefix(), sessions.WithNowTime(s.nowTime))
	if secret := cfg.GetCookieSecret(); secret != "" {
		sealer, err := sessions.NewSealer(secret)
		if err != nil {
			return nil, fmt.Errorf("[Server New] session sealer: %w", err)
		}
		s.sealer = sealer
	}

	switch store := cfg.GetSessionStore(); store {
	case "", config.SessionStoreCookie:
	case config.SessionStoreRedis:
		client, err := newRedisClient(cfg.GetRedisURL())
		if err != nil {
			return nil, fmt.Errorf("[Server New] session store: %w", err)
		}
		s.redis = client
	default:
		return nil, fmt.Errorf("[Server New] unknown session store %q", store)
	}

	resolver, err := s.newResolver()
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.resolver = resolver

	s.gateway, err = NewGateway(cfg.GetAPIOrigin(), s.resolver, s.codec, s.sessionStore,
		WithOriginClient(s.originClient),
		WithGatewayMetrics(s.metrics),
		WithPrivateCookies(sessions.SessionIDName(cfg.GetCookiePrefix())),
	)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("[Server New] gateway: %w", err)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

// newResolver picks the credential strategy once, from the auth flag.
func (s *Server) newResolver() (auth.CredentialResolver, error) {
	if !s.config.GetAuthEnabled() {
		if s.config.GetAdminToken() == "" {
			log.Warn().Msg("auth is disabled and no service token is configured, proxied requests will fail")
		}
		return auth.NewServiceResolver(s.config.GetAdminToken()), nil
	}

	resolver, err := auth.NewUserSessionResolver(s.codec, s.identity,
		auth.WithNowTime(s.nowTime),
		auth.WithLeeway(s.config.GetRefreshLeeway()),
		auth.WithStateObserver(s.metrics.ObserveSessionState),
	)
	if err != nil {
		return nil, fmt.Errorf("[Server New] session resolver: %w", err)
	}
	return resolver, nil
}

// Close releases the session store connection, if any.
func (s *Server) Close() error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		method, path := "*", route
		if parts := strings.SplitN(route, " ", 2); len(parts) > 1 {
			method, path = parts[0], parts[1]
		}
		log.Info().Str("method", method).Str("path", path).Msg("route")
	}
}
