package config

import (
	"strings"
	"time"
)

type SessionConfig interface {
	GetCookiePrefix() string
	GetCookieSecret() string
	GetRefreshLeeway() time.Duration
	GetSessionStore() string
	GetRedisURL() string
}

const (
	SessionStoreCookie = "cookie"
	SessionStoreRedis  = "redis"
)

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetCookiePrefix() string {
	return GetEnv("SESSION_COOKIE_PREFIX", "sg_")
}

// GetCookieSecret enables sealed cookie values when non-empty.
func (Session) GetCookieSecret() string {
	return GetEnv("SESSION_COOKIE_SECRET", "")
}

// GetRefreshLeeway may be zero, which refreshes only once the token has expired.
func (Session) GetRefreshLeeway() time.Duration {
	return GetEnvNonNegativeDuration("SESSION_REFRESH_LEEWAY", 30*time.Second)
}

// GetSessionStore is "cookie" or "redis". Redis keeps slot values server side
// and leaves only a session id cookie in the browser.
func (Session) GetSessionStore() string {
	return strings.ToLower(GetEnv("SESSION_STORE", SessionStoreCookie))
}

func (Session) GetRedisURL() string {
	return GetEnv("REDIS_URL", "redis://localhost:6379/0")
}
