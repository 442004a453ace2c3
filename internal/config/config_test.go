package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/stratgate/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	for _, name := range []string{"PORT", "ENV", "AUTH_ENABLED", "SESSION_COOKIE_PREFIX", "SESSION_REFRESH_LEEWAY", "STREAM_FIRST_FRAME_TIMEOUT", "STREAM_IDLE_TIMEOUT", "UPSTREAM_TIMEOUT", "ALLOWED_ORIGINS", "SESSION_STORE"} {
		t.Setenv(name, "")
	}
	c := config.New()

	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, "DEV", c.GetEnv())
	require.False(t, c.IsProduction())
	require.True(t, c.GetAuthEnabled())
	require.Equal(t, "sg_", c.GetCookiePrefix())
	require.Equal(t, 30*time.Second, c.GetRefreshLeeway())
	require.Equal(t, 90*time.Second, config.Stream{}.GetFirstFrameTimeout())
	require.Equal(t, 120*time.Second, config.Stream{}.GetIdleTimeout())
	require.Equal(t, 30*time.Second, c.GetUpstreamTimeout())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("http://localhost:3000"))
	require.Equal(t, config.SessionStoreCookie, c.GetSessionStore())
}

func TestOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ENV", "production")
	t.Setenv("AUTH_ENABLED", "false")
	t.Setenv("SESSION_REFRESH_LEEWAY", "1m")
	t.Setenv("STREAM_IDLE_TIMEOUT", "not-a-duration")
	t.Setenv("SESSION_STORE", "Redis")
	c := config.New()

	require.Equal(t, ":9000", c.GetPort())
	require.True(t, c.IsProduction())
	require.False(t, c.GetAuthEnabled())
	require.Equal(t, time.Minute, c.GetRefreshLeeway())
	require.Equal(t, 120*time.Second, config.Stream{}.GetIdleTimeout())
	require.Equal(t, config.SessionStoreRedis, c.GetSessionStore())
}

func TestRefreshLeeway(t *testing.T) {
	for value, want := range map[string]time.Duration{
		"0":    0,
		"0s":   0,
		"45s":  45 * time.Second,
		"-1s":  30 * time.Second,
		"soon": 30 * time.Second,
		"":     30 * time.Second,
	} {
		t.Setenv("SESSION_REFRESH_LEEWAY", value)
		require.Equal(t, want, config.New().GetRefreshLeeway(), value)
	}
}

func TestParseAllowedOrigins(t *testing.T) {
	origins := config.ParseAllowedOrigins(" https://a.example.com, ,https://b.example.com ")

	require.Len(t, origins, 2)
	require.True(t, origins.IsAllowedOrigin("https://a.example.com"))
	require.True(t, origins.IsAllowedOrigin("https://b.example.com"))
	require.False(t, origins.IsAllowedOrigin("https://c.example.com"))
}
