package config

import "time"

type GatewayConfig interface {
	GetAPIOrigin() string
	GetAuthEnabled() bool
	GetAdminToken() string
	GetUpstreamTimeout() time.Duration
}

type Gateway struct{}

var _ GatewayConfig = Gateway{}

// GetAPIOrigin is the internal job API the gateway forwards to, e.g. "http://jobs-api:8000".
func (Gateway) GetAPIOrigin() string {
	return GetEnv("API_ORIGIN", "")
}

// GetAuthEnabled selects the user-session path. When false every request is
// forwarded with the service token instead.
func (Gateway) GetAuthEnabled() bool {
	return GetEnvBool("AUTH_ENABLED", true)
}

func (Gateway) GetAdminToken() string {
	return GetEnv("ADMIN_TOKEN", "")
}

// GetUpstreamTimeout bounds connection setup and response headers only, never the body,
// so event streams are not cut off.
func (Gateway) GetUpstreamTimeout() time.Duration {
	return GetEnvDuration("UPSTREAM_TIMEOUT", 30*time.Second)
}
