package server

// Route path constants
const (
	// Auth Routes
	RouteAuthLogin  = "/api/auth/login"
	RouteAuthSignup = "/api/auth/signup"
	RouteAuthLogout = "/api/auth/logout"
	RouteAuthMe     = "/api/auth/me"

	// Everything else under /api/ is forwarded to the origin
	RouteAPI = "/api/"

	// Operational Routes
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)
