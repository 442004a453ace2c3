package server

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	s.RegisterRouteHandler("GET "+RouteMetrics, s.metrics.Handler())

	// Session routes only exist when users sign in; "me" answers either way.
	if s.config.GetAuthEnabled() {
		s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
		s.RegisterRouteHandler("POST "+RouteAuthSignup, ChainMiddleware(s.SignupHandler(), s.APIMiddleware()...))
		s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))
	}
	s.RegisterRouteHandler("GET "+RouteAuthMe, ChainMiddleware(s.MeHandler(), s.APIMiddleware()...))

	s.RegisterRouteHandler(RouteAPI, ChainMiddleware(s.gateway.ServeHTTP, s.APIMiddleware()...))
}
