package server

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	s.router.Get("/health/live", s.livenessHandler)
	s.router.Get("/health/ready", s.readinessHandler)
	s.router.Get("/status", s.statusHandler)
	s.router.Get("/version", versionHandler)
	s.router.Get("/metrics", metricsHandler)
}
