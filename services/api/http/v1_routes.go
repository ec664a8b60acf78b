package http

import "github.com/gin-gonic/gin"

// registerV1Routes sets up /api/v1. The bearer token, when configured,
// guards only this group so health checks and scrapes stay open.
func (s *Server) registerV1Routes() {
	v1 := s.engine.Group("/api/v1")
	v1.Use(apiVersionMiddleware())
	if s.cfg.BearerToken != "" {
		v1.Use(bearerAuthMiddleware(s.cfg.BearerToken))
	}

	stats := v1.Group("/stats")
	{
		stats.GET("/dates", s.handleV1ListDates)
		stats.GET("/latest", s.handleV1Latest)
		stats.GET("/:date", s.handleV1StatsByDate)
		stats.GET("/:date/:scope", s.handleV1StatsByDateScope)
	}

	regions := v1.Group("/regions")
	{
		regions.GET("/:scope/:id/history", s.handleV1RegionHistory)
	}
}

func apiVersionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-API-Version", "v1")
		c.Next()
	}
}
