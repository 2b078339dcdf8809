package main

import (
	"codeberg.org/freetier/gateway/api/rest/analyze"
	"codeberg.org/freetier/gateway/api/rest/health"
	"codeberg.org/freetier/gateway/api/rest/session"
	"codeberg.org/freetier/gateway/api/rest/status"
	"github.com/gin-gonic/gin"
)

// sets up all API routes and middleware
func RegisterRoutes(router *gin.Engine, server *Server) {
	origins := newOriginPolicy(server.config.AllowedOrigins)

	router.HandleMethodNotAllowed = true
	router.NoRoute(NoRouteHandler)
	router.NoMethod(NoMethodHandler(router))

	// order matters: the origin guard runs before anything with side effects
	router.Use(
		RecoveryMiddleware(),
		RequestLoggerMiddleware(),
		OriginGuardMiddleware(origins),
		CORSMiddleware(origins),
		PreflightMiddleware(),
	)

	health.RegisterRoutes(router)

	status.RegisterRoutes(router, status.Deps{
		Limiter: server.limiter,
		Balance: server.balance,
		Tiering: server.selector,
	})

	analyze.RegisterRoutes(router, analyze.Deps{
		Defense:  server.defense,
		Limiter:  server.limiter,
		Selector: server.selector,
		Upstream: server.upstream,
	}, server.burst)

	session.RegisterRoutes(router, server.defense, server.burst)
}
