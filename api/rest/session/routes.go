package session

import "github.com/gin-gonic/gin"

// registers the token exchange route behind the given middleware
func RegisterRoutes(router gin.IRoutes, exchanger Exchanger, middleware ...gin.HandlerFunc) {
	handlers := append(middleware, Handler(exchanger))
	router.POST("/session", handlers...)
}
