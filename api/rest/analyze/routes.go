package analyze

import "github.com/gin-gonic/gin"

// registers the analysis route behind the given middleware
func RegisterRoutes(router gin.IRoutes, deps Deps, middleware ...gin.HandlerFunc) {
	handlers := append(middleware, Handler(deps))
	router.POST("/analyze", handlers...)
}
