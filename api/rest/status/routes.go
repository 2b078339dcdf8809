package status

import "github.com/gin-gonic/gin"

func RegisterRoutes(router gin.IRoutes, deps Deps) {
	router.GET("/status", Handler(deps))
}
