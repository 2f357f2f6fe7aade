package ports

import (
	"github.com/gin-gonic/gin"
)

// RouteRegistrar mounts a handler's routes on the control API router.
type RouteRegistrar interface {
	SetupRoutes(router *gin.Engine)
}
