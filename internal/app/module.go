package app

import "github.com/gin-gonic/gin"

// Module defines the contract for a self-registering business module.
// Each module registers its API routes and releases what it mounted on Close.
type Module interface {
	RegisterRoutes(api *gin.RouterGroup)
	Close()
}
