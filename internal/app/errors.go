package app

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/stockroom/internal/pkg"
)

// renderError aborts with the JSON error envelope.
func renderError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, pkg.Response{Code: code, Message: message})
}

func noRouteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		renderError(c, http.StatusNotFound, "not found")
	}
}

func noMethodHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		renderError(c, http.StatusMethodNotAllowed, "method not allowed")
	}
}
