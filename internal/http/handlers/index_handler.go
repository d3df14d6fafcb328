package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-user-api/internal/http/middleware"
)

// Index godoc
// @ID          index
// @Summary     API index
// @Description Names the API.
// @Tags        Index
// @Produce     json
// @Success     200  {object}  handlers.MessageResponse
// @Router      / [get]
func (h *Handlers) Index(c *gin.Context) {
	success(c, http.StatusOK, MessageData{Message: h.appName + " API"})
}

// NotFound answers unmatched routes with "Not Found - <path>".
func NotFound(c *gin.Context) {
	middleware.LoggerFrom(c).Info().
		Str("event", EventRouteNotFound).
		Str("endpoint", c.Request.URL.Path).
		Msg("route not found")
	fail(c, http.StatusNotFound, StatusMessage(http.StatusNotFound)+" - "+c.Request.URL.Path)
}

// MethodNotAllowed answers a known route hit with an unsupported method.
func MethodNotAllowed(c *gin.Context) {
	middleware.LoggerFrom(c).Info().
		Str("event", EventMethodNotAllowed).
		Str("endpoint", c.Request.Method+" "+c.Request.URL.Path).
		Msg("method not allowed")
	fail(c, http.StatusMethodNotAllowed, "")
}
