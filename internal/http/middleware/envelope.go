package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AbortWithError stops the chain and writes the API error envelope:
//
//	{"status":"error","error":{"message":"...","statusCode":429}}
//
// An empty message falls back to the standard status text.
func AbortWithError(c *gin.Context, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"status": "error",
		"error": gin.H{
			"message":    message,
			"statusCode": status,
		},
	})
}
