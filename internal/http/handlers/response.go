// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the envelope every endpoint answers with and the helpers
// that write it. The goal is to guarantee uniform responses for both success
// and failure cases, making the API predictable and machine-friendly.
//
// Conventions:
//   - Success bodies are {"status":"success","data":...}.
//   - Error bodies are {"status":"error","error":{...}} with a message from
//     the status table (errors.go) or a fixed endpoint message.
//   - Only validation failures carry details (validationError); no other
//     error ever echoes internal error text.
//   - `fail()` centralizes error formatting and logs 5xx responses with the
//     request-scoped logger.
//
// Example error response:
//
//	HTTP/1.1 400 Bad Request
//	{
//	  "status": "error",
//	  "error": {
//	    "message": "Bad Request",
//	    "statusCode": 400,
//	    "validationError": {
//	      "issues": [{"code": "invalid_string", "path": ["id"], "message": "Invalid id provided"}],
//	      "name": "ValidationError"
//	    }
//	  }
//	}
//
// Example success response:
//
//	HTTP/1.1 200 OK
//	{ "status": "success", "data": { "id": "…", "firstName": "Ada" } }
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-user-api/internal/domain"
	"github.com/tbourn/go-user-api/internal/http/middleware"
	"github.com/tbourn/go-user-api/internal/validation"
)

// Envelope status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ErrorBody is the "error" member of an error envelope.
type ErrorBody struct {
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"Not Found"`
	// Mirrors the HTTP status code
	StatusCode int `json:"statusCode" example:"404"`
	// Present only on 400 responses caused by input validation
	ValidationError *validation.Error `json:"validationError,omitempty"`
}

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	Status string    `json:"status" example:"error"`
	Error  ErrorBody `json:"error"`
}

// SuccessResponse is the standard success envelope.
type SuccessResponse struct {
	Status string `json:"status" example:"success"`
	Data   any    `json:"data"`
}

// UserResponse documents a success envelope carrying a user.
type UserResponse struct {
	Status string      `json:"status" example:"success"`
	Data   domain.User `json:"data"`
}

// MessageData is a payload holding a single message.
type MessageData struct {
	Message string `json:"message" example:"User API"`
}

// MessageResponse documents a success envelope carrying a message.
type MessageResponse struct {
	Status string      `json:"status" example:"success"`
	Data   MessageData `json:"data"`
}

// fail aborts the request with an error envelope and logs server-side errors.
//
// An empty msg falls back to the status table. Server errors (>=500) are
// logged using the request-scoped logger from middleware.
func fail(c *gin.Context, status int, msg string) {
	if msg == "" {
		msg = StatusMessage(status)
	}

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Status: StatusError,
		Error:  ErrorBody{Message: msg, StatusCode: status},
	})
}

// Fail is the exported variant of fail().
//
// External packages (e.g., router setup) should call Fail to return
// consistent error envelopes without directly depending on unexported helpers.
func Fail(c *gin.Context, status int, msg string) { fail(c, status, msg) }

// validationFailure aborts with 400 and the structured issue list.
func validationFailure(c *gin.Context, verr *validation.Error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Status: StatusError,
		Error: ErrorBody{
			Message:         StatusMessage(http.StatusBadRequest),
			StatusCode:      http.StatusBadRequest,
			ValidationError: verr,
		},
	})
}

// success writes a success envelope around data.
func success(c *gin.Context, status int, data any) {
	c.JSON(status, SuccessResponse{Status: StatusSuccess, Data: data})
}
