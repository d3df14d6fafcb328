// Package handlers defines the HTTP-layer status messages and log events
// used across all API endpoints.
//
// This file centralizes the fixed status → message table that every error
// envelope draws from, the fixed client-facing messages, and the stable log
// event tags emitted for each failing stage. Clients branch on statusCode;
// operators search logs (and api_errors_total) by event.
//
// Example response:
//
//	{
//	  "status": "error",
//	  "error": { "message": "Not Found", "statusCode": 404 }
//	}
package handlers

import "net/http"

// statusMessages is the fixed status → message table.
var statusMessages = map[int]string{
	http.StatusOK:                  "OK",
	http.StatusCreated:             "Created",
	http.StatusBadRequest:          "Bad Request",
	http.StatusNotFound:            "Not Found",
	http.StatusMethodNotAllowed:    "Method Not Allowed",
	http.StatusConflict:            "Conflict",
	http.StatusTooManyRequests:     "Too Many Requests",
	http.StatusInternalServerError: "Internal Server Error",
}

// StatusMessage returns the message for status, falling back to the standard
// status text for codes outside the table.
func StatusMessage(status int) string {
	if m, ok := statusMessages[status]; ok {
		return m
	}
	return http.StatusText(status)
}

// MsgUserConflict is returned when a user with the same email already exists.
const MsgUserConflict = "Conflict. The user could not be created. User with these details already exists"

// Log events.
const (
	EventValidation       = "api_endpoint_validation_error"
	EventHashPassword     = "hash_user_password_error"
	EventDuplicateUser    = "duplicate_user_create_error"
	EventCreateUserDB     = "create_user_db_error"
	EventGetUserDB        = "get_user_db_error"
	EventUserNotFound     = "user_not_found_error"
	EventUserFound        = "user_found"
	EventGetUserSuccess   = "get_one_user_success"
	EventCreateUserOK     = "create_user_success"
	EventInternal         = "internal_error"
	EventRouteNotFound    = "route_not_found"
	EventMethodNotAllowed = "method_not_allowed"
	EventIdemStore        = "idempotency_store_error"
)
