// Package docs holds the OpenAPI document served by gin-swagger.
// Regenerate with `swag init -g cmd/server/main.go -o docs`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/users": {
            "post": {
                "description": "Validates and normalizes the payload, hashes the password and stores the user. The password is never returned. Sending the same Idempotency-Key again returns the first result with Idempotency-Replayed: true.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Create a user",
                "operationId": "createUser",
                "parameters": [
                    {
                        "type": "string",
                        "example": "create-ada-1",
                        "description": "Key for safe retries",
                        "name": "Idempotency-Key",
                        "in": "header"
                    },
                    {
                        "description": "Create user payload",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/validation.CreateUserRequest"}
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {"$ref": "#/definitions/handlers.UserResponse"},
                        "headers": {
                            "Idempotency-Replayed": {
                                "type": "string",
                                "description": "true when served from a previous request"
                            }
                        }
                    },
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "User already exists", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/users/{id}": {
            "get": {
                "description": "Returns the public fields of one user.",
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Get a user by id",
                "operationId": "getUser",
                "parameters": [
                    {
                        "type": "string",
                        "example": "0b5c1f3a-6a0e-4a5d-9a57-3f7e0e9c1a11",
                        "description": "User ID (UUID)",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.UserResponse"}},
                    "400": {"description": "Invalid id", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "User not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.User": {
            "type": "object",
            "properties": {
                "createdAt": {"type": "string"},
                "email": {"type": "string", "example": "johndoe@example.com"},
                "firstName": {"type": "string", "example": "John"},
                "id": {"type": "string", "example": "141add05-4415-4938-b5a1-17e0d3171aff"},
                "lastName": {"type": "string", "example": "Doe"},
                "type": {"type": "string", "example": "student"},
                "updatedAt": {"type": "string"}
            }
        },
        "handlers.ErrorBody": {
            "type": "object",
            "properties": {
                "message": {"type": "string", "example": "Not Found"},
                "statusCode": {"type": "integer", "example": 404},
                "validationError": {"$ref": "#/definitions/validation.Error"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"$ref": "#/definitions/handlers.ErrorBody"},
                "status": {"type": "string", "example": "error"}
            }
        },
        "handlers.UserResponse": {
            "type": "object",
            "properties": {
                "data": {"$ref": "#/definitions/domain.User"},
                "status": {"type": "string", "example": "success"}
            }
        },
        "validation.CreateUserRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string", "example": "ada@example.com"},
                "firstName": {"type": "string", "example": "Ada"},
                "lastName": {"type": "string", "example": "Lovelace"},
                "password": {"type": "string", "example": "Password123"},
                "type": {
                    "type": "string",
                    "enum": ["student", "teacher", "parent", "private_tutor"],
                    "example": "teacher"
                }
            }
        },
        "validation.Error": {
            "type": "object",
            "properties": {
                "issues": {"type": "array", "items": {"$ref": "#/definitions/validation.Issue"}},
                "name": {"type": "string", "example": "ValidationError"}
            }
        },
        "validation.Issue": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "invalid_string"},
                "message": {"type": "string", "example": "Invalid email"},
                "path": {"type": "array", "items": {}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "User API",
	Description:      "Create and fetch user accounts. Every response uses the {status, data | error} envelope.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
