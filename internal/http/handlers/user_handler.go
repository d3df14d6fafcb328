// User HTTP handlers.
//
// This file exposes REST endpoints for user resources:
//   - POST   /users        (create, honors Idempotency-Key)
//   - GET    /users/{id}   (fetch by id)
//
// Handlers are transport-thin: they validate input, call the user service,
// and classify its result into exactly one status code and envelope.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-user-api/internal/domain"
	"github.com/tbourn/go-user-api/internal/http/middleware"
	"github.com/tbourn/go-user-api/internal/services"
	"github.com/tbourn/go-user-api/internal/validation"
)

//
// Service contracts (context-aware)
//

// UserService defines user account operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type UserService interface {
	// CreateIdempotent stores a new user. When the key has a live record the
	// earlier user is returned with Replayed set.
	CreateIdempotent(ctx context.Context, k services.IdempotencyKey, in services.CreateUserInput) (services.CreateResult, error)
	// Get fetches a user by id.
	Get(ctx context.Context, id string) (*domain.User, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints of the API.
type Handlers struct {
	userSvc UserService
	appName string
}

// New constructs and returns a Handlers instance bound to the given service.
// appName is echoed by the index route.
func New(userSvc UserService, appName string) *Handlers {
	return &Handlers{userSvc: userSvc, appName: appName}
}

//
// Classification helpers
//

// stageEvents maps a failing service stage to its log event.
var stageEvents = map[services.Stage]string{
	services.StageHashPassword: EventHashPassword,
	services.StageCreateUser:   EventCreateUserDB,
	services.StageGetUser:      EventGetUserDB,
}

// invalid logs a validation failure and answers 400.
func invalid(c *gin.Context, verr *validation.Error) {
	middleware.LoggerFrom(c).Warn().
		Str("event", EventValidation).
		Str("endpoint", c.Request.URL.Path).
		Interface("issues", verr.Issues).
		Msg("request validation failed")
	middleware.CountAPIError(EventValidation)
	validationFailure(c, verr)
}

// internal logs an unexpected failure under its stage event and answers 500
// with the generic envelope. err never reaches the client.
func internal(c *gin.Context, err error) {
	ev := EventInternal
	if stage, ok := services.StageOf(err); ok {
		if e, ok := stageEvents[stage]; ok {
			ev = e
		}
	}
	middleware.LoggerFrom(c).Error().
		Err(err).
		Str("event", ev).
		Msg("operation failed")
	middleware.CountAPIError(ev)
	fail(c, http.StatusInternalServerError, "")
}

//
// Handlers
//

// CreateUser godoc
// @ID          createUser
// @Summary     Create a user
// @Description Validates and normalizes the payload, hashes the password and stores the user. The password is never returned. Sending the same Idempotency-Key again returns the first result with Idempotency-Replayed: true.
// @Tags        Users
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false  "Key for safe retries"  example(create-ada-1)
// @Param       body             body    validation.CreateUserRequest  true  "Create user payload"
//
// @Success     201  {object}  handlers.UserResponse
// @Header      201  {string}  Idempotency-Replayed  "true when served from a previous request"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error"
// @Failure     409  {object}  handlers.ErrorResponse  "User already exists"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users [post]
func (h *Handlers) CreateUser(c *gin.Context) {
	req, verr := validation.DecodeCreateUser(c.Request.Body)
	if verr != nil {
		invalid(c, verr)
		return
	}

	in := services.CreateUserInput{
		FirstName: *req.FirstName,
		LastName:  *req.LastName,
		Email:     *req.Email,
		Password:  *req.Password,
		Type:      domain.UserType(*req.Type),
	}
	key, _ := middleware.GetIdempotencyKey(c)
	rid, checked := middleware.StoredResult(c)

	res, err := h.userSvc.CreateIdempotent(c.Request.Context(), services.IdempotencyKey{
		Scope:      middleware.IdempotencyScope(c),
		Key:        key,
		Checked:    checked,
		ResourceID: rid,
	}, in)
	if err != nil {
		if errors.Is(err, services.ErrUserExists) {
			// Never log the password.
			middleware.LoggerFrom(c).Warn().
				Str("event", EventDuplicateUser).
				Dict("userToInsert", zerolog.Dict().
					Str("firstName", in.FirstName).
					Str("lastName", in.LastName).
					Str("email", in.Email).
					Str("type", string(in.Type))).
				Msg("user already exists")
			middleware.CountAPIError(EventDuplicateUser)
			fail(c, http.StatusConflict, MsgUserConflict)
			return
		}
		internal(c, err)
		return
	}

	u := res.User
	if res.RecordErr != nil {
		middleware.LoggerFrom(c).Warn().Err(res.RecordErr).
			Str("event", EventIdemStore).
			Str("user_id", u.ID).
			Msg("idempotency key not recorded")
		middleware.CountAPIError(EventIdemStore)
	}
	if res.Replayed {
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
	}
	middleware.LoggerFrom(c).Info().
		Str("event", EventCreateUserOK).
		Str("user_id", u.ID).
		Bool("replayed", res.Replayed).
		Msg("user created")
	success(c, http.StatusCreated, u)
}

// GetUser godoc
// @ID          getUser
// @Summary     Get a user by id
// @Description Returns the public fields of one user.
// @Tags        Users
// @Produce     json
//
// @Param       id  path  string  true  "User ID (UUID)"  example(0b5c1f3a-6a0e-4a5d-9a57-3f7e0e9c1a11)
//
// @Success     200  {object}  handlers.UserResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid id"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id} [get]
func (h *Handlers) GetUser(c *gin.Context) {
	id := c.Param("id")
	if verr := validation.ValidateID(id); verr != nil {
		invalid(c, verr)
		return
	}

	lg := middleware.LoggerFrom(c)
	u, err := h.userSvc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			lg.Info().Str("event", EventUserNotFound).Str("idToFind", id).Msg("user not found")
			fail(c, http.StatusNotFound, "")
			return
		}
		internal(c, err)
		return
	}

	lg.Debug().Str("event", EventUserFound).Interface("user", u).Msg("user found")
	lg.Info().Str("event", EventGetUserSuccess).Msg("user fetched")
	success(c, http.StatusOK, u)
}
