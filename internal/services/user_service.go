// Package services – UserService
//
// This file implements the UserService, which owns the create and fetch
// use-cases for user accounts. Every call into a collaborator (password
// hasher, repository) runs through utils.Try, so a failing or panicking
// dependency comes back as a value and is classified here instead of
// unwinding into the transport layer.
//
// Service-level errors (ErrUserExists, ErrUserNotFound) are returned for
// predictable cases; unexpected failures are wrapped in *StageError so
// handlers can log them under a stable per-stage event.
package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-user-api/internal/domain"
	"github.com/tbourn/go-user-api/internal/repo"
	"github.com/tbourn/go-user-api/internal/utils"
)

// UserRepo defines the repository contract required by UserService.
type UserRepo interface {
	// CreateUser inserts a new user row.
	CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) (*domain.User, error)
	// GetUser fetches a user by id, returning repo.ErrNotFound when absent.
	GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error)
}

// CreateUserInput carries already validated and normalized user fields.
type CreateUserInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Type      domain.UserType
}

// DefaultIdempotencyTTL is used when UserService.IdempotencyTTL is unset.
const DefaultIdempotencyTTL = 24 * time.Hour

// UserService provides user account operations.
type UserService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the user repository used by this service.
	Repo UserRepo
	// Hasher hashes passwords before they are stored.
	Hasher Hasher
	// IsConflict reports whether an insert error is a uniqueness violation.
	// It is supplied by the persistence layer; nil means repo.IsUniqueViolation.
	IsConflict func(error) bool
	// IdempotencyTTL is how long an Idempotency-Key replay stays available.
	IdempotencyTTL time.Duration
}

// NewUserService constructs a UserService with bcrypt hashing at cost and
// the repository's conflict predicate.
func NewUserService(db *gorm.DB, r UserRepo, cost int) *UserService {
	return &UserService{
		DB:             db,
		Repo:           r,
		Hasher:         BcryptHasher{Cost: cost},
		IsConflict:     repo.IsUniqueViolation,
		IdempotencyTTL: DefaultIdempotencyTTL,
	}
}

func (s *UserService) isConflict(err error) bool {
	if s.IsConflict != nil {
		return s.IsConflict(err)
	}
	return repo.IsUniqueViolation(err)
}

// Create hashes the password and stores a new user.
//
// Errors:
//   - *StageError{StageHashPassword} when hashing fails.
//   - ErrUserExists when the insert hits a uniqueness violation.
//   - *StageError{StageCreateUser} for any other insert failure.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*domain.User, error) {
	hashed := utils.Try(func() (string, error) {
		return s.Hasher.Hash(in.Password)
	})
	if err := hashed.Err(); err != nil {
		return nil, &StageError{Stage: StageHashPassword, Err: err}
	}

	u := &domain.User{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Password:  hashed.Value(),
		Type:      in.Type,
	}
	created := utils.Try(func() (*domain.User, error) {
		return s.Repo.CreateUser(ctx, s.DB, u)
	})
	if err := created.Err(); err != nil {
		// Conflict is checked first, on the same error.
		if s.isConflict(err) {
			return nil, ErrUserExists
		}
		return nil, &StageError{Stage: StageCreateUser, Err: err}
	}
	return created.Value(), nil
}

// IdempotencyKey is a client retry key for one operation.
type IdempotencyKey struct {
	Scope string
	Key   string
	// Checked marks a key the caller already looked up with
	// StoredResource. ResourceID then holds the result, empty on a miss.
	Checked    bool
	ResourceID string
}

// CreateResult is the outcome of CreateIdempotent.
type CreateResult struct {
	User *domain.User
	// Replayed is true when User was created by an earlier request.
	Replayed bool
	// RecordErr is set when the user was created but the key could not be
	// recorded, so a retry will not be replayed.
	RecordErr error
}

// StoredResource returns the id of the resource a live record for
// (scope, key) points at, or "" when there is none.
func (s *UserService) StoredResource(ctx context.Context, scope, key string, now time.Time) (string, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, scope, key, now)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return "", nil
	case err != nil:
		return "", err
	case rec.Expired(now):
		return "", nil
	}
	return rec.ResourceID, nil
}

// CreateIdempotent behaves like Create but honors an Idempotency-Key. When
// the key has a live record, the user created by the first request is
// returned with Replayed set. The record is looked up here only when the
// caller has not already done so; a failed lookup counts as a miss. After a
// fresh create the key is recorded, and a failure to record it is reported
// in RecordErr without failing the request.
func (s *UserService) CreateIdempotent(ctx context.Context, k IdempotencyKey, in CreateUserInput) (CreateResult, error) {
	k.Key = strings.TrimSpace(k.Key)
	if k.Key == "" {
		u, err := s.Create(ctx, in)
		return CreateResult{User: u}, err
	}

	if !k.Checked {
		k.ResourceID, _ = s.StoredResource(ctx, k.Scope, k.Key, time.Now().UTC())
	}
	if k.ResourceID != "" {
		if prev, err := s.Get(ctx, k.ResourceID); err == nil {
			return CreateResult{User: prev, Replayed: true}, nil
		}
		// The stored resource is gone; treat the request as new.
	}

	u, err := s.Create(ctx, in)
	if err != nil {
		return CreateResult{}, err
	}

	ttl := s.IdempotencyTTL
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	res := CreateResult{User: u}
	if _, err := repo.CreateIdempotency(ctx, s.DB, k.Scope, k.Key, u.ID, http.StatusCreated, ttl); err != nil {
		res.RecordErr = &StageError{Stage: StageStoreIdempotency, Err: err}
	}
	return res, nil
}

// Get fetches a user by id.
//
// Errors:
//   - ErrUserNotFound when no row matches.
//   - *StageError{StageGetUser} when the lookup itself fails.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	found := utils.Try(func() (*domain.User, error) {
		return s.Repo.GetUser(ctx, s.DB, id)
	})
	if err := found.Err(); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, &StageError{Stage: StageGetUser, Err: err}
	}
	if found.Value() == nil {
		return nil, ErrUserNotFound
	}
	return found.Value(), nil
}
