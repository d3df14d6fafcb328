package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-user-api/internal/domain"
	"github.com/tbourn/go-user-api/internal/repo"
	"github.com/tbourn/go-user-api/internal/utils"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:usersvc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// repoShim proxies the repo package, like the router does.
type repoShim struct{}

func (repoShim) CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) (*domain.User, error) {
	return repo.CreateUser(ctx, db, u)
}

func (repoShim) GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return repo.GetUser(ctx, db, id)
}

// funcRepo lets a test replace single repository calls.
type funcRepo struct {
	create func(ctx context.Context, db *gorm.DB, u *domain.User) (*domain.User, error)
	get    func(ctx context.Context, db *gorm.DB, id string) (*domain.User, error)
}

func (r funcRepo) CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) (*domain.User, error) {
	return r.create(ctx, db, u)
}

func (r funcRepo) GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return r.get(ctx, db, id)
}

type stubHasher struct {
	out string
	err error
}

func (h stubHasher) Hash(string) (string, error) { return h.out, h.err }

type panicHasher struct{}

func (panicHasher) Hash(string) (string, error) { panic("boom") }

func input() CreateUserInput {
	return CreateUserInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Password:  "Password123",
		Type:      domain.UserTypeTeacher,
	}
}

func newSvc(t *testing.T) *UserService {
	t.Helper()
	// bcrypt.MinCost keeps the tests fast.
	return NewUserService(newTestDB(t), repoShim{}, 4)
}

func TestUser_Create_And_Get(t *testing.T) {
	svc := newSvc(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, input())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := uuid.Parse(u.ID); err != nil {
		t.Fatalf("expected uuid id, got %q", u.ID)
	}
	if u.Password == "Password123" || !strings.HasPrefix(u.Password, "$2") {
		t.Fatalf("password not hashed: %q", u.Password)
	}
	if !matches(u.Password, "Password123") {
		t.Fatalf("stored hash does not match password")
	}

	got, err := svc.Get(ctx, u.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Email != "ada@example.com" || got.Type != domain.UserTypeTeacher {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestUser_Create_Duplicate_ReturnsErrUserExists(t *testing.T) {
	svc := newSvc(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, input()); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	_, err := svc.Create(ctx, input())
	if !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	// The lower(email) index catches a case variant that skipped normalization.
	in := input()
	in.Email = "ADA@example.com"
	if _, err := svc.Create(ctx, in); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists for case variant, got %v", err)
	}
}

func TestUser_Create_HashFailure(t *testing.T) {
	svc := newSvc(t)
	hashErr := errors.New("hash failed")
	svc.Hasher = stubHasher{err: hashErr}

	_, err := svc.Create(context.Background(), input())
	stage, ok := StageOf(err)
	if !ok || stage != StageHashPassword {
		t.Fatalf("expected hash stage error, got %v", err)
	}
	if !errors.Is(err, hashErr) {
		t.Fatalf("original error lost: %v", err)
	}
}

func TestUser_Create_HashPanic_IsCaptured(t *testing.T) {
	svc := newSvc(t)
	svc.Hasher = panicHasher{}

	_, err := svc.Create(context.Background(), input())
	var pe *utils.PanicError
	if !errors.As(err, &pe) || pe.Value != "boom" {
		t.Fatalf("expected captured panic, got %v", err)
	}
	if stage, _ := StageOf(err); stage != StageHashPassword {
		t.Fatalf("stage = %q", stage)
	}
}

func TestUser_Create_DBFailure_NotConflict(t *testing.T) {
	dbErr := errors.New("disk I/O error")
	svc := newSvc(t)
	svc.Repo = funcRepo{
		create: func(context.Context, *gorm.DB, *domain.User) (*domain.User, error) { return nil, dbErr },
	}

	_, err := svc.Create(context.Background(), input())
	if errors.Is(err, ErrUserExists) {
		t.Fatalf("unexpected conflict classification")
	}
	if stage, _ := StageOf(err); stage != StageCreateUser {
		t.Fatalf("expected create stage, got %v", err)
	}
	if !errors.Is(err, dbErr) {
		t.Fatalf("original error lost: %v", err)
	}
}

func TestUser_Create_UsesSuppliedConflictPredicate(t *testing.T) {
	sentinel := errors.New("driver code 2067")
	svc := newSvc(t)
	svc.Repo = funcRepo{
		create: func(context.Context, *gorm.DB, *domain.User) (*domain.User, error) { return nil, sentinel },
	}
	var seen error
	svc.IsConflict = func(err error) bool { seen = err; return errors.Is(err, sentinel) }

	if _, err := svc.Create(context.Background(), input()); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	if seen != sentinel {
		t.Fatalf("predicate saw %v; want the original error", seen)
	}
}

func TestUser_Get_NotFound(t *testing.T) {
	svc := newSvc(t)
	_, err := svc.Get(context.Background(), uuid.NewString())
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUser_Get_NilRowIsNotFound(t *testing.T) {
	svc := newSvc(t)
	svc.Repo = funcRepo{
		get: func(context.Context, *gorm.DB, string) (*domain.User, error) { return nil, nil },
	}
	if _, err := svc.Get(context.Background(), "x"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUser_Get_DBFailure(t *testing.T) {
	dbErr := errors.New("database is locked")
	svc := newSvc(t)
	svc.Repo = funcRepo{
		get: func(context.Context, *gorm.DB, string) (*domain.User, error) { return nil, dbErr },
	}
	_, err := svc.Get(context.Background(), "x")
	if stage, _ := StageOf(err); stage != StageGetUser || !errors.Is(err, dbErr) {
		t.Fatalf("expected get stage error wrapping dbErr, got %v", err)
	}
	if errors.Is(err, ErrUserNotFound) {
		t.Fatalf("infrastructure failure must not look like not found")
	}
}

const scope = "POST /api/v1/users"

func key(k string) IdempotencyKey { return IdempotencyKey{Scope: scope, Key: k} }

func TestUser_CreateIdempotent_ReplaysFirstResult(t *testing.T) {
	svc := newSvc(t)
	ctx := context.Background()

	first, err := svc.CreateIdempotent(ctx, key("key-1"), input())
	if err != nil || first.Replayed || first.RecordErr != nil {
		t.Fatalf("first call: %+v err=%v", first, err)
	}

	second, err := svc.CreateIdempotent(ctx, key("key-1"), input())
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !second.Replayed || second.User.ID != first.User.ID {
		t.Fatalf("expected replay of %s, got %+v", first.User.ID, second)
	}

	// Same key on another scope is a fresh request (and here a conflict).
	other := IdempotencyKey{Scope: "POST /other", Key: "key-1"}
	if _, err := svc.CreateIdempotent(ctx, other, input()); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists on other scope, got %v", err)
	}
}

func TestUser_CreateIdempotent_UsesCheckedResult(t *testing.T) {
	svc := newSvc(t)
	ctx := context.Background()

	first, err := svc.CreateIdempotent(ctx, key("k"), input())
	if err != nil {
		t.Fatalf("first call: %v", err)
	}

	// A caller that already found the record is answered from it.
	k := key("k")
	k.Checked, k.ResourceID = true, first.User.ID
	res, err := svc.CreateIdempotent(ctx, k, input())
	if err != nil || !res.Replayed || res.User.ID != first.User.ID {
		t.Fatalf("checked hit: %+v err=%v", res, err)
	}

	// A checked miss is trusted and not looked up again, so the create runs.
	k.ResourceID = ""
	if _, err := svc.CreateIdempotent(ctx, k, input()); !errors.Is(err, ErrUserExists) {
		t.Fatalf("checked miss should create, got %v", err)
	}
}

func TestUser_StoredResource(t *testing.T) {
	svc := newSvc(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if id, err := svc.StoredResource(ctx, scope, "none", now); err != nil || id != "" {
		t.Fatalf("miss: id=%q err=%v", id, err)
	}
	if _, err := repo.CreateIdempotency(ctx, svc.DB, scope, "k", "user-1", 201, time.Hour); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if id, err := svc.StoredResource(ctx, scope, "k", now); err != nil || id != "user-1" {
		t.Fatalf("hit: id=%q err=%v", id, err)
	}
	if id, err := svc.StoredResource(ctx, scope, "k", now.Add(2*time.Hour)); err != nil || id != "" {
		t.Fatalf("expired: id=%q err=%v", id, err)
	}

	sqlDB, _ := svc.DB.DB()
	_ = sqlDB.Close()
	if _, err := svc.StoredResource(ctx, scope, "k", now); err == nil {
		t.Fatalf("expected error from closed db")
	}
}

func TestUser_CreateIdempotent_BlankKeyIsPlainCreate(t *testing.T) {
	svc := newSvc(t)
	ctx := context.Background()

	if res, err := svc.CreateIdempotent(ctx, key("  "), input()); err != nil || res.Replayed || res.User == nil {
		t.Fatalf("blank key: %+v err=%v", res, err)
	}
	var n int64
	svc.DB.Model(&domain.Idempotency{}).Count(&n)
	if n != 0 {
		t.Fatalf("blank key must not be recorded, found %d rows", n)
	}
}

func TestUser_CreateIdempotent_ExpiredKeyCreatesAgain(t *testing.T) {
	svc := newSvc(t)
	ctx := context.Background()

	now := time.Now().UTC()
	old := &domain.Idempotency{
		ID: "old", Scope: scope, Key: "k", ResourceID: "gone", Status: 201,
		CreatedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-24 * time.Hour),
	}
	if err := svc.DB.Create(old).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := svc.CreateIdempotent(ctx, key("k"), input())
	if err != nil || res.Replayed || res.User == nil || res.RecordErr != nil {
		t.Fatalf("expected fresh create, got %+v err=%v", res, err)
	}
}

func TestUser_CreateIdempotent_StaleRecordCreatesAgain(t *testing.T) {
	svc := newSvc(t)
	ctx := context.Background()

	if _, err := repo.CreateIdempotency(ctx, svc.DB, scope, "k", uuid.NewString(), 201, time.Hour); err != nil {
		t.Fatalf("seed: %v", err)
	}
	res, err := svc.CreateIdempotent(ctx, key("k"), input())
	if err != nil || res.Replayed || res.User == nil {
		t.Fatalf("expected fresh create, got %+v err=%v", res, err)
	}
	// The live record still points at the missing user, so recording fails.
	if stage, _ := StageOf(res.RecordErr); stage != StageStoreIdempotency || !errors.Is(res.RecordErr, repo.ErrDuplicate) {
		t.Fatalf("expected store stage error wrapping ErrDuplicate, got %v", res.RecordErr)
	}
}

func TestUser_CreateIdempotent_RecordFailureKeepsUser(t *testing.T) {
	svc := newSvc(t)
	if err := svc.DB.Migrator().DropTable(&domain.Idempotency{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}
	res, err := svc.CreateIdempotent(context.Background(), key("k"), input())
	if err != nil || res.User == nil || res.Replayed {
		t.Fatalf("expected created user, got %+v err=%v", res, err)
	}
	if stage, ok := StageOf(res.RecordErr); !ok || stage != StageStoreIdempotency {
		t.Fatalf("expected store stage error, got %v", res.RecordErr)
	}
}

func TestUser_CreateIdempotent_PropagatesErrors(t *testing.T) {
	svc := newSvc(t)
	svc.Hasher = stubHasher{err: errors.New("nope")}
	_, err := svc.CreateIdempotent(context.Background(), key("k"), input())
	if stage, _ := StageOf(err); stage != StageHashPassword {
		t.Fatalf("expected hash stage error, got %v", err)
	}
}
