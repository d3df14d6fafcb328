package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-user-api/internal/domain"
	"github.com/tbourn/go-user-api/internal/http/middleware"
	"github.com/tbourn/go-user-api/internal/repo"
	"github.com/tbourn/go-user-api/internal/services"
	"github.com/tbourn/go-user-api/internal/validation"
)

// ---------- test DB + repo shim ----------

func newUserDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Unique DSN per call to avoid cross-test contamination
	dsn := fmt.Sprintf("file:user_handlers_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Minimal shim implementing services.UserRepo using repo package (like router.go)
type testUserRepo struct{}

func (testUserRepo) CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) (*domain.User, error) {
	return repo.CreateUser(ctx, db, u)
}

func (testUserRepo) GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return repo.GetUser(ctx, db, id)
}

type failingRepo struct{ err error }

func (r failingRepo) CreateUser(context.Context, *gorm.DB, *domain.User) (*domain.User, error) {
	return nil, r.err
}

func (r failingRepo) GetUser(context.Context, *gorm.DB, string) (*domain.User, error) {
	return nil, r.err
}

type failingHasher struct{}

func (failingHasher) Hash(string) (string, error) { return "", errors.New("bcrypt exploded: secret detail") }

func newService(t *testing.T) *services.UserService {
	t.Helper()
	return services.NewUserService(newUserDB(t), testUserRepo{}, 4)
}

// ---------- router + helpers ----------

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

func newRouter(svc UserService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.ContextLogger())
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	r.NoRoute(NotFound)

	h := New(svc, "Test")
	r.GET("/", h.Index)
	r.POST("/users", h.CreateUser)
	r.GET("/users/:id", h.GetUser)
	return r
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *struct {
		Message         string            `json:"message"`
		StatusCode      int               `json:"statusCode"`
		ValidationError *validation.Error `json:"validationError"`
	} `json:"error"`
}

func do(t *testing.T, r http.Handler, method, path, body string, hdr ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rd *strings.Reader
	if body != "" {
		rd = strings.NewReader(body)
	} else {
		rd = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid JSON (%d): %v\n%s", w.Code, err, w.Body.String())
	}
	return w, env
}

func dataMap(t *testing.T, env envelope) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(env.Data, &m); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	return m
}

const validBody = `{"firstName":"Testing","lastName":"Test","email":"testingemail@example.com","password":"Password123","type":"student"}`

// ---------- tests ----------

func TestCreateUser_Success_NoPasswordInData(t *testing.T) {
	r := newRouter(newService(t))

	w, env := do(t, r, http.MethodPost, "/users", validBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if env.Status != StatusSuccess || env.Error != nil {
		t.Fatalf("unexpected envelope: %s", w.Body.String())
	}
	data := dataMap(t, env)
	if id, _ := data["id"].(string); id == "" {
		t.Fatalf("expected non-empty id, got %v", data["id"])
	}
	if _, has := data["password"]; has {
		t.Fatalf("password must not be returned: %s", w.Body.String())
	}
	if data["type"] != "student" || data["createdAt"] == nil {
		t.Fatalf("unexpected data: %v", data)
	}
}

func TestCreateUser_NormalizesAndGetRoundTrips(t *testing.T) {
	r := newRouter(newService(t))

	body := `{"firstName":"  Ada ","lastName":" Lovelace","email":"  ADA@Example.COM ","password":"Password123","type":"teacher"}`
	w, env := do(t, r, http.MethodPost, "/users", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	created := dataMap(t, env)
	if created["firstName"] != "Ada" || created["lastName"] != "Lovelace" || created["email"] != "ada@example.com" {
		t.Fatalf("create not normalized: %v", created)
	}

	w, env = do(t, r, http.MethodGet, "/users/"+created["id"].(string), "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	got := dataMap(t, env)
	for _, k := range []string{"id", "firstName", "lastName", "email", "type"} {
		if got[k] != created[k] {
			t.Fatalf("field %s: fetched %v, created %v", k, got[k], created[k])
		}
	}
	if _, has := got["password"]; has {
		t.Fatalf("password must not be returned on fetch")
	}
}

func TestCreateUser_Duplicate_409(t *testing.T) {
	buf := captureLogs(t)
	r := newRouter(newService(t))

	if w, _ := do(t, r, http.MethodPost, "/users", validBody); w.Code != http.StatusCreated {
		t.Fatalf("first create: %d", w.Code)
	}
	// Same email in other case and with padding still collides.
	dup := strings.Replace(validBody, "testingemail@example.com", " TestingEmail@example.com", 1)
	w, env := do(t, r, http.MethodPost, "/users", dup)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	if env.Error == nil || env.Error.StatusCode != 409 || env.Error.Message != MsgUserConflict {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if !strings.Contains(env.Error.Message, "already exists") {
		t.Fatalf("message should mention already exists")
	}
	logs := buf.String()
	if !strings.Contains(logs, `"event":"duplicate_user_create_error"`) || !strings.Contains(logs, `"level":"warn"`) {
		t.Fatalf("expected duplicate warn log, got: %s", logs)
	}
	if strings.Contains(logs, "Password123") {
		t.Fatalf("password leaked to logs")
	}
}

func TestCreateUser_Validation_FourIssuesInOrder(t *testing.T) {
	buf := captureLogs(t)
	r := newRouter(newService(t))

	body := fmt.Sprintf(`{"lastName":%q,"email":"not an email address","password":"Password123","type":"something else"}`, strings.Repeat("x", 501))
	w, env := do(t, r, http.MethodPost, "/users", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if env.Status != StatusError || env.Error == nil || env.Error.StatusCode != 400 || env.Error.ValidationError == nil {
		t.Fatalf("unexpected envelope: %s", w.Body.String())
	}
	issues := env.Error.ValidationError.Issues
	if len(issues) != 4 {
		t.Fatalf("expected 4 issues, got %d: %s", len(issues), w.Body.String())
	}
	want := []struct{ path, code string }{
		{"firstName", "invalid_type"},
		{"lastName", "too_big"},
		{"email", "invalid_string"},
		{"type", "invalid_enum_value"},
	}
	for i, is := range issues {
		if len(is.Path) != 1 || is.Path[0] != want[i].path || is.Code != want[i].code {
			t.Fatalf("issue %d = %+v; want %+v", i, is, want[i])
		}
		if is.Message == "" {
			t.Fatalf("issue %d has no message", i)
		}
	}
	if env.Error.ValidationError.Name != "ValidationError" {
		t.Fatalf("name = %q", env.Error.ValidationError.Name)
	}
	if !strings.Contains(buf.String(), `"event":"api_endpoint_validation_error"`) {
		t.Fatalf("expected validation log, got: %s", buf.String())
	}
}

func TestCreateUser_EveryTypeMismatchIsInvalidType(t *testing.T) {
	r := newRouter(newService(t))

	body := `{"firstName":1,"lastName":2,"email":true,"password":"short","type":"teacher"}`
	w, env := do(t, r, http.MethodPost, "/users", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	issues := env.Error.ValidationError.Issues
	want := []struct{ path, code, msg string }{
		{"firstName", "invalid_type", "Expected string, received number"},
		{"lastName", "invalid_type", "Expected string, received number"},
		{"email", "invalid_type", "Expected string, received boolean"},
		{"password", "too_small", validation.MsgPasswordTooShort},
	}
	if len(issues) != len(want) {
		t.Fatalf("expected %d issues, got %s", len(want), w.Body.String())
	}
	for i, is := range issues {
		if len(is.Path) != 1 || is.Path[0] != want[i].path || is.Code != want[i].code || is.Message != want[i].msg {
			t.Fatalf("issue %d = %+v; want %+v", i, is, want[i])
		}
	}
}

func TestCreateUser_PasswordMessages(t *testing.T) {
	r := newRouter(newService(t))
	cases := map[string]string{
		"123": validation.MsgPasswordTooShort,
		"Loremipsumdolorsitamet,consecteturadipiscingelit,seddoeiusmod23dd": validation.MsgPasswordTooLong,
		"PasswordwithoutNumber": validation.MsgPasswordWeak,
	}
	for pw, msg := range cases {
		body := fmt.Sprintf(`{"firstName":"Some","lastName":"Tester","email":"tester@example.com ","password":%q,"type":"student"}`, pw)
		w, env := do(t, r, http.MethodPost, "/users", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("password %q: expected 400, got %d", pw, w.Code)
		}
		if got := env.Error.ValidationError.Issues[0].Message; got != msg {
			t.Fatalf("password %q: message %q; want %q", pw, got, msg)
		}
	}
}

func TestCreateUser_InvalidJSON(t *testing.T) {
	r := newRouter(newService(t))
	for _, body := range []string{"", "{not json"} {
		w, env := do(t, r, http.MethodPost, "/users", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, w.Code)
		}
		issues := env.Error.ValidationError.Issues
		if len(issues) != 1 || issues[0].Code != validation.CodeInvalidJSON {
			t.Fatalf("body %q: unexpected issues %+v", body, issues)
		}
	}
}

func TestCreateUser_HashFailure_500(t *testing.T) {
	buf := captureLogs(t)
	svc := newService(t)
	svc.Hasher = failingHasher{}
	r := newRouter(svc)

	w, env := do(t, r, http.MethodPost, "/users", validBody)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if env.Error == nil || env.Error.Message != "Internal Server Error" || env.Error.ValidationError != nil {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if strings.Contains(w.Body.String(), "bcrypt") || strings.Contains(w.Body.String(), "secret") {
		t.Fatalf("internal detail leaked: %s", w.Body.String())
	}
	if !strings.Contains(buf.String(), `"event":"hash_user_password_error"`) {
		t.Fatalf("expected hash event log, got: %s", buf.String())
	}
}

func TestCreateUser_DBFailure_500(t *testing.T) {
	buf := captureLogs(t)
	svc := newService(t)
	svc.Repo = failingRepo{err: errors.New("SQLITE_IOERR: disk on fire")}
	r := newRouter(svc)

	w, env := do(t, r, http.MethodPost, "/users", validBody)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if env.Error.Message != "Internal Server Error" || strings.Contains(w.Body.String(), "disk") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if !strings.Contains(buf.String(), `"event":"create_user_db_error"`) {
		t.Fatalf("expected create db event log, got: %s", buf.String())
	}
}

func TestCreateUser_IdempotentReplay(t *testing.T) {
	r := newRouter(newService(t))

	w1, env1 := do(t, r, http.MethodPost, "/users", validBody, middleware.HeaderIdempotencyKey, "create-1")
	if w1.Code != http.StatusCreated || w1.Header().Get(middleware.HeaderIdempotencyReplayed) != "" {
		t.Fatalf("first: %d replayed=%q", w1.Code, w1.Header().Get(middleware.HeaderIdempotencyReplayed))
	}
	w2, env2 := do(t, r, http.MethodPost, "/users", validBody, middleware.HeaderIdempotencyKey, "create-1")
	if w2.Code != http.StatusCreated {
		t.Fatalf("replay: expected 201, got %d: %s", w2.Code, w2.Body.String())
	}
	if w2.Header().Get(middleware.HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("expected replay header")
	}
	if dataMap(t, env1)["id"] != dataMap(t, env2)["id"] {
		t.Fatalf("replay returned another user")
	}

	// Without the key the same body conflicts.
	if w3, _ := do(t, r, http.MethodPost, "/users", validBody); w3.Code != http.StatusConflict {
		t.Fatalf("expected 409 without key, got %d", w3.Code)
	}
}

func TestCreateUser_ReplayReadsRecordOnce(t *testing.T) {
	svc := newService(t)
	lookups := 0
	err := svc.DB.Callback().Query().After("gorm:query").Register("test:count_idempotency", func(tx *gorm.DB) {
		if tx.Statement.Table == (domain.Idempotency{}).TableName() {
			lookups++
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.ContextLogger())
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, svc.StoredResource))
	r.POST("/users", New(svc, "Test").CreateUser)

	if w, _ := do(t, r, http.MethodPost, "/users", validBody, middleware.HeaderIdempotencyKey, "once-1"); w.Code != http.StatusCreated {
		t.Fatalf("first: expected 201, got %d", w.Code)
	}
	if lookups != 1 {
		t.Fatalf("fresh keyed create read the record %d times", lookups)
	}

	lookups = 0
	w, _ := do(t, r, http.MethodPost, "/users", validBody, middleware.HeaderIdempotencyKey, "once-1")
	if w.Code != http.StatusCreated || w.Header().Get(middleware.HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("replay: %d replayed=%q", w.Code, w.Header().Get(middleware.HeaderIdempotencyReplayed))
	}
	if lookups != 1 {
		t.Fatalf("replay read the record %d times", lookups)
	}
}

func TestCreateUser_RecordFailureIsLoggedNotFatal(t *testing.T) {
	buf := captureLogs(t)
	svc := newService(t)
	if err := svc.DB.Migrator().DropTable(&domain.Idempotency{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}
	r := newRouter(svc)

	w, env := do(t, r, http.MethodPost, "/users", validBody, middleware.HeaderIdempotencyKey, "lost-1")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if id, _ := dataMap(t, env)["id"].(string); id == "" {
		t.Fatalf("expected created user")
	}
	out := buf.String()
	if !strings.Contains(out, `"event":"idempotency_store_error"`) || !strings.Contains(out, `"level":"warn"`) {
		t.Fatalf("expected warn idempotency_store_error log, got: %s", out)
	}
}

func TestGetUser_InvalidID_400(t *testing.T) {
	r := newRouter(newService(t))

	w, env := do(t, r, http.MethodGet, "/users/123", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	issues := env.Error.ValidationError.Issues
	if len(issues) != 1 || issues[0].Message != validation.MsgInvalidID {
		t.Fatalf("unexpected issues: %+v", issues)
	}
}

func TestGetUser_NotFound_404(t *testing.T) {
	buf := captureLogs(t)
	r := newRouter(newService(t))

	w, env := do(t, r, http.MethodGet, "/users/"+uuid.NewString(), "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if env.Error.Message != "Not Found" || env.Error.StatusCode != 404 {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if !strings.Contains(buf.String(), `"event":"user_not_found_error"`) {
		t.Fatalf("expected not-found log, got: %s", buf.String())
	}
}

func TestGetUser_DBFailure_500(t *testing.T) {
	buf := captureLogs(t)
	svc := newService(t)
	svc.Repo = failingRepo{err: errors.New("database is locked: driver internals")}
	r := newRouter(svc)

	w, env := do(t, r, http.MethodGet, "/users/"+uuid.NewString(), "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if env.Error.Message != "Internal Server Error" || strings.Contains(w.Body.String(), "driver") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if !strings.Contains(buf.String(), `"event":"get_user_db_error"`) {
		t.Fatalf("expected get db event log, got: %s", buf.String())
	}
}

func TestGetUser_SuccessLogs(t *testing.T) {
	buf := captureLogs(t)
	r := newRouter(newService(t))

	_, env := do(t, r, http.MethodPost, "/users", validBody)
	id := dataMap(t, env)["id"].(string)

	if w, _ := do(t, r, http.MethodGet, "/users/"+id, ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	logs := buf.String()
	if !strings.Contains(logs, `"event":"user_found"`) || !strings.Contains(logs, `"event":"get_one_user_success"`) {
		t.Fatalf("expected found/success logs, got: %s", logs)
	}
}

func TestIndex_And_NotFound(t *testing.T) {
	r := newRouter(newService(t))

	w, env := do(t, r, http.MethodGet, "/", "")
	if w.Code != http.StatusOK || env.Status != StatusSuccess {
		t.Fatalf("index: %d %s", w.Code, w.Body.String())
	}
	if dataMap(t, env)["message"] != "Test API" {
		t.Fatalf("index message: %s", w.Body.String())
	}

	w, env = do(t, r, http.MethodGet, "/nope/here", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if env.Error.Message != "Not Found - /nope/here" || env.Error.StatusCode != 404 {
		t.Fatalf("unexpected 404 body: %s", w.Body.String())
	}
}
