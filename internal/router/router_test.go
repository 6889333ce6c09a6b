package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usercache/usercache/internal/cache"
	"github.com/usercache/usercache/internal/metrics"
	"github.com/usercache/usercache/internal/model"
	"github.com/usercache/usercache/internal/repository"
	"github.com/usercache/usercache/internal/service"
)

const baseURL = "http://localhost:8080"

// memStore is an in-memory service.UserStore with the same uniqueness and
// not-found semantics as the PostgreSQL repository.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]model.User
}

func newMemStore() *memStore {
	return &memStore{nextID: 1, users: make(map[int64]model.User)}
}

func (s *memStore) emailTaken(email string, except int64) bool {
	for id, u := range s.users {
		if id != except && u.Email == email {
			return true
		}
	}
	return false
}

func (s *memStore) CreateUser(ctx context.Context, name, email string, age int) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emailTaken(email, 0) {
		return nil, repository.ErrEmailExists
	}
	now := time.Now().UTC()
	u := model.User{ID: s.nextID, Name: name, Email: email, Age: age, CreatedAt: now, UpdatedAt: now}
	s.users[u.ID] = u
	s.nextID++
	return &u, nil
}

func (s *memStore) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

func (s *memStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *memStore) ListUsers(ctx context.Context) ([]*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]*model.User, 0, len(s.users))
	for _, u := range s.users {
		u := u
		users = append(users, &u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *memStore) UpdateUser(ctx context.Context, id int64, update model.UserUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return false, nil
	}
	if update.Email != nil && s.emailTaken(*update.Email, id) {
		return false, repository.ErrEmailExists
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.Email != nil {
		u.Email = *update.Email
	}
	if update.Age != nil {
		u.Age = *update.Age
	}
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return true, nil
}

func (s *memStore) DeleteUser(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return false, nil
	}
	delete(s.users, id)
	return true, nil
}

type testEnv struct {
	handler  http.Handler
	mr       *miniredis.Miniredis
	recorder *metrics.InMemoryRecorder
	spec     routers.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := metrics.NewInMemory()
	svc := service.NewUserService(newMemStore(), c,
		service.WithLogger(logger),
		service.WithMetrics(recorder),
	)

	h := New(Config{IsDevelopment: true, MaxRequestBodySize: 1 << 20}, Deps{
		Users:   svc,
		Cache:   c,
		Metrics: recorder,
		Logger:  logger,
	})

	return &testEnv{handler: h, mr: mr, recorder: recorder, spec: loadSpec(t)}
}

func loadSpec(t *testing.T) routers.Router {
	t.Helper()

	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(filepath.Join("..", "..", "docs", "api", "openapi.yaml"))
	require.NoError(t, err, "failed to load OpenAPI document")
	require.NoError(t, doc.Validate(context.Background()), "OpenAPI document is invalid")

	r, err := gorillamux.NewRouter(doc)
	require.NoError(t, err)
	return r
}

// call serves the request and validates the response against the OpenAPI
// document. validRequest additionally validates the request itself.
func (e *testEnv) call(t *testing.T, method, path, body string, validRequest bool) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, baseURL+path, reqBody)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	route, pathParams, err := e.spec.FindRoute(req)
	require.NoError(t, err, "%s %s is not documented", method, path)

	reqInput := &openapi3filter.RequestValidationInput{
		Request:    req,
		PathParams: pathParams,
		Route:      route,
	}
	if validRequest {
		require.NoError(t, openapi3filter.ValidateRequest(context.Background(), reqInput))
		if body != "" {
			req.Body = io.NopCloser(strings.NewReader(body))
		}
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	respInput := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: reqInput,
		Status:                 rec.Code,
		Header:                 rec.Header(),
		Body:                   io.NopCloser(bytes.NewReader(rec.Body.Bytes())),
		Options:                &openapi3filter.Options{IncludeResponseStatus: true},
	}
	require.NoError(t, openapi3filter.ValidateResponse(context.Background(), respInput),
		"%s %s -> %d %s", method, path, rec.Code, rec.Body.String())

	return rec
}

func TestRouter_Health(t *testing.T) {
	env := newTestEnv(t)

	rec := env.call(t, http.MethodGet, "/health", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestRouter_Readyz(t *testing.T) {
	env := newTestEnv(t)

	rec := env.call(t, http.MethodGet, "/readyz", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"ok"`)

	env.mr.Close()

	rec = env.call(t, http.MethodGet, "/readyz", "", true)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_UserLifecycle(t *testing.T) {
	for _, prefix := range []string{"/users", "/api/users"} {
		t.Run(prefix, func(t *testing.T) {
			env := newTestEnv(t)

			rec := env.call(t, http.MethodPost, prefix, `{"name":"Alice","email":"alice@example.com","age":30}`, true)
			require.Equal(t, http.StatusCreated, rec.Code)
			assert.JSONEq(t, `{"id":1,"name":"Alice","email":"alice@example.com","age":30}`, rec.Body.String())
			assert.True(t, env.mr.Exists("user:1"), "create populates the cache")

			rec = env.call(t, http.MethodGet, prefix+"/1", "", true)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"id":1,"name":"Alice","email":"alice@example.com","age":30}`, rec.Body.String())
			assert.Equal(t, uint64(1), env.recorder.Snapshot().UserCacheHits)

			rec = env.call(t, http.MethodPut, prefix+"/1", `{"age":31}`, true)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"message":"User updated successfully"}`, rec.Body.String())
			assert.False(t, env.mr.Exists("user:1"), "update invalidates the cache")

			rec = env.call(t, http.MethodGet, prefix+"/1", "", true)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"id":1,"name":"Alice","email":"alice@example.com","age":31}`, rec.Body.String())
			assert.True(t, env.mr.Exists("user:1"), "miss backfills the cache")

			rec = env.call(t, http.MethodGet, prefix+"?email=alice@example.com", "", true)
			require.Equal(t, http.StatusOK, rec.Code)
			var found []model.UserView
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &found))
			require.Len(t, found, 1)

			rec = env.call(t, http.MethodGet, prefix, "", true)
			require.Equal(t, http.StatusOK, rec.Code)
			var all []model.UserView
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
			assert.Len(t, all, 1)

			rec = env.call(t, http.MethodDelete, prefix+"/1", "", true)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"message":"User deleted successfully"}`, rec.Body.String())
			assert.False(t, env.mr.Exists("user:1"), "delete invalidates the cache")

			rec = env.call(t, http.MethodGet, prefix+"/1", "", true)
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.JSONEq(t, `{"error":"User not found"}`, rec.Body.String())
		})
	}
}

func TestRouter_ErrorResponses(t *testing.T) {
	env := newTestEnv(t)

	rec := env.call(t, http.MethodPost, "/users", `{"name":"Bob","email":"bob@example.com","age":40}`, true)
	require.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		name         string
		method       string
		path         string
		body         string
		validRequest bool
		wantStatus   int
		wantError    string
	}{
		{"get invalid id", http.MethodGet, "/users/abc", "", true, http.StatusBadRequest, "Invalid user ID"},
		{"get missing user", http.MethodGet, "/users/99", "", true, http.StatusNotFound, "User not found"},
		{"update missing user", http.MethodPut, "/users/99", `{"age":1}`, true, http.StatusNotFound, "User not found"},
		{"delete missing user", http.MethodDelete, "/users/99", "", true, http.StatusNotFound, "User not found"},
		{"delete invalid id", http.MethodDelete, "/users/x", "", true, http.StatusBadRequest, "Invalid user ID"},
		{"duplicate email", http.MethodPost, "/users", `{"name":"Bob2","email":"bob@example.com","age":41}`, true, http.StatusBadRequest, "email already exists"},
		{"missing fields", http.MethodPost, "/users", `{"name":"Carol"}`, false, http.StatusBadRequest, "missing required fields: email, age"},
		{"malformed body", http.MethodPost, "/users", `{"name":`, false, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.call(t, tt.method, tt.path, tt.body, tt.validRequest)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, resp["error"])
			} else {
				assert.NotEmpty(t, resp["error"])
			}
		})
	}
}

func TestRouter_CacheOutageDoesNotFailRequests(t *testing.T) {
	env := newTestEnv(t)

	rec := env.call(t, http.MethodPost, "/users", `{"name":"Dan","email":"dan@example.com","age":22}`, true)
	require.Equal(t, http.StatusCreated, rec.Code)

	env.mr.Close()

	rec = env.call(t, http.MethodGet, "/users/1", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.call(t, http.MethodPut, "/users/1", `{"name":"Daniel"}`, true)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.call(t, http.MethodDelete, "/users/1", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)

	snap := env.recorder.Snapshot()
	assert.Equal(t, uint64(1), snap.CacheGetErrors)
	assert.Equal(t, uint64(1), snap.CacheSetErrors)
	assert.Equal(t, uint64(2), snap.CacheDeleteErrors)
}

func TestRouter_Fallbacks(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"resource not found"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/users/1", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.JSONEq(t, `{"error":"method not allowed"}`, rec.Body.String())
}

func TestRouter_MiddlewareHeaders(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRouter_Metrics(t *testing.T) {
	env := newTestEnv(t)

	env.call(t, http.MethodPost, "/users", `{"name":"Eve","email":"eve@example.com","age":28}`, true)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "usercache_users_created_total 1\n")
}

func TestRouter_CORSWildcard(t *testing.T) {
	h := New(Config{CORSAllowedOrigins: []string{"*"}}, Deps{
		Users:  service.NewUserService(newMemStore(), failingCache{}),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	req := httptest.NewRequest(http.MethodOptions, "/users", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

// failingCache is an accelerator whose every call fails.
type failingCache struct{}

var errCacheDown = errors.New("cache down")

func (failingCache) Get(ctx context.Context, key string) (string, error) { return "", errCacheDown }
func (failingCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return errCacheDown
}
func (failingCache) Delete(ctx context.Context, key string) (bool, error) { return false, errCacheDown }
func (failingCache) Exists(ctx context.Context, key string) (bool, error) { return false, errCacheDown }

func TestRouter_RateLimitUserRoutes(t *testing.T) {
	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })

	h := New(Config{RateLimitEnabled: true, RateLimitRPS: 1, RateLimitBurst: 2}, Deps{
		Users:   service.NewUserService(newMemStore(), c),
		Cache:   c,
		Limiter: c,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	statuses := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users", nil))
		statuses = append(statuses, rec.Code)
	}
	assert.Equal(t, http.StatusOK, statuses[0])
	assert.Equal(t, http.StatusOK, statuses[1])
	assert.Contains(t, statuses[2:], http.StatusTooManyRequests)

	// Probes are never limited.
	for i := 0; i < 4; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
