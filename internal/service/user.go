// Package service provides business logic for the application.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/usercache/usercache/internal/cache"
	"github.com/usercache/usercache/internal/metrics"
	"github.com/usercache/usercache/internal/model"
	"github.com/usercache/usercache/internal/repository"
)

// Service errors.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailExists  = errors.New("email already exists")
)

const (
	// UserKeyPrefix prefixes the decimal user ID in accelerator keys.
	UserKeyPrefix = "user:"

	// DefaultUserTTL is the lifetime of a cached user view.
	DefaultUserTTL = 300 * time.Second
)

// UserStore is the durable source of truth for users.
type UserStore interface {
	CreateUser(ctx context.Context, name, email string, age int) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
	UpdateUser(ctx context.Context, id int64, update model.UserUpdate) (bool, error)
	DeleteUser(ctx context.Context, id int64) (bool, error)
}

// Accelerator is a key/value cache with per-entry expiration.
// Get must return cache.ErrCacheMiss for missing or expired keys.
type Accelerator interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// UserKey returns the accelerator key for a user ID.
func UserKey(id int64) string {
	return UserKeyPrefix + strconv.FormatInt(id, 10)
}

// UserService orchestrates cache-aside access to users. Reads consult the
// accelerator before the store; writes mutate the store and then populate or
// invalidate the accelerator. Accelerator failures never fail a call: the
// store stays authoritative and a stale entry is bounded by the TTL.
type UserService struct {
	store   UserStore
	cache   Accelerator
	ttl     time.Duration
	logger  *slog.Logger
	metrics metrics.Recorder
}

// Option configures a UserService.
type Option func(*UserService)

// WithTTL sets the lifetime of cached user views.
func WithTTL(ttl time.Duration) Option {
	return func(s *UserService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLogger sets the logger used to report accelerator degradation.
func WithLogger(logger *slog.Logger) Option {
	return func(s *UserService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(recorder metrics.Recorder) Option {
	return func(s *UserService) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// NewUserService creates a new UserService.
func NewUserService(store UserStore, accel Accelerator, opts ...Option) *UserService {
	s := &UserService{
		store:   store,
		cache:   accel,
		ttl:     DefaultUserTTL,
		logger:  slog.Default(),
		metrics: metrics.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateUserInput defines input for creating a user.
type CreateUserInput struct {
	Name  string
	Email string
	Age   int
}

// CreateUser persists a user and caches its view.
func (s *UserService) CreateUser(ctx context.Context, input CreateUserInput) (*model.UserView, error) {
	user, err := s.store.CreateUser(ctx, input.Name, input.Email, input.Age)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.metrics.IncUserCreated()

	view := user.View()
	s.cacheView(ctx, user.ID, view)

	return &view, nil
}

// GetUserByID returns the user view, serving from the accelerator when possible.
// Returns ErrUserNotFound if no such user exists; absence is never cached.
func (s *UserService) GetUserByID(ctx context.Context, id int64) (*model.UserView, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveUserLookupDuration(time.Since(start))
	}()

	key := UserKey(id)

	// Step 1: Try cache
	if view, ok := s.cachedView(ctx, key); ok {
		s.metrics.IncUserCacheHit()
		return view, nil
	}
	s.metrics.IncUserCacheMiss()

	// Step 2: DB lookup
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	// Step 3: Backfill cache
	view := user.View()
	s.cacheView(ctx, id, view)

	return &view, nil
}

// GetUserByEmail looks a user up by email. Email lookups always hit the store
// since the accelerator is keyed by ID only.
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*model.UserView, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	view := user.View()
	return &view, nil
}

// GetAllUsers returns every user straight from the store. Lists are not cached.
func (s *UserService) GetAllUsers(ctx context.Context) ([]model.UserView, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	views := make([]model.UserView, 0, len(users))
	for _, u := range users {
		views = append(views, u.View())
	}
	return views, nil
}

// UpdateUser applies a partial update and invalidates the cached view.
// Returns false, and leaves the accelerator untouched, if no such user exists.
func (s *UserService) UpdateUser(ctx context.Context, id int64, update model.UserUpdate) (bool, error) {
	ok, err := s.store.UpdateUser(ctx, id, update)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return false, ErrEmailExists
		}
		return false, fmt.Errorf("failed to update user: %w", err)
	}
	if !ok {
		return false, nil
	}

	s.metrics.IncUserUpdated()
	s.invalidate(ctx, id)

	return true, nil
}

// DeleteUser removes a user and invalidates the cached view.
// Returns false, and leaves the accelerator untouched, if no such user exists.
func (s *UserService) DeleteUser(ctx context.Context, id int64) (bool, error) {
	ok, err := s.store.DeleteUser(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	if !ok {
		return false, nil
	}

	s.metrics.IncUserDeleted()
	s.invalidate(ctx, id)

	return true, nil
}

// cachedView reads and decodes a cached view. Any failure counts as a miss;
// an undecodable entry is evicted so the next read repopulates it.
func (s *UserService) cachedView(ctx context.Context, key string) (*model.UserView, bool) {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.metrics.IncCacheError(metrics.OpGet)
			s.logger.WarnContext(ctx, "cache get failed, falling back to store",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return nil, false
	}

	var view model.UserView
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		s.logger.WarnContext(ctx, "discarding undecodable cache entry",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		if _, err := s.cache.Delete(ctx, key); err != nil {
			s.metrics.IncCacheError(metrics.OpDelete)
		}
		return nil, false
	}

	return &view, true
}

// cacheView stores the view under the user's key. Failures are logged only.
func (s *UserService) cacheView(ctx context.Context, id int64, view model.UserView) {
	key := UserKey(id)

	data, err := json.Marshal(view)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to encode user view",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := s.cache.Set(ctx, key, string(data), s.ttl); err != nil {
		s.metrics.IncCacheError(metrics.OpSet)
		s.logger.WarnContext(ctx, "cache set failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// invalidate removes the user's cached view. Failures are logged only.
func (s *UserService) invalidate(ctx context.Context, id int64) {
	key := UserKey(id)
	if _, err := s.cache.Delete(ctx, key); err != nil {
		s.metrics.IncCacheError(metrics.OpDelete)
		s.logger.WarnContext(ctx, "cache invalidation failed, entry may be stale until TTL",
			slog.String("key", key),
			slog.Duration("ttl", s.ttl),
			slog.String("error", err.Error()),
		)
	}
}
