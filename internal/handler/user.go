package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/usercache/usercache/internal/handler/dto"
	"github.com/usercache/usercache/internal/model"
	"github.com/usercache/usercache/internal/service"
)

// Response messages shared with the API documentation.
const (
	msgInvalidUserID = "Invalid user ID"
	msgUserNotFound  = "User not found"
	msgUserUpdated   = "User updated successfully"
	msgUserDeleted   = "User deleted successfully"
)

// UserService is the user business logic consumed by UserHandler.
type UserService interface {
	CreateUser(ctx context.Context, input service.CreateUserInput) (*model.UserView, error)
	GetUserByID(ctx context.Context, id int64) (*model.UserView, error)
	GetUserByEmail(ctx context.Context, email string) (*model.UserView, error)
	GetAllUsers(ctx context.Context) ([]model.UserView, error)
	UpdateUser(ctx context.Context, id int64, update model.UserUpdate) (bool, error)
	DeleteUser(ctx context.Context, id int64) (bool, error)
}

// UserHandler handles HTTP requests for user operations.
type UserHandler struct {
	svc    UserService
	logger *slog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(svc UserService, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{
		svc:    svc,
		logger: logger,
	}
}

// Routes mounts the user endpoints on r.
func (h *UserHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

// List handles GET /users. An email query parameter narrows the result to
// the matching user, if any.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	if email := r.URL.Query().Get("email"); email != "" {
		h.listByEmail(w, r, email)
		return
	}

	users, err := h.svc.GetAllUsers(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) listByEmail(w http.ResponseWriter, r *http.Request, email string) {
	user, err := h.svc.GetUserByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			writeJSON(w, http.StatusOK, []model.UserView{})
			return
		}
		h.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, []model.UserView{*user})
}

// Get handles GET /users/{id}.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUserID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, msgInvalidUserID)
		return
	}

	user, err := h.svc.GetUserByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, msgUserNotFound)
			return
		}
		h.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Create handles POST /users. Every failure, including a duplicate email,
// is reported as 400.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.svc.CreateUser(r.Context(), service.CreateUserInput{
		Name:  *req.Name,
		Email: *req.Email,
		Age:   *req.Age,
	})
	if err != nil {
		if !errors.Is(err, service.ErrEmailExists) {
			h.logger.ErrorContext(r.Context(), "user_create_failed", "error", err)
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.InfoContext(r.Context(), "user_created", "user_id", *user.ID)

	writeJSON(w, http.StatusCreated, user)
}

// Update handles PUT /users/{id}. Only fields present in the body change.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUserID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, msgInvalidUserID)
		return
	}

	var req dto.UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	updated, err := h.svc.UpdateUser(r.Context(), id, req.ToUpdate())
	if err != nil {
		if !errors.Is(err, service.ErrEmailExists) {
			h.logger.ErrorContext(r.Context(), "user_update_failed", "user_id", id, "error", err)
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !updated {
		writeError(w, http.StatusNotFound, msgUserNotFound)
		return
	}

	h.logger.InfoContext(r.Context(), "user_updated", "user_id", id)

	writeJSON(w, http.StatusOK, dto.MessageResponse{Message: msgUserUpdated})
}

// Delete handles DELETE /users/{id}.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUserID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, msgInvalidUserID)
		return
	}

	deleted, err := h.svc.DeleteUser(r.Context(), id)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, msgUserNotFound)
		return
	}

	h.logger.InfoContext(r.Context(), "user_deleted", "user_id", id)

	writeJSON(w, http.StatusOK, dto.MessageResponse{Message: msgUserDeleted})
}

// internalError logs err and reports it as 500 with its message.
func (h *UserHandler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "internal_error",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	writeError(w, http.StatusInternalServerError, err.Error())
}

// parseUserID reads the {id} path parameter as a decimal integer.
func parseUserID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
