// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"errors"
	"strings"

	"github.com/usercache/usercache/internal/model"
)

// CreateUserRequest represents the request body for creating a user.
// All fields are required; pointers distinguish missing from zero values.
type CreateUserRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Age   *int    `json:"age"`
}

// Validate reports the required fields missing from the request.
func (r CreateUserRequest) Validate() error {
	var missing []string
	if r.Name == nil {
		missing = append(missing, "name")
	}
	if r.Email == nil {
		missing = append(missing, "email")
	}
	if r.Age == nil {
		missing = append(missing, "age")
	}
	if len(missing) > 0 {
		return errors.New("missing required fields: " + strings.Join(missing, ", "))
	}
	return nil
}

// UpdateUserRequest represents the request body for a partial user update.
// Omitted or null fields are left unchanged.
type UpdateUserRequest struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
	Age   *int    `json:"age,omitempty"`
}

// ToUpdate converts the request into the store's update descriptor.
func (r UpdateUserRequest) ToUpdate() model.UserUpdate {
	return model.UserUpdate{
		Name:  r.Name,
		Email: r.Email,
		Age:   r.Age,
	}
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is the body of successful update and delete responses.
type MessageResponse struct {
	Message string `json:"message"`
}
