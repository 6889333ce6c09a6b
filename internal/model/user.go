// Package model defines domain entities for the application.
package model

import "time"

// User is the canonical user record owned by the durable store.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Age       int       `json:"age"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// View projects the user onto its timestamp-free transfer shape.
func (u *User) View() UserView {
	id := u.ID
	return UserView{
		ID:    &id,
		Name:  u.Name,
		Email: u.Email,
		Age:   u.Age,
	}
}

// UserView is the only user shape placed in the cache or returned to clients.
// ID is nil for entities that have not been created yet.
type UserView struct {
	ID    *int64 `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Age   int    `json:"age"`
}

// UserUpdate describes a partial update. A nil field is left untouched;
// a non-nil field is written, including the zero value.
type UserUpdate struct {
	Name  *string
	Email *string
	Age   *int
}

// IsEmpty reports whether no field is present.
func (u UserUpdate) IsEmpty() bool {
	return u.Name == nil && u.Email == nil && u.Age == nil
}
