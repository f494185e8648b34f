package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents user role in the platform.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User represents a platform user.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// UserShort is the public projection of a user embedded in other resources.
type UserShort struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// ToShort converts User to UserShort.
func (u *User) ToShort() UserShort {
	return UserShort{ID: u.ID, Name: u.Name}
}
