package models

import "github.com/google/uuid"

// Category groups events.
type Category struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}
