package models

import "github.com/google/uuid"

// Compilation is an admin-curated set of events, optionally pinned to the front page.
type Compilation struct {
	ID       uuid.UUID   `json:"id"`
	Title    string      `json:"title"`
	Pinned   bool        `json:"pinned"`
	EventIDs []uuid.UUID `json:"event_ids"`
}
