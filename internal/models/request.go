package models

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the status of a participation request.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "PENDING"
	RequestStatusConfirmed RequestStatus = "CONFIRMED"
	RequestStatusRejected  RequestStatus = "REJECTED"
	RequestStatusCanceled  RequestStatus = "CANCELED"
)

// ParticipationRequest is a user's claim on one slot of an event.
type ParticipationRequest struct {
	ID          uuid.UUID     `json:"id"`
	EventID     uuid.UUID     `json:"event_id"`
	RequesterID uuid.UUID     `json:"requester_id"`
	Created     time.Time     `json:"created"`
	Status      RequestStatus `json:"status"`
}
