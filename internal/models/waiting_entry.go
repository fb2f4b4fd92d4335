package models

import (
	"time"

	"github.com/google/uuid"
)

// WaitingStatus is the admission state of a waiting-room request.
type WaitingStatus string

const (
	WaitingStatusWaiting  WaitingStatus = "waiting"
	WaitingStatusApproved WaitingStatus = "approved"
	WaitingStatusDenied   WaitingStatus = "denied"
)

// WaitingEntry is a join request held for host approval.
type WaitingEntry struct {
	ID          uuid.UUID     `json:"id"`
	MeetingID   uuid.UUID     `json:"meeting_id"`
	Name        string        `json:"name"`
	ConnID      string        `json:"socket_id"`
	Status      WaitingStatus `json:"status"`
	RequestedAt time.Time     `json:"requested_at"`
}
