package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultMaxParticipants caps a meeting when the creator does not set a limit.
const DefaultMaxParticipants = 100

// Meeting is the durable record of one room's occupancy period.
// At most one meeting per room id is open (EndedAt nil) at a time.
type Meeting struct {
	ID              uuid.UUID  `json:"id"`
	RoomID          string     `json:"room_id"`
	Title           string     `json:"title"`
	HostName        string     `json:"host_name"`
	HostConnID      string     `json:"host_socket_id,omitempty"`
	HostUserID      *uuid.UUID `json:"host_user_id,omitempty"`
	IsWebinar       bool       `json:"is_webinar"`
	RequireApproval bool       `json:"require_approval"`
	RecordMeeting   bool       `json:"record_meeting"`
	MaxParticipants int        `json:"max_participants"`
	CreatedAt       time.Time  `json:"created_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

// IsOpen reports whether the meeting has not ended.
func (m *Meeting) IsOpen() bool {
	return m.EndedAt == nil
}

// MeetingOptions are the creator-chosen flags applied when a room's first joiner creates its meeting.
type MeetingOptions struct {
	Title           string `json:"title"`
	IsWebinar       bool   `json:"isWebinar"`
	RequireApproval bool   `json:"requireApproval"`
	RecordMeeting   bool   `json:"recordMeeting"`
	MaxParticipants int    `json:"maxParticipants"`
}
