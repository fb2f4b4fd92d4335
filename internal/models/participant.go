package models

import (
	"time"

	"github.com/google/uuid"
)

// ParticipantRole is a participant's authority within one meeting.
type ParticipantRole string

const (
	ParticipantRoleHost        ParticipantRole = "host"
	ParticipantRoleCoHost      ParticipantRole = "co-host"
	ParticipantRoleParticipant ParticipantRole = "participant"
)

// CanModerate reports whether the role may mute, remove and admit others.
func (r ParticipantRole) CanModerate() bool {
	return r == ParticipantRoleHost || r == ParticipantRoleCoHost
}

// Participant is one person's presence in one meeting, bound to the connection they joined with.
type Participant struct {
	ID         uuid.UUID       `json:"id"`
	MeetingID  uuid.UUID       `json:"meeting_id"`
	UserID     *uuid.UUID      `json:"user_id,omitempty"`
	Name       string          `json:"name"`
	ConnID     string          `json:"socket_id"`
	Role       ParticipantRole `json:"role"`
	JoinedAt   time.Time       `json:"joined_at"`
	LeftAt     *time.Time      `json:"left_at,omitempty"`
	AudioMuted bool            `json:"is_muted"`
	VideoOff   bool            `json:"is_video_off"`
}
