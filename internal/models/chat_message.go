package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageType classifies a chat message.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeSystem MessageType = "system"
)

// ChatMessage is an append-only chat line within a meeting.
type ChatMessage struct {
	ID            uuid.UUID   `json:"id"`
	MeetingID     uuid.UUID   `json:"meeting_id"`
	ParticipantID uuid.UUID   `json:"participant_id"`
	SenderName    string      `json:"sender_name"`
	Message       string      `json:"message"`
	MessageType   MessageType `json:"message_type"`
	IsPrivate     bool        `json:"is_private"`
	RecipientID   *uuid.UUID  `json:"recipient_id,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
}
