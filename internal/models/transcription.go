package models

import (
	"time"

	"github.com/google/uuid"
)

// Transcription is one recognized speech segment captured during a meeting.
type Transcription struct {
	ID              uuid.UUID `json:"id"`
	MeetingID       uuid.UUID `json:"meeting_id"`
	ParticipantName string    `json:"participant_name"`
	Text            string    `json:"text"`
	Confidence      float64   `json:"confidence"`
	Timestamp       time.Time `json:"timestamp"`
}
