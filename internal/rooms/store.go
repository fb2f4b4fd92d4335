package rooms

import (
	"context"

	"github.com/google/uuid"

	"github.com/aura-meet/backend/internal/models"
)

// Store is the durable persistence the coordinator depends on.
// GetOpenMeeting returns models.ErrNotFound when the room has no open meeting and
// CreateMeeting returns models.ErrOpenMeetingExists when another open meeting won the race.
type Store interface {
	CreateMeeting(ctx context.Context, m *models.Meeting) error
	GetOpenMeeting(ctx context.Context, roomID string) (*models.Meeting, error)
	EndMeeting(ctx context.Context, roomID string) error

	AddParticipant(ctx context.Context, p *models.Participant) error
	UpdateParticipantRole(ctx context.Context, participantID uuid.UUID, role models.ParticipantRole) error
	UpdateParticipantMedia(ctx context.Context, participantID uuid.UUID, audioMuted, videoOff bool) error
	RemoveParticipant(ctx context.Context, connID string) error

	SaveChatMessage(ctx context.Context, m *models.ChatMessage) error
	GetChatHistory(ctx context.Context, meetingID uuid.UUID) ([]models.ChatMessage, error)

	AddToWaitingRoom(ctx context.Context, e *models.WaitingEntry) error
	UpdateWaitingRoomStatus(ctx context.Context, waitingID uuid.UUID, status models.WaitingStatus) error
	RemoveFromWaitingRoom(ctx context.Context, waitingID uuid.UUID) error

	SaveTranscription(ctx context.Context, t *models.Transcription) error
}

// Notifier delivers one event to one live connection. Deliveries to the same
// connection must arrive in call order.
type Notifier interface {
	Send(connID string, event string, payload interface{})
}
