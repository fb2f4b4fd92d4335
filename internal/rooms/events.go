package rooms

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/aura-meet/backend/internal/models"
)

// Outbound event names.
const (
	EventJoinedRoom         = "joined-room"
	EventJoinError          = "join-error"
	EventJoinDenied         = "join-denied"
	EventMeetingError       = "meeting-error"
	EventUserJoined         = "user-joined"
	EventUserLeft           = "user-left"
	EventWaitingForApproval = "waiting-for-approval"
	EventParticipantWaiting = "participant-waiting"
	EventWaitingList        = "waiting-list"
	EventIncomingCall       = "incomming-call"
	EventCallAccepted       = "call-accepted"
	EventIceCandidate       = "ice-candidate"
	EventCallEnded          = "call-ended"
	EventChatMessage        = "chat-message"
	EventForceMute          = "force-mute"
	EventParticipantMuted   = "participant-muted"
	EventRemovedFromMeeting = "removed-from-meeting"
	EventRoleUpdated        = "role-updated"
	EventMediaStateChanged  = "media-state-changed"
	EventTranscription      = "transcription"
)

// Denial reasons carried by join-denied.
const (
	DenyReasonDenied       = "denied"
	DenyReasonExpired      = "expired"
	DenyReasonMeetingEnded = "meeting-ended"
)

// MeetingView is the meeting as seen by connected clients.
type MeetingView struct {
	ID              uuid.UUID `json:"id"`
	RoomID          string    `json:"roomId"`
	Title           string    `json:"title"`
	HostName        string    `json:"hostName"`
	IsWebinar       bool      `json:"isWebinar"`
	RequireApproval bool      `json:"requireApproval"`
	RecordMeeting   bool      `json:"recordMeeting"`
	MaxParticipants int       `json:"maxParticipants"`
	CreatedAt       time.Time `json:"createdAt"`
}

func newMeetingView(m *models.Meeting) MeetingView {
	return MeetingView{
		ID:              m.ID,
		RoomID:          m.RoomID,
		Title:           m.Title,
		HostName:        m.HostName,
		IsWebinar:       m.IsWebinar,
		RequireApproval: m.RequireApproval,
		RecordMeeting:   m.RecordMeeting,
		MaxParticipants: m.MaxParticipants,
		CreatedAt:       m.CreatedAt,
	}
}

// ParticipantView is one roster row.
type ParticipantView struct {
	SocketID   string                 `json:"socketId"`
	Name       string                 `json:"name"`
	Role       models.ParticipantRole `json:"role"`
	AudioMuted bool                   `json:"isAudioMuted"`
	VideoOff   bool                   `json:"isVideoOff"`
}

// ChatView is a chat message as delivered to clients.
type ChatView struct {
	ID        uuid.UUID `json:"id"`
	RoomID    string    `json:"roomId"`
	Message   string    `json:"message"`
	From      string    `json:"from"`
	SocketID  string    `json:"socketId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	IsPrivate bool      `json:"isPrivate"`
}

// WaitingView is one waiting-room row shown to moderators.
type WaitingView struct {
	WaitingID   uuid.UUID `json:"waitingId"`
	Name        string    `json:"name"`
	SocketID    string    `json:"socketId"`
	RequestedAt time.Time `json:"requestedAt"`
}

// JoinedRoomPayload answers a successful join.
type JoinedRoomPayload struct {
	RoomID       string            `json:"roomId"`
	Role         string            `json:"role"`
	IsHost       bool              `json:"isHost"`
	Meeting      MeetingView       `json:"meeting"`
	ChatHistory  []ChatView        `json:"chatHistory"`
	Participants []ParticipantView `json:"participants"`
	Waiting      []WaitingView     `json:"waiting,omitempty"`
}

// ErrorPayload carries join-error and meeting-error.
type ErrorPayload struct {
	Message string `json:"message"`
}

// JoinDeniedPayload tells a waiting connection it will not be admitted.
type JoinDeniedPayload struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

// UserJoinedPayload announces a newly admitted participant.
type UserJoinedPayload struct {
	SocketID         string                 `json:"socketId"`
	Name             string                 `json:"name"`
	Role             models.ParticipantRole `json:"role"`
	ParticipantCount int                    `json:"participantCount"`
}

// UserLeftPayload announces a participant leaving the room.
type UserLeftPayload struct {
	SocketID         string `json:"socketId"`
	Name             string `json:"name"`
	ParticipantCount int    `json:"participantCount"`
}

// WaitingForApprovalPayload tells a joiner it is held in the waiting room.
type WaitingForApprovalPayload struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
}

// ParticipantWaitingPayload tells moderators someone is waiting.
type ParticipantWaitingPayload struct {
	Name      string    `json:"name"`
	SocketID  string    `json:"socketId"`
	WaitingID uuid.UUID `json:"waitingId"`
}

// WaitingListPayload is the full waiting snapshot sent to moderators on every change.
type WaitingListPayload struct {
	RoomID  string        `json:"roomId"`
	Waiting []WaitingView `json:"waiting"`
}

// IncomingCallPayload forwards an SDP offer.
type IncomingCallPayload struct {
	From     string          `json:"from"`
	FromName string          `json:"fromName"`
	Offer    json.RawMessage `json:"offer"`
}

// CallAcceptedPayload forwards an SDP answer.
type CallAcceptedPayload struct {
	From     string          `json:"from"`
	FromName string          `json:"fromName"`
	Ans      json.RawMessage `json:"ans"`
}

// IceCandidatePayload forwards an ICE candidate.
type IceCandidatePayload struct {
	From      string          `json:"from"`
	Candidate json.RawMessage `json:"candidate"`
}

// CallEndedPayload tells a peer the caller hung up.
type CallEndedPayload struct {
	From     string `json:"from"`
	FromName string `json:"fromName"`
}

// ModeratorActionPayload is sent to the target of force-mute and removed-from-meeting.
type ModeratorActionPayload struct {
	By string `json:"by"`
}

// ParticipantMutedPayload tells the room a participant was muted by a moderator.
type ParticipantMutedPayload struct {
	SocketID string `json:"socketId"`
	Name     string `json:"name"`
	By       string `json:"by"`
}

// RoleUpdatedPayload announces a role change.
type RoleUpdatedPayload struct {
	SocketID string                 `json:"socketId"`
	Name     string                 `json:"name"`
	Role     models.ParticipantRole `json:"role"`
	By       string                 `json:"by"`
}

// MediaStatePayload announces a participant's own audio/video state.
type MediaStatePayload struct {
	SocketID   string `json:"socketId"`
	AudioMuted bool   `json:"audioMuted"`
	VideoOff   bool   `json:"videoOff"`
}

// TranscriptionPayload relays a transcribed speech segment.
type TranscriptionPayload struct {
	Name       string    `json:"name"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}
