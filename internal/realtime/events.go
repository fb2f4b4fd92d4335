package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/aura-meet/backend/internal/models"
)

// Inbound event names.
const (
	EventJoinRoom           = "join-room"
	EventLeaveRoom          = "leave-room"
	EventCallUser           = "call-user"
	EventCallAccepted       = "call-accepted"
	EventIceCandidate       = "ice-candidate"
	EventEndCall            = "end-call"
	EventChatMessage        = "chat-message"
	EventSendMessage        = "send-message"
	EventMuteParticipant    = "mute-participant"
	EventRemoveParticipant  = "remove-participant"
	EventPromoteToCohost    = "promote-to-cohost"
	EventApproveParticipant = "approve-participant"
	EventToggleMedia        = "toggle-media"
	EventTranscription      = "transcription"
)

// ErrUnknownEvent is returned by Decode for event names outside the inbound set.
var ErrUnknownEvent = errors.New("unknown event")

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound is the closed set of client events. Only types in this file implement it.
type Inbound interface {
	inbound()
}

// JoinRoom asks to join a room. The meeting options apply only when this join creates the meeting.
type JoinRoom struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
	models.MeetingOptions
}

// LeaveRoom leaves the given room, or the current one when RoomID is empty.
type LeaveRoom struct {
	RoomID string `json:"roomId"`
}

// peerTarget addresses a peer by socket id, falling back to "to" (socket id or display name).
type peerTarget struct {
	SocketID string `json:"socketId"`
	To       string `json:"to"`
}

// Target returns the addressed peer.
func (p peerTarget) Target() string {
	if p.SocketID != "" {
		return p.SocketID
	}
	return p.To
}

// CallUser carries an SDP offer for a peer.
type CallUser struct {
	peerTarget
	Offer json.RawMessage `json:"offer"`
}

// CallAccepted carries an SDP answer back to the caller.
type CallAccepted struct {
	peerTarget
	Ans json.RawMessage `json:"ans"`
}

// IceCandidate carries one ICE candidate for a peer.
type IceCandidate struct {
	peerTarget
	Candidate json.RawMessage `json:"candidate"`
}

// EndCall hangs up on a peer.
type EndCall struct {
	peerTarget
}

// ChatMessage sends a chat line; To makes it private.
// The older send-message event decodes to the same shape and targets the sender's current room.
type ChatMessage struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
	To      string `json:"to"`
}

// ModerationTarget names the participant a moderator acts on.
type ModerationTarget struct {
	SocketID string `json:"socketId"`
	RoomID   string `json:"roomId"`
}

// MuteParticipant forces a participant's audio off.
type MuteParticipant struct{ ModerationTarget }

// RemoveParticipant evicts a participant.
type RemoveParticipant struct{ ModerationTarget }

// PromoteToCohost grants co-host.
type PromoteToCohost struct{ ModerationTarget }

// ApproveParticipant decides a waiting-room entry.
type ApproveParticipant struct {
	WaitingID uuid.UUID `json:"waitingId"`
	Approved  bool      `json:"approved"`
}

// ToggleMedia reports the sender's own audio/video state.
type ToggleMedia struct {
	RoomID     string `json:"roomId"`
	AudioMuted bool   `json:"audioMuted"`
	VideoOff   bool   `json:"videoOff"`
}

// Transcription is a recognized speech segment from the sender.
type Transcription struct {
	RoomID     string  `json:"roomId"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func (JoinRoom) inbound()           {}
func (LeaveRoom) inbound()          {}
func (CallUser) inbound()           {}
func (CallAccepted) inbound()       {}
func (IceCandidate) inbound()       {}
func (EndCall) inbound()            {}
func (ChatMessage) inbound()        {}
func (MuteParticipant) inbound()    {}
func (RemoveParticipant) inbound()  {}
func (PromoteToCohost) inbound()    {}
func (ApproveParticipant) inbound() {}
func (ToggleMedia) inbound()        {}
func (Transcription) inbound()      {}

// Decode turns an envelope into its typed inbound event.
func Decode(msg WSMessage) (Inbound, error) {
	switch msg.Event {
	case EventJoinRoom:
		return decodeAs[JoinRoom](msg)
	case EventLeaveRoom:
		return decodeAs[LeaveRoom](msg)
	case EventCallUser:
		return decodeAs[CallUser](msg)
	case EventCallAccepted:
		return decodeAs[CallAccepted](msg)
	case EventIceCandidate:
		return decodeAs[IceCandidate](msg)
	case EventEndCall:
		return decodeAs[EndCall](msg)
	case EventChatMessage, EventSendMessage:
		return decodeAs[ChatMessage](msg)
	case EventMuteParticipant:
		return decodeAs[MuteParticipant](msg)
	case EventRemoveParticipant:
		return decodeAs[RemoveParticipant](msg)
	case EventPromoteToCohost:
		return decodeAs[PromoteToCohost](msg)
	case EventApproveParticipant:
		return decodeAs[ApproveParticipant](msg)
	case EventToggleMedia:
		return decodeAs[ToggleMedia](msg)
	case EventTranscription:
		return decodeAs[Transcription](msg)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, msg.Event)
}

func decodeAs[T Inbound](msg WSMessage) (Inbound, error) {
	var v T
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", msg.Event, err)
		}
	}
	return v, nil
}
