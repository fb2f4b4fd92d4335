package rooms

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aura-meet/backend/internal/models"
)

// DefaultTranscriptionConfidence applies when a client sends no confidence score.
const DefaultTranscriptionConfidence = 0.9

// ChatRequest is an inbound chat-message. To, when set, makes the message private.
type ChatRequest struct {
	RoomID  string
	Message string
	To      string
}

// TranscriptionRequest is an inbound transcription segment.
type TranscriptionRequest struct {
	RoomID     string
	Text       string
	Confidence float64
}

// MediaRequest is an inbound toggle-media.
type MediaRequest struct {
	RoomID     string
	AudioMuted bool
	VideoOff   bool
}

// SendChat persists a chat line and delivers it to the room, or to one recipient when private.
func (c *Coordinator) SendChat(ctx context.Context, connID string, req ChatRequest) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return
	}
	rm, unlock := c.lockRoom(connID, req.RoomID)
	defer unlock()
	if rm == nil {
		return
	}
	sender := rm.member(connID)
	if sender == nil {
		return
	}

	msg := &models.ChatMessage{
		MeetingID:     rm.meeting.ID,
		ParticipantID: sender.participant.ID,
		SenderName:    sender.participant.Name,
		Message:       text,
		MessageType:   models.MessageTypeText,
		Timestamp:     time.Now().UTC(),
	}
	var recipient *member
	if req.To != "" {
		recipient = rm.member(req.To)
		if recipient == nil {
			recipient = rm.memberByName(req.To)
		}
		if recipient == nil || recipient.connID == connID {
			c.logger.Debug("chat recipient not found", zap.String("room_id", rm.id), zap.String("conn_id", connID))
			return
		}
		id := recipient.participant.ID
		msg.IsPrivate = true
		msg.RecipientID = &id
	}

	ctx, cancel := c.opContext(ctx)
	defer cancel()
	if err := c.store.SaveChatMessage(ctx, msg); err != nil {
		c.logger.Error("save chat message failed", zap.String("room_id", rm.id), zap.String("conn_id", connID), zap.Error(err))
		c.notifier.Send(connID, EventMeetingError, ErrorPayload{Message: "failed to send message"})
		return
	}

	view := ChatView{
		ID:        msg.ID,
		RoomID:    rm.id,
		Message:   msg.Message,
		From:      msg.SenderName,
		SocketID:  connID,
		Timestamp: msg.Timestamp,
		IsPrivate: msg.IsPrivate,
	}
	if recipient != nil {
		c.notifier.Send(recipient.connID, EventChatMessage, view)
		return
	}
	c.broadcast(rm, connID, EventChatMessage, view)
}

// SaveTranscription persists a speech segment from an admitted participant and relays it to the room.
func (c *Coordinator) SaveTranscription(ctx context.Context, connID string, req TranscriptionRequest) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return
	}
	confidence := req.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = DefaultTranscriptionConfidence
	}
	rm, unlock := c.lockRoom(connID, req.RoomID)
	defer unlock()
	if rm == nil {
		return
	}
	speaker := rm.member(connID)
	if speaker == nil {
		return
	}

	t := &models.Transcription{
		MeetingID:       rm.meeting.ID,
		ParticipantName: speaker.participant.Name,
		Text:            text,
		Confidence:      confidence,
		Timestamp:       time.Now().UTC(),
	}
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	if err := c.store.SaveTranscription(ctx, t); err != nil {
		c.logger.Error("save transcription failed", zap.String("room_id", rm.id), zap.String("conn_id", connID), zap.Error(err))
		c.notifier.Send(connID, EventMeetingError, ErrorPayload{Message: "failed to save transcription"})
		return
	}
	c.broadcast(rm, connID, EventTranscription, TranscriptionPayload{
		Name:       t.ParticipantName,
		Text:       t.Text,
		Confidence: t.Confidence,
		Timestamp:  t.Timestamp,
	})
}

// ToggleMedia records a participant's own audio/video state and announces it to the room.
func (c *Coordinator) ToggleMedia(ctx context.Context, connID string, req MediaRequest) {
	rm, unlock := c.lockRoom(connID, req.RoomID)
	defer unlock()
	if rm == nil {
		return
	}
	m := rm.member(connID)
	if m == nil {
		return
	}
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	if err := c.store.UpdateParticipantMedia(ctx, m.participant.ID, req.AudioMuted, req.VideoOff); err != nil {
		c.logger.Error("update media state failed", zap.String("room_id", rm.id), zap.String("conn_id", connID), zap.Error(err))
		c.notifier.Send(connID, EventMeetingError, ErrorPayload{Message: "failed to update media state"})
		return
	}
	m.participant.AudioMuted = req.AudioMuted
	m.participant.VideoOff = req.VideoOff
	c.sessions.BindParticipant(connID, m.participant)
	c.broadcast(rm, connID, EventMediaStateChanged, MediaStatePayload{
		SocketID:   connID,
		AudioMuted: req.AudioMuted,
		VideoOff:   req.VideoOff,
	})
}
