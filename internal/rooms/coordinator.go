// Package rooms coordinates live meeting rooms: admission and the waiting room, host election,
// peer signaling relay, moderation and in-room fan-out of chat and state changes.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-meet/backend/internal/models"
	"github.com/aura-meet/backend/internal/session"
)

// Config tunes the coordinator.
type Config struct {
	// WaitingTimeout denies a waiting-room request that nobody answered in time. Zero disables expiry.
	WaitingTimeout time.Duration
	// OpTimeout bounds each store call made on behalf of one inbound event. Zero means no extra bound.
	OpTimeout time.Duration
	// DefaultMaxParticipants applies when the meeting creator does not set a limit.
	DefaultMaxParticipants int
}

// MeetingEndedHandler is called after a room empties and its meeting is closed.
type MeetingEndedHandler func(meeting models.Meeting)

// OccupancyHandler is called whenever a room's admitted count changes. Zero means the room is gone.
type OccupancyHandler func(roomID string, count int)

// JoinRequest is a join-room intent.
type JoinRequest struct {
	RoomID  string
	Name    string
	Options models.MeetingOptions
}

// Coordinator owns the room registry and applies every room mutation under that room's lock.
// Store calls happen inside the lock so two events for one room never interleave;
// different rooms proceed in parallel.
type Coordinator struct {
	store    Store
	sessions *session.Store
	notifier Notifier
	registry *registry
	cfg      Config
	logger   *zap.Logger

	onEnded     MeetingEndedHandler
	onOccupancy OccupancyHandler
}

// NewCoordinator creates a coordinator.
func NewCoordinator(store Store, sessions *session.Store, notifier Notifier, cfg Config, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultMaxParticipants <= 0 {
		cfg.DefaultMaxParticipants = models.DefaultMaxParticipants
	}
	return &Coordinator{
		store:    store,
		sessions: sessions,
		notifier: notifier,
		registry: newRegistry(),
		cfg:      cfg,
		logger:   logger,
	}
}

// SetMeetingEndedHandler sets the callback run when a meeting ends (e.g. archive enqueue).
// It runs inside the room's critical section and should return quickly.
func (c *Coordinator) SetMeetingEndedHandler(fn MeetingEndedHandler) {
	c.onEnded = fn
}

// SetOccupancyHandler sets the callback for admitted-count changes (e.g. presence mirror).
func (c *Coordinator) SetOccupancyHandler(fn OccupancyHandler) {
	c.onOccupancy = fn
}

// Connect registers a new transport connection, optionally with a pre-verified identity.
func (c *Coordinator) Connect(connID, name string, userID *uuid.UUID) {
	c.sessions.RegisterConnection(connID, name)
	if userID != nil {
		c.sessions.SetUser(connID, *userID)
	}
}

func (c *Coordinator) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.OpTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.OpTimeout)
	}
	return context.WithCancel(ctx)
}

// Join admits connID to the room, holds it for approval, or re-confirms an existing admission.
func (c *Coordinator) Join(ctx context.Context, connID string, req JoinRequest) {
	conn, ok := c.sessions.Lookup(connID)
	if !ok {
		return
	}
	roomID := strings.TrimSpace(req.RoomID)
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = conn.Name
	}
	if roomID == "" || name == "" {
		c.notifier.Send(connID, EventJoinError, ErrorPayload{Message: "roomId and name are required"})
		return
	}

	// Leave any other room first so two room locks are never held at once.
	if conn.Admitted() && conn.RoomID != roomID {
		c.Leave(ctx, connID, conn.RoomID)
		if conn, ok = c.sessions.Lookup(connID); !ok {
			return
		}
		if conn.Admitted() && conn.RoomID != roomID {
			// The previous room still holds this connection; the client saw meeting-error and may retry.
			c.notifier.Send(connID, EventJoinError, ErrorPayload{Message: "failed to leave previous meeting"})
			return
		}
	}
	if conn.Waiting() && conn.WaitingRoomID != roomID {
		c.cancelWaiting(ctx, connID, conn.WaitingRoomID, conn.WaitingID)
	}

	unlock := c.registry.lock(roomID)
	defer unlock()
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	rm := c.registry.get(roomID)
	if rm != nil {
		if m := rm.member(connID); m != nil {
			c.rejoinLocked(ctx, rm, m)
			return
		}
		if w := rm.waiterByConn(connID); w != nil {
			c.notifier.Send(connID, EventWaitingForApproval, WaitingForApprovalPayload{RoomID: roomID, Name: w.entry.Name})
			return
		}
	}

	created := false
	if rm == nil {
		meeting, err := c.openMeeting(ctx, roomID, connID, name, conn.UserID, req.Options)
		if err != nil {
			c.logger.Error("open meeting failed", zap.String("room_id", roomID), zap.String("conn_id", connID), zap.Error(err))
			c.notifier.Send(connID, EventJoinError, ErrorPayload{Message: "failed to join meeting"})
			return
		}
		rm = newRoom(roomID, meeting)
		created = true
	}

	isHost := hostClaim(rm, connID, name, conn.UserID)
	if !isHost && len(rm.members) >= rm.meeting.MaxParticipants {
		c.notifier.Send(connID, EventJoinError, ErrorPayload{Message: "meeting is full"})
		return
	}

	if rm.meeting.RequireApproval && !isHost {
		if err := c.enqueueWaitingLocked(ctx, rm, connID, name, conn.UserID); err != nil {
			c.logger.Error("add to waiting room failed", zap.String("room_id", roomID), zap.String("conn_id", connID), zap.Error(err))
			c.notifier.Send(connID, EventJoinError, ErrorPayload{Message: "failed to join meeting"})
		}
		return
	}

	role := models.ParticipantRoleParticipant
	if isHost {
		role = models.ParticipantRoleHost
	}
	if err := c.admitLocked(ctx, rm, connID, name, conn.UserID, role); err != nil {
		c.logger.Error("admit failed", zap.String("room_id", roomID), zap.String("conn_id", connID), zap.Error(err))
		if created {
			// Nobody was admitted; close the meeting so the next joiner elects a host afresh.
			if endErr := c.store.EndMeeting(ctx, roomID); endErr != nil {
				c.logger.Error("end meeting after failed admit", zap.String("room_id", roomID), zap.Error(endErr))
			}
		}
		c.notifier.Send(connID, EventJoinError, ErrorPayload{Message: "failed to join meeting"})
	}
}

// hostClaim decides whether a joiner takes the host role. A matching host connection id,
// host user id or host name qualifies, but never while a different connection already holds host.
func hostClaim(rm *room, connID, name string, userID *uuid.UUID) bool {
	m := rm.meeting
	claims := m.HostConnID == connID || m.HostName == name ||
		(userID != nil && m.HostUserID != nil && *userID == *m.HostUserID)
	if !claims {
		return false
	}
	if h := rm.host(); h != nil && h.connID != connID {
		return false
	}
	return true
}

// openMeeting starts a meeting with the joiner as host. It runs only when no room is live
// in memory, so an open meeting found in the store has outlived its last participant
// (a failed end or a crashed process) and is closed first.
func (c *Coordinator) openMeeting(ctx context.Context, roomID, connID, name string, userID *uuid.UUID, opts models.MeetingOptions) (*models.Meeting, error) {
	stale, err := c.store.GetOpenMeeting(ctx, roomID)
	switch {
	case err == nil:
		c.logger.Warn("ending stale open meeting",
			zap.String("room_id", roomID), zap.String("meeting_id", stale.ID.String()), zap.String("host", stale.HostName))
		if err := c.store.EndMeeting(ctx, roomID); err != nil {
			return nil, fmt.Errorf("end stale meeting: %w", err)
		}
	case !errors.Is(err, models.ErrNotFound):
		return nil, fmt.Errorf("get open meeting: %w", err)
	}

	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = "Meeting " + roomID
	}
	maxParticipants := opts.MaxParticipants
	if maxParticipants <= 0 {
		maxParticipants = c.cfg.DefaultMaxParticipants
	}
	m := &models.Meeting{
		RoomID:          roomID,
		Title:           title,
		HostName:        name,
		HostConnID:      connID,
		HostUserID:      userID,
		IsWebinar:       opts.IsWebinar,
		RequireApproval: opts.RequireApproval,
		RecordMeeting:   opts.RecordMeeting,
		MaxParticipants: maxParticipants,
	}
	if err := c.store.CreateMeeting(ctx, m); err != nil {
		// ErrOpenMeetingExists here means another writer opened the room since the check; the joiner retries.
		return nil, fmt.Errorf("create meeting: %w", err)
	}
	c.logger.Info("meeting created", zap.String("room_id", roomID), zap.String("meeting_id", m.ID.String()), zap.String("host", name))
	return m, nil
}

// admitLocked persists the participant, then commits the admission in memory and fans it out.
func (c *Coordinator) admitLocked(ctx context.Context, rm *room, connID, name string, userID *uuid.UUID, role models.ParticipantRole) error {
	history, err := c.store.GetChatHistory(ctx, rm.meeting.ID)
	if err != nil {
		return fmt.Errorf("get chat history: %w", err)
	}
	p := &models.Participant{
		MeetingID: rm.meeting.ID,
		UserID:    userID,
		Name:      name,
		ConnID:    connID,
		Role:      role,
	}
	if err := c.store.AddParticipant(ctx, p); err != nil {
		return fmt.Errorf("add participant: %w", err)
	}

	if c.registry.get(rm.id) == nil {
		c.registry.put(rm)
	}
	m := &member{connID: connID, participant: *p}
	rm.members = append(rm.members, m)
	c.sessions.RegisterConnection(connID, name)
	c.sessions.BindRoom(connID, rm.id)
	c.sessions.BindParticipant(connID, *p)

	c.notifier.Send(connID, EventJoinedRoom, c.joinedPayload(rm, m, history))
	c.broadcast(rm, connID, EventUserJoined, UserJoinedPayload{
		SocketID:         connID,
		Name:             name,
		Role:             role,
		ParticipantCount: len(rm.members),
	})
	c.occupancyChanged(rm.id, len(rm.members))
	c.logger.Info("participant admitted",
		zap.String("room_id", rm.id), zap.String("conn_id", connID), zap.String("role", string(role)))
	return nil
}

// rejoinLocked answers a duplicate join with the current state instead of a second participant row.
func (c *Coordinator) rejoinLocked(ctx context.Context, rm *room, m *member) {
	history, err := c.store.GetChatHistory(ctx, rm.meeting.ID)
	if err != nil {
		c.logger.Error("get chat history failed", zap.String("room_id", rm.id), zap.Error(err))
		c.notifier.Send(m.connID, EventJoinError, ErrorPayload{Message: "failed to join meeting"})
		return
	}
	c.notifier.Send(m.connID, EventJoinedRoom, c.joinedPayload(rm, m, history))
}

func (c *Coordinator) joinedPayload(rm *room, m *member, history []models.ChatMessage) JoinedRoomPayload {
	chat := make([]ChatView, 0, len(history))
	for _, h := range history {
		chat = append(chat, ChatView{
			ID:        h.ID,
			RoomID:    rm.id,
			Message:   h.Message,
			From:      h.SenderName,
			Timestamp: h.Timestamp,
			IsPrivate: h.IsPrivate,
		})
	}
	out := JoinedRoomPayload{
		RoomID:       rm.id,
		Role:         string(m.participant.Role),
		IsHost:       m.participant.Role == models.ParticipantRoleHost,
		Meeting:      newMeetingView(rm.meeting),
		ChatHistory:  chat,
		Participants: rm.roster(),
	}
	if m.participant.Role.CanModerate() {
		out.Waiting = rm.waitingViews()
	}
	return out
}

// Leave handles an explicit leave-room. A store failure aborts the leave and reports meeting-error.
// roomID may be empty to mean the connection's current room.
func (c *Coordinator) Leave(ctx context.Context, connID, roomID string) {
	c.leave(ctx, connID, roomID, false)
}

// Disconnect cleans up after a closed transport and forgets the connection.
// In-memory cleanup proceeds even if the store fails, since the connection cannot retry.
func (c *Coordinator) Disconnect(ctx context.Context, connID string) {
	if _, ok := c.sessions.MarkClosing(connID); !ok {
		return
	}
	c.leave(ctx, connID, "", true)
	c.sessions.Forget(connID)
}

func (c *Coordinator) leave(ctx context.Context, connID, roomID string, disconnect bool) {
	conn, ok := c.sessions.Lookup(connID)
	if !ok {
		return
	}
	if conn.Waiting() && (roomID == "" || roomID == conn.WaitingRoomID) {
		c.cancelWaiting(ctx, connID, conn.WaitingRoomID, conn.WaitingID)
		// An approval may have admitted the connection while we waited for the room lock.
		if conn, ok = c.sessions.Lookup(connID); !ok {
			return
		}
	}
	if !conn.Admitted() || (roomID != "" && roomID != conn.RoomID) {
		return
	}

	unlock := c.registry.lock(conn.RoomID)
	defer unlock()
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	rm := c.registry.get(conn.RoomID)
	var m *member
	if rm != nil {
		m = rm.member(connID)
	}
	if m == nil {
		c.sessions.UnbindRoom(connID)
		return
	}
	if err := c.store.RemoveParticipant(ctx, connID); err != nil {
		c.logger.Error("remove participant failed",
			zap.String("room_id", rm.id), zap.String("conn_id", connID), zap.Bool("disconnect", disconnect), zap.Error(err))
		if !disconnect {
			c.notifier.Send(connID, EventMeetingError, ErrorPayload{Message: "failed to leave meeting"})
			return
		}
	}
	c.detachLocked(ctx, rm, m)
}

// detachLocked removes an already-persisted departure from memory and tears the room down when it empties.
func (c *Coordinator) detachLocked(ctx context.Context, rm *room, m *member) {
	rm.removeMember(m.connID)
	c.sessions.UnbindRoom(m.connID)
	c.broadcast(rm, "", EventUserLeft, UserLeftPayload{
		SocketID:         m.connID,
		Name:             m.participant.Name,
		ParticipantCount: len(rm.members),
	})
	c.logger.Info("participant left", zap.String("room_id", rm.id), zap.String("conn_id", m.connID))
	if len(rm.members) == 0 {
		c.teardownLocked(ctx, rm)
		return
	}
	c.occupancyChanged(rm.id, len(rm.members))
}

// teardownLocked ends the meeting, turns away anyone still waiting and evicts the room.
func (c *Coordinator) teardownLocked(ctx context.Context, rm *room) {
	if err := c.store.EndMeeting(ctx, rm.id); err != nil {
		c.logger.Error("end meeting failed", zap.String("room_id", rm.id), zap.Error(err))
	}
	for _, w := range rm.waiting {
		w.stop()
		if err := c.store.UpdateWaitingRoomStatus(ctx, w.entry.ID, models.WaitingStatusDenied); err != nil {
			c.logger.Error("deny waiting entry failed", zap.String("waiting_id", w.entry.ID.String()), zap.Error(err))
		}
		c.sessions.ClearWaiting(w.entry.ConnID)
		c.notifier.Send(w.entry.ConnID, EventJoinDenied, JoinDeniedPayload{RoomID: rm.id, Reason: DenyReasonMeetingEnded})
	}
	rm.waiting = nil
	c.registry.evict(rm.id)

	ended := *rm.meeting
	now := time.Now().UTC()
	ended.EndedAt = &now
	c.logger.Info("meeting ended", zap.String("room_id", rm.id), zap.String("meeting_id", ended.ID.String()))
	c.occupancyChanged(rm.id, 0)
	if c.onEnded != nil {
		c.onEnded(ended)
	}
}

func (c *Coordinator) broadcast(rm *room, except, event string, payload interface{}) {
	for _, m := range rm.members {
		if m.connID == except {
			continue
		}
		c.notifier.Send(m.connID, event, payload)
	}
}

func (c *Coordinator) occupancyChanged(roomID string, count int) {
	if c.onOccupancy != nil {
		c.onOccupancy(roomID, count)
	}
}

// RoomSnapshot is a read-only view of one active room.
type RoomSnapshot struct {
	RoomID       string            `json:"roomId"`
	Meeting      MeetingView       `json:"meeting"`
	Participants []ParticipantView `json:"participants"`
	WaitingCount int               `json:"waitingCount"`
}

// Room returns a snapshot of an active room.
func (c *Coordinator) Room(roomID string) (RoomSnapshot, bool) {
	unlock := c.registry.lock(roomID)
	defer unlock()
	rm := c.registry.get(roomID)
	if rm == nil {
		return RoomSnapshot{}, false
	}
	return RoomSnapshot{
		RoomID:       rm.id,
		Meeting:      newMeetingView(rm.meeting),
		Participants: rm.roster(),
		WaitingCount: len(rm.waiting),
	}, true
}

// Rooms returns snapshots of all active rooms ordered by room id.
func (c *Coordinator) Rooms() []RoomSnapshot {
	ids := c.registry.ids()
	out := make([]RoomSnapshot, 0, len(ids))
	for _, id := range ids {
		if s, ok := c.Room(id); ok {
			out = append(out, s)
		}
	}
	return out
}
