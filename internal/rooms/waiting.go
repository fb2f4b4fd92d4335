package rooms

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-meet/backend/internal/models"
)

// enqueueWaitingLocked holds a joiner for approval and tells the room's moderators.
func (c *Coordinator) enqueueWaitingLocked(ctx context.Context, rm *room, connID, name string, userID *uuid.UUID) error {
	e := &models.WaitingEntry{
		MeetingID: rm.meeting.ID,
		Name:      name,
		ConnID:    connID,
		Status:    models.WaitingStatusWaiting,
	}
	if err := c.store.AddToWaitingRoom(ctx, e); err != nil {
		return err
	}

	if c.registry.get(rm.id) == nil {
		c.registry.put(rm)
	}
	w := &waiter{entry: *e, userID: userID}
	rm.waiting = append(rm.waiting, w)
	c.sessions.RegisterConnection(connID, name)
	c.sessions.BindWaiting(connID, rm.id, e.ID)
	if c.cfg.WaitingTimeout > 0 {
		roomID, waitingID := rm.id, e.ID
		w.timer = time.AfterFunc(c.cfg.WaitingTimeout, func() {
			c.expireWaiting(roomID, waitingID)
		})
	}

	c.notifier.Send(connID, EventWaitingForApproval, WaitingForApprovalPayload{RoomID: rm.id, Name: name})
	for _, mod := range rm.moderators() {
		c.notifier.Send(mod.connID, EventParticipantWaiting, ParticipantWaitingPayload{
			Name:      name,
			SocketID:  connID,
			WaitingID: e.ID,
		})
	}
	c.sendWaitingList(rm)
	c.logger.Info("participant waiting for approval",
		zap.String("room_id", rm.id), zap.String("conn_id", connID), zap.String("waiting_id", e.ID.String()))
	return nil
}

// ApproveWaiting admits or denies a waiting entry on behalf of a host or co-host.
// Requests from anyone else, or for unknown entries, are dropped without a reply.
func (c *Coordinator) ApproveWaiting(ctx context.Context, actorConnID string, waitingID uuid.UUID, approved bool) {
	actor, ok := c.sessions.Lookup(actorConnID)
	if !ok || !actor.Admitted() {
		return
	}
	unlock := c.registry.lock(actor.RoomID)
	defer unlock()
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	rm := c.registry.get(actor.RoomID)
	if rm == nil {
		return
	}
	a := rm.member(actorConnID)
	if a == nil {
		return
	}
	if !a.participant.Role.CanModerate() {
		c.logger.Warn("unauthorized waiting-room decision", zap.String("room_id", rm.id), zap.String("conn_id", actorConnID))
		return
	}
	w := rm.waiter(waitingID)
	if w == nil {
		c.logger.Debug("waiting entry not found", zap.String("room_id", rm.id), zap.String("waiting_id", waitingID.String()))
		return
	}
	if approved && len(rm.members) >= rm.meeting.MaxParticipants {
		c.notifier.Send(actorConnID, EventMeetingError, ErrorPayload{Message: "meeting is full"})
		return
	}
	c.resolveWaitingLocked(ctx, rm, w, approved, actorConnID, DenyReasonDenied)
}

// resolveWaitingLocked records the decision, then admits or turns away the waiting connection.
// actorConnID is empty when the decision comes from expiry.
func (c *Coordinator) resolveWaitingLocked(ctx context.Context, rm *room, w *waiter, approved bool, actorConnID, reason string) {
	status := models.WaitingStatusDenied
	if approved {
		status = models.WaitingStatusApproved
	}
	if err := c.store.UpdateWaitingRoomStatus(ctx, w.entry.ID, status); err != nil {
		c.logger.Error("update waiting status failed", zap.String("waiting_id", w.entry.ID.String()), zap.Error(err))
		if actorConnID != "" {
			c.notifier.Send(actorConnID, EventMeetingError, ErrorPayload{Message: "failed to update waiting room"})
		}
		return
	}
	w.stop()
	rm.removeWaiter(w.entry.ID)

	// Waiting state is kept until admission binds the room, so a concurrent disconnect
	// always sees the connection as waiting or admitted and serializes on this lock.
	if conn, live := c.sessions.Lookup(w.entry.ConnID); !live || conn.Closing {
		approved = false
	}
	if approved {
		if err := c.admitLocked(ctx, rm, w.entry.ConnID, w.entry.Name, w.userID, models.ParticipantRoleParticipant); err != nil {
			c.logger.Error("admit approved participant failed",
				zap.String("room_id", rm.id), zap.String("conn_id", w.entry.ConnID), zap.Error(err))
			c.sessions.ClearWaiting(w.entry.ConnID)
			c.notifier.Send(w.entry.ConnID, EventJoinError, ErrorPayload{Message: "failed to join meeting"})
		}
	} else {
		c.sessions.ClearWaiting(w.entry.ConnID)
		c.notifier.Send(w.entry.ConnID, EventJoinDenied, JoinDeniedPayload{RoomID: rm.id, Reason: reason})
		c.logger.Info("waiting participant turned away",
			zap.String("room_id", rm.id), zap.String("conn_id", w.entry.ConnID), zap.String("reason", reason))
	}
	c.sendWaitingList(rm)
	if rm.empty() {
		c.registry.evict(rm.id)
	}
}

// expireWaiting denies an entry nobody answered within the configured timeout.
func (c *Coordinator) expireWaiting(roomID string, waitingID uuid.UUID) {
	unlock := c.registry.lock(roomID)
	defer unlock()
	ctx, cancel := c.opContext(context.Background())
	defer cancel()

	rm := c.registry.get(roomID)
	if rm == nil {
		return
	}
	w := rm.waiter(waitingID)
	if w == nil {
		return
	}
	c.resolveWaitingLocked(ctx, rm, w, false, "", DenyReasonExpired)
}

// cancelWaiting withdraws a connection's waiting entry after it left or disconnected.
// The in-memory entry is dropped even if the store fails, since the requester is gone.
func (c *Coordinator) cancelWaiting(ctx context.Context, connID, roomID string, waitingID uuid.UUID) {
	unlock := c.registry.lock(roomID)
	defer unlock()
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	c.sessions.ClearWaiting(connID)
	rm := c.registry.get(roomID)
	if rm == nil {
		return
	}
	w := rm.removeWaiter(waitingID)
	if w == nil {
		return
	}
	w.stop()
	if err := c.store.RemoveFromWaitingRoom(ctx, waitingID); err != nil {
		c.logger.Error("remove waiting entry failed", zap.String("waiting_id", waitingID.String()), zap.Error(err))
	}
	c.sendWaitingList(rm)
	c.logger.Info("waiting participant withdrew", zap.String("room_id", roomID), zap.String("conn_id", connID))
	if rm.empty() {
		c.registry.evict(rm.id)
	}
}

func (c *Coordinator) sendWaitingList(rm *room) {
	payload := WaitingListPayload{RoomID: rm.id, Waiting: rm.waitingViews()}
	for _, mod := range rm.moderators() {
		c.notifier.Send(mod.connID, EventWaitingList, payload)
	}
}
