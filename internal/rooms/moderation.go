package rooms

import (
	"context"

	"go.uber.org/zap"

	"github.com/aura-meet/backend/internal/models"
)

// moderationTarget resolves actor and target within roomID and checks the actor's authority.
// Must be called with the room lock held. Returns nils when the request is to be dropped.
func (c *Coordinator) moderationTarget(rm *room, actorConnID, targetConnID, action string, hostOnly bool) (*member, *member) {
	a := rm.member(actorConnID)
	t := rm.member(targetConnID)
	if a == nil || t == nil || actorConnID == targetConnID {
		c.logger.Debug("moderation target not found",
			zap.String("room_id", rm.id), zap.String("action", action), zap.String("conn_id", actorConnID))
		return nil, nil
	}
	allowed := a.participant.Role.CanModerate()
	if hostOnly {
		allowed = a.participant.Role == models.ParticipantRoleHost
	}
	if !allowed || t.participant.Role == models.ParticipantRoleHost {
		c.logger.Warn("unauthorized moderation request",
			zap.String("room_id", rm.id), zap.String("action", action),
			zap.String("conn_id", actorConnID), zap.String("target", targetConnID))
		return nil, nil
	}
	return a, t
}

// lockRoom resolves the room for a moderation call. An empty roomID means the actor's current room.
func (c *Coordinator) lockRoom(actorConnID, roomID string) (*room, func()) {
	if roomID == "" {
		actor, ok := c.sessions.Lookup(actorConnID)
		if !ok || !actor.Admitted() {
			return nil, func() {}
		}
		roomID = actor.RoomID
	}
	unlock := c.registry.lock(roomID)
	rm := c.registry.get(roomID)
	if rm == nil {
		unlock()
		return nil, func() {}
	}
	return rm, unlock
}

// Mute forces the target's audio off. Only hosts and co-hosts may mute, and never the host.
func (c *Coordinator) Mute(ctx context.Context, actorConnID, targetConnID, roomID string) {
	rm, unlock := c.lockRoom(actorConnID, roomID)
	defer unlock()
	if rm == nil {
		return
	}
	a, t := c.moderationTarget(rm, actorConnID, targetConnID, "mute", false)
	if a == nil {
		return
	}
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	if err := c.store.UpdateParticipantMedia(ctx, t.participant.ID, true, t.participant.VideoOff); err != nil {
		c.logger.Error("mute participant failed", zap.String("room_id", rm.id), zap.String("target", targetConnID), zap.Error(err))
		c.notifier.Send(actorConnID, EventMeetingError, ErrorPayload{Message: "failed to mute participant"})
		return
	}
	t.participant.AudioMuted = true
	c.sessions.BindParticipant(t.connID, t.participant)

	by := a.participant.Name
	c.notifier.Send(t.connID, EventForceMute, ModeratorActionPayload{By: by})
	c.broadcast(rm, t.connID, EventParticipantMuted, ParticipantMutedPayload{
		SocketID: t.connID,
		Name:     t.participant.Name,
		By:       by,
	})
	c.logger.Info("participant muted", zap.String("room_id", rm.id), zap.String("target", targetConnID), zap.String("by", actorConnID))
}

// Remove evicts the target from the meeting. Only hosts and co-hosts may remove, and never the host.
func (c *Coordinator) Remove(ctx context.Context, actorConnID, targetConnID, roomID string) {
	rm, unlock := c.lockRoom(actorConnID, roomID)
	defer unlock()
	if rm == nil {
		return
	}
	a, t := c.moderationTarget(rm, actorConnID, targetConnID, "remove", false)
	if a == nil {
		return
	}
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	if err := c.store.RemoveParticipant(ctx, t.connID); err != nil {
		c.logger.Error("remove participant failed", zap.String("room_id", rm.id), zap.String("target", targetConnID), zap.Error(err))
		c.notifier.Send(actorConnID, EventMeetingError, ErrorPayload{Message: "failed to remove participant"})
		return
	}
	c.notifier.Send(t.connID, EventRemovedFromMeeting, ModeratorActionPayload{By: a.participant.Name})
	c.logger.Info("participant removed", zap.String("room_id", rm.id), zap.String("target", targetConnID), zap.String("by", actorConnID))
	c.detachLocked(ctx, rm, t)
}

// Promote makes the target a co-host. Only the host may promote.
func (c *Coordinator) Promote(ctx context.Context, actorConnID, targetConnID, roomID string) {
	rm, unlock := c.lockRoom(actorConnID, roomID)
	defer unlock()
	if rm == nil {
		return
	}
	a, t := c.moderationTarget(rm, actorConnID, targetConnID, "promote", true)
	if a == nil || t.participant.Role == models.ParticipantRoleCoHost {
		return
	}
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	if err := c.store.UpdateParticipantRole(ctx, t.participant.ID, models.ParticipantRoleCoHost); err != nil {
		c.logger.Error("promote participant failed", zap.String("room_id", rm.id), zap.String("target", targetConnID), zap.Error(err))
		c.notifier.Send(actorConnID, EventMeetingError, ErrorPayload{Message: "failed to promote participant"})
		return
	}
	t.participant.Role = models.ParticipantRoleCoHost
	c.sessions.BindParticipant(t.connID, t.participant)

	c.broadcast(rm, "", EventRoleUpdated, RoleUpdatedPayload{
		SocketID: t.connID,
		Name:     t.participant.Name,
		Role:     t.participant.Role,
		By:       a.participant.Name,
	})
	// A new co-host needs the current waiting room to act on it.
	c.notifier.Send(t.connID, EventWaitingList, WaitingListPayload{RoomID: rm.id, Waiting: rm.waitingViews()})
	c.logger.Info("participant promoted", zap.String("room_id", rm.id), zap.String("target", targetConnID), zap.String("by", actorConnID))
}
