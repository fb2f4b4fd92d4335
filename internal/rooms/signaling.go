package rooms

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/aura-meet/backend/internal/session"
)

// peers resolves the sender and the target of a relay. target is a socket id or a display name.
// Both must be admitted to the same room; otherwise ok is false and the relay is dropped.
func (c *Coordinator) peers(fromConnID, target string) (from, to session.Connection, ok bool) {
	from, found := c.sessions.Lookup(fromConnID)
	if !found || !from.Admitted() || target == "" {
		return from, to, false
	}
	to, found = c.sessions.Lookup(target)
	if !found {
		connID, byName := c.sessions.ResolveConnection(target)
		if !byName {
			return from, to, false
		}
		if to, found = c.sessions.Lookup(connID); !found {
			return from, to, false
		}
	}
	if to.ID == from.ID || !to.Admitted() || to.RoomID != from.RoomID {
		return from, to, false
	}
	return from, to, true
}

func (c *Coordinator) dropRelay(event, fromConnID, target string) {
	c.logger.Debug("relay target not reachable",
		zap.String("event", event), zap.String("conn_id", fromConnID), zap.String("target", target))
}

// RelayOffer forwards an SDP offer to target as incomming-call.
func (c *Coordinator) RelayOffer(fromConnID, target string, offer json.RawMessage) {
	from, to, ok := c.peers(fromConnID, target)
	if !ok {
		c.dropRelay(EventIncomingCall, fromConnID, target)
		return
	}
	c.notifier.Send(to.ID, EventIncomingCall, IncomingCallPayload{From: from.ID, FromName: from.Name, Offer: offer})
}

// RelayAnswer forwards an SDP answer to target as call-accepted.
func (c *Coordinator) RelayAnswer(fromConnID, target string, answer json.RawMessage) {
	from, to, ok := c.peers(fromConnID, target)
	if !ok {
		c.dropRelay(EventCallAccepted, fromConnID, target)
		return
	}
	c.notifier.Send(to.ID, EventCallAccepted, CallAcceptedPayload{From: from.ID, FromName: from.Name, Ans: answer})
}

// RelayIceCandidate forwards one ICE candidate to target.
func (c *Coordinator) RelayIceCandidate(fromConnID, target string, candidate json.RawMessage) {
	from, to, ok := c.peers(fromConnID, target)
	if !ok {
		c.dropRelay(EventIceCandidate, fromConnID, target)
		return
	}
	c.notifier.Send(to.ID, EventIceCandidate, IceCandidatePayload{From: from.ID, Candidate: candidate})
}

// RelayEndCall tells target that the sender hung up on their peer connection.
func (c *Coordinator) RelayEndCall(fromConnID, target string) {
	from, to, ok := c.peers(fromConnID, target)
	if !ok {
		c.dropRelay(EventCallEnded, fromConnID, target)
		return
	}
	c.notifier.Send(to.ID, EventCallEnded, CallEndedPayload{From: from.ID, FromName: from.Name})
}
