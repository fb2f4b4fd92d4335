// Package session tracks live connections and the identity, room and participant bound to each.
package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/aura-meet/backend/internal/models"
)

// Connection is the in-memory identity of one live transport session.
type Connection struct {
	ID     string
	Name   string
	UserID *uuid.UUID
	// RoomID is set once the connection is admitted to a room.
	RoomID      string
	Participant *models.Participant
	// WaitingRoomID and WaitingID are set while the connection waits for host approval.
	WaitingRoomID string
	WaitingID     uuid.UUID
	// Closing is set once the transport has gone; the connection must not be admitted anywhere after that.
	Closing bool
}

// Admitted reports whether the connection is currently admitted to a room.
func (c Connection) Admitted() bool {
	return c.RoomID != ""
}

// Waiting reports whether the connection is held in a waiting room.
func (c Connection) Waiting() bool {
	return c.WaitingRoomID != ""
}

// Store maps connection ids to names, rooms and participant records.
// All indexes are updated under one lock so observers never see a half-forgotten connection.
type Store struct {
	mu     sync.RWMutex
	conns  map[string]*Connection
	byName map[string]string
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		conns:  make(map[string]*Connection),
		byName: make(map[string]string),
	}
}

// RegisterConnection records a live connection under a display name. Re-registering renames it.
// The most recent connection to claim a name wins the name index.
func (s *Store) RegisterConnection(connID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[connID]
	if !ok {
		c = &Connection{ID: connID}
		s.conns[connID] = c
	}
	if c.Name != "" && c.Name != name && s.byName[c.Name] == connID {
		delete(s.byName, c.Name)
	}
	c.Name = name
	if name != "" {
		s.byName[name] = connID
	}
}

// SetUser attaches an authenticated user id to the connection.
func (s *Store) SetUser(connID string, userID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[connID]
	if !ok {
		return false
	}
	id := userID
	c.UserID = &id
	return true
}

// ResolveName returns the display name registered for connID.
func (s *Store) ResolveName(connID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[connID]
	if !ok {
		return "", false
	}
	return c.Name, true
}

// ResolveConnection returns the connection currently holding name.
func (s *Store) ResolveConnection(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[name]
	return id, ok
}

// Lookup returns a copy of the connection's current bindings.
func (s *Store) Lookup(connID string) (Connection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[connID]
	if !ok {
		return Connection{}, false
	}
	out := *c
	if c.Participant != nil {
		p := *c.Participant
		out.Participant = &p
	}
	return out, true
}

// MarkClosing flags the connection as going away and returns its bindings at that instant.
func (s *Store) MarkClosing(connID string) (Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[connID]
	if !ok {
		return Connection{}, false
	}
	c.Closing = true
	out := *c
	if c.Participant != nil {
		p := *c.Participant
		out.Participant = &p
	}
	return out, true
}

// BindRoom marks the connection as admitted to roomID and clears any waiting state.
func (s *Store) BindRoom(connID, roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[connID]
	if !ok {
		return false
	}
	c.RoomID = roomID
	c.WaitingRoomID = ""
	c.WaitingID = uuid.Nil
	return true
}

// BindParticipant stores a copy of the participant record admitted for the connection.
func (s *Store) BindParticipant(connID string, p models.Participant) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[connID]
	if !ok {
		return false
	}
	c.Participant = &p
	return true
}

// BindWaiting marks the connection as pending approval for roomID.
func (s *Store) BindWaiting(connID, roomID string, waitingID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[connID]
	if !ok {
		return false
	}
	c.WaitingRoomID = roomID
	c.WaitingID = waitingID
	return true
}

// ClearWaiting drops the connection's pending approval state.
func (s *Store) ClearWaiting(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conns[connID]; ok {
		c.WaitingRoomID = ""
		c.WaitingID = uuid.Nil
	}
}

// UnbindRoom detaches the connection from its room and participant; the connection stays registered.
func (s *Store) UnbindRoom(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conns[connID]; ok {
		c.RoomID = ""
		c.Participant = nil
	}
}

// Forget removes the connection from every index.
func (s *Store) Forget(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[connID]
	if !ok {
		return
	}
	if c.Name != "" && s.byName[c.Name] == connID {
		delete(s.byName, c.Name)
	}
	delete(s.conns, connID)
}

// Len returns the number of live connections.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}
