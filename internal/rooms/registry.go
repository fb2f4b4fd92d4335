package rooms

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aura-meet/backend/internal/models"
)

type member struct {
	connID      string
	participant models.Participant
}

type waiter struct {
	entry  models.WaitingEntry
	userID *uuid.UUID
	timer  *time.Timer
}

func (w *waiter) stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
}

// room is the in-memory state of one active room. Only touched while its room lock is held.
type room struct {
	id      string
	meeting *models.Meeting
	members []*member // admission order
	waiting []*waiter // FIFO
}

func newRoom(id string, meeting *models.Meeting) *room {
	return &room{id: id, meeting: meeting}
}

func (r *room) member(connID string) *member {
	for _, m := range r.members {
		if m.connID == connID {
			return m
		}
	}
	return nil
}

func (r *room) memberByName(name string) *member {
	for _, m := range r.members {
		if m.participant.Name == name {
			return m
		}
	}
	return nil
}

func (r *room) removeMember(connID string) *member {
	for i, m := range r.members {
		if m.connID == connID {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return m
		}
	}
	return nil
}

func (r *room) host() *member {
	for _, m := range r.members {
		if m.participant.Role == models.ParticipantRoleHost {
			return m
		}
	}
	return nil
}

func (r *room) moderators() []*member {
	var out []*member
	for _, m := range r.members {
		if m.participant.Role.CanModerate() {
			out = append(out, m)
		}
	}
	return out
}

func (r *room) waiter(id uuid.UUID) *waiter {
	for _, w := range r.waiting {
		if w.entry.ID == id {
			return w
		}
	}
	return nil
}

func (r *room) waiterByConn(connID string) *waiter {
	for _, w := range r.waiting {
		if w.entry.ConnID == connID {
			return w
		}
	}
	return nil
}

func (r *room) removeWaiter(id uuid.UUID) *waiter {
	for i, w := range r.waiting {
		if w.entry.ID == id {
			r.waiting = append(r.waiting[:i], r.waiting[i+1:]...)
			return w
		}
	}
	return nil
}

func (r *room) empty() bool {
	return len(r.members) == 0 && len(r.waiting) == 0
}

func (r *room) roster() []ParticipantView {
	out := make([]ParticipantView, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, ParticipantView{
			SocketID:   m.connID,
			Name:       m.participant.Name,
			Role:       m.participant.Role,
			AudioMuted: m.participant.AudioMuted,
			VideoOff:   m.participant.VideoOff,
		})
	}
	return out
}

func (r *room) waitingViews() []WaitingView {
	out := make([]WaitingView, 0, len(r.waiting))
	for _, w := range r.waiting {
		out = append(out, WaitingView{
			WaitingID:   w.entry.ID,
			Name:        w.entry.Name,
			SocketID:    w.entry.ConnID,
			RequestedAt: w.entry.RequestedAt,
		})
	}
	return out
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

// registry holds active rooms and serializes work per room id.
// The registry mutex guards only the two maps; room contents are guarded by the room lock.
type registry struct {
	mu    sync.Mutex
	rooms map[string]*room
	locks map[string]*roomLock
}

func newRegistry() *registry {
	return &registry{
		rooms: make(map[string]*room),
		locks: make(map[string]*roomLock),
	}
}

// lock blocks until the caller owns roomID and returns the release func.
// Lock entries are reference counted so an idle room id holds no memory.
func (g *registry) lock(roomID string) func() {
	g.mu.Lock()
	l, ok := g.locks[roomID]
	if !ok {
		l = &roomLock{}
		g.locks[roomID] = l
	}
	l.refs++
	g.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		g.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(g.locks, roomID)
		}
		g.mu.Unlock()
	}
}

func (g *registry) get(roomID string) *room {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rooms[roomID]
}

func (g *registry) put(r *room) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rooms[r.id] = r
}

func (g *registry) evict(roomID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rooms, roomID)
}

func (g *registry) ids() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.rooms))
	for id := range g.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
