package rooms

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aura-meet/backend/internal/meetings"
	"github.com/aura-meet/backend/internal/models"
	"github.com/aura-meet/backend/internal/session"
)

var errStoreDown = errors.New("store down")

type delivery struct {
	conn    string
	event   string
	payload interface{}
}

// recorder is a Notifier that keeps every delivery for inspection.
type recorder struct {
	mu  sync.Mutex
	out []delivery
}

func (r *recorder) Send(connID, event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, delivery{conn: connID, event: event, payload: payload})
}

func (r *recorder) all() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery(nil), r.out...)
}

func (r *recorder) to(connID, event string) []interface{} {
	var out []interface{}
	for _, d := range r.all() {
		if d.conn == connID && d.event == event {
			out = append(out, d.payload)
		}
	}
	return out
}

func (r *recorder) last(t *testing.T, connID, event string) interface{} {
	t.Helper()
	got := r.to(connID, event)
	require.NotEmpty(t, got, "no %s delivered to %s", event, connID)
	return got[len(got)-1]
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = nil
}

// flakyStore fails selected operations on demand, and can park one call to an operation
// so a test can interleave other work while the caller holds its room lock.
type flakyStore struct {
	*meetings.MemoryRepository
	mu      sync.Mutex
	failing map[string]bool
	held    map[string]*heldCall
}

type heldCall struct {
	entered chan struct{}
	release chan struct{}
}

func newFlakyStore() *flakyStore {
	return &flakyStore{
		MemoryRepository: meetings.NewMemoryRepository(),
		failing:          make(map[string]bool),
		held:             make(map[string]*heldCall),
	}
}

// hold parks the next call to op. entered closes once the call is parked; closing release lets it continue.
func (s *flakyStore) hold(op string) (entered <-chan struct{}, release chan<- struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hc := &heldCall{entered: make(chan struct{}), release: make(chan struct{})}
	s.held[op] = hc
	return hc.entered, hc.release
}

func (s *flakyStore) fail(ops ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range ops {
		s.failing[op] = true
	}
}

func (s *flakyStore) heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = make(map[string]bool)
}

func (s *flakyStore) check(op string) error {
	s.mu.Lock()
	hc := s.held[op]
	delete(s.held, op)
	s.mu.Unlock()
	if hc != nil {
		close(hc.entered)
		<-hc.release
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing[op] {
		return errStoreDown
	}
	return nil
}

func (s *flakyStore) CreateMeeting(ctx context.Context, m *models.Meeting) error {
	if err := s.check("CreateMeeting"); err != nil {
		return err
	}
	return s.MemoryRepository.CreateMeeting(ctx, m)
}

func (s *flakyStore) AddParticipant(ctx context.Context, p *models.Participant) error {
	if err := s.check("AddParticipant"); err != nil {
		return err
	}
	return s.MemoryRepository.AddParticipant(ctx, p)
}

func (s *flakyStore) RemoveParticipant(ctx context.Context, connID string) error {
	if err := s.check("RemoveParticipant"); err != nil {
		return err
	}
	return s.MemoryRepository.RemoveParticipant(ctx, connID)
}

func (s *flakyStore) SaveChatMessage(ctx context.Context, m *models.ChatMessage) error {
	if err := s.check("SaveChatMessage"); err != nil {
		return err
	}
	return s.MemoryRepository.SaveChatMessage(ctx, m)
}

func (s *flakyStore) AddToWaitingRoom(ctx context.Context, e *models.WaitingEntry) error {
	if err := s.check("AddToWaitingRoom"); err != nil {
		return err
	}
	return s.MemoryRepository.AddToWaitingRoom(ctx, e)
}

func (s *flakyStore) EndMeeting(ctx context.Context, roomID string) error {
	if err := s.check("EndMeeting"); err != nil {
		return err
	}
	return s.MemoryRepository.EndMeeting(ctx, roomID)
}

func (s *flakyStore) UpdateWaitingRoomStatus(ctx context.Context, id uuid.UUID, status models.WaitingStatus) error {
	if err := s.check("UpdateWaitingRoomStatus"); err != nil {
		return err
	}
	return s.MemoryRepository.UpdateWaitingRoomStatus(ctx, id, status)
}

func (s *flakyStore) UpdateParticipantRole(ctx context.Context, id uuid.UUID, role models.ParticipantRole) error {
	if err := s.check("UpdateParticipantRole"); err != nil {
		return err
	}
	return s.MemoryRepository.UpdateParticipantRole(ctx, id, role)
}

type harness struct {
	store    *flakyStore
	sessions *session.Store
	rec      *recorder
	coord    *Coordinator
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		store:    newFlakyStore(),
		sessions: session.NewStore(),
		rec:      &recorder{},
	}
	h.coord = NewCoordinator(h.store, h.sessions, h.rec, cfg, nil)
	return h
}

// join connects connID under name and joins roomID.
func (h *harness) join(connID, name, roomID string, opts models.MeetingOptions) {
	if _, ok := h.sessions.Lookup(connID); !ok {
		h.coord.Connect(connID, name, nil)
	}
	h.coord.Join(context.Background(), connID, JoinRequest{RoomID: roomID, Name: name, Options: opts})
}

// activeParticipants counts participant rows with left_at unset for the room's open meeting.
func (h *harness) activeParticipants(t *testing.T, roomID string) int {
	t.Helper()
	ctx := context.Background()
	m, err := h.store.GetOpenMeeting(ctx, roomID)
	if errors.Is(err, models.ErrNotFound) {
		return 0
	}
	require.NoError(t, err)
	list, err := h.store.ListParticipants(ctx, m.ID)
	require.NoError(t, err)
	n := 0
	for _, p := range list {
		if p.LeftAt == nil {
			n++
		}
	}
	return n
}

func (h *harness) roster(t *testing.T, roomID string) []string {
	t.Helper()
	snap, ok := h.coord.Room(roomID)
	if !ok {
		return nil
	}
	var names []string
	for _, p := range snap.Participants {
		names = append(names, p.Name)
	}
	return names
}
