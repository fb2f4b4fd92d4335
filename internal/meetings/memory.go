package meetings

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aura-meet/backend/internal/models"
)

// MemoryRepository keeps meeting state in process memory. It backs STORE_DRIVER=memory
// deployments and tests. Records are copied in and out so callers never share storage.
type MemoryRepository struct {
	mu             sync.Mutex
	meetings       []*models.Meeting
	participants   []*models.Participant
	chat           []*models.ChatMessage
	waiting        []*models.WaitingEntry
	transcriptions []*models.Transcription
}

// NewMemoryRepository creates an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func now() time.Time {
	return time.Now().UTC()
}

// CreateMeeting inserts an open meeting unless the room already has one.
func (r *MemoryRepository) CreateMeeting(_ context.Context, m *models.Meeting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.meetings {
		if existing.RoomID == m.RoomID && existing.IsOpen() {
			return models.ErrOpenMeetingExists
		}
	}
	m.ID = uuid.New()
	m.CreatedAt = now()
	m.EndedAt = nil
	cp := *m
	r.meetings = append(r.meetings, &cp)
	return nil
}

// GetOpenMeeting returns the room's open meeting or models.ErrNotFound.
func (r *MemoryRepository) GetOpenMeeting(_ context.Context, roomID string) (*models.Meeting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.meetings {
		if m.RoomID == roomID && m.IsOpen() {
			cp := *m
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

// GetMeeting returns a meeting by ID.
func (r *MemoryRepository) GetMeeting(_ context.Context, id uuid.UUID) (*models.Meeting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.meetings {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

// EndMeeting closes the room's open meeting and its still-present participants.
func (r *MemoryRepository) EndMeeting(_ context.Context, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := now()
	for _, m := range r.meetings {
		if m.RoomID != roomID || !m.IsOpen() {
			continue
		}
		ended := t
		m.EndedAt = &ended
		for _, p := range r.participants {
			if p.MeetingID == m.ID && p.LeftAt == nil {
				left := t
				p.LeftAt = &left
			}
		}
	}
	return nil
}

// AddParticipant inserts a participant.
func (r *MemoryRepository) AddParticipant(_ context.Context, p *models.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = uuid.New()
	p.JoinedAt = now()
	cp := *p
	r.participants = append(r.participants, &cp)
	return nil
}

func (r *MemoryRepository) participant(id uuid.UUID) *models.Participant {
	for _, p := range r.participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// UpdateParticipantRole changes a participant's role.
func (r *MemoryRepository) UpdateParticipantRole(_ context.Context, participantID uuid.UUID, role models.ParticipantRole) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p := r.participant(participantID); p != nil {
		p.Role = role
	}
	return nil
}

// UpdateParticipantMedia records audio/video flags.
func (r *MemoryRepository) UpdateParticipantMedia(_ context.Context, participantID uuid.UUID, audioMuted, videoOff bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p := r.participant(participantID); p != nil {
		p.AudioMuted = audioMuted
		p.VideoOff = videoOff
	}
	return nil
}

// RemoveParticipant stamps left_at on the connection's active participant rows.
func (r *MemoryRepository) RemoveParticipant(_ context.Context, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := now()
	for _, p := range r.participants {
		if p.ConnID == connID && p.LeftAt == nil {
			left := t
			p.LeftAt = &left
		}
	}
	return nil
}

// ListParticipants returns every participant of a meeting in join order.
func (r *MemoryRepository) ListParticipants(_ context.Context, meetingID uuid.UUID) ([]models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := []models.Participant{}
	for _, p := range r.participants {
		if p.MeetingID == meetingID {
			list = append(list, *p)
		}
	}
	return list, nil
}

// SaveChatMessage appends a chat message.
func (r *MemoryRepository) SaveChatMessage(_ context.Context, m *models.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = uuid.New()
	if m.Timestamp.IsZero() {
		m.Timestamp = now()
	}
	if m.MessageType == "" {
		m.MessageType = models.MessageTypeText
	}
	if p := r.participant(m.ParticipantID); p != nil && m.SenderName == "" {
		m.SenderName = p.Name
	}
	cp := *m
	r.chat = append(r.chat, &cp)
	return nil
}

// GetChatHistory returns the meeting's public chat in send order.
func (r *MemoryRepository) GetChatHistory(_ context.Context, meetingID uuid.UUID) ([]models.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := []models.ChatMessage{}
	for _, m := range r.chat {
		if m.MeetingID == meetingID && !m.IsPrivate {
			list = append(list, *m)
		}
	}
	return list, nil
}

// AddToWaitingRoom inserts a waiting entry.
func (r *MemoryRepository) AddToWaitingRoom(_ context.Context, e *models.WaitingEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = uuid.New()
	e.RequestedAt = now()
	if e.Status == "" {
		e.Status = models.WaitingStatusWaiting
	}
	cp := *e
	r.waiting = append(r.waiting, &cp)
	return nil
}

// UpdateWaitingRoomStatus records an approval or denial.
func (r *MemoryRepository) UpdateWaitingRoomStatus(_ context.Context, waitingID uuid.UUID, status models.WaitingStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.waiting {
		if e.ID == waitingID {
			e.Status = status
		}
	}
	return nil
}

// RemoveFromWaitingRoom deletes a withdrawn waiting entry.
func (r *MemoryRepository) RemoveFromWaitingRoom(_ context.Context, waitingID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.waiting {
		if e.ID == waitingID {
			r.waiting = append(r.waiting[:i], r.waiting[i+1:]...)
			return nil
		}
	}
	return nil
}

// GetWaitingRoom returns the meeting's pending entries, oldest first.
func (r *MemoryRepository) GetWaitingRoom(_ context.Context, meetingID uuid.UUID) ([]models.WaitingEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := []models.WaitingEntry{}
	for _, e := range r.waiting {
		if e.MeetingID == meetingID && e.Status == models.WaitingStatusWaiting {
			list = append(list, *e)
		}
	}
	return list, nil
}

// SaveTranscription appends a transcription segment.
func (r *MemoryRepository) SaveTranscription(_ context.Context, t *models.Transcription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.ID = uuid.New()
	if t.Timestamp.IsZero() {
		t.Timestamp = now()
	}
	cp := *t
	r.transcriptions = append(r.transcriptions, &cp)
	return nil
}

// GetTranscriptions returns a meeting's transcription segments in order.
func (r *MemoryRepository) GetTranscriptions(_ context.Context, meetingID uuid.UUID) ([]models.Transcription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := []models.Transcription{}
	for _, t := range r.transcriptions {
		if t.MeetingID == meetingID {
			list = append(list, *t)
		}
	}
	return list, nil
}
