// Package meetings persists meetings, participants, chat, waiting-room entries and transcriptions,
// and serves meeting history over REST.
package meetings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-meet/backend/internal/models"
)

const uniqueViolation = "23505"

const meetingColumns = `id, room_id, title, host_name, host_socket_id, host_user_id,
	is_webinar, require_approval, record_meeting, max_participants, created_at, ended_at`

// Repository is the PostgreSQL store for meeting state.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a meetings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanMeeting(row pgx.Row) (*models.Meeting, error) {
	var m models.Meeting
	err := row.Scan(&m.ID, &m.RoomID, &m.Title, &m.HostName, &m.HostConnID, &m.HostUserID,
		&m.IsWebinar, &m.RequireApproval, &m.RecordMeeting, &m.MaxParticipants, &m.CreatedAt, &m.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMeeting inserts an open meeting. The partial unique index on open meetings per room
// turns a lost creation race into models.ErrOpenMeetingExists.
func (r *Repository) CreateMeeting(ctx context.Context, m *models.Meeting) error {
	const q = `INSERT INTO meetings (room_id, title, host_name, host_socket_id, host_user_id,
		is_webinar, require_approval, record_meeting, max_participants)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, q, m.RoomID, m.Title, m.HostName, m.HostConnID, m.HostUserID,
		m.IsWebinar, m.RequireApproval, m.RecordMeeting, m.MaxParticipants).Scan(&m.ID, &m.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return models.ErrOpenMeetingExists
	}
	return err
}

// GetOpenMeeting returns the room's open meeting or models.ErrNotFound.
func (r *Repository) GetOpenMeeting(ctx context.Context, roomID string) (*models.Meeting, error) {
	q := `SELECT ` + meetingColumns + ` FROM meetings WHERE room_id = $1 AND ended_at IS NULL`
	return scanMeeting(r.pool.QueryRow(ctx, q, roomID))
}

// GetMeeting returns a meeting by ID, open or ended.
func (r *Repository) GetMeeting(ctx context.Context, id uuid.UUID) (*models.Meeting, error) {
	q := `SELECT ` + meetingColumns + ` FROM meetings WHERE id = $1`
	return scanMeeting(r.pool.QueryRow(ctx, q, id))
}

// EndMeeting closes the room's open meeting and stamps left_at on anyone still recorded as present.
func (r *Repository) EndMeeting(ctx context.Context, roomID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var meetingID uuid.UUID
	err = tx.QueryRow(ctx, `UPDATE meetings SET ended_at = NOW()
		WHERE room_id = $1 AND ended_at IS NULL RETURNING id`, roomID).Scan(&meetingID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("end meeting: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE participants SET left_at = NOW()
		WHERE meeting_id = $1 AND left_at IS NULL`, meetingID); err != nil {
		return fmt.Errorf("close participants: %w", err)
	}
	return tx.Commit(ctx)
}

// AddParticipant inserts a participant for the current connection.
func (r *Repository) AddParticipant(ctx context.Context, p *models.Participant) error {
	const q = `INSERT INTO participants (meeting_id, user_id, name, socket_id, role, is_muted, is_video_off)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, joined_at`
	return r.pool.QueryRow(ctx, q, p.MeetingID, p.UserID, p.Name, p.ConnID, string(p.Role), p.AudioMuted, p.VideoOff).
		Scan(&p.ID, &p.JoinedAt)
}

// UpdateParticipantRole changes a participant's role.
func (r *Repository) UpdateParticipantRole(ctx context.Context, participantID uuid.UUID, role models.ParticipantRole) error {
	_, err := r.pool.Exec(ctx, `UPDATE participants SET role = $2 WHERE id = $1`, participantID, string(role))
	return err
}

// UpdateParticipantMedia records audio/video flags.
func (r *Repository) UpdateParticipantMedia(ctx context.Context, participantID uuid.UUID, audioMuted, videoOff bool) error {
	_, err := r.pool.Exec(ctx, `UPDATE participants SET is_muted = $2, is_video_off = $3 WHERE id = $1`,
		participantID, audioMuted, videoOff)
	return err
}

// RemoveParticipant stamps left_at on the connection's active participant row.
func (r *Repository) RemoveParticipant(ctx context.Context, connID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE participants SET left_at = NOW() WHERE socket_id = $1 AND left_at IS NULL`, connID)
	return err
}

// ListParticipants returns every participant of a meeting in join order.
func (r *Repository) ListParticipants(ctx context.Context, meetingID uuid.UUID) ([]models.Participant, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, meeting_id, user_id, name, socket_id, role, joined_at, left_at, is_muted, is_video_off
		FROM participants WHERE meeting_id = $1 ORDER BY joined_at, id`, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Participant{}
	for rows.Next() {
		var p models.Participant
		var role string
		if err := rows.Scan(&p.ID, &p.MeetingID, &p.UserID, &p.Name, &p.ConnID, &role,
			&p.JoinedAt, &p.LeftAt, &p.AudioMuted, &p.VideoOff); err != nil {
			return nil, err
		}
		p.Role = models.ParticipantRole(role)
		list = append(list, p)
	}
	return list, rows.Err()
}

// SaveChatMessage appends a chat message.
func (r *Repository) SaveChatMessage(ctx context.Context, m *models.ChatMessage) error {
	const q = `INSERT INTO chat_messages (meeting_id, participant_id, message, message_type, is_private, recipient_id, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	if m.MessageType == "" {
		m.MessageType = models.MessageTypeText
	}
	return r.pool.QueryRow(ctx, q, m.MeetingID, m.ParticipantID, m.Message, string(m.MessageType), m.IsPrivate, m.RecipientID, m.Timestamp).
		Scan(&m.ID)
}

// chatHistoryQuery orders by the insert sequence; timestamps tie within a clock tick.
const chatHistoryQuery = `SELECT c.id, c.meeting_id, c.participant_id, p.name, c.message, c.message_type,
		c.is_private, c.recipient_id, c.timestamp
		FROM chat_messages c JOIN participants p ON p.id = c.participant_id
		WHERE c.meeting_id = $1 AND c.is_private = FALSE
		ORDER BY c.seq`

// GetChatHistory returns the meeting's public chat in send order.
func (r *Repository) GetChatHistory(ctx context.Context, meetingID uuid.UUID) ([]models.ChatMessage, error) {
	rows, err := r.pool.Query(ctx, chatHistoryQuery, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.ChatMessage{}
	for rows.Next() {
		var m models.ChatMessage
		var kind string
		if err := rows.Scan(&m.ID, &m.MeetingID, &m.ParticipantID, &m.SenderName, &m.Message, &kind,
			&m.IsPrivate, &m.RecipientID, &m.Timestamp); err != nil {
			return nil, err
		}
		m.MessageType = models.MessageType(kind)
		list = append(list, m)
	}
	return list, rows.Err()
}

// AddToWaitingRoom inserts a waiting entry.
func (r *Repository) AddToWaitingRoom(ctx context.Context, e *models.WaitingEntry) error {
	const q = `INSERT INTO waiting_room (meeting_id, name, socket_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, requested_at`
	if e.Status == "" {
		e.Status = models.WaitingStatusWaiting
	}
	return r.pool.QueryRow(ctx, q, e.MeetingID, e.Name, e.ConnID, string(e.Status)).Scan(&e.ID, &e.RequestedAt)
}

// UpdateWaitingRoomStatus records an approval or denial.
func (r *Repository) UpdateWaitingRoomStatus(ctx context.Context, waitingID uuid.UUID, status models.WaitingStatus) error {
	_, err := r.pool.Exec(ctx, `UPDATE waiting_room SET status = $2 WHERE id = $1`, waitingID, string(status))
	return err
}

// RemoveFromWaitingRoom deletes a withdrawn waiting entry.
func (r *Repository) RemoveFromWaitingRoom(ctx context.Context, waitingID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM waiting_room WHERE id = $1`, waitingID)
	return err
}

// GetWaitingRoom returns the meeting's pending entries, oldest first.
func (r *Repository) GetWaitingRoom(ctx context.Context, meetingID uuid.UUID) ([]models.WaitingEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, meeting_id, name, socket_id, status, requested_at
		FROM waiting_room WHERE meeting_id = $1 AND status = 'waiting' ORDER BY requested_at, id`, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.WaitingEntry{}
	for rows.Next() {
		var e models.WaitingEntry
		var status string
		if err := rows.Scan(&e.ID, &e.MeetingID, &e.Name, &e.ConnID, &status, &e.RequestedAt); err != nil {
			return nil, err
		}
		e.Status = models.WaitingStatus(status)
		list = append(list, e)
	}
	return list, rows.Err()
}

// SaveTranscription appends a transcription segment.
func (r *Repository) SaveTranscription(ctx context.Context, t *models.Transcription) error {
	const q = `INSERT INTO transcriptions (meeting_id, participant_name, text, confidence)
		VALUES ($1, $2, $3, $4)
		RETURNING id, timestamp`
	return r.pool.QueryRow(ctx, q, t.MeetingID, t.ParticipantName, t.Text, t.Confidence).Scan(&t.ID, &t.Timestamp)
}

// GetTranscriptions returns a meeting's transcription segments in order.
func (r *Repository) GetTranscriptions(ctx context.Context, meetingID uuid.UUID) ([]models.Transcription, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, meeting_id, participant_name, text, confidence, timestamp
		FROM transcriptions WHERE meeting_id = $1 ORDER BY timestamp, id`, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Transcription{}
	for rows.Next() {
		var t models.Transcription
		if err := rows.Scan(&t.ID, &t.MeetingID, &t.ParticipantName, &t.Text, &t.Confidence, &t.Timestamp); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}
