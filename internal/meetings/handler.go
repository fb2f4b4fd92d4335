package meetings

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-meet/backend/internal/models"
	"github.com/aura-meet/backend/pkg/response"
)

// Reader is the read side of meeting history. Both Repository and MemoryRepository satisfy it.
type Reader interface {
	GetMeeting(ctx context.Context, id uuid.UUID) (*models.Meeting, error)
	GetOpenMeeting(ctx context.Context, roomID string) (*models.Meeting, error)
	ListParticipants(ctx context.Context, meetingID uuid.UUID) ([]models.Participant, error)
	GetChatHistory(ctx context.Context, meetingID uuid.UUID) ([]models.ChatMessage, error)
	GetTranscriptions(ctx context.Context, meetingID uuid.UUID) ([]models.Transcription, error)
	GetWaitingRoom(ctx context.Context, meetingID uuid.UUID) ([]models.WaitingEntry, error)
}

// ArchiveLinker hands out download links for uploaded meeting archives.
type ArchiveLinker interface {
	ArchiveURL(ctx context.Context, roomID, meetingID string) (string, error)
}

// Handler serves meeting history endpoints.
type Handler struct {
	repo     Reader
	archives ArchiveLinker
	logger   *zap.Logger
}

// NewHandler creates a meetings handler.
func NewHandler(repo Reader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// SetArchiveLinker enables GET /meetings/:id/archive.
func (h *Handler) SetArchiveLinker(a ArchiveLinker) { h.archives = a }

// Register mounts the meeting routes on an authenticated group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/meetings/:id", h.Get)
	rg.GET("/meetings/:id/participants", h.Participants)
	rg.GET("/meetings/:id/chat", h.Chat)
	rg.GET("/meetings/:id/transcriptions", h.Transcriptions)
	rg.GET("/meetings/:id/waiting", h.Waiting)
	rg.GET("/meetings/:id/archive", h.Archive)
	rg.GET("/rooms/:roomId/meeting", h.OpenMeeting)
}

// meeting resolves :id and writes the error response itself when it fails.
func (h *Handler) meeting(c *gin.Context) (*models.Meeting, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid meeting id")
		return nil, false
	}
	m, err := h.repo.GetMeeting(c.Request.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "meeting not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("get meeting", zap.String("meeting_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to load meeting")
		return nil, false
	}
	return m, true
}

// Get handles GET /meetings/:id.
func (h *Handler) Get(c *gin.Context) {
	m, ok := h.meeting(c)
	if !ok {
		return
	}
	response.OK(c, m)
}

// OpenMeeting handles GET /rooms/:roomId/meeting.
func (h *Handler) OpenMeeting(c *gin.Context) {
	roomID := c.Param("roomId")
	m, err := h.repo.GetOpenMeeting(c.Request.Context(), roomID)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "no open meeting for room")
		return
	}
	if err != nil {
		h.logger.Error("get open meeting", zap.String("room_id", roomID), zap.Error(err))
		response.Internal(c, "failed to load meeting")
		return
	}
	response.OK(c, m)
}

// Participants handles GET /meetings/:id/participants.
func (h *Handler) Participants(c *gin.Context) {
	m, ok := h.meeting(c)
	if !ok {
		return
	}
	list, err := h.repo.ListParticipants(c.Request.Context(), m.ID)
	if err != nil {
		h.logger.Error("list participants", zap.String("meeting_id", m.ID.String()), zap.Error(err))
		response.Internal(c, "failed to list participants")
		return
	}
	response.OK(c, list)
}

// Chat handles GET /meetings/:id/chat. Private messages are never listed.
func (h *Handler) Chat(c *gin.Context) {
	m, ok := h.meeting(c)
	if !ok {
		return
	}
	list, err := h.repo.GetChatHistory(c.Request.Context(), m.ID)
	if err != nil {
		h.logger.Error("get chat history", zap.String("meeting_id", m.ID.String()), zap.Error(err))
		response.Internal(c, "failed to load chat")
		return
	}
	response.OK(c, list)
}

// Transcriptions handles GET /meetings/:id/transcriptions.
func (h *Handler) Transcriptions(c *gin.Context) {
	m, ok := h.meeting(c)
	if !ok {
		return
	}
	list, err := h.repo.GetTranscriptions(c.Request.Context(), m.ID)
	if err != nil {
		h.logger.Error("get transcriptions", zap.String("meeting_id", m.ID.String()), zap.Error(err))
		response.Internal(c, "failed to load transcriptions")
		return
	}
	response.OK(c, list)
}

// Waiting handles GET /meetings/:id/waiting.
func (h *Handler) Waiting(c *gin.Context) {
	m, ok := h.meeting(c)
	if !ok {
		return
	}
	list, err := h.repo.GetWaitingRoom(c.Request.Context(), m.ID)
	if err != nil {
		h.logger.Error("get waiting room", zap.String("meeting_id", m.ID.String()), zap.Error(err))
		response.Internal(c, "failed to load waiting room")
		return
	}
	response.OK(c, list)
}

// Archive handles GET /meetings/:id/archive. Only ended, recorded meetings have one.
func (h *Handler) Archive(c *gin.Context) {
	if h.archives == nil {
		response.NotFound(c, "archiving is not enabled")
		return
	}
	m, ok := h.meeting(c)
	if !ok {
		return
	}
	if !m.RecordMeeting {
		response.NotFound(c, "meeting was not recorded")
		return
	}
	if m.IsOpen() {
		response.Conflict(c, "meeting is still in progress")
		return
	}
	url, err := h.archives.ArchiveURL(c.Request.Context(), m.RoomID, m.ID.String())
	if err != nil {
		h.logger.Error("archive url", zap.String("meeting_id", m.ID.String()), zap.Error(err))
		response.Internal(c, "failed to sign archive url")
		return
	}
	response.OK(c, gin.H{"url": url})
}
