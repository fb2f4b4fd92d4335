package presence

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-meet/backend/pkg/response"
)

// Handler serves the live room listing.
type Handler struct {
	rooms  Lister
	logger *zap.Logger
}

// NewHandler creates a presence handler.
func NewHandler(rooms Lister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{rooms: rooms, logger: logger}
}

// List handles GET /rooms.
func (h *Handler) List(c *gin.Context) {
	list, err := h.rooms.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list rooms failed", zap.Error(err))
		response.Internal(c, "failed to list rooms")
		return
	}
	response.OK(c, gin.H{"rooms": list})
}
