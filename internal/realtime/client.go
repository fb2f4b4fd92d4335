package realtime

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aura-meet/backend/internal/auth"
	"github.com/aura-meet/backend/internal/rooms"
)

// EventConnected tells a new connection its socket id.
const EventConnected = "connected"

const (
	maxMessageSize = 65536
	writeWait      = 10 * time.Second
)

// IdentityVerifier resolves an identity token to a user.
type IdentityVerifier interface {
	VerifyIdentity(token string) (auth.Identity, error)
}

// Options configures the websocket endpoint.
type Options struct {
	// AuthRequired rejects upgrades without a valid token.
	AuthRequired bool
	// AllowOrigin decides cross-origin upgrades. Nil allows all.
	AllowOrigin func(origin string) bool
}

// ConnectedPayload is sent once after upgrade.
type ConnectedPayload struct {
	SocketID string `json:"socketId"`
	Name     string `json:"name,omitempty"`
}

// Client represents a single WebSocket connection.
type Client struct {
	ID        string
	UserID    *uuid.UUID
	hub       *Hub
	coord     *rooms.Coordinator
	conn      *websocket.Conn
	send      chan WSMessage
	closeOnce sync.Once
	logger    *zap.Logger
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// ServeWs handles the WebSocket upgrade and runs the client loop.
// Query: token (identity JWT, optional unless AuthRequired) and name (display name override).
func ServeWs(hub *Hub, coord *rooms.Coordinator, verifier IdentityVerifier, opts Options, logger *zap.Logger) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || opts.AllowOrigin == nil || opts.AllowOrigin(origin)
		},
	}
	return func(c *gin.Context) {
		name := strings.TrimSpace(c.Query("name"))
		var userID *uuid.UUID
		if token := c.Query("token"); token != "" && verifier != nil {
			id, err := verifier.VerifyIdentity(token)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			userID = &id.UserID
			if name == "" {
				name = id.DisplayName
			}
		} else if opts.AuthRequired {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:     uuid.New().String(),
			UserID: userID,
			hub:    hub,
			coord:  coord,
			conn:   conn,
			send:   make(chan WSMessage, sendBuffer),
		}
		client.logger = logger.With(zap.String("conn_id", client.ID))
		hub.Register(client)
		coord.Connect(client.ID, name, userID)
		hub.Send(client.ID, EventConnected, ConnectedPayload{SocketID: client.ID, Name: name})
		go client.writePump()
		client.readPump(c.Request.Context())
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		// The request context may already be done; cleanup must still reach the store.
		c.coord.Disconnect(context.WithoutCancel(ctx), c.ID)
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		ev, err := Decode(msg)
		if err != nil {
			if errors.Is(err, ErrUnknownEvent) {
				c.logger.Debug("ignoring unknown event", zap.String("event", msg.Event))
			} else {
				c.logger.Warn("malformed event", zap.String("event", msg.Event), zap.Error(err))
			}
			continue
		}
		c.dispatch(ctx, ev)
	}
}

// dispatch routes one decoded event to the coordinator.
func (c *Client) dispatch(ctx context.Context, ev Inbound) {
	switch e := ev.(type) {
	case JoinRoom:
		c.coord.Join(ctx, c.ID, rooms.JoinRequest{RoomID: e.RoomID, Name: e.Name, Options: e.MeetingOptions})
	case LeaveRoom:
		c.coord.Leave(ctx, c.ID, e.RoomID)
	case CallUser:
		c.coord.RelayOffer(c.ID, e.Target(), e.Offer)
	case CallAccepted:
		c.coord.RelayAnswer(c.ID, e.Target(), e.Ans)
	case IceCandidate:
		c.coord.RelayIceCandidate(c.ID, e.Target(), e.Candidate)
	case EndCall:
		c.coord.RelayEndCall(c.ID, e.Target())
	case ChatMessage:
		c.coord.SendChat(ctx, c.ID, rooms.ChatRequest{RoomID: e.RoomID, Message: e.Message, To: e.To})
	case MuteParticipant:
		c.coord.Mute(ctx, c.ID, e.SocketID, e.RoomID)
	case RemoveParticipant:
		c.coord.Remove(ctx, c.ID, e.SocketID, e.RoomID)
	case PromoteToCohost:
		c.coord.Promote(ctx, c.ID, e.SocketID, e.RoomID)
	case ApproveParticipant:
		c.coord.ApproveWaiting(ctx, c.ID, e.WaitingID, e.Approved)
	case ToggleMedia:
		c.coord.ToggleMedia(ctx, c.ID, rooms.MediaRequest{RoomID: e.RoomID, AudioMuted: e.AudioMuted, VideoOff: e.VideoOff})
	case Transcription:
		c.coord.SaveTranscription(ctx, c.ID, rooms.TranscriptionRequest{RoomID: e.RoomID, Text: e.Text, Confidence: e.Confidence})
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
