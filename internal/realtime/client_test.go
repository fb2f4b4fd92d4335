package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-meet/backend/internal/auth"
	"github.com/aura-meet/backend/internal/meetings"
	"github.com/aura-meet/backend/internal/rooms"
	"github.com/aura-meet/backend/internal/session"
)

type testServer struct {
	*httptest.Server
	hub *Hub
	jwt *auth.JWTService
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil)
	coord := rooms.NewCoordinator(meetings.NewMemoryRepository(), session.NewStore(), hub, rooms.Config{}, nil)
	jwt := auth.NewJWTService("test-secret", 1)
	r := gin.New()
	r.GET("/ws", ServeWs(hub, coord, jwt, opts, zapNop()))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, hub: hub, jwt: jwt}
}

func (s *testServer) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(WSMessage{Event: event, Data: raw}))
}

// await reads until the named event arrives and decodes its data into out.
func await(t *testing.T, conn *websocket.Conn, event string, out interface{}) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Event == event {
			if out != nil {
				require.NoError(t, json.Unmarshal(msg.Data, out))
			}
			return
		}
	}
}

func TestServeWs_JoinSignalAndDisconnect(t *testing.T) {
	srv := newTestServer(t, Options{})

	alice := srv.dial(t, "name=Alice")
	var aliceHello ConnectedPayload
	await(t, alice, EventConnected, &aliceHello)
	assert.Equal(t, "Alice", aliceHello.Name)
	emit(t, alice, EventJoinRoom, map[string]string{"roomId": "R1"})
	var joined rooms.JoinedRoomPayload
	await(t, alice, rooms.EventJoinedRoom, &joined)
	assert.True(t, joined.IsHost)

	bob := srv.dial(t, "name=Bob")
	var bobHello ConnectedPayload
	await(t, bob, EventConnected, &bobHello)
	emit(t, bob, EventJoinRoom, map[string]string{"roomId": "R1"})
	var arrived rooms.UserJoinedPayload
	await(t, alice, rooms.EventUserJoined, &arrived)
	assert.Equal(t, bobHello.SocketID, arrived.SocketID)

	emit(t, alice, EventCallUser, map[string]interface{}{"socketId": arrived.SocketID, "offer": map[string]string{"type": "offer", "sdp": "v=0"}})
	var call rooms.IncomingCallPayload
	await(t, bob, rooms.EventIncomingCall, &call)
	assert.Equal(t, aliceHello.SocketID, call.From)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(call.Offer))

	require.NoError(t, bob.Close())
	var left rooms.UserLeftPayload
	await(t, alice, rooms.EventUserLeft, &left)
	assert.Equal(t, bobHello.SocketID, left.SocketID)
	require.Eventually(t, func() bool { return srv.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeWs_TokenPrefillsName(t *testing.T) {
	srv := newTestServer(t, Options{AuthRequired: true})

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/ws?token=garbage")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := srv.jwt.Generate(uuid.New(), "carol@example.com", "Carol")
	require.NoError(t, err)
	conn := srv.dial(t, "token="+token)
	var hello ConnectedPayload
	await(t, conn, EventConnected, &hello)
	assert.Equal(t, "Carol", hello.Name)
}

func TestServeWs_RejectsForeignOrigin(t *testing.T) {
	srv := newTestServer(t, Options{AllowOrigin: func(o string) bool { return o == "https://meet.example.com" }})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?name=Eve"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.test"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
