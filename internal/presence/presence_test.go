package presence

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-meet/backend/internal/meetings"
	"github.com/aura-meet/backend/internal/rooms"
	"github.com/aura-meet/backend/internal/session"
)

func newMirror(t *testing.T) (*Mirror, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewMirror(client, "", nil), mr
}

func TestMirrorAppliesUpdatesInOrder(t *testing.T) {
	m, mr := newMirror(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.OnOccupancy("R1", 1)
	m.OnOccupancy("R1", 2)
	m.OnOccupancy("R2", 1)
	m.OnOccupancy("R2", 0)

	assert.Eventually(t, func() bool {
		list, err := m.List(ctx)
		return err == nil && len(list) == 1 && list[0] == Room{RoomID: "R1", Participants: 2}
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, mr.HGet(DefaultKey, "R2"))
}

func TestMirrorResetAndListOrdering(t *testing.T) {
	m, mr := newMirror(t)
	ctx := context.Background()
	mr.HSet(DefaultKey, "b", "3")
	mr.HSet(DefaultKey, "a", "1")
	mr.HSet(DefaultKey, "junk", "x")

	list, err := m.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Room{{RoomID: "a", Participants: 1}, {RoomID: "b", Participants: 3}}, list)

	require.NoError(t, m.Reset(ctx))
	list, err = m.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMirrorDropsWhenBufferFull(t *testing.T) {
	m, _ := newMirror(t)
	for i := 0; i < BufferSize+10; i++ {
		m.OnOccupancy("R1", i)
	}
	assert.Len(t, m.updates, BufferSize)
}

type discard struct{}

func (discard) Send(string, string, interface{}) {}

func TestLocalListsAdmittedRooms(t *testing.T) {
	sessions := session.NewStore()
	coord := rooms.NewCoordinator(meetings.NewMemoryRepository(), sessions, discard{}, rooms.Config{}, nil)
	ctx := context.Background()
	coord.Connect("c1", "Alice", nil)
	coord.Connect("c2", "Bob", nil)
	coord.Join(ctx, "c1", rooms.JoinRequest{RoomID: "zeta", Name: "Alice"})
	coord.Join(ctx, "c2", rooms.JoinRequest{RoomID: "alpha", Name: "Bob"})

	list, err := Local(coord).List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Room{{RoomID: "alpha", Participants: 1}, {RoomID: "zeta", Participants: 1}}, list)
}

func TestHandlerList(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/rooms", NewHandler(ListerFunc(func(context.Context) ([]Room, error) {
		return []Room{{RoomID: "R1", Participants: 4}}, nil
	}), nil).List)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Rooms []Room `json:"rooms"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, []Room{{RoomID: "R1", Participants: 4}}, body.Data.Rooms)

	failing := gin.New()
	failing.GET("/rooms", NewHandler(ListerFunc(func(context.Context) ([]Room, error) {
		return nil, errors.New("redis down")
	}), nil).List)
	w = httptest.NewRecorder()
	failing.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
