// Package presence mirrors live room occupancy into Redis so operators and other
// services can list active rooms without reaching into the coordinator.
package presence

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aura-meet/backend/internal/rooms"
)

const (
	// DefaultKey is the Redis hash holding room id -> admitted count.
	DefaultKey = "presence:rooms"
	// BufferSize bounds pending occupancy updates.
	BufferSize = 1024
)

// Room is one live room in a listing.
type Room struct {
	RoomID       string `json:"roomId"`
	Participants int    `json:"participants"`
}

// Lister lists live rooms.
type Lister interface {
	List(ctx context.Context) ([]Room, error)
}

// ListerFunc adapts a function to Lister.
type ListerFunc func(ctx context.Context) ([]Room, error)

// List calls f.
func (f ListerFunc) List(ctx context.Context) ([]Room, error) { return f(ctx) }

// Local lists rooms straight from the coordinator's registry.
func Local(coord *rooms.Coordinator) Lister {
	return ListerFunc(func(context.Context) ([]Room, error) {
		snaps := coord.Rooms()
		out := make([]Room, 0, len(snaps))
		for _, s := range snaps {
			if len(s.Participants) == 0 {
				continue
			}
			out = append(out, Room{RoomID: s.RoomID, Participants: len(s.Participants)})
		}
		sortRooms(out)
		return out, nil
	})
}

type update struct {
	roomID string
	count  int
}

// Mirror writes occupancy changes to a Redis hash. Updates are queued and applied
// in arrival order by Run so the coordinator never waits on Redis.
type Mirror struct {
	client  *redis.Client
	key     string
	updates chan update
	logger  *zap.Logger
}

// NewMirror creates a presence mirror writing to key (DefaultKey when empty).
func NewMirror(client *redis.Client, key string, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	if key == "" {
		key = DefaultKey
	}
	return &Mirror{
		client:  client,
		key:     key,
		updates: make(chan update, BufferSize),
		logger:  logger,
	}
}

// OnOccupancy queues a room's new admitted count. It never blocks; when the buffer
// is full the update is dropped and logged.
func (m *Mirror) OnOccupancy(roomID string, count int) {
	select {
	case m.updates <- update{roomID: roomID, count: count}:
	default:
		m.logger.Warn("presence update dropped", zap.String("room_id", roomID), zap.Int("count", count))
	}
}

// Run applies queued updates until ctx is done.
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-m.updates:
			if err := m.apply(ctx, u); err != nil {
				m.logger.Warn("presence update failed", zap.String("room_id", u.roomID), zap.Error(err))
			}
		}
	}
}

func (m *Mirror) apply(ctx context.Context, u update) error {
	if u.count <= 0 {
		return m.client.HDel(ctx, m.key, u.roomID).Err()
	}
	return m.client.HSet(ctx, m.key, u.roomID, u.count).Err()
}

// Reset clears the mirror. Called at startup since no rooms survive a restart.
func (m *Mirror) Reset(ctx context.Context) error {
	if err := m.client.Del(ctx, m.key).Err(); err != nil {
		return fmt.Errorf("reset presence: %w", err)
	}
	return nil
}

// List returns the mirrored rooms ordered by room id.
func (m *Mirror) List(ctx context.Context) ([]Room, error) {
	raw, err := m.client.HGetAll(ctx, m.key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall: %w", err)
	}
	out := make([]Room, 0, len(raw))
	for roomID, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			m.logger.Warn("invalid presence count", zap.String("room_id", roomID), zap.String("value", v))
			continue
		}
		out = append(out, Room{RoomID: roomID, Participants: n})
	}
	sortRooms(out)
	return out, nil
}

func sortRooms(list []Room) {
	sort.Slice(list, func(i, j int) bool { return list[i].RoomID < list[j].RoomID })
}
