package rooms

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-meet/backend/internal/models"
)

var noOpts models.MeetingOptions

func TestJoinRemoveLeaveScenario(t *testing.T) {
	h := newHarness(t, Config{})

	h.join("a", "Alice", "R1", noOpts)
	joined := h.rec.last(t, "a", EventJoinedRoom).(JoinedRoomPayload)
	assert.Equal(t, "host", joined.Role)
	assert.True(t, joined.IsHost)
	assert.Equal(t, "Meeting R1", joined.Meeting.Title)
	assert.Equal(t, []string{"Alice"}, h.roster(t, "R1"))
	firstMeeting := joined.Meeting.ID

	h.join("b", "Bob", "R1", noOpts)
	uj := h.rec.last(t, "a", EventUserJoined).(UserJoinedPayload)
	assert.Equal(t, "Bob", uj.Name)
	assert.Equal(t, models.ParticipantRoleParticipant, uj.Role)
	assert.Equal(t, 2, uj.ParticipantCount)
	bobJoined := h.rec.last(t, "b", EventJoinedRoom).(JoinedRoomPayload)
	assert.Equal(t, "participant", bobJoined.Role)
	assert.False(t, bobJoined.IsHost)
	assert.Len(t, bobJoined.Participants, 2)
	assert.Empty(t, h.rec.to("b", EventUserJoined))

	h.coord.Remove(context.Background(), "a", "b", "R1")
	removed := h.rec.last(t, "b", EventRemovedFromMeeting).(ModeratorActionPayload)
	assert.Equal(t, "Alice", removed.By)
	left := h.rec.last(t, "a", EventUserLeft).(UserLeftPayload)
	assert.Equal(t, "b", left.SocketID)
	assert.Equal(t, 1, left.ParticipantCount)
	assert.Equal(t, []string{"Alice"}, h.roster(t, "R1"))
	assert.Equal(t, 1, h.activeParticipants(t, "R1"))

	h.coord.Leave(context.Background(), "a", "R1")
	_, ok := h.coord.Room("R1")
	assert.False(t, ok)
	_, err := h.store.GetOpenMeeting(context.Background(), "R1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	h.join("c", "Carol", "R1", noOpts)
	carol := h.rec.last(t, "c", EventJoinedRoom).(JoinedRoomPayload)
	assert.Equal(t, "host", carol.Role)
	assert.NotEqual(t, firstMeeting, carol.Meeting.ID)
	assert.Equal(t, "Carol", carol.Meeting.HostName)
}

func TestAdmittedCountMatchesActiveParticipants(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	h.join("a", "Alice", "R1", noOpts)
	h.join("b", "Bob", "R1", noOpts)
	h.join("c", "Carol", "R1", noOpts)
	h.coord.Leave(ctx, "b", "R1")
	h.join("d", "Dave", "R1", noOpts)
	h.coord.Disconnect(ctx, "c")

	snap, ok := h.coord.Room("R1")
	require.True(t, ok)
	assert.Len(t, snap.Participants, h.activeParticipants(t, "R1"))
	assert.Equal(t, []string{"Alice", "Dave"}, h.roster(t, "R1"))

	last := h.rec.last(t, "a", EventUserLeft).(UserLeftPayload)
	assert.Equal(t, 2, last.ParticipantCount)
}

func TestDuplicateJoinReemitsJoinedRoom(t *testing.T) {
	h := newHarness(t, Config{})
	h.join("a", "Alice", "R1", noOpts)
	h.join("b", "Bob", "R1", noOpts)
	h.rec.reset()

	h.join("b", "Bob", "R1", noOpts)
	again := h.rec.last(t, "b", EventJoinedRoom).(JoinedRoomPayload)
	assert.Equal(t, "participant", again.Role)
	assert.Len(t, again.Participants, 2)
	assert.Empty(t, h.rec.to("a", EventUserJoined))
	assert.Equal(t, 2, h.activeParticipants(t, "R1"))
}

func TestHostElection(t *testing.T) {
	t.Run("same name never creates a second host", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.join("a", "Alice", "R1", noOpts)
		h.join("a2", "Alice", "R1", noOpts)

		second := h.rec.last(t, "a2", EventJoinedRoom).(JoinedRoomPayload)
		assert.Equal(t, "participant", second.Role)
		hosts := 0
		snap, _ := h.coord.Room("R1")
		for _, p := range snap.Participants {
			if p.Role == models.ParticipantRoleHost {
				hosts++
			}
		}
		assert.Equal(t, 1, hosts)
	})

	t.Run("host reconnecting by name regains host", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.join("a", "Alice", "R1", noOpts)
		h.join("b", "Bob", "R1", noOpts)
		h.coord.Disconnect(context.Background(), "a")

		h.join("a-new", "Alice", "R1", noOpts)
		back := h.rec.last(t, "a-new", EventJoinedRoom).(JoinedRoomPayload)
		assert.True(t, back.IsHost)
	})

	t.Run("concurrent first joins elect one host", func(t *testing.T) {
		h := newHarness(t, Config{})
		const n = 25
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("c%d", i)
			h.coord.Connect(id, fmt.Sprintf("user-%d", i), nil)
			wg.Add(1)
			go func() {
				defer wg.Done()
				h.coord.Join(context.Background(), id, JoinRequest{RoomID: "R1"})
			}()
		}
		wg.Wait()

		snap, ok := h.coord.Room("R1")
		require.True(t, ok)
		require.Len(t, snap.Participants, n)
		hosts := 0
		for _, p := range snap.Participants {
			if p.Role == models.ParticipantRoleHost {
				hosts++
			}
		}
		assert.Equal(t, 1, hosts)
		assert.Equal(t, n, h.activeParticipants(t, "R1"))
	})
}

func TestJoinValidationAndCapacity(t *testing.T) {
	h := newHarness(t, Config{})
	h.coord.Connect("x", "", nil)
	h.coord.Join(context.Background(), "x", JoinRequest{RoomID: "R1"})
	assert.Len(t, h.rec.to("x", EventJoinError), 1)

	h.join("a", "Alice", "R2", models.MeetingOptions{MaxParticipants: 2, Title: "Standup"})
	h.join("b", "Bob", "R2", noOpts)
	h.join("c", "Carol", "R2", noOpts)
	full := h.rec.last(t, "c", EventJoinError).(ErrorPayload)
	assert.Equal(t, "meeting is full", full.Message)
	assert.Equal(t, []string{"Alice", "Bob"}, h.roster(t, "R2"))

	snap, _ := h.coord.Room("R2")
	assert.Equal(t, "Standup", snap.Meeting.Title)
	assert.Equal(t, 2, snap.Meeting.MaxParticipants)
}

func TestJoinAnotherRoomLeavesTheFirst(t *testing.T) {
	h := newHarness(t, Config{})
	h.join("a", "Alice", "R1", noOpts)
	h.join("b", "Bob", "R1", noOpts)

	h.join("b", "Bob", "R2", noOpts)
	assert.Equal(t, []string{"Alice"}, h.roster(t, "R1"))
	assert.Equal(t, []string{"Bob"}, h.roster(t, "R2"))
	conn, ok := h.sessions.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, "R2", conn.RoomID)
}

func TestJoinAnotherRoomKeepsMembershipWhenLeaveFails(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	h.join("a", "Alice", "RA", noOpts)
	h.join("x", "Xena", "RA", noOpts)

	h.store.fail("RemoveParticipant")
	h.join("x", "Xena", "RB", noOpts)
	assert.Len(t, h.rec.to("x", EventMeetingError), 1)
	joinErr := h.rec.last(t, "x", EventJoinError).(ErrorPayload)
	assert.Equal(t, "failed to leave previous meeting", joinErr.Message)
	_, ok := h.coord.Room("RB")
	assert.False(t, ok)
	_, err := h.store.GetOpenMeeting(ctx, "RB")
	assert.ErrorIs(t, err, models.ErrNotFound)
	conn, _ := h.sessions.Lookup("x")
	assert.Equal(t, "RA", conn.RoomID)
	assert.Equal(t, []string{"Alice", "Xena"}, h.roster(t, "RA"))

	h.store.heal()
	h.coord.Disconnect(ctx, "x")
	assert.Equal(t, []string{"Alice"}, h.roster(t, "RA"))
	assert.Equal(t, 1, h.activeParticipants(t, "RA"))
}

func TestStaleOpenMeetingIsReplaced(t *testing.T) {
	ctx := context.Background()

	t.Run("next joiner hosts a fresh meeting", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.join("a", "Alice", "R1", approvalOpts)
		first := h.rec.last(t, "a", EventJoinedRoom).(JoinedRoomPayload).Meeting.ID
		h.store.fail("EndMeeting")
		h.coord.Leave(ctx, "a", "R1")
		_, ok := h.coord.Room("R1")
		require.False(t, ok)
		open, err := h.store.GetOpenMeeting(ctx, "R1")
		require.NoError(t, err)
		require.Equal(t, first, open.ID)

		h.store.heal()
		h.join("c", "Carol", "R1", noOpts)
		joined := h.rec.last(t, "c", EventJoinedRoom).(JoinedRoomPayload)
		assert.True(t, joined.IsHost)
		assert.NotEqual(t, first, joined.Meeting.ID)
		assert.Empty(t, h.rec.to("c", EventWaitingForApproval))

		old, err := h.store.GetMeeting(ctx, first)
		require.NoError(t, err)
		assert.False(t, old.IsOpen())
	})

	t.Run("join fails while the stale meeting cannot be ended", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.join("a", "Alice", "R1", noOpts)
		first := h.rec.last(t, "a", EventJoinedRoom).(JoinedRoomPayload).Meeting.ID
		h.store.fail("EndMeeting")
		h.coord.Leave(ctx, "a", "R1")

		h.join("c", "Carol", "R1", noOpts)
		assert.Len(t, h.rec.to("c", EventJoinError), 1)
		assert.Empty(t, h.rec.to("c", EventJoinedRoom))
		_, ok := h.coord.Room("R1")
		assert.False(t, ok)
		open, err := h.store.GetOpenMeeting(ctx, "R1")
		require.NoError(t, err)
		assert.Equal(t, first, open.ID)
	})
}

func TestPersistenceFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("meeting creation", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.store.fail("CreateMeeting")
		h.join("a", "Alice", "R1", noOpts)
		assert.Len(t, h.rec.to("a", EventJoinError), 1)
		_, ok := h.coord.Room("R1")
		assert.False(t, ok)
		conn, _ := h.sessions.Lookup("a")
		assert.False(t, conn.Admitted())
	})

	t.Run("first admission closes the new meeting", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.store.fail("AddParticipant")
		h.join("a", "Alice", "R1", noOpts)
		assert.Len(t, h.rec.to("a", EventJoinError), 1)
		_, err := h.store.GetOpenMeeting(ctx, "R1")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("later admission leaves the room untouched", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.join("a", "Alice", "R1", noOpts)
		h.store.fail("AddParticipant")
		h.join("b", "Bob", "R1", noOpts)

		assert.Len(t, h.rec.to("b", EventJoinError), 1)
		assert.Empty(t, h.rec.to("a", EventUserJoined))
		assert.Equal(t, []string{"Alice"}, h.roster(t, "R1"))
		conn, _ := h.sessions.Lookup("b")
		assert.False(t, conn.Admitted())
	})

	t.Run("explicit leave aborts", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.join("a", "Alice", "R1", noOpts)
		h.join("b", "Bob", "R1", noOpts)
		h.store.fail("RemoveParticipant")
		h.coord.Leave(ctx, "b", "R1")

		assert.Len(t, h.rec.to("b", EventMeetingError), 1)
		assert.Empty(t, h.rec.to("a", EventUserLeft))
		assert.Equal(t, []string{"Alice", "Bob"}, h.roster(t, "R1"))
	})

	t.Run("disconnect still cleans up", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.join("a", "Alice", "R1", noOpts)
		h.join("b", "Bob", "R1", noOpts)
		h.store.fail("RemoveParticipant")
		h.coord.Disconnect(ctx, "b")

		assert.Len(t, h.rec.to("a", EventUserLeft), 1)
		assert.Equal(t, []string{"Alice"}, h.roster(t, "R1"))
		_, ok := h.sessions.Lookup("b")
		assert.False(t, ok)
	})

	t.Run("remove reports to the actor only", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.join("a", "Alice", "R1", noOpts)
		h.join("b", "Bob", "R1", noOpts)
		h.store.fail("RemoveParticipant")
		h.coord.Remove(ctx, "a", "b", "R1")

		assert.Len(t, h.rec.to("a", EventMeetingError), 1)
		assert.Empty(t, h.rec.to("b", EventRemovedFromMeeting))
		assert.Equal(t, []string{"Alice", "Bob"}, h.roster(t, "R1"))
	})
}

func TestLifecycleHooks(t *testing.T) {
	h := newHarness(t, Config{})
	var mu sync.Mutex
	var counts []int
	var ended []models.Meeting
	h.coord.SetOccupancyHandler(func(roomID string, count int) {
		mu.Lock()
		defer mu.Unlock()
		counts = append(counts, count)
	})
	h.coord.SetMeetingEndedHandler(func(m models.Meeting) {
		mu.Lock()
		defer mu.Unlock()
		ended = append(ended, m)
	})

	h.join("a", "Alice", "R1", models.MeetingOptions{RecordMeeting: true})
	h.join("b", "Bob", "R1", noOpts)
	h.coord.Leave(context.Background(), "b", "")
	h.coord.Disconnect(context.Background(), "a")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 1, 0}, counts)
	require.Len(t, ended, 1)
	assert.Equal(t, "R1", ended[0].RoomID)
	assert.True(t, ended[0].RecordMeeting)
	assert.NotNil(t, ended[0].EndedAt)
}

func TestRoomsSnapshot(t *testing.T) {
	h := newHarness(t, Config{})
	h.join("b", "Bob", "beta", noOpts)
	h.join("a", "Alice", "alpha", noOpts)

	rooms := h.coord.Rooms()
	require.Len(t, rooms, 2)
	assert.Equal(t, "alpha", rooms[0].RoomID)
	assert.Equal(t, "beta", rooms[1].RoomID)
}
