package meetings

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-meet/backend/internal/models"
)

func TestMemoryRepository_OneOpenMeetingPerRoom(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	first := &models.Meeting{RoomID: "R1", Title: "Meeting R1", HostName: "Alice"}
	require.NoError(t, repo.CreateMeeting(ctx, first))
	assert.NotEqual(t, uuid.Nil, first.ID)

	err := repo.CreateMeeting(ctx, &models.Meeting{RoomID: "R1", HostName: "Bob"})
	assert.ErrorIs(t, err, models.ErrOpenMeetingExists)

	open, err := repo.GetOpenMeeting(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, open.ID)

	require.NoError(t, repo.EndMeeting(ctx, "R1"))
	_, err = repo.GetOpenMeeting(ctx, "R1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	second := &models.Meeting{RoomID: "R1", HostName: "Carol"}
	require.NoError(t, repo.CreateMeeting(ctx, second))
	assert.NotEqual(t, first.ID, second.ID)

	ended, err := repo.GetMeeting(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, ended.IsOpen())
}

func TestMemoryRepository_ChatHistoryIsPublicAndOrdered(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	m := &models.Meeting{RoomID: "R1", HostName: "Alice"}
	require.NoError(t, repo.CreateMeeting(ctx, m))
	alice := &models.Participant{MeetingID: m.ID, Name: "Alice", ConnID: "c1", Role: models.ParticipantRoleHost}
	require.NoError(t, repo.AddParticipant(ctx, alice))

	for _, text := range []string{"one", "two"} {
		require.NoError(t, repo.SaveChatMessage(ctx, &models.ChatMessage{MeetingID: m.ID, ParticipantID: alice.ID, Message: text}))
	}
	recipient := uuid.New()
	require.NoError(t, repo.SaveChatMessage(ctx, &models.ChatMessage{
		MeetingID: m.ID, ParticipantID: alice.ID, Message: "secret", IsPrivate: true, RecipientID: &recipient,
	}))
	tail := &models.ChatMessage{MeetingID: m.ID, ParticipantID: alice.ID, Message: "three"}
	require.NoError(t, repo.SaveChatMessage(ctx, tail))

	history, err := repo.GetChatHistory(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "one", history[0].Message)
	assert.Equal(t, "two", history[1].Message)
	assert.Equal(t, tail.ID, history[2].ID)
	assert.Equal(t, "Alice", history[2].SenderName)
	assert.Equal(t, models.MessageTypeText, history[2].MessageType)
}

func TestChatHistoryKeepsSendOrderOnTimestampTies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	m := &models.Meeting{RoomID: "R1", HostName: "Alice"}
	require.NoError(t, repo.CreateMeeting(ctx, m))
	alice := &models.Participant{MeetingID: m.ID, Name: "Alice", ConnID: "c1", Role: models.ParticipantRoleHost}
	require.NoError(t, repo.AddParticipant(ctx, alice))

	tick := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	texts := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, text := range texts {
		require.NoError(t, repo.SaveChatMessage(ctx, &models.ChatMessage{
			MeetingID: m.ID, ParticipantID: alice.ID, Message: text, Timestamp: tick,
		}))
	}

	history, err := repo.GetChatHistory(ctx, m.ID)
	require.NoError(t, err)
	got := make([]string, len(history))
	for i, msg := range history {
		got[i] = msg.Message
	}
	assert.Equal(t, texts, got)

	assert.Contains(t, chatHistoryQuery, "ORDER BY c.seq")
}

func TestMemoryRepository_ParticipantLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	m := &models.Meeting{RoomID: "R1", HostName: "Alice"}
	require.NoError(t, repo.CreateMeeting(ctx, m))

	alice := &models.Participant{MeetingID: m.ID, Name: "Alice", ConnID: "c1", Role: models.ParticipantRoleHost}
	bob := &models.Participant{MeetingID: m.ID, Name: "Bob", ConnID: "c2", Role: models.ParticipantRoleParticipant}
	require.NoError(t, repo.AddParticipant(ctx, alice))
	require.NoError(t, repo.AddParticipant(ctx, bob))

	require.NoError(t, repo.UpdateParticipantRole(ctx, bob.ID, models.ParticipantRoleCoHost))
	require.NoError(t, repo.UpdateParticipantMedia(ctx, bob.ID, true, false))
	require.NoError(t, repo.RemoveParticipant(ctx, "c2"))

	list, err := repo.ListParticipants(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Nil(t, list[0].LeftAt)
	assert.Equal(t, models.ParticipantRoleCoHost, list[1].Role)
	assert.True(t, list[1].AudioMuted)
	assert.NotNil(t, list[1].LeftAt)

	require.NoError(t, repo.EndMeeting(ctx, "R1"))
	list, err = repo.ListParticipants(ctx, m.ID)
	require.NoError(t, err)
	assert.NotNil(t, list[0].LeftAt)
}

func TestMemoryRepository_WaitingRoom(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	m := &models.Meeting{RoomID: "R1", HostName: "Alice", RequireApproval: true}
	require.NoError(t, repo.CreateMeeting(ctx, m))

	bob := &models.WaitingEntry{MeetingID: m.ID, Name: "Bob", ConnID: "c2"}
	dave := &models.WaitingEntry{MeetingID: m.ID, Name: "Dave", ConnID: "c4"}
	eve := &models.WaitingEntry{MeetingID: m.ID, Name: "Eve", ConnID: "c5"}
	for _, e := range []*models.WaitingEntry{bob, dave, eve} {
		require.NoError(t, repo.AddToWaitingRoom(ctx, e))
	}
	assert.Equal(t, models.WaitingStatusWaiting, bob.Status)

	require.NoError(t, repo.UpdateWaitingRoomStatus(ctx, bob.ID, models.WaitingStatusApproved))
	require.NoError(t, repo.RemoveFromWaitingRoom(ctx, eve.ID))

	pending, err := repo.GetWaitingRoom(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, dave.ID, pending[0].ID)
}

func TestMemoryRepository_Transcriptions(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	m := &models.Meeting{RoomID: "R1", HostName: "Alice"}
	require.NoError(t, repo.CreateMeeting(ctx, m))

	require.NoError(t, repo.SaveTranscription(ctx, &models.Transcription{MeetingID: m.ID, ParticipantName: "Alice", Text: "hello", Confidence: 0.9}))
	require.NoError(t, repo.SaveTranscription(ctx, &models.Transcription{MeetingID: uuid.New(), ParticipantName: "X", Text: "other"}))

	list, err := repo.GetTranscriptions(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "hello", list[0].Text)
	assert.False(t, list[0].Timestamp.IsZero())
}
