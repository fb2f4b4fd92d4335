package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-meet/backend/internal/models"
	"github.com/aura-meet/backend/pkg/queue"
)

// DequeueTimeout bounds one blocking pop so the loop notices cancellation.
const DequeueTimeout = 5 * time.Second

// Source reads the durable history of an ended meeting.
type Source interface {
	GetMeeting(ctx context.Context, id uuid.UUID) (*models.Meeting, error)
	ListParticipants(ctx context.Context, meetingID uuid.UUID) ([]models.Participant, error)
	GetChatHistory(ctx context.Context, meetingID uuid.UUID) ([]models.ChatMessage, error)
	GetTranscriptions(ctx context.Context, meetingID uuid.UUID) ([]models.Transcription, error)
}

// Uploader stores an encoded archive document.
type Uploader interface {
	PutArchive(ctx context.Context, roomID, meetingID string, body []byte) (string, error)
}

// Jobs is the queue the processor consumes.
type Jobs interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Archive is the document written for one ended meeting.
type Archive struct {
	Meeting        models.Meeting         `json:"meeting"`
	Participants   []models.Participant   `json:"participants"`
	Chat           []models.ChatMessage   `json:"chat"`
	Transcriptions []models.Transcription `json:"transcriptions"`
	ArchivedAt     time.Time              `json:"archived_at"`
}

// ArchiveProcessor turns meeting_archive jobs into archive objects.
type ArchiveProcessor struct {
	source   Source
	uploader Uploader
	jobs     Jobs
	backoff  time.Duration
	logger   *zap.Logger
}

// NewArchiveProcessor creates a meeting archive processor.
func NewArchiveProcessor(source Source, uploader Uploader, jobs Jobs, logger *zap.Logger) *ArchiveProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveProcessor{source: source, uploader: uploader, jobs: jobs, backoff: queue.RetryBackoff, logger: logger}
}

// Build collects the archive document for a meeting.
func (p *ArchiveProcessor) Build(ctx context.Context, meetingID uuid.UUID) (*Archive, error) {
	m, err := p.source.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("get meeting: %w", err)
	}
	if m.IsOpen() {
		return nil, fmt.Errorf("meeting %s is still open", meetingID)
	}
	participants, err := p.source.ListParticipants(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	chat, err := p.source.GetChatHistory(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("chat history: %w", err)
	}
	transcripts, err := p.source.GetTranscriptions(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("transcriptions: %w", err)
	}
	return &Archive{
		Meeting:        *m,
		Participants:   participants,
		Chat:           chat,
		Transcriptions: transcripts,
		ArchivedAt:     time.Now().UTC(),
	}, nil
}

// Process executes one archive job. A meeting that no longer exists or was not
// flagged for recording completes without an upload.
func (p *ArchiveProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeMeetingArchive {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.MeetingArchivePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	archive, err := p.Build(ctx, payload.MeetingID)
	if errors.Is(err, models.ErrNotFound) {
		p.logger.Warn("archive skipped, meeting not found", zap.String("meeting_id", payload.MeetingID.String()))
		return nil
	}
	if err != nil {
		return err
	}
	if !archive.Meeting.RecordMeeting {
		p.logger.Info("archive skipped, recording disabled", zap.String("meeting_id", payload.MeetingID.String()))
		return nil
	}

	body, err := json.Marshal(archive)
	if err != nil {
		return fmt.Errorf("marshal archive: %w", err)
	}
	key, err := p.uploader.PutArchive(ctx, archive.Meeting.RoomID, archive.Meeting.ID.String(), body)
	if err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}

	p.logger.Info("meeting archived",
		zap.String("meeting_id", archive.Meeting.ID.String()),
		zap.String("room_id", archive.Meeting.RoomID),
		zap.String("key", key),
		zap.Int("participants", len(archive.Participants)),
		zap.Int("messages", len(archive.Chat)),
	)
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ArchiveProcessor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			p.logger.Info("archive worker stopping")
			return
		}

		job, err := p.jobs.Dequeue(ctx, DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.jobs.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *ArchiveProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
