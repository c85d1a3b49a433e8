package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mindtrack/apiserver/internal/mq"
	"github.com/mindtrack/apiserver/types"
)

// Subscriber consumes messages from a channel until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// ActivityRecorder receives every accepted mood.recorded event.
type ActivityRecorder interface {
	MoodRecorded(event types.MoodRecordedEvent, lag time.Duration)
}

// ActivityService drains mood.recorded events into an ActivityRecorder.
type ActivityService struct {
	queue    Subscriber
	recorder ActivityRecorder
	logger   *slog.Logger
	now      func() time.Time
}

func NewActivityService(queue Subscriber, recorder ActivityRecorder, logger *slog.Logger) *ActivityService {
	return &ActivityService{
		queue:    queue,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Channel is the queue consumed by Run.
func (s *ActivityService) Channel() string {
	return mq.ChannelMoodRecorded
}

// Run consumes mood events until ctx is done.
func (s *ActivityService) Run(ctx context.Context) error {
	return s.queue.Subscribe(ctx, mq.ChannelMoodRecorded, s.Handle)
}

// Handle records one event. Events never need redelivery, so malformed ones
// are acknowledged and dropped.
func (s *ActivityService) Handle(ctx context.Context, msg mq.Message) error {
	var event types.MoodRecordedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		s.logger.WarnContext(ctx, "dropping malformed mood event", "message_id", msg.ID, "error", err)
		return nil
	}
	if _, err := uuid.Parse(event.UserID); err != nil {
		s.logger.WarnContext(ctx, "dropping mood event without user", "message_id", msg.ID)
		return nil
	}
	if _, err := time.Parse(dayLayout, event.Day); err != nil {
		s.logger.WarnContext(ctx, "dropping mood event with bad day", "message_id", msg.ID, "day", event.Day)
		return nil
	}

	var lag time.Duration
	if !event.RecordedAt.IsZero() {
		lag = max(s.now().Sub(event.RecordedAt), 0)
	}
	s.recorder.MoodRecorded(event, lag)
	s.logger.DebugContext(ctx, "mood event recorded", "user_id", event.UserID, "day", event.Day)
	return nil
}
