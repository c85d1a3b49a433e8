package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mindtrack/apiserver/internal/mq"
	"github.com/mindtrack/apiserver/types"
)

const (
	dayLayout = time.DateOnly

	publishTimeout = 2 * time.Second
)

// MoodRepository defines persistence operations for mood entries.
// UpsertForDay must be atomic per (UserID, Day).
type MoodRepository interface {
	UpsertForDay(ctx context.Context, entry types.MoodEntry) (types.MoodEntry, error)
	ListByUser(ctx context.Context, userID string) ([]types.MoodEntry, error)
}

// Publisher publishes JSON-encoded events.
type Publisher interface {
	PublishJSON(ctx context.Context, channel string, value any) (string, error)
}

// MoodService implements upsert-by-day and history listing.
type MoodService struct {
	repo   MoodRepository
	events Publisher
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

// NewMoodService builds a MoodService. events may be nil; loc defaults to
// time.Local.
func NewMoodService(repo MoodRepository, events Publisher, loc *time.Location, logger *slog.Logger) *MoodService {
	if loc == nil {
		loc = time.Local
	}
	return &MoodService{
		repo:   repo,
		events: events,
		loc:    loc,
		now:    time.Now,
		logger: logger,
	}
}

// Submit records mood for the calendar day of rawDate (today when empty).
// A second submission for the same day overwrites the label of the existing
// entry.
func (s *MoodService) Submit(ctx context.Context, userID, mood, rawDate string) (types.MoodEntry, error) {
	mood = strings.TrimSpace(mood)
	if mood == "" {
		return types.MoodEntry{}, ErrMoodRequired
	}

	id, err := uuid.Parse(userID)
	if err != nil {
		return types.MoodEntry{}, ErrInvalidUserID
	}

	date, err := ResolveDate(rawDate, s.now(), s.loc)
	if err != nil {
		return types.MoodEntry{}, err
	}
	start, _ := DayBounds(date, s.loc)

	saved, err := s.repo.UpsertForDay(ctx, types.MoodEntry{
		ID:     uuid.NewString(),
		UserID: id.String(),
		Date:   date,
		Day:    start.Format(dayLayout),
		Mood:   mood,
	})
	if err != nil {
		return types.MoodEntry{}, fmt.Errorf("upsert mood: %w", err)
	}
	saved.Date = saved.Date.In(s.loc)

	s.publishRecorded(ctx, saved)
	return saved, nil
}

// List returns every entry of the user ordered by ascending date.
func (s *MoodService) List(ctx context.Context, userID string) ([]types.MoodEntry, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, ErrInvalidUserID
	}

	entries, err := s.repo.ListByUser(ctx, id.String())
	if err != nil {
		return nil, fmt.Errorf("list moods: %w", err)
	}
	if entries == nil {
		entries = []types.MoodEntry{}
	}
	for i := range entries {
		entries[i].Date = entries[i].Date.In(s.loc)
	}
	return entries, nil
}

// publishRecorded is best effort: the entry is already stored.
func (s *MoodService) publishRecorded(ctx context.Context, entry types.MoodEntry) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	event := types.MoodRecordedEvent{
		EntryID:    entry.ID,
		UserID:     entry.UserID,
		Day:        entry.Day,
		Mood:       entry.Mood,
		RecordedAt: entry.UpdatedAt,
	}
	if _, err := s.events.PublishJSON(ctx, mq.ChannelMoodRecorded, event); err != nil {
		s.logger.WarnContext(ctx, "publish mood event failed", "user_id", entry.UserID, "day", entry.Day, "error", err)
	}
}

// ResolveDate turns the optional client date into an instant in loc.
// Empty means now, YYYY-MM-DD means local midnight of that day, and RFC 3339
// timestamps are taken as-is.
func ResolveDate(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.In(loc), nil
	}
	if t, err := time.ParseInLocation(dayLayout, raw, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.In(loc), nil
	}
	return time.Time{}, ErrInvalidDate
}

// DayBounds returns the first and last millisecond of t's calendar day in loc.
func DayBounds(t time.Time, loc *time.Location) (start, end time.Time) {
	t = t.In(loc)
	y, m, d := t.Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, loc)
	end = time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), loc)
	return start, end
}
