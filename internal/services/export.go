package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/mindtrack/apiserver/internal/mq"
	"github.com/mindtrack/apiserver/internal/storage"
	"github.com/mindtrack/apiserver/types"
)

const exportContentType = "text/csv"

// ObjectStore is the subset of object storage used for exports.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes export requests and consumes them in the worker.
type MessageQueue interface {
	PublishJSON(ctx context.Context, channel string, value any) (string, error)
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// ExportService renders mood histories to CSV objects asynchronously.
type ExportService struct {
	moods   *MoodService
	objects ObjectStore
	queue   MessageQueue
	logger  *slog.Logger
	now     func() time.Time
}

func NewExportService(moods *MoodService, objects ObjectStore, queue MessageQueue, logger *slog.Logger) *ExportService {
	return &ExportService{
		moods:   moods,
		objects: objects,
		queue:   queue,
		logger:  logger,
		now:     time.Now,
	}
}

// ExportKey is the object key of an export. It is scoped by user id.
func ExportKey(userID, exportID string) string {
	return path.Join("exports", userID, exportID+".csv")
}

// Request queues an export of the user's mood history.
func (s *ExportService) Request(ctx context.Context, userID string) (types.MoodExport, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return types.MoodExport{}, ErrInvalidUserID
	}

	exportID := uuid.NewString()
	export := types.MoodExport{
		ID:          exportID,
		UserID:      uid.String(),
		ObjectKey:   ExportKey(uid.String(), exportID),
		RequestedAt: s.now().UTC(),
	}
	if _, err := s.queue.PublishJSON(ctx, mq.ChannelMoodExport, export); err != nil {
		return types.MoodExport{}, fmt.Errorf("queue export: %w", err)
	}
	return export, nil
}

// Channel is the queue consumed by Run.
func (s *ExportService) Channel() string {
	return mq.ChannelMoodExport
}

// Run consumes export requests until ctx is done.
func (s *ExportService) Run(ctx context.Context) error {
	return s.queue.Subscribe(ctx, mq.ChannelMoodExport, s.Handle)
}

// Handle renders one export request. Malformed requests are dropped; storage
// and database failures are returned so the broker redelivers.
func (s *ExportService) Handle(ctx context.Context, msg mq.Message) error {
	if err := s.handle(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "mood export failed", "message_id", msg.ID, "error", err)
		return err
	}
	return nil
}

func (s *ExportService) handle(ctx context.Context, msg mq.Message) error {
	var export types.MoodExport
	if err := json.Unmarshal(msg.Data, &export); err != nil {
		s.logger.WarnContext(ctx, "dropping malformed export request", "message_id", msg.ID, "error", err)
		return nil
	}
	if _, err := uuid.Parse(export.ID); err != nil || export.ObjectKey != ExportKey(export.UserID, export.ID) {
		s.logger.WarnContext(ctx, "dropping export request with bad key", "message_id", msg.ID, "object_key", export.ObjectKey)
		return nil
	}

	entries, err := s.moods.List(ctx, export.UserID)
	if err != nil {
		if errors.Is(err, ErrInvalidArgument) {
			s.logger.WarnContext(ctx, "dropping export request", "message_id", msg.ID, "error", err)
			return nil
		}
		return err
	}

	data, err := renderMoodCSV(entries)
	if err != nil {
		return fmt.Errorf("render export: %w", err)
	}
	if err := s.objects.Put(ctx, export.ObjectKey, bytes.NewReader(data), int64(len(data)), exportContentType); err != nil {
		return fmt.Errorf("store export: %w", err)
	}

	s.logger.InfoContext(ctx, "mood export written", "export_id", export.ID, "user_id", export.UserID, "entries", len(entries))
	return nil
}

// Open returns the rendered export. ErrExportNotReady means the worker has
// not written it yet.
func (s *ExportService) Open(ctx context.Context, userID, exportID string) (io.ReadCloser, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, ErrInvalidUserID
	}
	eid, err := uuid.Parse(exportID)
	if err != nil {
		return nil, ErrInvalidExportID
	}

	rc, err := s.objects.Get(ctx, ExportKey(uid.String(), eid.String()))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrExportNotReady
		}
		return nil, fmt.Errorf("open export: %w", err)
	}
	return rc, nil
}

// Delete removes a rendered export. Deleting an export that does not exist
// succeeds.
func (s *ExportService) Delete(ctx context.Context, userID, exportID string) error {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return ErrInvalidUserID
	}
	eid, err := uuid.Parse(exportID)
	if err != nil {
		return ErrInvalidExportID
	}

	if err := s.objects.Delete(ctx, ExportKey(uid.String(), eid.String())); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete export: %w", err)
	}
	return nil
}

func renderMoodCSV(entries []types.MoodEntry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"date", "day", "mood"}); err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if err := w.Write([]string{entry.Date.Format(time.RFC3339), entry.Day, entry.Mood}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
