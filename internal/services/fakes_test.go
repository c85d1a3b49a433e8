package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mindtrack/apiserver/internal/mq"
	"github.com/mindtrack/apiserver/internal/storage"
	"github.com/mindtrack/apiserver/internal/store"
	"github.com/mindtrack/apiserver/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeUserRepo struct {
	mu        sync.Mutex
	byID      map[string]types.User
	byEmail   map[string]types.User
	getErr    error
	createErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: map[string]types.User{}, byEmail: map[string]types.User{}}
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return types.User{}, f.getErr
	}
	user, ok := f.byID[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return types.User{}, f.getErr
	}
	user, ok := f.byEmail[email]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return types.User{}, f.createErr
	}
	if _, ok := f.byEmail[user.Email]; ok {
		return types.User{}, store.ErrConflict
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	f.byID[user.ID] = user
	f.byEmail[user.Email] = user
	return user, nil
}

// fakeMoodRepo mirrors the UNIQUE (user_id, day) + ON CONFLICT semantics.
type fakeMoodRepo struct {
	mu   sync.Mutex
	rows map[string]types.MoodEntry
	err  error
}

func newFakeMoodRepo() *fakeMoodRepo {
	return &fakeMoodRepo{rows: map[string]types.MoodEntry{}}
}

func (f *fakeMoodRepo) UpsertForDay(_ context.Context, entry types.MoodEntry) (types.MoodEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return types.MoodEntry{}, f.err
	}
	key := entry.UserID + "|" + entry.Day
	now := time.Now()
	if existing, ok := f.rows[key]; ok {
		existing.Mood = entry.Mood
		existing.UpdatedAt = now
		f.rows[key] = existing
		return existing, nil
	}
	entry.CreatedAt = now
	entry.UpdatedAt = now
	f.rows[key] = entry
	return entry, nil
}

func (f *fakeMoodRepo) ListByUser(_ context.Context, userID string) ([]types.MoodEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []types.MoodEntry
	for _, entry := range f.rows {
		if entry.UserID == userID {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

func (f *fakeMoodRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type publishedMessage struct {
	channel string
	data    []byte
}

// fakeQueue records published messages and replays them on Subscribe.
type fakeQueue struct {
	mu        sync.Mutex
	published []publishedMessage
	err       error
}

func (f *fakeQueue) PublishJSON(_ context.Context, channel string, value any) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMessage{channel: channel, data: data})
	return "msg", nil
}

func (f *fakeQueue) Subscribe(ctx context.Context, channel string, handler mq.Handler) error {
	f.mu.Lock()
	msgs := append([]publishedMessage(nil), f.published...)
	f.mu.Unlock()
	for i, msg := range msgs {
		if msg.channel != channel {
			continue
		}
		if err := handler(ctx, mq.Message{ID: string(rune('a' + i)), Data: msg.data}); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeQueue) messages(channel string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]byte
	for _, msg := range f.published {
		if msg.channel == channel {
			out = append(out, msg.data)
		}
	}
	return out
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeObjects) Put(_ context.Context, key string, r io.Reader, size int64, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	f.types[key] = contentType
	return nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[key]; !ok {
		return storage.ErrNotFound
	}
	delete(f.objects, key)
	delete(f.types, key)
	return nil
}

func (f *fakeObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
