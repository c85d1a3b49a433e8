package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mindtrack/apiserver/internal/auth"
	"github.com/mindtrack/apiserver/internal/mq"
	"github.com/mindtrack/apiserver/internal/services"
	"github.com/mindtrack/apiserver/internal/storage"
	"github.com/mindtrack/apiserver/internal/store"
	"github.com/mindtrack/apiserver/types"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memoryUsers struct {
	mu    sync.Mutex
	users map[string]types.User
}

func (m *memoryUsers) GetByID(_ context.Context, id string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memoryUsers) GetByEmail(_ context.Context, email string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[email]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memoryUsers) Create(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.Email]; ok {
		return types.User{}, store.ErrConflict
	}
	m.users[user.Email] = user
	return user, nil
}

type memoryMoods struct {
	mu   sync.Mutex
	rows map[string]types.MoodEntry
	err  error
}

func (m *memoryMoods) UpsertForDay(_ context.Context, entry types.MoodEntry) (types.MoodEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return types.MoodEntry{}, m.err
	}
	key := entry.UserID + "|" + entry.Day
	if existing, ok := m.rows[key]; ok {
		existing.Mood = entry.Mood
		m.rows[key] = existing
		return existing, nil
	}
	m.rows[key] = entry
	return entry, nil
}

func (m *memoryMoods) ListByUser(_ context.Context, userID string) ([]types.MoodEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []types.MoodEntry
	for _, entry := range m.rows {
		if entry.UserID == userID {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memoryObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// memoryQueue delivers everything published so far on Subscribe.
type memoryQueue struct {
	mu      sync.Mutex
	pending []queuedMessage
}

type queuedMessage struct {
	channel string
	msg     mq.Message
}

func (m *memoryQueue) PublishJSON(_ context.Context, channel string, value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := strconv.Itoa(len(m.pending) + 1)
	m.pending = append(m.pending, queuedMessage{channel: channel, msg: mq.Message{ID: id, Data: data}})
	return id, nil
}

func (m *memoryQueue) Subscribe(ctx context.Context, channel string, handler mq.Handler) error {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, queued := range pending {
		if queued.channel != channel {
			continue
		}
		if err := handler(ctx, queued.msg); err != nil {
			return err
		}
	}
	return nil
}

type testAPI struct {
	router  http.Handler
	tokens  *auth.TokenManager
	moods   *memoryMoods
	exports *services.ExportService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := discardTestLogger()

	tokens, err := auth.NewTokenManager("handler-secret", time.Hour)
	require.NoError(t, err)

	users := &memoryUsers{users: map[string]types.User{}}
	moods := &memoryMoods{rows: map[string]types.MoodEntry{}}
	userService := services.NewUserService(users, tokens, bcrypt.MinCost, logger)
	moodService := services.NewMoodService(moods, nil, time.UTC, logger)
	exportService := services.NewExportService(moodService,
		&memoryObjects{objects: map[string][]byte{}}, &memoryQueue{}, logger)

	authMiddleware := RequireAuth(userService, logger)
	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		AuthRouter(r, userService, logger, authMiddleware, AuthLimits{})
		MoodRouter(r, moodService, logger, authMiddleware)
		r.Route("/moods/exports", func(r chi.Router) {
			ExportRouter(r, exportService, logger, authMiddleware)
		})
	})

	return &testAPI{router: router, tokens: tokens, moods: moods, exports: exportService}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

// login registers a fresh account and returns its token.
func (a *testAPI) login(t *testing.T, email string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/register", "", RegisterRequest{Name: "Test", Email: email, Password: "pw123456"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/api/login", "", LoginRequest{Email: email, Password: "pw123456"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Token
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Message
}

type fakeAuthenticator struct {
	tokens *auth.TokenManager
}

func (f fakeAuthenticator) Authenticate(token string) (string, error) {
	return f.tokens.Verify(token)
}

func discardTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
