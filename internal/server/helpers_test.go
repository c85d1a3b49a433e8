package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/mindtrack/apiserver/config"
	"github.com/mindtrack/apiserver/internal/auth"
	"github.com/mindtrack/apiserver/internal/services"
	"github.com/mindtrack/apiserver/internal/store"
	"github.com/mindtrack/apiserver/types"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type userTable struct {
	mu   sync.Mutex
	rows map[string]types.User
}

func (u *userTable) GetByID(_ context.Context, id string) (types.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, user := range u.rows {
		if user.ID == id {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (u *userTable) GetByEmail(_ context.Context, email string) (types.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if user, ok := u.rows[email]; ok {
		return user, nil
	}
	return types.User{}, store.ErrNotFound
}

func (u *userTable) Create(_ context.Context, user types.User) (types.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.rows[user.Email]; ok {
		return types.User{}, store.ErrConflict
	}
	u.rows[user.Email] = user
	return user, nil
}

type moodTable struct {
	mu   sync.Mutex
	rows map[string]types.MoodEntry
}

func (m *moodTable) UpsertForDay(_ context.Context, entry types.MoodEntry) (types.MoodEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := entry.UserID + "|" + entry.Day
	if existing, ok := m.rows[key]; ok {
		existing.Mood = entry.Mood
		m.rows[key] = existing
		return existing, nil
	}
	m.rows[key] = entry
	return entry, nil
}

func (m *moodTable) ListByUser(_ context.Context, userID string) ([]types.MoodEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.MoodEntry
	for _, entry := range m.rows {
		if entry.UserID == userID {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

type testServer struct {
	router http.Handler
	tokens *auth.TokenManager
}

func testConfig() config.Config {
	return config.Config{
		AllowedOrigin: "http://localhost:5173",
		RateLimit: config.RateLimitConfig{
			Login:    12,
			Register: 5,
			Window:   time.Minute,
		},
	}
}

func newTestServer(t *testing.T, cfg config.Config, ping func(context.Context) error) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tokens, err := auth.NewTokenManager("server-secret", time.Hour)
	require.NoError(t, err)

	limiter := NewMemoryRateLimiter()
	t.Cleanup(limiter.Close)

	router := NewRouter(cfg, Dependencies{
		Logger:  logger,
		Users:   services.NewUserService(&userTable{rows: map[string]types.User{}}, tokens, bcrypt.MinCost, logger),
		Moods:   services.NewMoodService(&moodTable{rows: map[string]types.MoodEntry{}}, nil, time.UTC, logger),
		Limiter: limiter,
		Ping:    ping,
	})
	return &testServer{router: router, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}
