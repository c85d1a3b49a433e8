package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/mindtrack/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitMoodUpsertsByDay(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(t, "a@example.com")

	rec := api.do(t, http.MethodPost, "/api/mood", token, MoodRequest{Mood: "Happy", Date: "2024-03-01"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Mood logged successfully", decodeMessage(t, rec))

	rec = api.do(t, http.MethodPost, "/api/mood", token, MoodRequest{Mood: "Sad", Date: "2024-03-01"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/moods", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []types.MoodEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "Sad", entries[0].Mood)
	assert.Equal(t, "2024-03-01", entries[0].Day)
	assert.Equal(t, "2024-03-01", entries[0].Date.Format("2006-01-02"))
}

func TestSubmitMoodValidation(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(t, "a@example.com")

	cases := []struct {
		name    string
		body    any
		message string
	}{
		{name: "missing mood", body: MoodRequest{Date: "2024-03-01"}, message: "Mood is required"},
		{name: "blank mood", body: MoodRequest{Mood: "   "}, message: "Mood is required"},
		{name: "bad date", body: MoodRequest{Mood: "Happy", Date: "tomorrow"}, message: "Invalid date"},
		{name: "bad json", body: `{"mood": 3}`, message: "Invalid request body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/api/mood", token, tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.message, decodeMessage(t, rec))
		})
	}
}

func TestSubmitMoodRejectsNonUUIDSubject(t *testing.T) {
	api := newTestAPI(t)
	token, err := api.tokens.Issue("42")
	require.NoError(t, err)

	rec := api.do(t, http.MethodPost, "/api/mood", token, MoodRequest{Mood: "Happy"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid user ID", decodeMessage(t, rec))
}

func TestMoodInternalErrorsAreGeneric(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(t, "a@example.com")
	api.moods.err = errors.New("pq: relation \"moods\" does not exist")

	rec := api.do(t, http.MethodPost, "/api/mood", token, MoodRequest{Mood: "Happy"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error logging mood", decodeMessage(t, rec))
	assert.NotContains(t, rec.Body.String(), "relation")

	rec = api.do(t, http.MethodGet, "/api/moods", token, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error fetching mood history", decodeMessage(t, rec))
}

func TestListMoodsEmptyArray(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(t, "a@example.com")

	rec := api.do(t, http.MethodGet, "/api/moods", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestListMoodsScopedToCaller(t *testing.T) {
	api := newTestAPI(t)
	alice := api.login(t, "alice@example.com")
	bob := api.login(t, "bob@example.com")

	rec := api.do(t, http.MethodPost, "/api/mood", alice, MoodRequest{Mood: "Happy", Date: "2024-03-01"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/moods", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}
