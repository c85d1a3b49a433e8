package types

import "time"

// MoodEntry is a single mood label recorded by a user for one calendar day.
// There is at most one entry per (UserID, Day).
type MoodEntry struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	// Date is the moment supplied with the first submission for the day.
	// Later submissions for the same day keep it unchanged.
	Date time.Time `json:"date" db:"date"`

	// Day is the calendar day of Date in the server's time zone, formatted
	// as YYYY-MM-DD.
	Day string `json:"day" db:"day"`

	Mood      string    `json:"mood" db:"mood"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// MoodRecordedEvent is published after every successful mood submission.
type MoodRecordedEvent struct {
	EntryID    string    `json:"entry_id"`
	UserID     string    `json:"user_id"`
	Day        string    `json:"day"`
	Mood       string    `json:"mood"`
	RecordedAt time.Time `json:"recorded_at"`
}

// MoodExport describes a request to render a user's mood history into
// object storage.
type MoodExport struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ObjectKey   string    `json:"object_key"`
	RequestedAt time.Time `json:"requested_at"`
}
