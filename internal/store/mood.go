package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/mindtrack/apiserver/types"
)

// MoodRepository handles persistence for mood entries.
type MoodRepository struct {
	db *sql.DB
}

func NewMoodRepository(db *sql.DB) *MoodRepository {
	return &MoodRepository{db: db}
}

// UpsertForDay writes entry keyed by (UserID, Day) in a single statement.
// When a row already exists for that key only mood and updated_at change;
// the returned entry carries the stored id, date and created_at.
func (r *MoodRepository) UpsertForDay(ctx context.Context, entry types.MoodEntry) (types.MoodEntry, error) {
	now := time.Now()

	const query = `
		INSERT INTO moods (id, user_id, date, day, mood, created_at, updated_at)
		VALUES ($1, $2, $3, $4::date, $5, $6, $6)
		ON CONFLICT (user_id, day) DO UPDATE
		SET mood = EXCLUDED.mood,
			updated_at = EXCLUDED.updated_at
		RETURNING id, date, created_at, updated_at`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		entry.ID,
		entry.UserID,
		entry.Date,
		entry.Day,
		entry.Mood,
		now,
	).Scan(
		&entry.ID,
		&entry.Date,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	); err != nil {
		return types.MoodEntry{}, err
	}
	return entry, nil
}

// ListByUser returns all entries of a user ordered by ascending date.
func (r *MoodRepository) ListByUser(ctx context.Context, userID string) ([]types.MoodEntry, error) {
	const query = `
		SELECT id, user_id, date, to_char(day, 'YYYY-MM-DD'), mood, created_at, updated_at
		FROM moods
		WHERE user_id = $1
		ORDER BY date ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]types.MoodEntry, 0)
	for rows.Next() {
		var entry types.MoodEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.Date,
			&entry.Day,
			&entry.Mood,
			&entry.CreatedAt,
			&entry.UpdatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}
