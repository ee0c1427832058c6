package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-integrity/internal/model"
)

var antiCheatColumns = []string{
	"id", "attempt_id", "event_type", "severity", "description", "screenshot_url", "metadata", "created_at",
}

// AntiCheatRepository handles anti-cheat event data access.
type AntiCheatRepository struct {
	db DBTX
}

// NewAntiCheatRepository creates a new AntiCheatRepository.
func NewAntiCheatRepository(db DBTX) *AntiCheatRepository {
	return &AntiCheatRepository{db: db}
}

func metadataOrEmpty(m json.RawMessage) json.RawMessage {
	if len(m) == 0 {
		return json.RawMessage(`{}`)
	}
	return m
}

// Insert persists one event.
func (r *AntiCheatRepository) Insert(ctx context.Context, e *model.AntiCheatEvent) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO anti_cheat_events (id, attempt_id, event_type, severity, description, screenshot_url, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)`,
		e.ID, e.AttemptID, e.EventType, e.Severity, e.Description, e.ScreenshotURL,
		string(metadataOrEmpty(e.Metadata)), e.CreatedAt)
	return err
}

// InsertBatch bulk-loads events with COPY. The whole batch fails together.
func (r *AntiCheatRepository) InsertBatch(ctx context.Context, events []model.AntiCheatEvent) (int64, error) {
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		rows = append(rows, []any{
			e.ID, e.AttemptID, string(e.EventType), string(e.Severity), e.Description,
			e.ScreenshotURL, string(metadataOrEmpty(e.Metadata)), e.CreatedAt,
		})
	}
	return r.db.CopyFrom(ctx, pgx.Identifier{"anti_cheat_events"}, antiCheatColumns, pgx.CopyFromRows(rows))
}

// ListByAttempt returns an attempt's events, newest first.
func (r *AntiCheatRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.AntiCheatEvent, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, attempt_id, event_type, severity, description, screenshot_url, metadata, created_at
		 FROM anti_cheat_events
		 WHERE attempt_id = $1
		 ORDER BY created_at DESC, id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]model.AntiCheatEvent, 0)
	for rows.Next() {
		var e model.AntiCheatEvent
		var metadata []byte
		if err := rows.Scan(&e.ID, &e.AttemptID, &e.EventType, &e.Severity, &e.Description,
			&e.ScreenshotURL, &metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Metadata = metadata
		events = append(events, e)
	}
	return events, rows.Err()
}
