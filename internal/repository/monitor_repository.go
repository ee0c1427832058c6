package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-integrity/internal/model"
)

// MonitorRepository serves the aggregate reads behind the proctor live feed.
type MonitorRepository struct {
	db DBTX
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(db DBTX) *MonitorRepository {
	return &MonitorRepository{db: db}
}

// ListAttemptsByExam returns every attempt on an exam, most recent start first.
func (r *MonitorRepository) ListAttemptsByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamAttempt, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE exam_id = $1
		 ORDER BY start_time DESC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := make([]model.ExamAttempt, 0)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

// GetAnsweredCounts returns attempt_id → number of non-empty answers.
func (r *MonitorRepository) GetAnsweredCounts(ctx context.Context, examID uuid.UUID) (map[uuid.UUID]int64, error) {
	return r.countBy(ctx,
		`SELECT a.attempt_id, COUNT(*)
		 FROM answers a
		 JOIN exam_attempts ea ON ea.id = a.attempt_id
		 WHERE ea.exam_id = $1
		   AND (a.answer_text IS NOT NULL OR a.selected_option_id IS NOT NULL)
		 GROUP BY a.attempt_id`, examID)
}

// GetCheatCounts returns attempt_id → number of anti-cheat events.
func (r *MonitorRepository) GetCheatCounts(ctx context.Context, examID uuid.UUID) (map[uuid.UUID]int64, error) {
	return r.countBy(ctx,
		`SELECT e.attempt_id, COUNT(*)
		 FROM anti_cheat_events e
		 JOIN exam_attempts ea ON ea.id = e.attempt_id
		 WHERE ea.exam_id = $1
		 GROUP BY e.attempt_id`, examID)
}

func (r *MonitorRepository) countBy(ctx context.Context, query string, examID uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := r.db.Query(ctx, query, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int64)
	for rows.Next() {
		var id uuid.UUID
		var n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
