package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-integrity/internal/model"
)

// ExamRepository handles exam data access.
type ExamRepository struct {
	db DBTX
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(db DBTX) *ExamRepository {
	return &ExamRepository{db: db}
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.db.QueryRow(ctx,
		`SELECT id, title, status, duration_minutes, max_attempts, allow_answer_change,
		        allow_answer_review, shuffle_options, entry_token_hash, created_at, updated_at
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.Status, &e.DurationMinutes, &e.MaxAttempts, &e.AllowAnswerChange,
		&e.AllowAnswerReview, &e.ShuffleOptions, &e.EntryTokenHash, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

// SetEntryTokenHash stores (or clears, with nil) the bcrypt hash of an exam's entry token.
func (r *ExamRepository) SetEntryTokenHash(ctx context.Context, id uuid.UUID, hash *string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE exams SET entry_token_hash = $1, updated_at = NOW() WHERE id = $2`, hash, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
