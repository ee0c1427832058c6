package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-integrity/internal/model"
)

// ProgressRepository handles autosave snapshots and answer rows.
type ProgressRepository struct {
	db DBTX
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(db DBTX) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// SaveProgress overwrites the attempt's progress snapshot.
func (r *ProgressRepository) SaveProgress(ctx context.Context, p *model.AttemptProgress) error {
	answers := p.Answers
	if answers == nil {
		answers = map[string]json.RawMessage{}
	}
	flagged := p.FlaggedQuestions
	if flagged == nil {
		flagged = []string{}
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO attempt_progress (attempt_id, current_question_index, answers, flagged_questions, last_saved_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (attempt_id) DO UPDATE
		 SET current_question_index = EXCLUDED.current_question_index,
		     answers = EXCLUDED.answers,
		     flagged_questions = EXCLUDED.flagged_questions,
		     last_saved_at = EXCLUDED.last_saved_at`,
		p.AttemptID, p.CurrentQuestionIndex, answers, flagged, p.LastSavedAt)
	return err
}

// GetProgress returns the last saved snapshot, or ErrNotFound.
func (r *ProgressRepository) GetProgress(ctx context.Context, attemptID uuid.UUID) (*model.AttemptProgress, error) {
	p := &model.AttemptProgress{}
	err := r.db.QueryRow(ctx,
		`SELECT attempt_id, current_question_index, answers, flagged_questions, last_saved_at
		 FROM attempt_progress WHERE attempt_id = $1`, attemptID,
	).Scan(&p.AttemptID, &p.CurrentQuestionIndex, &p.Answers, &p.FlaggedQuestions, &p.LastSavedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// ListAnswers returns every answer row of an attempt.
func (r *ProgressRepository) ListAnswers(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, attempt_id, question_id, answer_text, selected_option_id,
		        is_marked_for_review, time_spent, updated_at
		 FROM answers WHERE attempt_id = $1`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.ID, &a.AttemptID, &a.QuestionID, &a.AnswerText, &a.SelectedOptionID,
			&a.IsMarkedForReview, &a.TimeSpent, &a.UpdatedAt); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// UpsertAnswer inserts or replaces the answer for (attempt, question).
func (r *ProgressRepository) UpsertAnswer(ctx context.Context, a *model.Answer) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return r.db.QueryRow(ctx,
		`INSERT INTO answers (id, attempt_id, question_id, answer_text, selected_option_id,
		                      is_marked_for_review, time_spent, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (attempt_id, question_id) DO UPDATE
		 SET answer_text = EXCLUDED.answer_text,
		     selected_option_id = EXCLUDED.selected_option_id,
		     is_marked_for_review = EXCLUDED.is_marked_for_review,
		     time_spent = EXCLUDED.time_spent,
		     updated_at = EXCLUDED.updated_at
		 RETURNING id`,
		a.ID, a.AttemptID, a.QuestionID, a.AnswerText, a.SelectedOptionID,
		a.IsMarkedForReview, a.TimeSpent, a.UpdatedAt,
	).Scan(&a.ID)
}
