package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-integrity/internal/model"
)

const attemptColumns = `id, exam_id, student_id, attempt_number, status, start_time, end_time,
		submitted_at, total_time_spent, score, end_reason, created_at, updated_at`

// AttemptRepository handles exam attempt data access.
type AttemptRepository struct {
	db   DBTX
	inTx bool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(db DBTX) *AttemptRepository {
	return &AttemptRepository{db: db}
}

func scanAttempt(row pgx.Row) (*model.ExamAttempt, error) {
	a := &model.ExamAttempt{}
	err := row.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.AttemptNumber, &a.Status, &a.StartTime, &a.EndTime,
		&a.SubmittedAt, &a.TotalTimeSpent, &a.Score, &a.EndReason, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// GetByID retrieves an attempt by its UUID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error) {
	return scanAttempt(r.db.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE id = $1`, id))
}

// GetForUpdate retrieves an attempt and row-locks it when called inside a transaction.
func (r *AttemptRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error) {
	if !r.inTx {
		return r.GetByID(ctx, id)
	}
	return scanAttempt(r.db.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE id = $1 FOR UPDATE`, id))
}

// FindOngoing returns the student's ongoing attempt on an exam, if any.
func (r *AttemptRepository) FindOngoing(ctx context.Context, examID uuid.UUID, studentID string) (*model.ExamAttempt, error) {
	return scanAttempt(r.db.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE exam_id = $1 AND student_id = $2 AND status = $3`,
		examID, studentID, model.AttemptStatusOngoing))
}

// CountByExamAndStudent counts every attempt a student has made on an exam.
func (r *AttemptRepository) CountByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_attempts WHERE exam_id = $1 AND student_id = $2`,
		examID, studentID).Scan(&n)
	return n, err
}

// Create inserts a new attempt. ID, status, attempt number and start time are
// taken from a.
func (r *AttemptRepository) Create(ctx context.Context, a *model.ExamAttempt) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO exam_attempts (id, exam_id, student_id, attempt_number, status, start_time, total_time_spent)
		 VALUES ($1, $2, $3, $4, $5, $6, 0)
		 RETURNING created_at, updated_at`,
		a.ID, a.ExamID, a.StudentID, a.AttemptNumber, a.Status, a.StartTime,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

// Transition moves an attempt from t.From to t.To. The update only applies while
// the row still has status t.From; otherwise ErrStaleState (or ErrNotFound when
// the row does not exist) is returned.
func (r *AttemptRepository) Transition(ctx context.Context, id uuid.UUID, t model.AttemptTransition) (*model.ExamAttempt, error) {
	var endReason *string
	if t.EndReason != "" {
		endReason = &t.EndReason
	}

	a, err := scanAttempt(r.db.QueryRow(ctx,
		`UPDATE exam_attempts
		 SET status = $3,
		     end_time = CASE WHEN $3 IN ('submitted', 'abandoned') THEN $4 ELSE end_time END,
		     submitted_at = COALESCE($5, submitted_at),
		     total_time_spent = COALESCE($6, total_time_spent),
		     score = COALESCE($7, score),
		     end_reason = COALESCE($8, end_reason),
		     updated_at = $4
		 WHERE id = $1 AND status = $2
		 RETURNING `+attemptColumns,
		id, t.From, t.To, t.At, t.SubmittedAt, t.TotalTimeSpent, t.Score, endReason))
	if errors.Is(err, ErrNotFound) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStaleState
	}
	return a, err
}

// ListOverdue returns ongoing attempts whose time allowance plus grace has run out.
func (r *AttemptRepository) ListOverdue(ctx context.Context, now time.Time, grace time.Duration, limit int) ([]model.ExamAttempt, error) {
	rows, err := r.db.Query(ctx,
		`SELECT a.id, a.exam_id, a.student_id, a.attempt_number, a.status, a.start_time, a.end_time,
		        a.submitted_at, a.total_time_spent, a.score, a.end_reason, a.created_at, a.updated_at
		 FROM exam_attempts a
		 JOIN exams e ON e.id = a.exam_id
		 WHERE a.status = $1
		   AND a.start_time + make_interval(mins => e.duration_minutes) + make_interval(secs => $2) < $3
		 ORDER BY a.start_time
		 LIMIT $4`,
		model.AttemptStatusOngoing, grace.Seconds(), now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.ExamAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}
