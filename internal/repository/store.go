package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-integrity/internal/model"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrStaleState is returned by conditional updates whose guard no longer holds.
	ErrStaleState = errors.New("record is no longer in the expected state")
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// AttemptStore persists exam attempts.
type AttemptStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error)
	// GetForUpdate locks the attempt row until the surrounding transaction ends.
	// Outside a transaction it behaves like GetByID.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error)
	FindOngoing(ctx context.Context, examID uuid.UUID, studentID string) (*model.ExamAttempt, error)
	CountByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID string) (int, error)
	Create(ctx context.Context, a *model.ExamAttempt) error
	Transition(ctx context.Context, id uuid.UUID, t model.AttemptTransition) (*model.ExamAttempt, error)
	ListOverdue(ctx context.Context, now time.Time, grace time.Duration, limit int) ([]model.ExamAttempt, error)
}

// ProgressStore persists autosave snapshots and per-question answers.
type ProgressStore interface {
	SaveProgress(ctx context.Context, p *model.AttemptProgress) error
	GetProgress(ctx context.Context, attemptID uuid.UUID) (*model.AttemptProgress, error)
	ListAnswers(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error)
	UpsertAnswer(ctx context.Context, a *model.Answer) error
}

// AntiCheatStore is append-only: there is no update or delete.
type AntiCheatStore interface {
	Insert(ctx context.Context, e *model.AntiCheatEvent) error
	InsertBatch(ctx context.Context, events []model.AntiCheatEvent) (int64, error)
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.AntiCheatEvent, error)
}

// ExamStore reads exam metadata owned by the authoring side.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	SetEntryTokenHash(ctx context.Context, id uuid.UUID, hash *string) error
}

// QuestionStore reads exam questions.
type QuestionStore interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// Store groups the repositories and scopes them to a transaction on demand.
type Store interface {
	Attempts() AttemptStore
	Progress() ProgressStore
	AntiCheat() AntiCheatStore
	Exams() ExamStore
	Questions() QuestionStore
	// WithinTx runs fn against a transactional Store. The transaction commits when
	// fn returns nil and rolls back otherwise. Nested calls reuse the outer transaction.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

// PgStore is the Postgres-backed Store.
type PgStore struct {
	pool *pgxpool.Pool
	db   DBTX
	inTx bool
}

// NewPgStore creates a new PgStore.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool, db: pool}
}

func (s *PgStore) Attempts() AttemptStore { return &AttemptRepository{db: s.db, inTx: s.inTx} }
func (s *PgStore) Progress() ProgressStore { return &ProgressRepository{db: s.db} }
func (s *PgStore) AntiCheat() AntiCheatStore { return &AntiCheatRepository{db: s.db} }
func (s *PgStore) Exams() ExamStore { return &ExamRepository{db: s.db} }
func (s *PgStore) Questions() QuestionStore { return &QuestionRepository{db: s.db} }

// WithinTx implements Store.
func (s *PgStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&PgStore{pool: s.pool, db: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// IsUniqueViolation reports whether err is a Postgres unique_violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
