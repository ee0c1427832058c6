package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-integrity/internal/config"
	"github.com/stemsi/exstem-integrity/internal/metrics"
	"github.com/stemsi/exstem-integrity/internal/model"
	"github.com/stemsi/exstem-integrity/internal/repository"
)

const expireBatchSize = 100

// EntryTokenChecker verifies an exam entry token against its stored hash.
type EntryTokenChecker interface {
	CheckSecret(hash, secret string) error
}

// AttemptService drives the attempt lifecycle: ongoing → submitted → evaluated,
// and ongoing → abandoned.
type AttemptService struct {
	store  repository.Store
	tokens EntryTokenChecker
	pub    Publisher
	grace  time.Duration
	now    func() time.Time
	log    zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	store repository.Store,
	tokens EntryTokenChecker,
	pub Publisher,
	cfg *config.Config,
	log zerolog.Logger,
) *AttemptService {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &AttemptService{
		store:  store,
		tokens: tokens,
		pub:    pub,
		grace:  cfg.ExpiryGrace,
		now:    time.Now,
		log:    log.With().Str("component", "attempt_service").Logger(),
	}
}

// Start begins a new attempt for a student, or returns the student's ongoing
// attempt on the exam. created reports whether a new row was inserted.
func (s *AttemptService) Start(ctx context.Context, p model.Principal, examID uuid.UUID, entryToken string) (attempt *model.ExamAttempt, created bool, err error) {
	if p.Role != model.RoleStudent {
		return nil, false, ErrForbidden
	}

	exam, err := loadExam(ctx, s.store.Exams(), examID)
	if err != nil {
		return nil, false, err
	}
	if !exam.Joinable() {
		return nil, false, ErrExamNotAvailable
	}
	if exam.RequiresEntryToken() {
		if err := s.tokens.CheckSecret(*exam.EntryTokenHash, entryToken); err != nil {
			return nil, false, ErrInvalidEntryToken
		}
	}

	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		existing, err := tx.Attempts().FindOngoing(ctx, examID, p.SubjectID)
		if err == nil {
			attempt = existing
			return nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("find ongoing attempt: %w", err)
		}

		count, err := tx.Attempts().CountByExamAndStudent(ctx, examID, p.SubjectID)
		if err != nil {
			return fmt.Errorf("count attempts: %w", err)
		}
		if exam.MaxAttempts > 0 && count >= exam.MaxAttempts {
			return ErrMaxAttemptsReached
		}

		a := &model.ExamAttempt{
			ID:            uuid.New(),
			ExamID:        examID,
			StudentID:     p.SubjectID,
			AttemptNumber: count + 1,
			Status:        model.AttemptStatusOngoing,
			StartTime:     s.now().UTC(),
		}
		if err := tx.Attempts().Create(ctx, a); err != nil {
			return fmt.Errorf("create attempt: %w", err)
		}
		attempt, created = a, true
		return nil
	})
	if err != nil && repository.IsUniqueViolation(err) {
		// A concurrent Start won the race; join the attempt it created.
		existing, findErr := s.store.Attempts().FindOngoing(ctx, examID, p.SubjectID)
		if findErr == nil {
			return existing, false, nil
		}
	}
	if err != nil {
		return nil, false, err
	}

	if created {
		s.pub.Publish(ctx, MonitorEvent{
			Type:      MonitorEventTransition,
			ExamID:    attempt.ExamID,
			AttemptID: attempt.ID,
			StudentID: attempt.StudentID,
			To:        model.AttemptStatusOngoing,
			At:        attempt.StartTime,
		})
	}
	return attempt, created, nil
}

// Submit finalises the caller's ongoing attempt. No answer mutation is possible afterwards.
func (s *AttemptService) Submit(ctx context.Context, p model.Principal, attemptID uuid.UUID) (*model.ExamAttempt, error) {
	a, err := loadAttempt(ctx, s.store.Attempts(), attemptID, false)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(p, a); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	spent := elapsedSeconds(a.StartTime, now)
	return s.transition(ctx, s.store, a, "submit", model.AttemptTransition{
		From:           model.AttemptStatusOngoing,
		To:             model.AttemptStatusSubmitted,
		At:             now,
		EndReason:      model.EndReasonSubmitted,
		SubmittedAt:    &now,
		TotalTimeSpent: &spent,
	})
}

// Abandon closes an ongoing attempt on a proctor's or admin's request.
func (s *AttemptService) Abandon(ctx context.Context, p model.Principal, attemptID uuid.UUID, reason string) (*model.ExamAttempt, error) {
	if err := requireStaff(p); err != nil {
		return nil, err
	}
	a, err := loadAttempt(ctx, s.store.Attempts(), attemptID, false)
	if err != nil {
		return nil, err
	}

	endReason := model.EndReasonProctor
	if reason != "" {
		endReason += ": " + reason
	}

	now := s.now().UTC()
	spent := elapsedSeconds(a.StartTime, now)
	updated, err := s.transition(ctx, s.store, a, "abandon", model.AttemptTransition{
		From:           model.AttemptStatusOngoing,
		To:             model.AttemptStatusAbandoned,
		At:             now,
		EndReason:      endReason,
		TotalTimeSpent: &spent,
	})
	if err == nil {
		s.log.Info().Str("attempt_id", attemptID.String()).Str("by", p.SubjectID).Str("reason", reason).Msg("Attempt abandoned")
	}
	return updated, err
}

// Evaluate records the score produced by the scoring collaborator.
func (s *AttemptService) Evaluate(ctx context.Context, p model.Principal, attemptID uuid.UUID, score float64) (*model.ExamAttempt, error) {
	if p.Role != model.RoleAdmin {
		return nil, ErrForbidden
	}
	if score < 0 {
		return nil, fmt.Errorf("score must not be negative: %w", ErrInvalidPayload)
	}
	a, err := loadAttempt(ctx, s.store.Attempts(), attemptID, false)
	if err != nil {
		return nil, err
	}

	return s.transition(ctx, s.store, a, "evaluate", model.AttemptTransition{
		From:  model.AttemptStatusSubmitted,
		To:    model.AttemptStatusEvaluated,
		At:    s.now().UTC(),
		Score: &score,
	})
}

// ExpireOverdue abandons ongoing attempts whose duration plus grace has passed.
// It returns how many attempts were closed.
func (s *AttemptService) ExpireOverdue(ctx context.Context) (int, error) {
	now := s.now().UTC()
	overdue, err := s.store.Attempts().ListOverdue(ctx, now, s.grace, expireBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list overdue attempts: %w", err)
	}

	closed := 0
	for i := range overdue {
		a := &overdue[i]
		spent := elapsedSeconds(a.StartTime, now)
		_, err := s.transition(ctx, s.store, a, "expire", model.AttemptTransition{
			From:           model.AttemptStatusOngoing,
			To:             model.AttemptStatusAbandoned,
			At:             now,
			EndReason:      model.EndReasonTimeout,
			TotalTimeSpent: &spent,
		})
		switch {
		case err == nil:
			closed++
		case errors.Is(err, ErrInvalidState):
			// Submitted between the listing and the update.
		default:
			s.log.Error().Err(err).Str("attempt_id", a.ID.String()).Msg("Failed to expire attempt")
		}
	}
	return closed, nil
}

// transition applies one guarded status change. The update is conditional on
// the current status, so a lost race surfaces as InvalidState.
func (s *AttemptService) transition(ctx context.Context, store repository.Store, a *model.ExamAttempt, op string, t model.AttemptTransition) (*model.ExamAttempt, error) {
	if a.Status != t.From || !model.CanTransition(t.From, t.To) {
		return nil, stateErr(op, a.Status)
	}

	updated, err := store.Attempts().Transition(ctx, a.ID, t)
	switch {
	case errors.Is(err, repository.ErrStaleState):
		current := a.Status
		if fresh, getErr := store.Attempts().GetByID(ctx, a.ID); getErr == nil {
			current = fresh.Status
		}
		return nil, stateErr(op, current)
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrAttemptNotFound
	case err != nil:
		return nil, fmt.Errorf("%s attempt: %w", op, err)
	}

	metrics.AttemptTransitions.WithLabelValues(string(t.From), string(t.To)).Inc()
	s.pub.Publish(ctx, MonitorEvent{
		Type:      MonitorEventTransition,
		ExamID:    updated.ExamID,
		AttemptID: updated.ID,
		StudentID: updated.StudentID,
		From:      t.From,
		To:        t.To,
		At:        t.At,
	})
	return updated, nil
}

func elapsedSeconds(start, now time.Time) int {
	d := now.Sub(start)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}
