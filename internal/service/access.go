package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-integrity/internal/model"
	"github.com/stemsi/exstem-integrity/internal/repository"
)

func loadAttempt(ctx context.Context, attempts repository.AttemptStore, id uuid.UUID, forUpdate bool) (*model.ExamAttempt, error) {
	var (
		a   *model.ExamAttempt
		err error
	)
	if forUpdate {
		a, err = attempts.GetForUpdate(ctx, id)
	} else {
		a, err = attempts.GetByID(ctx, id)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return a, nil
}

func loadExam(ctx context.Context, exams repository.ExamStore, id uuid.UUID) (*model.Exam, error) {
	e, err := exams.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return e, nil
}

// requireOwner allows only the student who owns the attempt.
func requireOwner(p model.Principal, a *model.ExamAttempt) error {
	if p.Role != model.RoleStudent || !a.OwnedBy(p.SubjectID) {
		return ErrForbidden
	}
	return nil
}

// requireOwnerOrStaff allows the owning student, any proctor and any admin.
func requireOwnerOrStaff(p model.Principal, a *model.ExamAttempt) error {
	if p.IsStaff() {
		return nil
	}
	return requireOwner(p, a)
}

func requireStaff(p model.Principal) error {
	if !p.IsStaff() {
		return ErrForbidden
	}
	return nil
}
