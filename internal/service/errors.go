package service

import (
	"errors"
	"fmt"

	"github.com/stemsi/exstem-integrity/internal/model"
)

// Domain errors. Handlers map these to HTTP status codes.
var (
	ErrUnauthorized           = errors.New("unauthorized")
	ErrForbidden              = errors.New("forbidden")
	ErrAttemptNotFound        = errors.New("attempt not found")
	ErrExamNotFound           = errors.New("exam not found")
	ErrInvalidState           = errors.New("invalid attempt state")
	ErrExamNotAvailable       = errors.New("exam is not available for joining")
	ErrInvalidEntryToken      = errors.New("invalid entry token")
	ErrMaxAttemptsReached     = errors.New("maximum number of attempts reached")
	ErrAnswerChangeNotAllowed = errors.New("this exam does not allow changing an answer")
	ErrReviewNotAllowed       = errors.New("this exam does not allow answer review")
	ErrInvalidEventType       = errors.New("invalid anti-cheat event type")
	ErrInvalidSeverity        = errors.New("invalid anti-cheat severity")
	ErrInvalidPayload         = errors.New("invalid payload")
)

// StateError reports an operation that is illegal for the attempt's current
// status. It matches ErrInvalidState under errors.Is and unwraps to Cause.
type StateError struct {
	Op      string
	Current model.AttemptStatus
	Cause   error
}

func (e *StateError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: attempt is %s: %v", e.Op, e.Current, e.Cause)
	}
	return fmt.Sprintf("%s: attempt is %s", e.Op, e.Current)
}

func (e *StateError) Is(target error) bool { return target == ErrInvalidState }

func (e *StateError) Unwrap() error { return e.Cause }

// Message is the user-facing explanation returned with a 409.
func (e *StateError) Message() string {
	switch {
	case errors.Is(e.Cause, ErrAnswerChangeNotAllowed):
		return "Ujian ini tidak mengizinkan perubahan jawaban."
	case e.Current == model.AttemptStatusSubmitted || e.Current == model.AttemptStatusEvaluated:
		return "Ujian sudah dikumpulkan."
	case e.Current == model.AttemptStatusAbandoned:
		return "Sesi ujian ini telah ditutup."
	case e.Current == model.AttemptStatusOngoing:
		return "Ujian masih berlangsung."
	default:
		return "Tindakan tidak diizinkan pada status ujian saat ini."
	}
}

func stateErr(op string, current model.AttemptStatus) error {
	return &StateError{Op: op, Current: current}
}
