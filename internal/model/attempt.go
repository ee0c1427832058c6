package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates exam attempt states.
type AttemptStatus string

const (
	AttemptStatusOngoing   AttemptStatus = "ongoing"
	AttemptStatusSubmitted AttemptStatus = "submitted"
	AttemptStatusEvaluated AttemptStatus = "evaluated"
	AttemptStatusAbandoned AttemptStatus = "abandoned"
)

// End reasons recorded on terminal transitions.
const (
	EndReasonSubmitted = "submitted"
	EndReasonTimeout   = "timeout"
	EndReasonProctor   = "proctor"
)

// transitions lists every legal status edge. Anything absent is illegal.
var transitions = map[AttemptStatus][]AttemptStatus{
	AttemptStatusOngoing:   {AttemptStatusSubmitted, AttemptStatusAbandoned},
	AttemptStatusSubmitted: {AttemptStatusEvaluated},
}

// CanTransition reports whether from → to is a legal lifecycle edge.
func CanTransition(from, to AttemptStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ExamAttempt represents one student's timed session on an exam.
// Rows are never deleted.
type ExamAttempt struct {
	ID             uuid.UUID     `json:"id"`
	ExamID         uuid.UUID     `json:"exam_id"`
	StudentID      string        `json:"student_id"`
	AttemptNumber  int           `json:"attempt_number"`
	Status         AttemptStatus `json:"status"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        *time.Time    `json:"end_time,omitempty"`
	SubmittedAt    *time.Time    `json:"submitted_at,omitempty"`
	TotalTimeSpent int           `json:"total_time_spent"` // seconds
	Score          *float64      `json:"score,omitempty"`
	EndReason      *string       `json:"end_reason,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// IsOngoing reports whether the attempt still accepts answer mutations.
func (a *ExamAttempt) IsOngoing() bool {
	return a.Status == AttemptStatusOngoing
}

// OwnedBy reports whether subjectID is the student who owns the attempt.
func (a *ExamAttempt) OwnedBy(subjectID string) bool {
	return a.StudentID == subjectID
}

// AttemptTransition carries the columns written alongside a status change.
type AttemptTransition struct {
	From           AttemptStatus
	To             AttemptStatus
	At             time.Time
	EndReason      string
	SubmittedAt    *time.Time
	TotalTimeSpent *int
	Score          *float64
}

// StartAttemptRequest is the payload for starting an exam.
type StartAttemptRequest struct {
	EntryToken string `json:"entry_token" binding:"omitempty,max=64"`
}

// AbandonAttemptRequest is the payload for a proctor closing an attempt.
type AbandonAttemptRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=255"`
}

// EvaluateAttemptRequest is the payload the scoring collaborator posts.
type EvaluateAttemptRequest struct {
	Score *float64 `json:"score" binding:"required,min=0"`
}
