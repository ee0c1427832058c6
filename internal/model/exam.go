package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft      ExamStatus = "DRAFT"
	ExamStatusPublished  ExamStatus = "PUBLISHED"
	ExamStatusInProgress ExamStatus = "IN_PROGRESS"
	ExamStatusCompleted  ExamStatus = "COMPLETED"
	ExamStatusArchived   ExamStatus = "ARCHIVED"
)

// Exam is the exam metadata consulted by the attempt guards. The core never
// authors exams; it only reads them.
type Exam struct {
	ID                uuid.UUID  `json:"id"`
	Title             string     `json:"title"`
	Status            ExamStatus `json:"status"`
	DurationMinutes   int        `json:"duration_minutes"`
	MaxAttempts       int        `json:"max_attempts"` // 0 = unlimited
	AllowAnswerChange bool       `json:"allow_answer_change"`
	AllowAnswerReview bool       `json:"allow_answer_review"`
	ShuffleOptions    bool       `json:"shuffle_options"`
	EntryTokenHash    *string    `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Joinable reports whether students may start attempts on the exam.
func (e *Exam) Joinable() bool {
	return e.Status == ExamStatusPublished || e.Status == ExamStatusInProgress
}

// RequiresEntryToken reports whether Start must verify an entry token.
func (e *Exam) RequiresEntryToken() bool {
	return e.EntryTokenHash != nil && *e.EntryTokenHash != ""
}

// Duration returns the exam's time allowance.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}
