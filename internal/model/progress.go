package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// AttemptProgress is the autosaved snapshot of an ongoing attempt.
// It is replaced wholesale on every save.
type AttemptProgress struct {
	AttemptID            uuid.UUID                  `json:"attempt_id"`
	CurrentQuestionIndex int                        `json:"current_question_index"`
	Answers              map[string]json.RawMessage `json:"answers"`
	FlaggedQuestions     []string                   `json:"flagged_questions"`
	LastSavedAt          time.Time                  `json:"last_saved_at"`
}

// Answer is the per-question row upserted by autosave.
type Answer struct {
	ID                uuid.UUID `json:"id"`
	AttemptID         uuid.UUID `json:"attempt_id"`
	QuestionID        uuid.UUID `json:"question_id"`
	AnswerText        *string   `json:"answer_text,omitempty"`
	SelectedOptionID  *string   `json:"selected_option_id,omitempty"`
	IsMarkedForReview bool      `json:"is_marked_for_review"`
	TimeSpent         int       `json:"time_spent"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// SameValue reports whether two answers carry the same response, ignoring
// timestamps and review flags.
func (a *Answer) SameValue(b *Answer) bool {
	return equalPtr(a.AnswerText, b.AnswerText) && equalPtr(a.SelectedOptionID, b.SelectedOptionID)
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// AnswerValue is the decoded client answer payload. Clients send either a bare
// JSON string (free text) or an object.
type AnswerValue struct {
	Text             *string `json:"text,omitempty"`
	SelectedOptionID *string `json:"selectedOptionId,omitempty"`
	TimeSpent        int     `json:"timeSpent,omitempty"`
}

var errEmptyAnswer = errors.New("empty answer payload")

// ParseAnswerValue decodes a raw answer. Strings become Text, objects are read
// field by field, null clears the answer and any other JSON is kept verbatim as Text.
func ParseAnswerValue(raw json.RawMessage) (AnswerValue, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return AnswerValue{}, errEmptyAnswer
	}

	switch trimmed[0] {
	case 'n':
		return AnswerValue{}, nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return AnswerValue{}, err
		}
		return AnswerValue{Text: &s}, nil
	case '{':
		var v AnswerValue
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return AnswerValue{}, err
		}
		if v.TimeSpent < 0 {
			v.TimeSpent = 0
		}
		return v, nil
	default:
		if !json.Valid(trimmed) {
			return AnswerValue{}, errors.New("invalid answer JSON")
		}
		s := string(trimmed)
		return AnswerValue{Text: &s}, nil
	}
}

// AutosaveRequest is the full in-memory state a client sends on every autosave.
type AutosaveRequest struct {
	AttemptID            string                     `json:"attemptId" binding:"required,uuid"`
	Answers              map[string]json.RawMessage `json:"answers"`
	CurrentQuestionIndex *int                       `json:"currentQuestionIndex" binding:"required,min=0"`
	FlaggedQuestions     []string                   `json:"flaggedQuestions" binding:"omitempty,dive,uuid"`
}

// ResumeState is returned to a client reloading an in-progress attempt.
type ResumeState struct {
	Attempt          *ExamAttempt     `json:"attempt"`
	Progress         *AttemptProgress `json:"progress"`
	RemainingSeconds float64          `json:"remaining_seconds"`
}
