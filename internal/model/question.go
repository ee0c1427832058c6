package model

import (
	"github.com/google/uuid"
)

// Option is one selectable choice of a question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is an exam question as stored. Options are kept in authoring order;
// per-student order is derived at display time.
type Question struct {
	ID           uuid.UUID `json:"id"`
	ExamID       uuid.UUID `json:"exam_id"`
	QuestionText string    `json:"question_text"`
	Options      []Option  `json:"options"`
	OrderNum     int       `json:"order_num"`
}

// PaperQuestion is a question as presented inside one attempt.
type PaperQuestion struct {
	ID           uuid.UUID    `json:"id"`
	QuestionText string       `json:"question_text"`
	Options      []Option     `json:"options"`
	OrderNum     int          `json:"order_num"`
	Answer       *AnswerValue `json:"answer,omitempty"`
	Flagged      bool         `json:"flagged,omitempty"`
}

// AttemptPaper is the exam as seen from one attempt.
type AttemptPaper struct {
	AttemptID uuid.UUID       `json:"attempt_id"`
	ExamID    uuid.UUID       `json:"exam_id"`
	Title     string          `json:"title"`
	Status    AttemptStatus   `json:"status"`
	ReadOnly  bool            `json:"read_only"`
	Questions []PaperQuestion `json:"questions"`
}
