package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-integrity/internal/config"
	"github.com/stemsi/exstem-integrity/internal/metrics"
	"github.com/stemsi/exstem-integrity/internal/model"
	"github.com/stemsi/exstem-integrity/internal/repository"
)

// SaveProgressInput is the full client state sent on every autosave.
type SaveProgressInput struct {
	AttemptID            uuid.UUID
	CurrentQuestionIndex int
	Answers              map[string]json.RawMessage
	FlaggedQuestions     []string
}

type parsedAnswer struct {
	questionID uuid.UUID
	value      model.AnswerValue
}

// ProgressService persists autosaves and serves resume state.
type ProgressService struct {
	store         repository.Store
	transactional bool
	now           func() time.Time
}

// NewProgressService creates a new ProgressService. With AUTOSAVE_TRANSACTIONAL
// the snapshot overwrite and the answer upserts commit or roll back together.
func NewProgressService(store repository.Store, cfg *config.Config) *ProgressService {
	return &ProgressService{
		store:         store,
		transactional: cfg.AutosaveTx,
		now:           time.Now,
	}
}

// Save overwrites the attempt's progress snapshot and upserts one answer row per
// answered question. Replaying the same payload only refreshes timestamps.
func (s *ProgressService) Save(ctx context.Context, p model.Principal, in SaveProgressInput) (time.Time, error) {
	savedAt := s.now().UTC()
	save := func(st repository.Store) error {
		a, err := loadAttempt(ctx, st.Attempts(), in.AttemptID, s.transactional)
		if err != nil {
			return err
		}
		if err := requireOwner(p, a); err != nil {
			return err
		}
		if !a.IsOngoing() {
			return stateErr("autosave", a.Status)
		}

		answers, flagged, err := parseSaveInput(in)
		if err != nil {
			return err
		}

		exam, err := loadExam(ctx, st.Exams(), a.ExamID)
		if err != nil {
			return err
		}
		if !exam.AllowAnswerChange {
			if err := s.checkNoAnswerChange(ctx, st, a, answers); err != nil {
				return err
			}
		}

		if err := st.Progress().SaveProgress(ctx, &model.AttemptProgress{
			AttemptID:            a.ID,
			CurrentQuestionIndex: in.CurrentQuestionIndex,
			Answers:              in.Answers,
			FlaggedQuestions:     flaggedList(in.FlaggedQuestions),
			LastSavedAt:          savedAt,
		}); err != nil {
			return fmt.Errorf("save progress: %w", err)
		}

		for _, pa := range answers {
			row := toAnswerRow(a.ID, pa, flagged[pa.questionID], savedAt)
			if err := st.Progress().UpsertAnswer(ctx, row); err != nil {
				return fmt.Errorf("upsert answer %s: %w", pa.questionID, err)
			}
		}
		return nil
	}

	var err error
	if s.transactional {
		err = s.store.WithinTx(ctx, save)
	} else {
		err = save(s.store)
	}
	metrics.AutosaveTotal.WithLabelValues(autosaveResult(err)).Inc()
	if err != nil {
		return time.Time{}, err
	}
	return savedAt, nil
}

func (s *ProgressService) checkNoAnswerChange(ctx context.Context, st repository.Store, a *model.ExamAttempt, answers []parsedAnswer) error {
	existing, err := st.Progress().ListAnswers(ctx, a.ID)
	if err != nil {
		return fmt.Errorf("list answers: %w", err)
	}
	prior := make(map[uuid.UUID]*model.Answer, len(existing))
	for i := range existing {
		prior[existing[i].QuestionID] = &existing[i]
	}

	for _, pa := range answers {
		old, ok := prior[pa.questionID]
		if !ok || (old.AnswerText == nil && old.SelectedOptionID == nil) {
			continue
		}
		if !old.SameValue(toAnswerRow(a.ID, pa, false, time.Time{})) {
			return &StateError{Op: "autosave", Current: a.Status, Cause: ErrAnswerChangeNotAllowed}
		}
	}
	return nil
}

// Resume returns the attempt, its last snapshot and the remaining time.
func (s *ProgressService) Resume(ctx context.Context, p model.Principal, attemptID uuid.UUID) (*model.ResumeState, error) {
	a, err := loadAttempt(ctx, s.store.Attempts(), attemptID, false)
	if err != nil {
		return nil, err
	}
	if err := requireOwnerOrStaff(p, a); err != nil {
		return nil, err
	}

	progress, err := s.store.Progress().GetProgress(ctx, a.ID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		progress = &model.AttemptProgress{
			AttemptID:        a.ID,
			Answers:          map[string]json.RawMessage{},
			FlaggedQuestions: []string{},
		}
	case err != nil:
		return nil, fmt.Errorf("get progress: %w", err)
	}

	state := &model.ResumeState{Attempt: a, Progress: progress}
	if a.IsOngoing() {
		exam, err := loadExam(ctx, s.store.Exams(), a.ExamID)
		if err != nil {
			return nil, err
		}
		remaining := a.StartTime.Add(exam.Duration()).Sub(s.now())
		if remaining > 0 {
			state.RemainingSeconds = remaining.Seconds()
		}
	}
	return state, nil
}

func parseSaveInput(in SaveProgressInput) ([]parsedAnswer, map[uuid.UUID]bool, error) {
	if in.CurrentQuestionIndex < 0 {
		return nil, nil, fmt.Errorf("current question index must not be negative: %w", ErrInvalidPayload)
	}

	flagged := make(map[uuid.UUID]bool, len(in.FlaggedQuestions))
	for _, raw := range in.FlaggedQuestions {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("flagged question %q: %w", raw, ErrInvalidPayload)
		}
		flagged[id] = true
	}

	answers := make([]parsedAnswer, 0, len(in.Answers))
	for key, raw := range in.Answers {
		id, err := uuid.Parse(key)
		if err != nil {
			return nil, nil, fmt.Errorf("answer key %q: %w", key, ErrInvalidPayload)
		}
		v, err := model.ParseAnswerValue(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("answer for %s: %v: %w", key, err, ErrInvalidPayload)
		}
		answers = append(answers, parsedAnswer{questionID: id, value: v})
	}
	return answers, flagged, nil
}

func toAnswerRow(attemptID uuid.UUID, pa parsedAnswer, marked bool, at time.Time) *model.Answer {
	return &model.Answer{
		AttemptID:         attemptID,
		QuestionID:        pa.questionID,
		AnswerText:        pa.value.Text,
		SelectedOptionID:  pa.value.SelectedOptionID,
		IsMarkedForReview: marked,
		TimeSpent:         pa.value.TimeSpent,
		UpdatedAt:         at,
	}
}

// flaggedList drops duplicates while keeping client order.
func flaggedList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, q := range in {
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out
}

func autosaveResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrAttemptNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidPayload):
		return "invalid"
	default:
		return "error"
	}
}
