package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-integrity/internal/model"
	"github.com/stemsi/exstem-integrity/internal/repository"
)

// fakeData is the in-memory state behind fakeStore.
type fakeData struct {
	exams     map[uuid.UUID]model.Exam
	questions map[uuid.UUID][]model.Question
	attempts  map[uuid.UUID]model.ExamAttempt
	progress  map[uuid.UUID]model.AttemptProgress
	answers   map[uuid.UUID]map[uuid.UUID]model.Answer
	events    []model.AntiCheatEvent
}

func newFakeData() *fakeData {
	return &fakeData{
		exams:     map[uuid.UUID]model.Exam{},
		questions: map[uuid.UUID][]model.Question{},
		attempts:  map[uuid.UUID]model.ExamAttempt{},
		progress:  map[uuid.UUID]model.AttemptProgress{},
		answers:   map[uuid.UUID]map[uuid.UUID]model.Answer{},
	}
}

func (d *fakeData) clone() *fakeData {
	c := newFakeData()
	for k, v := range d.exams {
		c.exams[k] = v
	}
	for k, v := range d.questions {
		c.questions[k] = append([]model.Question(nil), v...)
	}
	for k, v := range d.attempts {
		c.attempts[k] = v
	}
	for k, v := range d.progress {
		c.progress[k] = v
	}
	for k, v := range d.answers {
		inner := make(map[uuid.UUID]model.Answer, len(v))
		for qk, qv := range v {
			inner[qk] = qv
		}
		c.answers[k] = inner
	}
	c.events = append([]model.AntiCheatEvent(nil), d.events...)
	return c
}

// fakeStore implements repository.Store in memory. A failed WithinTx restores
// the state from before the transaction.
type fakeStore struct {
	mu   *sync.Mutex
	data *fakeData
	inTx bool

	failUpsert   map[uuid.UUID]error
	failInsert   error
	upsertCalls  *int
	progressSave *int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		mu:           &sync.Mutex{},
		data:         newFakeData(),
		failUpsert:   map[uuid.UUID]error{},
		upsertCalls:  new(int),
		progressSave: new(int),
	}
}

func (s *fakeStore) Attempts() repository.AttemptStore { return fakeAttempts{s} }
func (s *fakeStore) Progress() repository.ProgressStore { return fakeProgress{s} }
func (s *fakeStore) AntiCheat() repository.AntiCheatStore { return fakeAntiCheat{s} }
func (s *fakeStore) Exams() repository.ExamStore { return fakeExams{s} }
func (s *fakeStore) Questions() repository.QuestionStore { return fakeQuestions{s} }

func (s *fakeStore) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	tx := *s
	tx.inTx = true
	if err := fn(&tx); err != nil {
		s.mu.Lock()
		*s.data = *snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// seed helpers

func (s *fakeStore) addExam(e model.Exam) model.Exam {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	s.data.exams[e.ID] = e
	return e
}

func (s *fakeStore) addQuestions(examID uuid.UUID, qs ...model.Question) {
	s.data.questions[examID] = append(s.data.questions[examID], qs...)
}

func (s *fakeStore) addAttempt(a model.ExamAttempt) model.ExamAttempt {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	s.data.attempts[a.ID] = a
	return a
}

func (s *fakeStore) attempt(id uuid.UUID) model.ExamAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.attempts[id]
}

func (s *fakeStore) answerRows(attemptID uuid.UUID) map[uuid.UUID]model.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[uuid.UUID]model.Answer{}
	for k, v := range s.data.answers[attemptID] {
		out[k] = v
	}
	return out
}

type fakeAttempts struct{ s *fakeStore }

func (f fakeAttempts) GetByID(_ context.Context, id uuid.UUID) (*model.ExamAttempt, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	a, ok := f.s.data.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (f fakeAttempts) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error) {
	return f.GetByID(ctx, id)
}

func (f fakeAttempts) FindOngoing(_ context.Context, examID uuid.UUID, studentID string) (*model.ExamAttempt, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, a := range f.s.data.attempts {
		if a.ExamID == examID && a.StudentID == studentID && a.Status == model.AttemptStatusOngoing {
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f fakeAttempts) CountByExamAndStudent(_ context.Context, examID uuid.UUID, studentID string) (int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	n := 0
	for _, a := range f.s.data.attempts {
		if a.ExamID == examID && a.StudentID == studentID {
			n++
		}
	}
	return n, nil
}

func (f fakeAttempts) Create(_ context.Context, a *model.ExamAttempt) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	a.CreatedAt, a.UpdatedAt = a.StartTime, a.StartTime
	f.s.data.attempts[a.ID] = *a
	return nil
}

func (f fakeAttempts) Transition(_ context.Context, id uuid.UUID, t model.AttemptTransition) (*model.ExamAttempt, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	a, ok := f.s.data.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if a.Status != t.From {
		return nil, repository.ErrStaleState
	}
	a.Status = t.To
	if t.To == model.AttemptStatusSubmitted || t.To == model.AttemptStatusAbandoned {
		at := t.At
		a.EndTime = &at
	}
	if t.SubmittedAt != nil {
		a.SubmittedAt = t.SubmittedAt
	}
	if t.TotalTimeSpent != nil {
		a.TotalTimeSpent = *t.TotalTimeSpent
	}
	if t.Score != nil {
		a.Score = t.Score
	}
	if t.EndReason != "" {
		reason := t.EndReason
		a.EndReason = &reason
	}
	a.UpdatedAt = t.At
	f.s.data.attempts[id] = a
	return &a, nil
}

func (f fakeAttempts) ListOverdue(_ context.Context, now time.Time, grace time.Duration, limit int) ([]model.ExamAttempt, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []model.ExamAttempt
	for _, a := range f.s.data.attempts {
		exam := f.s.data.exams[a.ExamID]
		if a.Status == model.AttemptStatusOngoing && a.StartTime.Add(exam.Duration()+grace).Before(now) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeProgress struct{ s *fakeStore }

func (f fakeProgress) SaveProgress(_ context.Context, p *model.AttemptProgress) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	*f.s.progressSave++
	cp := *p
	cp.Answers = make(map[string]json.RawMessage, len(p.Answers))
	for k, v := range p.Answers {
		cp.Answers[k] = v
	}
	cp.FlaggedQuestions = append([]string{}, p.FlaggedQuestions...)
	f.s.data.progress[p.AttemptID] = cp
	return nil
}

func (f fakeProgress) GetProgress(_ context.Context, attemptID uuid.UUID) (*model.AttemptProgress, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	p, ok := f.s.data.progress[attemptID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (f fakeProgress) ListAnswers(_ context.Context, attemptID uuid.UUID) ([]model.Answer, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []model.Answer
	for _, a := range f.s.data.answers[attemptID] {
		out = append(out, a)
	}
	return out, nil
}

func (f fakeProgress) UpsertAnswer(_ context.Context, a *model.Answer) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	*f.s.upsertCalls++
	if err := f.s.failUpsert[a.QuestionID]; err != nil {
		return err
	}
	rows, ok := f.s.data.answers[a.AttemptID]
	if !ok {
		rows = map[uuid.UUID]model.Answer{}
		f.s.data.answers[a.AttemptID] = rows
	}
	if existing, ok := rows[a.QuestionID]; ok {
		a.ID = existing.ID
	} else if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	rows[a.QuestionID] = *a
	return nil
}

type fakeAntiCheat struct{ s *fakeStore }

func (f fakeAntiCheat) Insert(_ context.Context, e *model.AntiCheatEvent) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failInsert != nil {
		return f.s.failInsert
	}
	f.s.data.events = append(f.s.data.events, *e)
	return nil
}

func (f fakeAntiCheat) InsertBatch(ctx context.Context, events []model.AntiCheatEvent) (int64, error) {
	for i := range events {
		if err := f.Insert(ctx, &events[i]); err != nil {
			return 0, err
		}
	}
	return int64(len(events)), nil
}

func (f fakeAntiCheat) ListByAttempt(_ context.Context, attemptID uuid.UUID) ([]model.AntiCheatEvent, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := make([]model.AntiCheatEvent, 0)
	for _, e := range f.s.data.events {
		if e.AttemptID == attemptID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type fakeExams struct{ s *fakeStore }

func (f fakeExams) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	e, ok := f.s.data.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (f fakeExams) SetEntryTokenHash(_ context.Context, id uuid.UUID, hash *string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	e, ok := f.s.data.exams[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.EntryTokenHash = hash
	f.s.data.exams[id] = e
	return nil
}

type fakeQuestions struct{ s *fakeStore }

func (f fakeQuestions) ListByExam(_ context.Context, examID uuid.UUID) ([]model.Question, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := append([]model.Question{}, f.s.data.questions[examID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderNum < out[j].OrderNum })
	return out, nil
}

// recordingPublisher captures monitor events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []MonitorEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev MonitorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) all() []MonitorEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]MonitorEvent(nil), p.events...)
}

var errBoom = errors.New("boom")
