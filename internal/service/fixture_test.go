package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-integrity/internal/config"
	"github.com/stemsi/exstem-integrity/internal/model"
	"github.com/stemsi/exstem-integrity/internal/shuffle"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	t     *testing.T
	cfg   *config.Config
	store *fakeStore
	pub   *recordingPublisher
	now   time.Time

	auth      *AuthService
	attempts  *AttemptService
	progress  *ProgressService
	anticheat *AntiCheatService
	papers    *PaperService

	exam    model.Exam
	student model.Principal
	other   model.Principal
	proctor model.Principal
	admin   model.Principal
}

func newFixture(t *testing.T, opts ...func(*config.Config)) *fixture {
	t.Helper()
	cfg := testConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	f := &fixture{
		t:       t,
		cfg:     cfg,
		store:   newFakeStore(),
		pub:     &recordingPublisher{},
		now:     baseTime,
		student: model.Principal{SubjectID: "student-1", Role: model.RoleStudent},
		other:   model.Principal{SubjectID: "student-2", Role: model.RoleStudent},
		proctor: model.Principal{SubjectID: "proctor-1", Role: model.RoleProctor},
		admin:   model.Principal{SubjectID: "admin-1", Role: model.RoleAdmin},
	}
	clock := func() time.Time { return f.now }
	log := zerolog.Nop()

	f.auth = NewAuthService(cfg)
	f.attempts = NewAttemptService(f.store, f.auth, f.pub, cfg, log)
	f.attempts.now = clock
	f.progress = NewProgressService(f.store, cfg)
	f.progress.now = clock
	f.anticheat = NewAntiCheatService(f.store, nil, f.pub, cfg, log)
	f.anticheat.now = clock
	f.papers = NewPaperService(f.store, nil, shuffle.XXHasher{})

	f.exam = f.store.addExam(model.Exam{
		Title:             "Physics Midterm",
		Status:            model.ExamStatusPublished,
		DurationMinutes:   60,
		MaxAttempts:       2,
		AllowAnswerChange: true,
		ShuffleOptions:    true,
	})
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

// ongoingAttempt inserts an ongoing attempt owned by f.student.
func (f *fixture) ongoingAttempt() model.ExamAttempt {
	return f.store.addAttempt(model.ExamAttempt{
		ExamID:        f.exam.ID,
		StudentID:     f.student.SubjectID,
		AttemptNumber: 1,
		Status:        model.AttemptStatusOngoing,
		StartTime:     f.now,
	})
}

func (f *fixture) attemptWithStatus(status model.AttemptStatus) model.ExamAttempt {
	a := f.ongoingAttempt()
	a.Status = status
	f.store.data.attempts[a.ID] = a
	return a
}

func raw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func answersOf(pairs map[uuid.UUID]any) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(pairs))
	for k, v := range pairs {
		out[k.String()] = raw(v)
	}
	return out
}
