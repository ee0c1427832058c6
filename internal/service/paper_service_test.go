package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-integrity/internal/config"
	"github.com/stemsi/exstem-integrity/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedQuestions(f *fixture, n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			ID:           uuid.New(),
			ExamID:       f.exam.ID,
			QuestionText: "Question",
			OrderNum:     n - i,
			Options: []model.Option{
				{ID: "a", Text: "A"}, {ID: "b", Text: "B"}, {ID: "c", Text: "C"},
				{ID: "d", Text: "D"}, {ID: "e", Text: "E"}, {ID: "f", Text: "F"},
			},
		}
	}
	f.store.addQuestions(f.exam.ID, qs...)
	return qs
}

func optionIDs(opts []model.Option) []string {
	ids := make([]string, len(opts))
	for i, o := range opts {
		ids[i] = o.ID
	}
	return ids
}

func TestPaperService_OrderIsStableAcrossCalls(t *testing.T) {
	f := newFixture(t)
	seedQuestions(f, 4)
	a := f.ongoingAttempt()
	ctx := context.Background()

	first, err := f.papers.Paper(ctx, f.student, a.ID)
	require.NoError(t, err)
	require.Len(t, first.Questions, 4)
	assert.False(t, first.ReadOnly)
	for i := 1; i < len(first.Questions); i++ {
		assert.Less(t, first.Questions[i-1].OrderNum, first.Questions[i].OrderNum)
	}

	second, err := f.papers.Paper(ctx, f.student, a.ID)
	require.NoError(t, err)
	for i := range first.Questions {
		assert.Equal(t, optionIDs(first.Questions[i].Options), optionIDs(second.Questions[i].Options))
		assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e", "f"}, optionIDs(first.Questions[i].Options))
	}
}

func TestPaperService_ShuffleDisabledKeepsAuthoringOrder(t *testing.T) {
	f := newFixture(t)
	exam := f.exam
	exam.ShuffleOptions = false
	f.store.data.exams[exam.ID] = exam
	seedQuestions(f, 2)
	a := f.ongoingAttempt()

	paper, err := f.papers.Paper(context.Background(), f.student, a.ID)
	require.NoError(t, err)
	for _, q := range paper.Questions {
		assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, optionIDs(q.Options))
	}
}

func TestPaperService_ReviewGateAfterSubmit(t *testing.T) {
	f := newFixture(t)
	qs := seedQuestions(f, 3)
	a := f.ongoingAttempt()
	ctx := context.Background()

	_, err := f.progress.Save(ctx, f.student, SaveProgressInput{
		AttemptID:        a.ID,
		Answers:          answersOf(map[uuid.UUID]any{qs[0].ID: map[string]any{"selectedOptionId": "c"}}),
		FlaggedQuestions: []string{qs[0].ID.String()},
	})
	require.NoError(t, err)
	during, err := f.papers.Paper(ctx, f.student, a.ID)
	require.NoError(t, err)

	_, err = f.attempts.Submit(ctx, f.student, a.ID)
	require.NoError(t, err)

	_, err = f.papers.Paper(ctx, f.student, a.ID)
	assert.ErrorIs(t, err, ErrReviewNotAllowed)

	// Proctors always see the student's paper.
	staffView, err := f.papers.Paper(ctx, f.proctor, a.ID)
	require.NoError(t, err)
	assert.True(t, staffView.ReadOnly)

	exam := f.exam
	exam.AllowAnswerReview = true
	f.store.data.exams[exam.ID] = exam

	review, err := f.papers.Paper(ctx, f.student, a.ID)
	require.NoError(t, err)
	assert.True(t, review.ReadOnly)
	assert.Equal(t, model.AttemptStatusSubmitted, review.Status)
	for i := range during.Questions {
		assert.Equal(t, optionIDs(during.Questions[i].Options), optionIDs(review.Questions[i].Options))
		assert.Equal(t, optionIDs(during.Questions[i].Options), optionIDs(staffView.Questions[i].Options))
	}

	var answered *model.PaperQuestion
	for i := range review.Questions {
		if review.Questions[i].ID == qs[0].ID {
			answered = &review.Questions[i]
		}
	}
	require.NotNil(t, answered)
	require.NotNil(t, answered.Answer)
	assert.Equal(t, "c", *answered.Answer.SelectedOptionID)
	assert.True(t, answered.Flagged)
}

func TestPaperService_SeparateAttemptsShuffleIndependently(t *testing.T) {
	f := newFixture(t)
	qs := seedQuestions(f, 1)
	a1 := f.ongoingAttempt()
	a2 := f.ongoingAttempt()

	// Different attempt IDs give different seeds; with 6 options and 20 draws at
	// least one pair of orders differs.
	differs := false
	for i := 0; i < 20 && !differs; i++ {
		q := qs[0]
		q.ID = uuid.New()
		o1 := f.papers.OptionOrder(&a1, q, true)
		o2 := f.papers.OptionOrder(&a2, q, true)
		differs = !assert.ObjectsAreEqual(optionIDs(o1), optionIDs(o2))
	}
	assert.True(t, differs)
}

func TestPaperService_Access(t *testing.T) {
	f := newFixture(t)
	a := f.ongoingAttempt()
	ctx := context.Background()

	_, err := f.papers.Paper(ctx, f.other, a.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.papers.Paper(ctx, f.student, uuid.New())
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}

func TestQuestionCache_ReadThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewQuestionCache(rdb, time.Minute, zerolog.Nop())
	examID := uuid.New()
	ctx := context.Background()

	loads := 0
	load := func(context.Context) ([]model.Question, error) {
		loads++
		return []model.Question{{ID: uuid.New(), ExamID: examID, Options: []model.Option{{ID: "a", Text: "A"}}}}, nil
	}

	first, err := cache.Get(ctx, examID, load)
	require.NoError(t, err)
	second, err := cache.Get(ctx, examID, load)
	require.NoError(t, err)

	assert.Equal(t, 1, loads)
	assert.Equal(t, first, second)
	assert.True(t, mr.Exists(config.CacheKey.ExamQuestionsKey(examID.String())))
	assert.Equal(t, time.Minute, mr.TTL(config.CacheKey.ExamQuestionsKey(examID.String())))

	require.NoError(t, cache.Invalidate(ctx, examID))
	_, err = cache.Get(ctx, examID, load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestQuestionCache_RedisDownFallsBackToLoad(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	cache := NewQuestionCache(rdb, time.Minute, zerolog.Nop())
	mr.Close()

	qs, err := cache.Get(context.Background(), uuid.New(), func(context.Context) ([]model.Question, error) {
		return []model.Question{{ID: uuid.New()}}, nil
	})
	require.NoError(t, err)
	assert.Len(t, qs, 1)
}
