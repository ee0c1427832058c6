package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-integrity/internal/config"
	"github.com/stemsi/exstem-integrity/internal/model"
	"github.com/stemsi/exstem-integrity/internal/repository"
	"github.com/stemsi/exstem-integrity/internal/shuffle"
)

// QuestionCache is a read-through cache of an exam's questions in authoring order.
type QuestionCache struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

// NewQuestionCache creates a new QuestionCache. A nil client disables caching.
func NewQuestionCache(rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *QuestionCache {
	return &QuestionCache{
		rdb: rdb,
		ttl: ttl,
		log: log.With().Str("component", "question_cache").Logger(),
	}
}

// Get returns the cached questions of an exam, loading and re-warming on a miss.
// Redis failures fall through to load.
func (c *QuestionCache) Get(ctx context.Context, examID uuid.UUID, load func(context.Context) ([]model.Question, error)) ([]model.Question, error) {
	if c == nil || c.rdb == nil {
		return load(ctx)
	}
	key := config.CacheKey.ExamQuestionsKey(examID.String())

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var questions []model.Question
		if jsonErr := json.Unmarshal(data, &questions); jsonErr == nil {
			return questions, nil
		}
		c.log.Warn().Str("key", key).Msg("Discarding corrupt exam payload cache entry")
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Str("key", key).Msg("Exam payload cache read failed")
	}

	questions, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(questions); err == nil {
		if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("Exam payload cache write failed")
		}
	}
	return questions, nil
}

// Invalidate drops an exam's cached questions.
func (c *QuestionCache) Invalidate(ctx context.Context, examID uuid.UUID) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, config.CacheKey.ExamQuestionsKey(examID.String())).Err()
}

// PaperService renders the exam as seen from one attempt, with options in the
// attempt's seeded order.
type PaperService struct {
	store  repository.Store
	cache  *QuestionCache
	hasher shuffle.SeedHasher
}

// NewPaperService creates a new PaperService.
func NewPaperService(store repository.Store, cache *QuestionCache, hasher shuffle.SeedHasher) *PaperService {
	if hasher == nil {
		hasher = shuffle.XXHasher{}
	}
	return &PaperService{store: store, cache: cache, hasher: hasher}
}

// Paper returns the attempt's question paper. The owning student gets it while
// the attempt is ongoing, and afterwards only when the exam allows answer
// review. Proctors and admins always get it. The option order never changes
// for a given attempt.
func (s *PaperService) Paper(ctx context.Context, p model.Principal, attemptID uuid.UUID) (*model.AttemptPaper, error) {
	a, err := loadAttempt(ctx, s.store.Attempts(), attemptID, false)
	if err != nil {
		return nil, err
	}
	if err := requireOwnerOrStaff(p, a); err != nil {
		return nil, err
	}

	exam, err := loadExam(ctx, s.store.Exams(), a.ExamID)
	if err != nil {
		return nil, err
	}
	if !p.IsStaff() && !a.IsOngoing() && !exam.AllowAnswerReview {
		return nil, ErrReviewNotAllowed
	}

	questions, err := s.cache.Get(ctx, exam.ID, func(ctx context.Context) ([]model.Question, error) {
		return s.store.Questions().ListByExam(ctx, exam.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	answers, err := s.store.Progress().ListAnswers(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	byQuestion := make(map[uuid.UUID]*model.Answer, len(answers))
	for i := range answers {
		byQuestion[answers[i].QuestionID] = &answers[i]
	}

	paper := &model.AttemptPaper{
		AttemptID: a.ID,
		ExamID:    exam.ID,
		Title:     exam.Title,
		Status:    a.Status,
		ReadOnly:  !a.IsOngoing() || p.IsStaff(),
		Questions: make([]model.PaperQuestion, 0, len(questions)),
	}
	for _, q := range questions {
		pq := model.PaperQuestion{
			ID:           q.ID,
			QuestionText: q.QuestionText,
			OrderNum:     q.OrderNum,
			Options:      s.OptionOrder(a, q, exam.ShuffleOptions),
		}
		if ans, ok := byQuestion[q.ID]; ok {
			pq.Answer = &model.AnswerValue{
				Text:             ans.AnswerText,
				SelectedOptionID: ans.SelectedOptionID,
				TimeSpent:        ans.TimeSpent,
			}
			pq.Flagged = ans.IsMarkedForReview
		}
		paper.Questions = append(paper.Questions, pq)
	}
	return paper, nil
}

// OptionOrder returns q's options as presented to the attempt's student.
func (s *PaperService) OptionOrder(a *model.ExamAttempt, q model.Question, enabled bool) []model.Option {
	seed := shuffle.Seed(a.StudentID, q.ID.String(), a.ID.String())
	return shuffle.Apply(q.Options, seed, enabled, s.hasher)
}
