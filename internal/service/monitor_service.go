package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-integrity/internal/config"
	"github.com/stemsi/exstem-integrity/internal/model"
)

// Monitor event types.
const (
	MonitorEventAntiCheat  = "anti_cheat"
	MonitorEventTransition = "attempt_transition"
)

// MonitorEvent is one message on an exam's live feed.
type MonitorEvent struct {
	Type      string              `json:"type"`
	ExamID    uuid.UUID           `json:"exam_id"`
	AttemptID uuid.UUID           `json:"attempt_id"`
	StudentID string              `json:"student_id"`
	EventID   *uuid.UUID          `json:"event_id,omitempty"`
	EventType model.EventType     `json:"event_type,omitempty"`
	Severity  model.Severity      `json:"severity,omitempty"`
	From      model.AttemptStatus `json:"from,omitempty"`
	To        model.AttemptStatus `json:"to,omitempty"`
	At        time.Time           `json:"at"`
}

// Publisher fans events out to live observers. Publishing is best-effort.
type Publisher interface {
	Publish(ctx context.Context, ev MonitorEvent)
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, MonitorEvent) {}

// MonitorReader is the aggregate read side of the live feed.
type MonitorReader interface {
	ListAttemptsByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamAttempt, error)
	GetAnsweredCounts(ctx context.Context, examID uuid.UUID) (map[uuid.UUID]int64, error)
	GetCheatCounts(ctx context.Context, examID uuid.UUID) (map[uuid.UUID]int64, error)
}

// MonitorService publishes attempt activity to Redis pub/sub and builds the
// snapshot a proctor sees on connect.
type MonitorService struct {
	reader MonitorReader
	rdb    *redis.Client
	log    zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(reader MonitorReader, rdb *redis.Client, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		reader: reader,
		rdb:    rdb,
		log:    log.With().Str("component", "monitor_service").Logger(),
	}
}

// Publish implements Publisher. Failures are logged and swallowed.
func (s *MonitorService) Publish(ctx context.Context, ev MonitorEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal monitor event")
		return
	}
	channel := config.CacheKey.ExamMonitorChannel(ev.ExamID.String())
	if err := s.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		s.log.Warn().Err(err).Str("channel", channel).Msg("Failed to publish monitor event")
	}
}

// Subscribe opens the exam's monitor channel. The caller closes the subscription.
func (s *MonitorService) Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID.String()))
}

// AttemptSummary is one row of the monitor snapshot.
type AttemptSummary struct {
	model.ExamAttempt
	AnsweredCount int64 `json:"answered_count"`
	CheatCount    int64 `json:"cheat_count"`
}

// MonitorSnapshot is the initial state sent to a proctor.
type MonitorSnapshot struct {
	ExamID         uuid.UUID        `json:"exam_id"`
	TotalOngoing   int              `json:"total_ongoing"`
	TotalSubmitted int              `json:"total_submitted"`
	TotalAbandoned int              `json:"total_abandoned"`
	TotalCheats    int64            `json:"total_cheats"`
	Attempts       []AttemptSummary `json:"attempts"`
}

// Snapshot gathers attempts with answered and cheat counts. The three reads run
// concurrently; counts are best-effort, the attempt list is not.
func (s *MonitorService) Snapshot(ctx context.Context, examID uuid.UUID) (*MonitorSnapshot, error) {
	var (
		attempts    []model.ExamAttempt
		answered    map[uuid.UUID]int64
		cheats      map[uuid.UUID]int64
		attemptsErr error
		answeredErr error
		cheatErr    error
		wg          sync.WaitGroup
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		attempts, attemptsErr = s.reader.ListAttemptsByExam(ctx, examID)
	}()
	go func() {
		defer wg.Done()
		answered, answeredErr = s.reader.GetAnsweredCounts(ctx, examID)
	}()
	go func() {
		defer wg.Done()
		cheats, cheatErr = s.reader.GetCheatCounts(ctx, examID)
	}()
	wg.Wait()

	if attemptsErr != nil {
		return nil, attemptsErr
	}
	if answeredErr != nil {
		s.log.Warn().Err(answeredErr).Msg("Answered counts unavailable for snapshot")
	}
	if cheatErr != nil {
		s.log.Warn().Err(cheatErr).Msg("Cheat counts unavailable for snapshot")
	}

	snap := &MonitorSnapshot{ExamID: examID, Attempts: make([]AttemptSummary, 0, len(attempts))}
	for _, a := range attempts {
		switch a.Status {
		case model.AttemptStatusOngoing:
			snap.TotalOngoing++
		case model.AttemptStatusSubmitted, model.AttemptStatusEvaluated:
			snap.TotalSubmitted++
		case model.AttemptStatusAbandoned:
			snap.TotalAbandoned++
		}
		snap.TotalCheats += cheats[a.ID]
		snap.Attempts = append(snap.Attempts, AttemptSummary{
			ExamAttempt:   a,
			AnsweredCount: answered[a.ID],
			CheatCount:    cheats[a.ID],
		})
	}
	return snap, nil
}
