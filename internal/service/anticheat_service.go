package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-integrity/internal/config"
	"github.com/stemsi/exstem-integrity/internal/metrics"
	"github.com/stemsi/exstem-integrity/internal/model"
	"github.com/stemsi/exstem-integrity/internal/repository"
)

// RecordEventInput is one anti-cheat signal as submitted by a caller.
type RecordEventInput struct {
	AttemptID   uuid.UUID
	EventType   string
	Severity    string
	Description string
	Metadata    json.RawMessage
}

// EventQueue hands events to the background persistence worker.
type EventQueue interface {
	Enqueue(ctx context.Context, ev *model.AntiCheatEvent) error
}

// AntiCheatService records anti-cheat events. Events are append-only.
type AntiCheatService struct {
	store  repository.Store
	queue  EventQueue
	pub    Publisher
	strict bool
	now    func() time.Time
	log    zerolog.Logger
}

// NewAntiCheatService creates a new AntiCheatService. A nil queue means every
// event is inserted synchronously.
func NewAntiCheatService(store repository.Store, queue EventQueue, pub Publisher, cfg *config.Config, log zerolog.Logger) *AntiCheatService {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &AntiCheatService{
		store:  store,
		queue:  queue,
		pub:    pub,
		strict: cfg.StrictSeverity,
		now:    time.Now,
		log:    log.With().Str("component", "anticheat_service").Logger(),
	}
}

// Record stores one event and returns its ID. Students may only record against
// their own ongoing attempt; proctors and admins may record against any attempt.
func (s *AntiCheatService) Record(ctx context.Context, p model.Principal, in RecordEventInput) (uuid.UUID, error) {
	eventType := model.EventType(in.EventType)
	if !eventType.Valid() {
		return uuid.Nil, ErrInvalidEventType
	}

	severity, ok := model.ParseSeverity(in.Severity)
	if !ok && s.strict {
		return uuid.Nil, ErrInvalidSeverity
	}

	metadata, screenshot, err := parseEventMetadata(in.Metadata)
	if err != nil {
		return uuid.Nil, err
	}

	a, err := loadAttempt(ctx, s.store.Attempts(), in.AttemptID, false)
	if err != nil {
		return uuid.Nil, err
	}
	if !p.IsStaff() {
		if err := requireOwner(p, a); err != nil {
			return uuid.Nil, err
		}
		if !a.IsOngoing() {
			return uuid.Nil, stateErr("record anti-cheat event", a.Status)
		}
	}

	ev := &model.AntiCheatEvent{
		ID:            uuid.New(),
		AttemptID:     a.ID,
		EventType:     eventType,
		Severity:      severity,
		Description:   in.Description,
		ScreenshotURL: screenshot,
		Metadata:      metadata,
		CreatedAt:     s.now().UTC(),
	}

	if err := s.persist(ctx, ev); err != nil {
		return uuid.Nil, err
	}

	metrics.AntiCheatEvents.WithLabelValues(string(ev.EventType), string(ev.Severity)).Inc()
	s.pub.Publish(ctx, MonitorEvent{
		Type:      MonitorEventAntiCheat,
		ExamID:    a.ExamID,
		AttemptID: a.ID,
		StudentID: a.StudentID,
		EventID:   &ev.ID,
		EventType: ev.EventType,
		Severity:  ev.Severity,
		At:        ev.CreatedAt,
	})
	return ev.ID, nil
}

func (s *AntiCheatService) persist(ctx context.Context, ev *model.AntiCheatEvent) error {
	if s.queue != nil {
		err := s.queue.Enqueue(ctx, ev)
		if err == nil {
			return nil
		}
		s.log.Warn().Err(err).Str("attempt_id", ev.AttemptID.String()).Msg("Queueing anti-cheat event failed, inserting directly")
	}
	if err := s.store.AntiCheat().Insert(ctx, ev); err != nil {
		return fmt.Errorf("insert anti-cheat event: %w", err)
	}
	return nil
}

// List returns an attempt's events newest first. Proctors and admins only.
func (s *AntiCheatService) List(ctx context.Context, p model.Principal, attemptID uuid.UUID) ([]model.AntiCheatEvent, error) {
	if err := requireStaff(p); err != nil {
		return nil, err
	}
	if _, err := loadAttempt(ctx, s.store.Attempts(), attemptID, false); err != nil {
		return nil, err
	}
	events, err := s.store.AntiCheat().ListByAttempt(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list anti-cheat events: %w", err)
	}
	return events, nil
}

// parseEventMetadata accepts an absent/null metadata or a JSON object, lifting
// screenshot_url into its own column.
func parseEventMetadata(raw json.RawMessage) (json.RawMessage, *string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil, nil
	}
	if trimmed[0] != '{' {
		return nil, nil, fmt.Errorf("metadata must be an object: %w", ErrInvalidPayload)
	}
	var m model.AntiCheatMetadata
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return nil, nil, fmt.Errorf("metadata: %v: %w", err, ErrInvalidPayload)
	}
	return json.RawMessage(trimmed), m.ScreenshotURL, nil
}
