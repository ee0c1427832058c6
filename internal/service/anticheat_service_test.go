package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-integrity/internal/config"
	"github.com/stemsi/exstem-integrity/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAntiCheatService_StudentRecordsOwnOngoingAttempt(t *testing.T) {
	f := newFixture(t)
	a := f.ongoingAttempt()

	id, err := f.anticheat.Record(context.Background(), f.student, RecordEventInput{
		AttemptID:   a.ID,
		EventType:   string(model.EventTabSwitch),
		Description: "switched to another tab",
		Metadata:    json.RawMessage(`{"screenshot_url":"https://cdn.example/s.png","tab":3}`),
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	require.Len(t, f.store.data.events, 1)
	ev := f.store.data.events[0]
	assert.Equal(t, id, ev.ID)
	assert.Equal(t, model.DefaultSeverity, ev.Severity)
	require.NotNil(t, ev.ScreenshotURL)
	assert.Equal(t, "https://cdn.example/s.png", *ev.ScreenshotURL)
	assert.JSONEq(t, `{"screenshot_url":"https://cdn.example/s.png","tab":3}`, string(ev.Metadata))

	pub := f.pub.all()
	require.Len(t, pub, 1)
	assert.Equal(t, MonitorEventAntiCheat, pub[0].Type)
	assert.Equal(t, f.exam.ID, pub[0].ExamID)
}

func TestAntiCheatService_Ownership(t *testing.T) {
	f := newFixture(t)
	a := f.ongoingAttempt()
	ctx := context.Background()
	in := RecordEventInput{AttemptID: a.ID, EventType: string(model.EventCopyPaste)}

	_, err := f.anticheat.Record(ctx, f.other, in)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.anticheat.Record(ctx, f.admin, in)
	assert.NoError(t, err)
	_, err = f.anticheat.Record(ctx, f.proctor, in)
	assert.NoError(t, err)
	assert.Len(t, f.store.data.events, 2)
}

func TestAntiCheatService_StudentNeedsOngoingAttempt(t *testing.T) {
	f := newFixture(t)
	a := f.attemptWithStatus(model.AttemptStatusSubmitted)
	in := RecordEventInput{AttemptID: a.ID, EventType: string(model.EventWindowBlur)}

	_, err := f.anticheat.Record(context.Background(), f.student, in)
	assert.ErrorIs(t, err, ErrInvalidState)

	// Staff may still annotate a closed attempt.
	_, err = f.anticheat.Record(context.Background(), f.proctor, in)
	assert.NoError(t, err)
}

func TestAntiCheatService_Validation(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.StrictSeverity = true })
	a := f.ongoingAttempt()
	ctx := context.Background()

	_, err := f.anticheat.Record(ctx, f.student, RecordEventInput{AttemptID: a.ID, EventType: "mouse-wiggle"})
	assert.ErrorIs(t, err, ErrInvalidEventType)

	_, err = f.anticheat.Record(ctx, f.student, RecordEventInput{AttemptID: a.ID, EventType: "no-face", Severity: "apocalyptic"})
	assert.ErrorIs(t, err, ErrInvalidSeverity)

	_, err = f.anticheat.Record(ctx, f.student, RecordEventInput{AttemptID: a.ID, EventType: "no-face", Metadata: json.RawMessage(`[1,2]`)})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = f.anticheat.Record(ctx, f.student, RecordEventInput{AttemptID: uuid.New(), EventType: "no-face"})
	assert.ErrorIs(t, err, ErrAttemptNotFound)

	assert.Empty(t, f.store.data.events)
}

func TestAntiCheatService_SeverityVocabulary(t *testing.T) {
	f := newFixture(t)
	a := f.ongoingAttempt()
	for _, sev := range []string{"warning", "MEDIUM", "critical"} {
		_, err := f.anticheat.Record(context.Background(), f.student, RecordEventInput{
			AttemptID: a.ID, EventType: "ip-change", Severity: sev,
		})
		require.NoError(t, err, sev)
	}
	got := []model.Severity{}
	for _, ev := range f.store.data.events {
		got = append(got, ev.Severity)
	}
	assert.Equal(t, []model.Severity{model.SeverityWarning, model.SeverityMedium, model.SeverityCritical}, got)
}

func TestAntiCheatService_LenientSeverityStoredVerbatim(t *testing.T) {
	f := newFixture(t)
	a := f.ongoingAttempt()

	_, err := f.anticheat.Record(context.Background(), f.student, RecordEventInput{
		AttemptID: a.ID, EventType: "audio-anomaly", Severity: "High",
	})
	require.NoError(t, err)
	assert.Equal(t, model.Severity("High"), f.store.data.events[0].Severity)
}

func TestAntiCheatService_DefaultConfigAcceptsAnySeverity(t *testing.T) {
	t.Setenv("ANTICHEAT_STRICT_SEVERITY", "")
	defaults := config.Load()
	require.False(t, defaults.StrictSeverity)

	f := newFixture(t, func(c *config.Config) { c.StrictSeverity = defaults.StrictSeverity })
	a := f.ongoingAttempt()
	ctx := context.Background()

	_, err := f.anticheat.Record(ctx, f.student, RecordEventInput{
		AttemptID: a.ID, EventType: string(model.EventTabSwitch), Severity: "high",
	})
	require.NoError(t, err)

	_, err = f.anticheat.Record(ctx, f.student, RecordEventInput{
		AttemptID: a.ID, EventType: string(model.EventTabSwitch),
	})
	require.NoError(t, err)

	require.Len(t, f.store.data.events, 2)
	assert.Equal(t, model.Severity("high"), f.store.data.events[0].Severity)
	assert.Equal(t, model.DefaultSeverity, f.store.data.events[1].Severity)
}

type stubQueue struct {
	err    error
	events []*model.AntiCheatEvent
}

func (q *stubQueue) Enqueue(_ context.Context, ev *model.AntiCheatEvent) error {
	if q.err != nil {
		return q.err
	}
	q.events = append(q.events, ev)
	return nil
}

func TestAntiCheatService_AsyncQueueAndFallback(t *testing.T) {
	f := newFixture(t)
	a := f.ongoingAttempt()
	q := &stubQueue{}
	f.anticheat.queue = q
	in := RecordEventInput{AttemptID: a.ID, EventType: "right-click"}

	id, err := f.anticheat.Record(context.Background(), f.student, in)
	require.NoError(t, err)
	require.Len(t, q.events, 1)
	assert.Equal(t, id, q.events[0].ID)
	assert.Empty(t, f.store.data.events)

	q.err = errBoom
	_, err = f.anticheat.Record(context.Background(), f.student, in)
	require.NoError(t, err)
	assert.Len(t, f.store.data.events, 1)
}

func TestAntiCheatService_InsertFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	a := f.ongoingAttempt()
	f.store.failInsert = errBoom

	_, err := f.anticheat.Record(context.Background(), f.student, RecordEventInput{AttemptID: a.ID, EventType: "no-face"})
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, f.pub.all())
}

func TestAntiCheatService_ListNewestFirstStaffOnly(t *testing.T) {
	f := newFixture(t)
	a := f.ongoingAttempt()
	ctx := context.Background()

	for _, et := range []model.EventType{model.EventWindowBlur, model.EventTabSwitch, model.EventNoFace} {
		_, err := f.anticheat.Record(ctx, f.student, RecordEventInput{AttemptID: a.ID, EventType: string(et)})
		require.NoError(t, err)
		f.advance(time.Second)
	}

	_, err := f.anticheat.List(ctx, f.student, a.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	events, err := f.anticheat.List(ctx, f.proctor, a.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, model.EventNoFace, events[0].EventType)
	assert.Equal(t, model.EventWindowBlur, events[2].EventType)

	_, err = f.anticheat.List(ctx, f.admin, uuid.New())
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}
