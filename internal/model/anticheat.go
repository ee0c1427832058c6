package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the anti-cheat signals emitted by client instrumentation.
type EventType string

const (
	EventWindowBlur        EventType = "window-blur"
	EventTabSwitch         EventType = "tab-switch"
	EventFullscreenExit    EventType = "fullscreen-exit"
	EventScreenshotAttempt EventType = "screenshot-attempt"
	EventCopyPaste         EventType = "copy-paste"
	EventRightClick        EventType = "right-click"
	EventMultipleFaces     EventType = "multiple-faces"
	EventNoFace            EventType = "no-face"
	EventAudioAnomaly      EventType = "audio-anomaly"
	EventIPChange          EventType = "ip-change"
)

// EventTypes lists every accepted event type.
var EventTypes = []EventType{
	EventWindowBlur, EventTabSwitch, EventFullscreenExit, EventScreenshotAttempt,
	EventCopyPaste, EventRightClick, EventMultipleFaces, EventNoFace,
	EventAudioAnomaly, EventIPChange,
}

// Valid reports whether t is one of EventTypes.
func (t EventType) Valid() bool {
	for _, et := range EventTypes {
		if et == t {
			return true
		}
	}
	return false
}

// Severity is the shared severity vocabulary. Clients historically sent
// warning|critical while the server defaulted to medium; all three are accepted.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityMedium   Severity = "medium"
	SeverityCritical Severity = "critical"
)

// DefaultSeverity is stored when the caller sends none.
const DefaultSeverity = SeverityMedium

// ParseSeverity normalises s. Empty input yields DefaultSeverity; ok is false
// for values outside the shared vocabulary.
func ParseSeverity(s string) (sev Severity, ok bool) {
	norm := Severity(strings.ToLower(strings.TrimSpace(s)))
	switch norm {
	case "":
		return DefaultSeverity, true
	case SeverityWarning, SeverityMedium, SeverityCritical:
		return norm, true
	default:
		return Severity(s), false
	}
}

// AntiCheatEvent is an immutable evidentiary record tied to an attempt.
type AntiCheatEvent struct {
	ID            uuid.UUID       `json:"id"`
	AttemptID     uuid.UUID       `json:"attempt_id"`
	EventType     EventType       `json:"event_type"`
	Severity      Severity        `json:"severity"`
	Description   string          `json:"description"`
	ScreenshotURL *string         `json:"screenshot_url,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// AntiCheatMetadata is the optional metadata object sent with an event.
type AntiCheatMetadata struct {
	ScreenshotURL *string `json:"screenshot_url,omitempty"`
}

// RecordEventRequest is the anti-cheat submission payload.
type RecordEventRequest struct {
	AttemptID   string          `json:"attemptId" binding:"required,uuid"`
	EventType   string          `json:"eventType" binding:"required,cheat_event"`
	Description string          `json:"description" binding:"omitempty,max=2000"`
	Severity    string          `json:"severity" binding:"omitempty,max=32"`
	Metadata    json.RawMessage `json:"metadata"`
}
