package websocket

import (
	"encoding/json"
	"time"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
	ActionCheat    Action = "cheat"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AutosaveRequest carries the client's full in-memory state, same shape as the
// REST autosave body minus the attempt ID (taken from the stream URL).
type AutosaveRequest struct {
	Action               Action                     `json:"action"`
	Answers              map[string]json.RawMessage `json:"answers"`
	CurrentQuestionIndex int                        `json:"currentQuestionIndex"`
	FlaggedQuestions     []string                   `json:"flaggedQuestions"`
}

// CheatRequest reports one anti-cheat signal.
type CheatRequest struct {
	Action      Action          `json:"action"`
	EventType   string          `json:"eventType"`
	Severity    string          `json:"severity"`
	Description string          `json:"description"`
	Metadata    json.RawMessage `json:"metadata"`
}

// SubmitRequest finishes the attempt.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSaved     Event = "saved"
	EventRecorded  Event = "recorded"
	EventSubmitted Event = "submitted"
	EventPong      Event = "pong"
)

type SavedResponse struct {
	Event   Event     `json:"event"`
	SavedAt time.Time `json:"saved_at"`
}

type RecordedResponse struct {
	Event   Event  `json:"event"`
	EventID string `json:"event_id"`
}

type SubmittedResponse struct {
	Event       Event      `json:"event"`
	Status      string     `json:"status"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

type ErrorResponse struct {
	Event   Event  `json:"event"`
	Code    string `json:"code"`
	Error   string `json:"error"`
	RetryIn int    `json:"retry_in,omitempty"` // seconds, set for rate limiting
}

type PongResponse struct {
	Event Event `json:"event"`
}
