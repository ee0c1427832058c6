package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-integrity/internal/metrics"
	"github.com/stemsi/exstem-integrity/internal/model"
	"github.com/stemsi/exstem-integrity/internal/ratelimit"
	"github.com/stemsi/exstem-integrity/internal/response"
	"github.com/stemsi/exstem-integrity/internal/service"
	ws "github.com/stemsi/exstem-integrity/internal/websocket"
)

const wsActionTimeout = 10 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams one attempt over a WebSocket. Every action goes through the
// same limiter presets and services as its REST counterpart.
type WSHandler struct {
	progress ProgressTracker
	events   AntiCheatRecorder
	attempts AttemptLifecycle
	limiter  *ratelimit.Limiter
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	progress ProgressTracker,
	events AntiCheatRecorder,
	attempts AttemptLifecycle,
	limiter *ratelimit.Limiter,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		progress: progress,
		events:   events,
		attempts: attempts,
		limiter:  limiter,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/attempts/:attempt_id/stream?token=...
func (h *WSHandler) AttemptStream(c *gin.Context) {
	p, ok := principalOrFail(c)
	if !ok {
		return
	}
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	// Ownership and state are checked before upgrading so a bad stream fails
	// with a normal HTTP error.
	if _, err := h.progress.Resume(c.Request.Context(), p, attemptID); err != nil {
		respondError(c, err, h.log)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("student_id", p.SubjectID).
		Str("attempt_id", attemptID.String()).
		Logger()

	wsLog.Info().Msg("Student connected")

	for {
		data, err := ws.ReadMessage(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			ws.WriteError(conn, string(response.ErrInvalidPayload), response.GetMessage(response.ErrInvalidPayload))
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), wsActionTimeout)
		done := h.dispatch(ctx, conn, wsLog, p, attemptID, env.Action, data)
		cancel()
		if done {
			return
		}
	}
}

// dispatch runs one action and reports whether the stream should close.
func (h *WSHandler) dispatch(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, p model.Principal, attemptID uuid.UUID, action ws.Action, data []byte) bool {
	switch action {
	case ws.ActionPing:
		ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
	case ws.ActionAutosave:
		if h.allow(ctx, conn, wsLog, ratelimit.ActionAutosave, p.SubjectID) {
			h.handleAutosave(ctx, conn, wsLog, p, attemptID, data)
		}
	case ws.ActionCheat:
		if h.allow(ctx, conn, wsLog, ratelimit.ActionAntiCheat, p.SubjectID) {
			h.handleCheat(ctx, conn, wsLog, p, attemptID, data)
		}
	case ws.ActionSubmit:
		if h.allow(ctx, conn, wsLog, ratelimit.ActionExamSubmit, p.SubjectID) {
			return h.handleSubmit(ctx, conn, wsLog, p, attemptID)
		}
	default:
		wsLog.Warn().Str("action", string(action)).Msg("Unknown action")
		ws.WriteError(conn, string(response.ErrInvalidPayload), "unknown action: "+string(action))
	}
	return false
}

func (h *WSHandler) allow(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, action ratelimit.Action, subject string) bool {
	res, err := h.limiter.CheckAction(ctx, action, subject)
	if err != nil {
		wsLog.Warn().Err(err).Str("action", string(action)).Msg("Rate limiter unavailable, allowing action")
		return true
	}
	metrics.ObserveRateLimit(string(action), res.Allowed)
	if res.Allowed {
		return true
	}
	ws.WriteTyped(conn, ws.ErrorResponse{
		Event:   ws.EventError,
		Code:    string(response.ErrRateLimitExceeded),
		Error:   response.GetMessage(response.ErrRateLimitExceeded),
		RetryIn: int(res.RetryAfter(h.limiter.Now()) / time.Second),
	})
	return false
}

func (h *WSHandler) handleAutosave(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, p model.Principal, attemptID uuid.UUID, data []byte) {
	var req ws.AutosaveRequest
	if err := json.Unmarshal(data, &req); err != nil {
		ws.WriteError(conn, string(response.ErrInvalidPayload), response.GetMessage(response.ErrInvalidPayload))
		return
	}

	savedAt, err := h.progress.Save(ctx, p, service.SaveProgressInput{
		AttemptID:            attemptID,
		CurrentQuestionIndex: req.CurrentQuestionIndex,
		Answers:              req.Answers,
		FlaggedQuestions:     req.FlaggedQuestions,
	})
	if err != nil {
		h.writeServiceError(conn, wsLog, err)
		return
	}
	ws.WriteTyped(conn, ws.SavedResponse{Event: ws.EventSaved, SavedAt: savedAt})
}

func (h *WSHandler) handleCheat(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, p model.Principal, attemptID uuid.UUID, data []byte) {
	var req ws.CheatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		ws.WriteError(conn, string(response.ErrInvalidPayload), response.GetMessage(response.ErrInvalidPayload))
		return
	}

	id, err := h.events.Record(ctx, p, service.RecordEventInput{
		AttemptID:   attemptID,
		EventType:   req.EventType,
		Severity:    req.Severity,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.writeServiceError(conn, wsLog, err)
		return
	}
	ws.WriteTyped(conn, ws.RecordedResponse{Event: ws.EventRecorded, EventID: id.String()})
}

func (h *WSHandler) handleSubmit(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, p model.Principal, attemptID uuid.UUID) bool {
	attempt, err := h.attempts.Submit(ctx, p, attemptID)
	if err != nil {
		h.writeServiceError(conn, wsLog, err)
		return false
	}

	wsLog.Info().Int("total_time_spent", attempt.TotalTimeSpent).Msg("Attempt submitted over stream")
	ws.WriteTyped(conn, ws.SubmittedResponse{
		Event:       ws.EventSubmitted,
		Status:      string(attempt.Status),
		SubmittedAt: attempt.SubmittedAt,
	})
	return true
}

func (h *WSHandler) writeServiceError(conn *websocket.Conn, wsLog zerolog.Logger, err error) {
	status, code, message := classifyError(err)
	if status == http.StatusInternalServerError {
		wsLog.Error().Err(err).Msg("Stream action failed")
	}
	if message == "" {
		message = response.GetMessage(code)
	}
	ws.WriteError(conn, string(code), message)
}
