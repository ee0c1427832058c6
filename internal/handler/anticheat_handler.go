package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-integrity/internal/model"
	"github.com/stemsi/exstem-integrity/internal/response"
	"github.com/stemsi/exstem-integrity/internal/service"
	"github.com/stemsi/exstem-integrity/internal/validator"
)

// AntiCheatRecorder is the part of service.AntiCheatService the HTTP layer drives.
type AntiCheatRecorder interface {
	Record(ctx context.Context, p model.Principal, in service.RecordEventInput) (uuid.UUID, error)
	List(ctx context.Context, p model.Principal, attemptID uuid.UUID) ([]model.AntiCheatEvent, error)
}

// AntiCheatHandler handles anti-cheat event submission and review.
type AntiCheatHandler struct {
	events AntiCheatRecorder
	log    zerolog.Logger
}

// NewAntiCheatHandler creates a new AntiCheatHandler.
func NewAntiCheatHandler(events AntiCheatRecorder, log zerolog.Logger) *AntiCheatHandler {
	return &AntiCheatHandler{
		events: events,
		log:    log.With().Str("component", "anticheat_handler").Logger(),
	}
}

// Record godoc
// POST /api/v1/student/anti-cheat
// POST /api/v1/proctor/anti-cheat
func (h *AntiCheatHandler) Record(c *gin.Context) {
	p, ok := principalOrFail(c)
	if !ok {
		return
	}

	var req model.RecordEventRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	in, err := recordInputFrom(&req)
	if err != nil {
		respondError(c, err, h.log)
		return
	}

	id, err := h.events.Record(c.Request.Context(), p, in)
	if err != nil {
		respondError(c, err, h.log)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"event_id": id})
}

// List godoc
// GET /api/v1/proctor/attempts/:attempt_id/events
// Newest first.
func (h *AntiCheatHandler) List(c *gin.Context) {
	p, ok := principalOrFail(c)
	if !ok {
		return
	}
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	events, err := h.events.List(c.Request.Context(), p, attemptID)
	if err != nil {
		respondError(c, err, h.log)
		return
	}
	if events == nil {
		events = []model.AntiCheatEvent{}
	}
	response.Success(c, http.StatusOK, gin.H{"events": events})
}

func recordInputFrom(req *model.RecordEventRequest) (service.RecordEventInput, error) {
	attemptID, err := uuid.Parse(req.AttemptID)
	if err != nil {
		return service.RecordEventInput{}, service.ErrInvalidPayload
	}
	return service.RecordEventInput{
		AttemptID:   attemptID,
		EventType:   req.EventType,
		Severity:    req.Severity,
		Description: req.Description,
		Metadata:    req.Metadata,
	}, nil
}
