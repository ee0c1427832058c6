package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-integrity/internal/model"
	"github.com/stemsi/exstem-integrity/internal/response"
	"github.com/stemsi/exstem-integrity/internal/service"
	"github.com/stemsi/exstem-integrity/internal/validator"
)

// ProgressTracker is the part of service.ProgressService the HTTP layer drives.
type ProgressTracker interface {
	Save(ctx context.Context, p model.Principal, in service.SaveProgressInput) (time.Time, error)
	Resume(ctx context.Context, p model.Principal, attemptID uuid.UUID) (*model.ResumeState, error)
}

// ProgressHandler handles autosave and resume.
type ProgressHandler struct {
	progress ProgressTracker
	log      zerolog.Logger
}

// NewProgressHandler creates a new ProgressHandler.
func NewProgressHandler(progress ProgressTracker, log zerolog.Logger) *ProgressHandler {
	return &ProgressHandler{
		progress: progress,
		log:      log.With().Str("component", "progress_handler").Logger(),
	}
}

// Autosave godoc
// POST /api/v1/student/autosave
// Replaces the attempt's progress snapshot and upserts every answer sent.
func (h *ProgressHandler) Autosave(c *gin.Context) {
	p, ok := principalOrFail(c)
	if !ok {
		return
	}

	var req model.AutosaveRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	in, err := saveInputFrom(&req)
	if err != nil {
		respondError(c, err, h.log)
		return
	}

	savedAt, err := h.progress.Save(c.Request.Context(), p, in)
	if err != nil {
		respondError(c, err, h.log)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"saved_at": savedAt})
}

// Resume godoc
// GET /api/v1/student/attempts/:attempt_id/progress
// Returns the snapshot a reloading client restores from.
func (h *ProgressHandler) Resume(c *gin.Context) {
	p, ok := principalOrFail(c)
	if !ok {
		return
	}
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	state, err := h.progress.Resume(c.Request.Context(), p, attemptID)
	if err != nil {
		respondError(c, err, h.log)
		return
	}
	response.Success(c, http.StatusOK, state)
}

func saveInputFrom(req *model.AutosaveRequest) (service.SaveProgressInput, error) {
	attemptID, err := uuid.Parse(req.AttemptID)
	if err != nil {
		return service.SaveProgressInput{}, service.ErrInvalidPayload
	}
	in := service.SaveProgressInput{
		AttemptID:        attemptID,
		Answers:          req.Answers,
		FlaggedQuestions: req.FlaggedQuestions,
	}
	if req.CurrentQuestionIndex != nil {
		in.CurrentQuestionIndex = *req.CurrentQuestionIndex
	}
	return in, nil
}
