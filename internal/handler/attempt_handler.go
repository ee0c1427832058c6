package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-integrity/internal/model"
	"github.com/stemsi/exstem-integrity/internal/response"
	"github.com/stemsi/exstem-integrity/internal/validator"
)

// AttemptLifecycle is the part of service.AttemptService the HTTP layer drives.
type AttemptLifecycle interface {
	Start(ctx context.Context, p model.Principal, examID uuid.UUID, entryToken string) (*model.ExamAttempt, bool, error)
	Submit(ctx context.Context, p model.Principal, attemptID uuid.UUID) (*model.ExamAttempt, error)
	Abandon(ctx context.Context, p model.Principal, attemptID uuid.UUID, reason string) (*model.ExamAttempt, error)
	Evaluate(ctx context.Context, p model.Principal, attemptID uuid.UUID, score float64) (*model.ExamAttempt, error)
}

// AttemptHandler handles attempt lifecycle endpoints.
type AttemptHandler struct {
	attempts AttemptLifecycle
	log      zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attempts AttemptLifecycle, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attempts: attempts,
		log:      log.With().Str("component", "attempt_handler").Logger(),
	}
}

// Start godoc
// POST /api/v1/student/exams/:exam_id/attempts
// Joins the exam. Returns the ongoing attempt if one exists (200) or a new one (201).
func (h *AttemptHandler) Start(c *gin.Context) {
	p, ok := principalOrFail(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	var req model.StartAttemptRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	attempt, created, err := h.attempts.Start(c.Request.Context(), p, examID, req.EntryToken)
	if err != nil {
		respondError(c, err, h.log)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.Success(c, status, gin.H{"attempt": attempt})
}

// Submit godoc
// POST /api/v1/student/attempts/:attempt_id/submit
func (h *AttemptHandler) Submit(c *gin.Context) {
	p, ok := principalOrFail(c)
	if !ok {
		return
	}
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	attempt, err := h.attempts.Submit(c.Request.Context(), p, attemptID)
	if err != nil {
		respondError(c, err, h.log)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// Abandon godoc
// POST /api/v1/proctor/attempts/:attempt_id/abandon
func (h *AttemptHandler) Abandon(c *gin.Context) {
	p, ok := principalOrFail(c)
	if !ok {
		return
	}
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	var req model.AbandonAttemptRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	attempt, err := h.attempts.Abandon(c.Request.Context(), p, attemptID, req.Reason)
	if err != nil {
		respondError(c, err, h.log)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// Evaluate godoc
// POST /api/v1/admin/attempts/:attempt_id/evaluate
// Called by the scoring collaborator once a submitted attempt is graded.
func (h *AttemptHandler) Evaluate(c *gin.Context) {
	p, ok := principalOrFail(c)
	if !ok {
		return
	}
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	var req model.EvaluateAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attempts.Evaluate(c.Request.Context(), p, attemptID, *req.Score)
	if err != nil {
		respondError(c, err, h.log)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}
