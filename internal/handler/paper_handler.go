package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-integrity/internal/model"
	"github.com/stemsi/exstem-integrity/internal/response"
)

// PaperReader is the part of service.PaperService the HTTP layer drives.
type PaperReader interface {
	Paper(ctx context.Context, p model.Principal, attemptID uuid.UUID) (*model.AttemptPaper, error)
}

// PaperHandler serves the per-attempt question paper.
type PaperHandler struct {
	papers PaperReader
	log    zerolog.Logger
}

// NewPaperHandler creates a new PaperHandler.
func NewPaperHandler(papers PaperReader, log zerolog.Logger) *PaperHandler {
	return &PaperHandler{
		papers: papers,
		log:    log.With().Str("component", "paper_handler").Logger(),
	}
}

// GetPaper godoc
// GET /api/v1/student/attempts/:attempt_id/paper
// GET /api/v1/proctor/attempts/:attempt_id/paper
// Options come back in the attempt's own shuffled order.
func (h *PaperHandler) GetPaper(c *gin.Context) {
	p, ok := principalOrFail(c)
	if !ok {
		return
	}
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	paper, err := h.papers.Paper(c.Request.Context(), p, attemptID)
	if err != nil {
		respondError(c, err, h.log)
		return
	}
	response.Success(c, http.StatusOK, paper)
}
