package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-integrity/internal/model"
	"github.com/stemsi/exstem-integrity/internal/repository"
	"github.com/stemsi/exstem-integrity/internal/response"
	"github.com/stemsi/exstem-integrity/internal/service"
)

const snapshotTimeout = 5 * time.Second // prevent slow queries from blocking the SSE loop

// MonitorFeed is the part of service.MonitorService the live monitor needs.
type MonitorFeed interface {
	Snapshot(ctx context.Context, examID uuid.UUID) (*service.MonitorSnapshot, error)
	Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub
}

// ExamLookup resolves an exam by ID.
type ExamLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

type MonitorHandler struct {
	feed      MonitorFeed
	exams     ExamLookup
	keepAlive time.Duration
	log       zerolog.Logger
}

func NewMonitorHandler(feed MonitorFeed, exams ExamLookup, keepAlive time.Duration, log zerolog.Logger) *MonitorHandler {
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	return &MonitorHandler{
		feed:      feed,
		exams:     exams,
		keepAlive: keepAlive,
		log:       log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExamSSE godoc
// GET /api/v1/proctor/exams/:exam_id/monitor
// Sends a snapshot, then forwards every anti-cheat event and attempt transition
// published for the exam.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	if _, ok := principalOrFail(c); !ok {
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	exam, err := h.exams.GetByID(c.Request.Context(), examID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrExamNotFound)
			return
		}
		respondError(c, err, h.log)
		return
	}

	reqCtx := c.Request.Context()

	snapCtx, cancel := context.WithTimeout(reqCtx, snapshotTimeout)
	snapshot, err := h.feed.Snapshot(snapCtx, examID)
	cancel()
	if err != nil {
		respondError(c, err, h.log)
		return
	}

	// Subscribe before the first write so no event published after the
	// snapshot is missed.
	pubsub := h.feed.Subscribe(reqCtx, examID)
	defer pubsub.Close()
	ch := pubsub.Channel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("message", gin.H{
		"type": "snapshot",
		"data": gin.H{
			"exam": gin.H{
				"id":       exam.ID,
				"title":    exam.Title,
				"duration": exam.DurationMinutes,
			},
			"stats": gin.H{
				"total_ongoing":   snapshot.TotalOngoing,
				"total_submitted": snapshot.TotalSubmitted,
				"total_abandoned": snapshot.TotalAbandoned,
				"total_cheats":    snapshot.TotalCheats,
			},
			"attempts": snapshot.Attempts,
		},
	})
	c.Writer.Flush()

	keepAliveTicker := time.NewTicker(h.keepAlive)
	defer keepAliveTicker.Stop()

	h.log.Info().Str("exam_id", examID.String()).Msg("Proctor attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Proctor disconnected from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Forward raw JSON, no deserialization needed
			writeSSEData(c, []byte(msg.Payload))

		case <-keepAliveTicker.C:
			writeSSEData(c, pingPayload)
		}
	}
}

func writeSSEData(c *gin.Context, payload []byte) {
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(payload)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
