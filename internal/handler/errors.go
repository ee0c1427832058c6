package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-integrity/internal/middleware"
	"github.com/stemsi/exstem-integrity/internal/model"
	"github.com/stemsi/exstem-integrity/internal/response"
	"github.com/stemsi/exstem-integrity/internal/service"
)

// respondError maps a service error onto the response envelope. Unknown errors
// are logged and reported as 500.
func respondError(c *gin.Context, err error, log zerolog.Logger) {
	status, code, message := classifyError(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Unhandled service error")
	}
	response.FailWithMessage(c, status, code, message)
}

// classifyError returns the HTTP status, error code and user-facing message for
// err. The message is empty when the code's default text applies.
func classifyError(err error) (int, response.ErrCode, string) {
	var stateErr *service.StateError
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, response.ErrTokenRequired, ""
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, response.ErrForbidden, ""
	case errors.Is(err, service.ErrAttemptNotFound):
		return http.StatusNotFound, response.ErrAttemptNotFound, ""
	case errors.Is(err, service.ErrExamNotFound):
		return http.StatusNotFound, response.ErrExamNotFound, ""
	case errors.Is(err, service.ErrAnswerChangeNotAllowed):
		return http.StatusConflict, response.ErrAnswerChangeForbidden, ""
	case errors.As(err, &stateErr):
		return http.StatusConflict, response.ErrInvalidState, stateErr.Message()
	case errors.Is(err, service.ErrInvalidState):
		return http.StatusConflict, response.ErrInvalidState, ""
	case errors.Is(err, service.ErrMaxAttemptsReached):
		return http.StatusConflict, response.ErrMaxAttemptsReached, ""
	case errors.Is(err, service.ErrExamNotAvailable):
		return http.StatusConflict, response.ErrExamNotAvailable, ""
	case errors.Is(err, service.ErrInvalidEntryToken):
		return http.StatusForbidden, response.ErrInvalidEntryToken, ""
	case errors.Is(err, service.ErrReviewNotAllowed):
		return http.StatusForbidden, response.ErrReviewNotAllowed, ""
	case errors.Is(err, service.ErrInvalidEventType):
		return http.StatusBadRequest, response.ErrInvalidEventType, ""
	case errors.Is(err, service.ErrInvalidSeverity):
		return http.StatusBadRequest, response.ErrInvalidSeverity, ""
	case errors.Is(err, service.ErrInvalidPayload):
		return http.StatusBadRequest, response.ErrInvalidPayload, ""
	default:
		return http.StatusInternalServerError, response.ErrInternal, ""
	}
}

// principalOrFail returns the caller or writes a 401.
func principalOrFail(c *gin.Context) (model.Principal, bool) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
	}
	return p, ok
}

// uuidParam parses a path parameter or writes a 400.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
