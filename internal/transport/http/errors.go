package http

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"live-quiz-service/internal/domain"
)

type errorBody struct {
	Kind          string `json:"kind"`
	Message       string `json:"message"`
	RoomID        string `json:"roomId,omitempty"`
	ParticipantID string `json:"participantId,omitempty"`
	QuestionIndex *int   `json:"questionIndex,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind error) int {
	switch kind {
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrNotAuthorized:
		return http.StatusForbidden
	case domain.ErrInvalidState, domain.ErrConflict, domain.ErrDuplicateAnswer, domain.ErrStaleQuestion:
		return http.StatusConflict
	case domain.ErrPreconditionFailed:
		return http.StatusPreconditionFailed
	case domain.ErrCapacityExceeded:
		return http.StatusTooManyRequests
	case domain.ErrContention:
		return http.StatusServiceUnavailable
	case domain.ErrInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorPayload(err error) errorBody {
	kind := domain.KindOf(err)
	body := errorBody{Kind: domain.KindName(kind), Message: err.Error()}
	var de *domain.Error
	if errors.As(err, &de) {
		body.RoomID = de.RoomID
		body.ParticipantID = de.ParticipantID
		body.QuestionIndex = de.QuestionIndex
	}
	if kind == nil || kind == domain.ErrStorage {
		// store internals stay in the logs
		body.Message = http.StatusText(http.StatusInternalServerError)
	}
	return body
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	status := StatusFor(domain.KindOf(err))
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: errorPayload(err)})
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: errorBody{
		Kind:    domain.KindName(domain.ErrInvalidArgument),
		Message: message,
	}})
}
