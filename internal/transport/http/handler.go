package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// Handler exposes RoomService over REST.
type Handler struct {
	service *app.RoomService
	logger  *zap.Logger
}

func NewHandler(service *app.RoomService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

type createRoomRequest struct {
	QuizID string `json:"quizId"`
}

type joinRequest struct {
	Code        string `json:"code"`
	DisplayName string `json:"displayName"`
}

type leaveRequest struct {
	ParticipantID string `json:"participantId"`
}

type answerRequest struct {
	QuestionIndex  int     `json:"questionIndex"`
	SelectedOption *int    `json:"selectedOption"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

// POST /rooms
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	room, err := h.service.Create(r.Context(), UserIDFromCtx(r.Context()), req.QuizID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

// POST /rooms/join
func (h *Handler) JoinByCode(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	room, err := h.service.JoinByCode(r.Context(), req.Code, UserIDFromCtx(r.Context()), req.DisplayName)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// GET /rooms/code/{code}
func (h *Handler) GetRoomByCode(w http.ResponseWriter, r *http.Request) {
	room, err := h.service.GetByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// GET /rooms/{id}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.service.GetState(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// DELETE /rooms/{id}
func (h *Handler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), UserIDFromCtx(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /rooms/{id}/join
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	room, err := h.service.Join(r.Context(), chi.URLParam(r, "id"), UserIDFromCtx(r.Context()), req.DisplayName)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// POST /rooms/{id}/leave
func (h *Handler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	var req leaveRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	caller := UserIDFromCtx(r.Context())
	if req.ParticipantID == "" {
		req.ParticipantID = caller
	}
	room, err := h.service.Leave(r.Context(), chi.URLParam(r, "id"), caller, req.ParticipantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// POST /rooms/{id}/start
func (h *Handler) StartRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.service.Start(r.Context(), chi.URLParam(r, "id"), UserIDFromCtx(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// POST /rooms/{id}/advance
func (h *Handler) AdvanceRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.service.Advance(r.Context(), chi.URLParam(r, "id"), UserIDFromCtx(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// POST /rooms/{id}/end
func (h *Handler) EndRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.service.End(r.Context(), chi.URLParam(r, "id"), UserIDFromCtx(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// POST /rooms/{id}/answers
func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	selected := domain.NoAnswer
	if req.SelectedOption != nil {
		selected = *req.SelectedOption
	}
	res, err := h.service.SubmitAnswer(r.Context(), domain.SubmitAnswerRequest{
		RoomID:               chi.URLParam(r, "id"),
		ParticipantID:        UserIDFromCtx(r.Context()),
		QuestionIndex:        req.QuestionIndex,
		SelectedOption:       selected,
		ClientElapsedSeconds: req.ElapsedSeconds,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

// GET /rooms/{id}/leaderboard?question=&limit=
func (h *Handler) QuestionLeaderboard(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	q := r.URL.Query()
	if q.Get("question") == "" {
		h.FinalLeaderboard(w, r)
		return
	}
	idx, err := strconv.Atoi(q.Get("question"))
	if err != nil {
		badRequest(w, "question must be an integer")
		return
	}
	limit := h.service.Settings().BroadcastTop
	if s := q.Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil {
			badRequest(w, "limit must be an integer")
			return
		}
	}
	board, err := h.service.QuestionLeaderboard(r.Context(), roomID, idx, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// GET /rooms/{id}/leaderboard/final
func (h *Handler) FinalLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.service.FinalLeaderboard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// GET /rooms/{id}/questions/{index}/distribution
func (h *Handler) ResponseDistribution(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		badRequest(w, "question index must be an integer")
		return
	}
	dist, err := h.service.ResponseDistribution(r.Context(), chi.URLParam(r, "id"), idx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dist)
}
