package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

const (
	// DefaultPollInterval matches how often browser clients poll the room.
	DefaultPollInterval = 500 * time.Millisecond

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WSHandler streams room snapshots to a websocket and accepts answers over it.
// The core never notifies; the feed polls the room and pushes whenever its version moves.
type WSHandler struct {
	service      *app.RoomService
	logger       *zap.Logger
	pollInterval time.Duration
	writeWait    time.Duration
	pongWait     time.Duration
	pingPeriod   time.Duration
	upgrader     websocket.Upgrader
}

func NewWSHandler(service *app.RoomService, logger *zap.Logger, pollInterval time.Duration) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &WSHandler{
		service:      service,
		logger:       logger,
		pollInterval: pollInterval,
		writeWait:    writeWait,
		pongWait:     pongWait,
		pingPeriod:   pingPeriod,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ServeWS handles GET /ws/rooms/{id}?participantId=. Without a participant id the
// connection is a read-only feed (host screen, spectators).
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	participantID := r.URL.Query().Get("participantId")

	// fail before upgrading so clients get a plain HTTP status for unknown rooms
	first, err := h.service.Snapshot(r.Context(), roomID)
	if err != nil {
		writeJSON(w, StatusFor(domain.KindOf(err)), errorResponse{Error: errorPayload(err)})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.String("room_id", roomID), zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	send := make(chan outboundMessage, 16)
	writerDone := make(chan struct{})
	pollerDone := make(chan struct{})

	conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(h.pingPeriod)
		defer ticker.Stop()
		fail := func(err error) {
			h.logger.Debug("ws write error", zap.String("room_id", roomID), zap.Error(err))
			cancel()
			// unblocks the reader
			conn.Close()
			// drain so producers never block on a dead socket
			for range send {
			}
		}
		for {
			select {
			case msg, ok := <-send:
				if !ok {
					conn.SetWriteDeadline(time.Now().Add(h.writeWait))
					conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
				conn.SetWriteDeadline(time.Now().Add(h.writeWait))
				if err := conn.WriteJSON(msg); err != nil {
					fail(err)
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(h.writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					fail(err)
					return
				}
			}
		}
	}()

	push := func(msg outboundMessage) bool {
		select {
		case send <- msg:
			return true
		case <-ctx.Done():
			return false
		}
	}

	push(outboundMessage{Type: "state", Payload: first})

	go func() {
		defer close(pollerDone)
		h.poll(ctx, roomID, first.Version, push)
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		conn.SetReadDeadline(time.Now().Add(h.pongWait))
		switch inbound.Type {
		case "answer":
			if participantID == "" {
				push(errorMessage(domain.NewError(domain.ErrNotAuthorized, roomID, "connect with participantId to answer")))
				continue
			}
			var payload answerRequest
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				push(errorMessage(domain.NewError(domain.ErrInvalidArgument, roomID, "invalid answer payload")))
				continue
			}
			selected := domain.NoAnswer
			if payload.SelectedOption != nil {
				selected = *payload.SelectedOption
			}
			res, err := h.service.SubmitAnswer(ctx, domain.SubmitAnswerRequest{
				RoomID:               roomID,
				ParticipantID:        participantID,
				QuestionIndex:        payload.QuestionIndex,
				SelectedOption:       selected,
				ClientElapsedSeconds: payload.ElapsedSeconds,
			})
			if err != nil {
				push(errorMessage(err))
				continue
			}
			push(outboundMessage{Type: "answerResult", Payload: res})
		case "ping":
			push(outboundMessage{Type: "pong"})
		default:
			push(errorMessage(domain.NewError(domain.ErrInvalidArgument, roomID, "unsupported message type")))
		}
	}

	cancel()
	<-pollerDone
	close(send)
	<-writerDone
}

// poll pushes a fresh snapshot every time the room version changes and stops once the
// room is gone or the connection closes.
func (h *WSHandler) poll(ctx context.Context, roomID string, lastVersion int64, push func(outboundMessage) bool) {
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		snap, err := h.service.Snapshot(ctx, roomID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if errors.Is(err, domain.ErrNotFound) {
				push(errorMessage(err))
				return
			}
			h.logger.Warn("room poll failed", zap.String("room_id", roomID), zap.Error(err))
			continue
		}
		if snap.Version == lastVersion {
			continue
		}
		lastVersion = snap.Version
		if !push(outboundMessage{Type: "state", Payload: snap}) {
			return
		}
	}
}

func errorMessage(err error) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload(err)}
}
