package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return newTestServerWith(t, func(*WSHandler) {})
}

func newTestServerWith(t *testing.T, tune func(*WSHandler)) *httptest.Server {
	t.Helper()
	quizzes := memory.NewQuizCache(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	service := app.NewRoomService(memory.NewRoomStore(), quizzes)
	ws := NewWSHandler(service, nil, 20*time.Millisecond)
	tune(ws)
	server := httptest.NewServer(NewRouter(NewHandler(service, nil), ws))
	t.Cleanup(server.Close)
	return server
}

func newKeepaliveServer(t *testing.T) *httptest.Server {
	t.Helper()
	return newTestServerWith(t, func(h *WSHandler) {
		h.pingPeriod = 30 * time.Millisecond
		h.pongWait = 150 * time.Millisecond
		h.writeWait = 100 * time.Millisecond
	})
}

func dialRoom(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	var room domain.Room
	doJSON(t, server, http.MethodPost, "/rooms", "host", map[string]any{"quizId": "quiz-1"}, http.StatusCreated, &room)
	u := "ws" + server.URL[len("http"):] + "/ws/rooms/" + room.ID
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	readNext(conn, t, "state")
	return conn
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func TestWebSocketRoomFeed(t *testing.T) {
	server := newTestServer(t)

	var room domain.Room
	doJSON(t, server, http.MethodPost, "/rooms", "host", map[string]any{"quizId": "quiz-1"}, http.StatusCreated, &room)
	doJSON(t, server, http.MethodPost, "/rooms/"+room.ID+"/join", "u1", map[string]any{"displayName": "Alice"}, http.StatusOK, nil)

	u := "ws" + server.URL[len("http"):] + "/ws/rooms/" + room.ID + "?participantId=u1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Expect the current state first.
	_, payload := readNext(conn, t, "state")
	if payload["status"] != string(domain.StatusWaiting) {
		t.Fatalf("expected waiting state, got %v", payload["status"])
	}

	doJSON(t, server, http.MethodPost, "/rooms/"+room.ID+"/start", "host", nil, http.StatusOK, nil)

	payload = readUntil(conn, t, "state", func(p map[string]any) bool {
		return p["status"] == string(domain.StatusInProgress)
	})
	question, ok := payload["currentQuestion"].(map[string]any)
	if !ok || question["prompt"] != "What is 2 + 2?" {
		t.Fatalf("expected current question in state, got %v", payload["currentQuestion"])
	}
	if _, leaked := question["correctOption"]; leaked {
		t.Fatalf("state must not reveal the correct option")
	}

	answer := map[string]any{
		"type":    "answer",
		"payload": map[string]any{"questionIndex": 0, "selectedOption": 1},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	result := readUntil(conn, t, "answerResult", nil)
	if result["correct"] != true {
		t.Fatalf("expected correct answer, got %v", result)
	}
	if points, _ := result["points"].(float64); points < 1000 || points > 1600 {
		t.Fatalf("unexpected points %v", result["points"])
	}

	var board domain.Leaderboard
	doJSON(t, server, http.MethodGet, "/rooms/"+room.ID+"/leaderboard?question=0", "", nil, http.StatusOK, &board)
	if len(board.Entries) != 1 || !board.Entries[0].Answered || !board.Entries[0].Correct {
		t.Fatalf("expected answered entry in leaderboard, got %+v", board.Entries)
	}
}

func TestWebSocketUnknownRoom(t *testing.T) {
	server := newTestServer(t)
	u := "ws" + server.URL[len("http"):] + "/ws/rooms/missing"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial failure")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", resp)
	}
}

func TestWebSocketSpectatorCannotAnswer(t *testing.T) {
	server := newTestServer(t)
	var room domain.Room
	doJSON(t, server, http.MethodPost, "/rooms", "host", map[string]any{"quizId": "quiz-1"}, http.StatusCreated, &room)

	u := "ws" + server.URL[len("http"):] + "/ws/rooms/" + room.ID
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readNext(conn, t, "state")

	if err := conn.WriteJSON(map[string]any{"type": "answer", "payload": map[string]any{"questionIndex": 0}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	payload := readUntil(conn, t, "error", nil)
	if payload["kind"] != "not_authorized" {
		t.Fatalf("expected not_authorized, got %v", payload)
	}
}

func TestWebSocketDropsClientThatStopsAnsweringPings(t *testing.T) {
	server := newKeepaliveServer(t)
	conn := dialRoom(t, server)
	conn.SetPingHandler(func(string) error { return nil })

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var err error
	for err == nil {
		_, _, err = conn.ReadMessage()
	}
	if isTimeout(err) {
		t.Fatalf("server kept a silent connection open: %v", err)
	}
}

func TestWebSocketKeepsClientThatAnswersPings(t *testing.T) {
	server := newKeepaliveServer(t)
	conn := dialRoom(t, server)

	// well past pongWait; the default ping handler replies with pongs while reading
	_ = conn.SetReadDeadline(time.Now().Add(600 * time.Millisecond))
	var err error
	for err == nil {
		_, _, err = conn.ReadMessage()
	}
	if !isTimeout(err) {
		t.Fatalf("server dropped a responsive connection: %v", err)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}

// readUntil skips messages until one of type typ satisfies match (nil matches any).
func readUntil(conn *websocket.Conn, t *testing.T, typ string, match func(map[string]any) bool) map[string]any {
	t.Helper()
	for i := 0; i < 20; i++ {
		got, payload := readNext(conn, t, "")
		if got == typ && (match == nil || match(payload)) {
			return payload
		}
	}
	t.Fatalf("no %s message received", typ)
	return nil
}

func doJSON(t *testing.T, server *httptest.Server, method, path, user string, body any, wantStatus int, out any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		t.Fatalf("%s %s: expected status %d, got %d (%+v)", method, path, wantStatus, resp.StatusCode, e.Error)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}

func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:      "quiz-1",
			Title:   "Arithmetic",
			OwnerID: "host",
			Questions: []domain.Question{
				{Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5", "22"}, CorrectOption: 1},
				{Prompt: "What is 3 * 3?", Options: []string{"6", "9", "12", "33"}, CorrectOption: 1},
			},
		},
	}
}
