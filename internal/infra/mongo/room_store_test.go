package mongo

import (
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

func TestRoomDocKeepsAnswerOrderPerQuestion(t *testing.T) {
	now := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	room := domain.NewRoom("room-1", "abc234", "quiz-1", "host", now)
	room.Status = domain.StatusInProgress
	room.Participants = []domain.Participant{{ID: "p1"}, {ID: "p2"}}
	room.Answers[1] = []domain.Answer{{ParticipantID: "p2", QuestionIndex: 1}, {ParticipantID: "p1", QuestionIndex: 1}}
	room.Answers[0] = []domain.Answer{{ParticipantID: "p1", QuestionIndex: 0, Points: 1600}}
	room.Scores = map[string]int{"p1": 1600, "p2": 0}
	room.Version = 3

	doc := toDoc(room)
	if !doc.Active || doc.JoinCode != "ABC234" {
		t.Fatalf("unexpected doc header: active=%v code=%q", doc.Active, doc.JoinCode)
	}
	if len(doc.Answers) != 3 || doc.Answers[0].QuestionIndex != 0 {
		t.Fatalf("expected answers flattened by question, got %+v", doc.Answers)
	}

	back := doc.room()
	if back.Version != 3 || back.Status != domain.StatusInProgress {
		t.Fatalf("unexpected room header: %+v", back)
	}
	if got := back.Answers[1]; len(got) != 2 || got[0].ParticipantID != "p2" || got[1].ParticipantID != "p1" {
		t.Fatalf("answer order for question 1 not preserved: %+v", got)
	}
	if back.Scores["p1"] != 1600 || back.Scores["p2"] != 0 || len(back.Scores) != 2 {
		t.Fatalf("unexpected scores %v", back.Scores)
	}
}

func TestRoomDocFinishedIsInactive(t *testing.T) {
	room := domain.NewRoom("room-1", "ABC234", "quiz-1", "host", time.Now())
	room.Status = domain.StatusFinished
	if toDoc(room).Active {
		t.Fatalf("finished room must not hold its join code")
	}
}
