package domain

import (
	"testing"
	"time"
)

var fixedTime = time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)

func TestRoomLookups(t *testing.T) {
	room := NewRoom("room-1", "ABC234", "quiz-1", "host", fixedTime)
	room.Participants = []Participant{{ID: "p1", DisplayName: "Ann"}}
	room.Answers[2] = []Answer{{ParticipantID: "p1", QuestionIndex: 2, SelectedOption: NoAnswer}}

	if p, ok := room.Participant("p1"); !ok || p.DisplayName != "Ann" {
		t.Fatalf("expected participant p1")
	}
	if _, ok := room.Participant("p2"); ok {
		t.Fatalf("unexpected participant p2")
	}
	if a, ok := room.AnswerFor("p1", 2); !ok || a.SelectedOption != NoAnswer {
		t.Fatalf("expected recorded timeout answer")
	}
	if _, ok := room.AnswerFor("p1", 0); ok {
		t.Fatalf("unexpected answer for question 0")
	}
	if !room.Active() {
		t.Fatalf("waiting room should be active")
	}
	room.Status = StatusFinished
	if room.Active() {
		t.Fatalf("finished room should release its code")
	}
}

func TestQuizOwnership(t *testing.T) {
	quiz := Quiz{ID: "quiz-1", OwnerID: "host"}
	if !quiz.OwnedBy("host") || quiz.OwnedBy("guest") || quiz.OwnedBy("") {
		t.Fatalf("unexpected ownership result")
	}
	if (Quiz{}).OwnedBy("") {
		t.Fatalf("empty owner must never match")
	}
}
