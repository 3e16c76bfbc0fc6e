package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorUnwrapsToKindAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewError(ErrStorage, "room-1", "write failed").ForParticipant("p1").Wrap(cause)

	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected kind to match")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to match")
	}
	if KindOf(err) != ErrStorage {
		t.Fatalf("unexpected kind %v", KindOf(err))
	}
	want := "storage error: write failed (room room-1, participant p1): connection reset"
	if err.Error() != want {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestKindOfWrappedSentinels(t *testing.T) {
	if KindOf(fmt.Errorf("load: %w", ErrQuizNotFound)) != ErrNotFound {
		t.Fatalf("quiz not found should classify as not found")
	}
	if KindOf(ErrCodeTaken) != ErrConflict {
		t.Fatalf("code taken should classify as conflict")
	}
	if KindOf(errors.New("boom")) != nil {
		t.Fatalf("unknown errors have no kind")
	}
	// the outermost domain error wins over kinds in its cause chain
	err := NewError(ErrContention, "room-1", "").Wrap(ErrNotFound)
	if KindOf(err) != ErrContention {
		t.Fatalf("expected contention, got %v", KindOf(err))
	}
}

func TestKindNamesAreDistinct(t *testing.T) {
	seen := make(map[string]bool)
	for _, kind := range Kinds {
		name := KindName(kind)
		if name == "internal" || seen[name] {
			t.Fatalf("kind %v has unusable wire name %q", kind, name)
		}
		seen[name] = true
	}
}

func TestRoomCloneIsDeep(t *testing.T) {
	room := NewRoom("room-1", "abc234", "quiz-1", "host", fixedTime)
	if room.JoinCode != "ABC234" || room.CurrentQuestion != -1 || room.Status != StatusWaiting {
		t.Fatalf("unexpected new room %+v", room)
	}
	room.Participants = append(room.Participants, Participant{ID: "p1"})
	room.Answers[0] = []Answer{{ParticipantID: "p1"}}
	started := fixedTime
	room.QuestionStartedAt = &started

	clone := room.Clone()
	clone.Participants[0].ID = "changed"
	clone.Answers[0][0].Points = 99
	clone.Scores["p1"] = 42
	*clone.QuestionStartedAt = fixedTime.Add(1)

	if room.Participants[0].ID != "p1" || room.Answers[0][0].Points != 0 || len(room.Scores) != 0 || !room.QuestionStartedAt.Equal(fixedTime) {
		t.Fatalf("clone shares state with original")
	}
}
