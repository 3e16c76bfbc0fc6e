package app

import (
	"context"
	"time"

	"live-quiz-service/internal/domain"
)

// QuestionView is the current question as shown to players; the correct option is withheld.
type QuestionView struct {
	Index         int        `json:"index"`
	Total         int        `json:"total"`
	Prompt        string     `json:"prompt"`
	Options       []string   `json:"options"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	WindowSeconds float64    `json:"windowSeconds"`
}

// Snapshot is what a polling client renders: room header, current question and standings.
type Snapshot struct {
	RoomID          string               `json:"roomId"`
	JoinCode        string               `json:"joinCode"`
	HostID          string               `json:"hostId"`
	Status          domain.RoomStatus    `json:"status"`
	Version         int64                `json:"version"`
	Participants    []domain.Participant `json:"participants"`
	CurrentQuestion *QuestionView        `json:"currentQuestion,omitempty"`
	Leaderboard     domain.Leaderboard   `json:"leaderboard"`
}

// Snapshot builds the client view of a room. While a question is live the board is the
// question leaderboard truncated to BroadcastTop; otherwise it is the full standings.
func (s *RoomService) Snapshot(ctx context.Context, roomID string) (Snapshot, error) {
	room, quiz, err := s.roomWithQuiz(ctx, roomID)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		RoomID:       room.ID,
		JoinCode:     room.JoinCode,
		HostID:       room.HostID,
		Status:       room.Status,
		Version:      room.Version,
		Participants: room.Participants,
		Leaderboard:  FinalLeaderboard(room),
	}
	idx := room.CurrentQuestion
	if room.Status == domain.StatusInProgress && idx >= 0 && idx < quiz.QuestionCount() {
		q := quiz.Questions[idx]
		snap.CurrentQuestion = &QuestionView{
			Index:         idx,
			Total:         quiz.QuestionCount(),
			Prompt:        q.Prompt,
			Options:       q.Options,
			StartedAt:     room.QuestionStartedAt,
			WindowSeconds: s.settings.AnswerWindow.Seconds(),
		}
		snap.Leaderboard = QuestionLeaderboard(room, idx, s.settings.BroadcastTop)
	}
	return snap, nil
}
