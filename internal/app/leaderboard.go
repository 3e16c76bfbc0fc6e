package app

import (
	"sort"

	"live-quiz-service/internal/domain"
)

// FinalLeaderboard ranks the full roster by cumulative score. It is a live snapshot
// until the room is finished.
func FinalLeaderboard(room domain.Room) domain.Leaderboard {
	return domain.Leaderboard{
		RoomID:  room.ID,
		Status:  room.Status,
		Entries: rankedEntries(room),
	}
}

// QuestionLeaderboard ranks the roster and marks who answered questionIndex and whether
// they got it right. A positive limit truncates the board for broadcast display.
func QuestionLeaderboard(room domain.Room, questionIndex, limit int) domain.Leaderboard {
	entries := rankedEntries(room)
	for i := range entries {
		if answer, ok := room.AnswerFor(entries[i].ParticipantID, questionIndex); ok {
			entries[i].Answered = true
			entries[i].Correct = answer.Correct
		}
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	idx := questionIndex
	return domain.Leaderboard{
		RoomID:        room.ID,
		QuestionIndex: &idx,
		Status:        room.Status,
		Entries:       entries,
	}
}

// ResponseDistribution counts the answers given to one question per option.
func ResponseDistribution(room domain.Room, questionIndex int, question domain.Question) domain.ResponseDistribution {
	dist := domain.ResponseDistribution{
		RoomID:        room.ID,
		QuestionIndex: questionIndex,
		Counts:        make([]int, len(question.Options)),
		RosterSize:    len(room.Participants),
		CorrectOption: question.CorrectOption,
	}
	for _, answer := range room.Answers[questionIndex] {
		dist.Responses++
		switch {
		case answer.SelectedOption == domain.NoAnswer:
			dist.NoAnswer++
		case answer.SelectedOption >= 0 && answer.SelectedOption < len(dist.Counts):
			dist.Counts[answer.SelectedOption]++
		}
	}
	return dist
}

// rankedEntries orders the roster by score descending; ties keep join order.
func rankedEntries(room domain.Room) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(room.Participants))
	for _, p := range room.Participants {
		entries = append(entries, domain.LeaderboardEntry{
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			Score:         room.Scores[p.ID],
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
