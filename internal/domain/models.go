package domain

import (
	"strings"
	"time"
)

// RoomStatus is the lifecycle state of a live room.
type RoomStatus string

const (
	StatusWaiting    RoomStatus = "waiting"
	StatusInProgress RoomStatus = "in-progress"
	StatusFinished   RoomStatus = "finished"
)

// NoAnswer is the selected option recorded when a participant lets the answer window expire.
const NoAnswer = -1

// Participant is a roster member of a room.
type Participant struct {
	ID          string    `json:"id" bson:"id"`
	DisplayName string    `json:"displayName" bson:"displayName"`
	JoinedAt    time.Time `json:"joinedAt" bson:"joinedAt"`
}

// Answer is one participant's recorded answer to one question. Immutable once stored.
type Answer struct {
	ParticipantID  string    `json:"participantId" bson:"participantId"`
	QuestionIndex  int       `json:"questionIndex" bson:"questionIndex"`
	SelectedOption int       `json:"selectedOption" bson:"selectedOption"`
	ElapsedSeconds float64   `json:"elapsedSeconds" bson:"elapsedSeconds"`
	Correct        bool      `json:"correct" bson:"correct"`
	Points         int       `json:"points" bson:"points"`
	SubmittedAt    time.Time `json:"submittedAt" bson:"submittedAt"`
}

// Room is the aggregate root of a live session.
type Room struct {
	ID                string           `json:"id"`
	JoinCode          string           `json:"joinCode"`
	QuizID            string           `json:"quizId"`
	HostID            string           `json:"hostId"`
	Status            RoomStatus       `json:"status"`
	Participants      []Participant    `json:"participants"`
	CurrentQuestion   int              `json:"currentQuestion"`
	Answers           map[int][]Answer `json:"answers"`
	Scores            map[string]int   `json:"scores"`
	QuestionStartedAt *time.Time       `json:"questionStartedAt,omitempty"`
	CreatedAt         time.Time        `json:"createdAt"`
	StartedAt         *time.Time       `json:"startedAt,omitempty"`
	FinishedAt        *time.Time       `json:"finishedAt,omitempty"`
	// Version is the optimistic-concurrency revision assigned by the room store.
	Version int64 `json:"version"`
}

// NewRoom builds a waiting room with an empty roster.
func NewRoom(id, code, quizID, hostID string, now time.Time) Room {
	return Room{
		ID:              id,
		JoinCode:        NormalizeCode(code),
		QuizID:          quizID,
		HostID:          hostID,
		Status:          StatusWaiting,
		Participants:    []Participant{},
		CurrentQuestion: -1,
		Answers:         make(map[int][]Answer),
		Scores:          make(map[string]int),
		CreatedAt:       now,
	}
}

// NormalizeCode canonicalizes a user-entered join code for lookups.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Active reports whether the room still holds its join code.
func (r Room) Active() bool {
	return r.Status != StatusFinished
}

// Participant returns the roster entry for id.
func (r Room) Participant(id string) (Participant, bool) {
	for _, p := range r.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// AnswerFor returns the answer a participant recorded for a question, if any.
func (r Room) AnswerFor(participantID string, questionIndex int) (Answer, bool) {
	for _, a := range r.Answers[questionIndex] {
		if a.ParticipantID == participantID {
			return a, true
		}
	}
	return Answer{}, false
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (r Room) Clone() Room {
	out := r
	out.Participants = append([]Participant(nil), r.Participants...)
	out.Answers = make(map[int][]Answer, len(r.Answers))
	for idx, answers := range r.Answers {
		out.Answers[idx] = append([]Answer(nil), answers...)
	}
	out.Scores = make(map[string]int, len(r.Scores))
	for id, score := range r.Scores {
		out.Scores[id] = score
	}
	out.QuestionStartedAt = cloneTime(r.QuestionStartedAt)
	out.StartedAt = cloneTime(r.StartedAt)
	out.FinishedAt = cloneTime(r.FinishedAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	Prompt        string   `json:"prompt" bson:"prompt" yaml:"prompt"`
	Options       []string `json:"options" bson:"options" yaml:"options"`
	CorrectOption int      `json:"correctOption" bson:"correctOption" yaml:"correctOption"`
}

// Quiz is the read-only catalog view of a quiz.
type Quiz struct {
	ID        string     `json:"id" bson:"_id" yaml:"id"`
	Title     string     `json:"title" bson:"title" yaml:"title"`
	OwnerID   string     `json:"ownerId" bson:"ownerId" yaml:"ownerId"`
	Questions []Question `json:"questions" bson:"questions" yaml:"questions"`
}

func (q Quiz) QuestionCount() int {
	return len(q.Questions)
}

// OwnedBy reports whether userID may host rooms for this quiz.
func (q Quiz) OwnedBy(userID string) bool {
	return userID != "" && q.OwnerID == userID
}

// LeaderboardEntry is one ranked row of a leaderboard.
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	Score         int    `json:"score"`
	// Answered and Correct describe the question the board was computed for.
	Answered bool `json:"answered,omitempty"`
	Correct  bool `json:"correct,omitempty"`
}

// Leaderboard captures the ordered scoreboard for a room.
type Leaderboard struct {
	RoomID        string             `json:"roomId"`
	QuestionIndex *int               `json:"questionIndex,omitempty"`
	Status        RoomStatus         `json:"status"`
	Entries       []LeaderboardEntry `json:"entries"`
}

// ResponseDistribution counts how the roster answered one question.
type ResponseDistribution struct {
	RoomID        string `json:"roomId"`
	QuestionIndex int    `json:"questionIndex"`
	Counts        []int  `json:"counts"`
	NoAnswer      int    `json:"noAnswer"`
	Responses     int    `json:"responses"`
	RosterSize    int    `json:"rosterSize"`
	CorrectOption int    `json:"correctOption"`
}

// SubmitAnswerRequest is a participant's answer for the current question.
type SubmitAnswerRequest struct {
	RoomID         string
	ParticipantID  string
	QuestionIndex  int
	SelectedOption int
	// ClientElapsedSeconds is only used when the room has no server-side question start.
	ClientElapsedSeconds float64
}

// AnswerResult summarizes the outcome of a submission for a single participant.
type AnswerResult struct {
	QuestionIndex int  `json:"questionIndex"`
	Correct       bool `json:"correct"`
	Points        int  `json:"points"`
	CorrectOption int  `json:"correctOption"`
	TotalScore    int  `json:"totalScore"`
	// Duplicate is set when the answer had already been recorded and the original result is returned.
	Duplicate bool `json:"duplicate"`
}
