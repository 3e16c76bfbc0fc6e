package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/metrics"
)

// RoomRepository abstracts how rooms are stored (in-memory, Redis, Postgres, Mongo).
//
// Create stores a new room at version 1 and fails with domain.ErrCodeTaken when an active
// room already holds the join code. Update replaces the stored room only if its version
// equals room.Version, bumping it by one; otherwise it fails with domain.ErrVersionConflict.
// Transitioning a room to finished releases its join code. Get, GetByCode, Update and
// Delete return domain.ErrRoomNotFound for unknown rooms. Other failures wrap domain.ErrStorage.
type RoomRepository interface {
	Create(ctx context.Context, room domain.Room) error
	Get(ctx context.Context, id string) (domain.Room, error)
	// GetByCode prefers the active room holding code, falling back to the latest finished one.
	GetByCode(ctx context.Context, code string) (domain.Room, error)
	Update(ctx context.Context, room domain.Room) error
	Delete(ctx context.Context, id string) error
	SweepExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Settings tunes the session engine.
type Settings struct {
	AnswerWindow    time.Duration
	MaxParticipants int
	MaxRetries      int
	CodeAttempts    int
	BroadcastTop    int
	Retention       time.Duration
}

// DefaultSettings mirrors the live quiz defaults: 12s window, 50 players, top 10 board, 24h retention.
func DefaultSettings() Settings {
	return Settings{
		AnswerWindow:    12 * time.Second,
		MaxParticipants: 50,
		MaxRetries:      8,
		CodeAttempts:    10,
		BroadcastTop:    10,
		Retention:       24 * time.Hour,
	}
}

func (s Settings) withDefaults() Settings {
	def := DefaultSettings()
	if s.AnswerWindow <= 0 {
		s.AnswerWindow = def.AnswerWindow
	}
	if s.MaxParticipants <= 0 {
		s.MaxParticipants = def.MaxParticipants
	}
	if s.MaxRetries <= 0 {
		s.MaxRetries = def.MaxRetries
	}
	if s.CodeAttempts <= 0 {
		s.CodeAttempts = def.CodeAttempts
	}
	if s.BroadcastTop <= 0 {
		s.BroadcastTop = def.BroadcastTop
	}
	if s.Retention <= 0 {
		s.Retention = def.Retention
	}
	return s
}

// Option customizes a RoomService.
type Option func(*RoomService)

// WithSettings overrides the engine settings; zero fields keep their defaults.
func WithSettings(settings Settings) Option {
	return func(s *RoomService) { s.settings = settings.withDefaults() }
}

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *RoomService) { s.now = now }
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *RoomService) { s.logger = logger }
}

// WithCodeGenerator replaces the join code source.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(s *RoomService) { s.newCode = gen }
}

// RoomService contains the live room use cases.
type RoomService struct {
	rooms    RoomRepository
	quizzes  QuizRepository
	settings Settings
	now      func() time.Time
	newID    func() string
	newCode  func() (string, error)
	logger   *zap.Logger
}

func NewRoomService(rooms RoomRepository, quizzes QuizRepository, opts ...Option) *RoomService {
	s := &RoomService{
		rooms:    rooms,
		quizzes:  quizzes,
		settings: DefaultSettings(),
		now:      time.Now,
		newID:    uuid.NewString,
		newCode:  GenerateJoinCode,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Settings returns the effective engine settings.
func (s *RoomService) Settings() Settings {
	return s.settings
}

// errUnchanged short-circuits a mutation that needs no write (idempotent replays).
var errUnchanged = errors.New("room unchanged")

// Create opens a waiting room for a quiz owned by hostID.
func (s *RoomService) Create(ctx context.Context, hostID, quizID string) (domain.Room, error) {
	if hostID == "" || quizID == "" {
		return domain.Room{}, domain.NewError(domain.ErrInvalidArgument, "", "host and quiz are required")
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Room{}, quizError("", quizID, err)
	}
	if !quiz.OwnedBy(hostID) {
		return domain.Room{}, domain.NewError(domain.ErrNotAuthorized, "", "only the quiz owner can host a room").ForParticipant(hostID)
	}
	if quiz.QuestionCount() == 0 {
		return domain.Room{}, domain.NewError(domain.ErrPreconditionFailed, "", "quiz has no questions")
	}

	id := s.newID()
	for attempt := 1; attempt <= s.settings.CodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return domain.Room{}, fmt.Errorf("generate join code: %w", err)
		}
		room := domain.NewRoom(id, code, quizID, hostID, s.now())
		err = s.rooms.Create(ctx, room)
		if err == nil {
			room.Version = 1
			metrics.RoomsCreated.Inc()
			s.logger.Info("room created",
				zap.String("room_id", room.ID),
				zap.String("join_code", room.JoinCode),
				zap.String("quiz_id", quizID),
				zap.String("host_id", hostID))
			return room, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return domain.Room{}, storeError(id, err)
		}
		s.logger.Debug("join code collision", zap.String("code", code), zap.Int("attempt", attempt))
	}
	metrics.ContentionFailures.WithLabelValues("create").Inc()
	return domain.Room{}, domain.NewError(domain.ErrContention, id, "could not allocate a unique join code")
}

// Start moves a waiting room with at least one participant to its first question.
func (s *RoomService) Start(ctx context.Context, roomID, callerID string) (domain.Room, error) {
	room, err := s.mutate(ctx, "start", roomID, func(room *domain.Room) error {
		if room.HostID != callerID {
			return domain.NewError(domain.ErrNotAuthorized, room.ID, "only the host can start the quiz").ForParticipant(callerID)
		}
		if room.Status != domain.StatusWaiting {
			return domain.NewError(domain.ErrInvalidState, room.ID, "quiz has already been started")
		}
		if len(room.Participants) == 0 {
			return domain.NewError(domain.ErrPreconditionFailed, room.ID, "need at least one participant to start")
		}
		now := s.now()
		room.Status = domain.StatusInProgress
		room.CurrentQuestion = 0
		room.QuestionStartedAt = &now
		room.StartedAt = &now
		return nil
	})
	if err != nil {
		return domain.Room{}, err
	}
	s.transitioned(room)
	return room, nil
}

// Advance moves to the next question; advancing from the last question finishes the room.
func (s *RoomService) Advance(ctx context.Context, roomID, callerID string) (domain.Room, error) {
	return s.advance(ctx, "advance", roomID, callerID, false)
}

// End finishes an in-progress room early, keeping the answers collected so far.
func (s *RoomService) End(ctx context.Context, roomID, callerID string) (domain.Room, error) {
	return s.advance(ctx, "end", roomID, callerID, true)
}

func (s *RoomService) advance(ctx context.Context, op, roomID, callerID string, finish bool) (domain.Room, error) {
	quizFor := s.quizLoader(ctx)
	room, err := s.mutate(ctx, op, roomID, func(room *domain.Room) error {
		if room.HostID != callerID {
			return domain.NewError(domain.ErrNotAuthorized, room.ID, "only the host can advance questions").ForParticipant(callerID)
		}
		if room.Status != domain.StatusInProgress {
			return domain.NewError(domain.ErrInvalidState, room.ID, "quiz is not in progress")
		}
		quiz, err := quizFor(*room)
		if err != nil {
			return err
		}
		now := s.now()
		if finish || room.CurrentQuestion >= quiz.QuestionCount()-1 {
			room.Status = domain.StatusFinished
			room.FinishedAt = &now
			return nil
		}
		room.CurrentQuestion++
		room.QuestionStartedAt = &now
		return nil
	})
	if err != nil {
		return domain.Room{}, err
	}
	s.transitioned(room)
	return room, nil
}

// Join adds a participant to a waiting room. Joining twice returns the room unchanged.
func (s *RoomService) Join(ctx context.Context, roomID, participantID, displayName string) (domain.Room, error) {
	displayName = strings.TrimSpace(displayName)
	if participantID == "" || displayName == "" {
		return domain.Room{}, domain.NewError(domain.ErrInvalidArgument, roomID, "participant id and display name are required")
	}
	room, err := s.mutate(ctx, "join", roomID, func(room *domain.Room) error {
		if _, ok := room.Participant(participantID); ok {
			return errUnchanged
		}
		if room.Status != domain.StatusWaiting {
			return domain.NewError(domain.ErrInvalidState, room.ID, "room is not accepting participants").ForParticipant(participantID)
		}
		if len(room.Participants) >= s.settings.MaxParticipants {
			return domain.NewError(domain.ErrCapacityExceeded, room.ID, fmt.Sprintf("room is full (%d participants)", s.settings.MaxParticipants)).ForParticipant(participantID)
		}
		room.Participants = append(room.Participants, domain.Participant{
			ID:          participantID,
			DisplayName: displayName,
			JoinedAt:    s.now(),
		})
		if room.Scores == nil {
			room.Scores = make(map[string]int)
		}
		if _, ok := room.Scores[participantID]; !ok {
			room.Scores[participantID] = 0
		}
		return nil
	})
	if err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

// JoinByCode resolves a join code to its active room and joins it.
func (s *RoomService) JoinByCode(ctx context.Context, code, participantID, displayName string) (domain.Room, error) {
	room, err := s.rooms.GetByCode(ctx, domain.NormalizeCode(code))
	if err != nil {
		return domain.Room{}, storeError("", err)
	}
	if !room.Active() {
		return domain.Room{}, domain.NewError(domain.ErrNotFound, "", "no active room with this code")
	}
	return s.Join(ctx, room.ID, participantID, displayName)
}

// Leave removes a participant. The participant or the host may do it; answers and the
// score entry stay so history is not rewritten.
func (s *RoomService) Leave(ctx context.Context, roomID, callerID, participantID string) (domain.Room, error) {
	return s.mutate(ctx, "leave", roomID, func(room *domain.Room) error {
		if callerID != participantID && callerID != room.HostID {
			return domain.NewError(domain.ErrNotAuthorized, room.ID, "only the host can remove other participants").ForParticipant(callerID)
		}
		if room.Status == domain.StatusFinished {
			return domain.NewError(domain.ErrInvalidState, room.ID, "room is finished")
		}
		for i, p := range room.Participants {
			if p.ID == participantID {
				room.Participants = append(room.Participants[:i:i], room.Participants[i+1:]...)
				return nil
			}
		}
		return domain.NewError(domain.ErrNotFound, room.ID, "participant not in room").ForParticipant(participantID)
	})
}

// SubmitAnswer records a participant's answer for the current question and scores it.
// Resubmitting for an answered question returns the original result with Duplicate set.
func (s *RoomService) SubmitAnswer(ctx context.Context, req domain.SubmitAnswerRequest) (domain.AnswerResult, error) {
	quizFor := s.quizLoader(ctx)
	var (
		result   domain.AnswerResult
		recorded bool
	)
	_, err := s.mutate(ctx, "answer", req.RoomID, func(room *domain.Room) error {
		recorded = false
		if _, ok := room.Participant(req.ParticipantID); !ok {
			return domain.NewError(domain.ErrNotAuthorized, room.ID, "participant not in room").ForParticipant(req.ParticipantID)
		}
		quiz, err := quizFor(*room)
		if err != nil {
			return err
		}
		if prev, ok := room.AnswerFor(req.ParticipantID, req.QuestionIndex); ok {
			result = answerResult(prev, quiz, room.Scores[req.ParticipantID])
			result.Duplicate = true
			return errUnchanged
		}
		if room.Status != domain.StatusInProgress {
			return domain.NewError(domain.ErrInvalidState, room.ID, "quiz is not in progress").ForParticipant(req.ParticipantID)
		}
		if req.QuestionIndex != room.CurrentQuestion {
			return domain.NewError(domain.ErrStaleQuestion, room.ID, fmt.Sprintf("current question is %d", room.CurrentQuestion)).
				ForParticipant(req.ParticipantID).ForQuestion(req.QuestionIndex)
		}
		if req.QuestionIndex < 0 || req.QuestionIndex >= quiz.QuestionCount() {
			return domain.NewError(domain.ErrNotFound, room.ID, "question not found").ForQuestion(req.QuestionIndex)
		}
		question := quiz.Questions[req.QuestionIndex]
		if req.SelectedOption != domain.NoAnswer && (req.SelectedOption < 0 || req.SelectedOption >= len(question.Options)) {
			return domain.NewError(domain.ErrInvalidArgument, room.ID, fmt.Sprintf("option %d out of range", req.SelectedOption)).
				ForParticipant(req.ParticipantID).ForQuestion(req.QuestionIndex)
		}

		now := s.now()
		elapsed := ElapsedSeconds(room.QuestionStartedAt, now, req.ClientElapsedSeconds)
		correct := req.SelectedOption != domain.NoAnswer && req.SelectedOption == question.CorrectOption
		answer := domain.Answer{
			ParticipantID:  req.ParticipantID,
			QuestionIndex:  req.QuestionIndex,
			SelectedOption: req.SelectedOption,
			ElapsedSeconds: elapsed,
			Correct:        correct,
			Points:         Score(correct, elapsed, s.settings.AnswerWindow),
			SubmittedAt:    now,
		}
		if room.Answers == nil {
			room.Answers = make(map[int][]domain.Answer)
		}
		if room.Scores == nil {
			room.Scores = make(map[string]int)
		}
		room.Answers[req.QuestionIndex] = append(room.Answers[req.QuestionIndex], answer)
		room.Scores[req.ParticipantID] += answer.Points

		result = answerResult(answer, quiz, room.Scores[req.ParticipantID])
		recorded = true
		return nil
	})
	if err != nil {
		return domain.AnswerResult{}, err
	}
	if recorded {
		metrics.AnswersRecorded.WithLabelValues(strconv.FormatBool(result.Correct)).Inc()
	}
	return result, nil
}

func answerResult(answer domain.Answer, quiz domain.Quiz, total int) domain.AnswerResult {
	res := domain.AnswerResult{
		QuestionIndex: answer.QuestionIndex,
		Correct:       answer.Correct,
		Points:        answer.Points,
		CorrectOption: -1,
		TotalScore:    total,
	}
	if answer.QuestionIndex >= 0 && answer.QuestionIndex < quiz.QuestionCount() {
		res.CorrectOption = quiz.Questions[answer.QuestionIndex].CorrectOption
	}
	return res
}

// GetState returns a snapshot of the room in any status.
func (s *RoomService) GetState(ctx context.Context, roomID string) (domain.Room, error) {
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return domain.Room{}, storeError(roomID, err)
	}
	return room, nil
}

// GetByCode looks a room up by join code, including finished rooms for result display.
func (s *RoomService) GetByCode(ctx context.Context, code string) (domain.Room, error) {
	room, err := s.rooms.GetByCode(ctx, domain.NormalizeCode(code))
	if err != nil {
		return domain.Room{}, storeError("", err)
	}
	return room, nil
}

// Delete removes a room; only its host may do so.
func (s *RoomService) Delete(ctx context.Context, roomID, callerID string) error {
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return storeError(roomID, err)
	}
	if room.HostID != callerID {
		return domain.NewError(domain.ErrNotAuthorized, roomID, "only the host can delete the room").ForParticipant(callerID)
	}
	if err := s.rooms.Delete(ctx, roomID); err != nil {
		return storeError(roomID, err)
	}
	s.logger.Info("room deleted", zap.String("room_id", roomID))
	return nil
}

// QuestionLeaderboard ranks the room for one question. limit <= 0 returns the full roster.
func (s *RoomService) QuestionLeaderboard(ctx context.Context, roomID string, questionIndex, limit int) (domain.Leaderboard, error) {
	room, quiz, err := s.roomWithQuiz(ctx, roomID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	if questionIndex < 0 || questionIndex >= quiz.QuestionCount() {
		return domain.Leaderboard{}, domain.NewError(domain.ErrNotFound, roomID, "question not found").ForQuestion(questionIndex)
	}
	return QuestionLeaderboard(room, questionIndex, limit), nil
}

// FinalLeaderboard ranks the full roster by cumulative score.
func (s *RoomService) FinalLeaderboard(ctx context.Context, roomID string) (domain.Leaderboard, error) {
	room, err := s.GetState(ctx, roomID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return FinalLeaderboard(room), nil
}

// ResponseDistribution counts answers per option for one question.
func (s *RoomService) ResponseDistribution(ctx context.Context, roomID string, questionIndex int) (domain.ResponseDistribution, error) {
	room, quiz, err := s.roomWithQuiz(ctx, roomID)
	if err != nil {
		return domain.ResponseDistribution{}, err
	}
	if questionIndex < 0 || questionIndex >= quiz.QuestionCount() {
		return domain.ResponseDistribution{}, domain.NewError(domain.ErrNotFound, roomID, "question not found").ForQuestion(questionIndex)
	}
	return ResponseDistribution(room, questionIndex, quiz.Questions[questionIndex]), nil
}

// SweepExpired deletes rooms older than the retention horizon.
func (s *RoomService) SweepExpired(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.settings.Retention)
	n, err := s.rooms.SweepExpired(ctx, cutoff)
	if err != nil {
		return n, storeError("", err)
	}
	if n > 0 {
		metrics.RoomsSwept.Add(float64(n))
		s.logger.Info("expired rooms swept", zap.Int("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

func (s *RoomService) roomWithQuiz(ctx context.Context, roomID string) (domain.Room, domain.Quiz, error) {
	room, err := s.GetState(ctx, roomID)
	if err != nil {
		return domain.Room{}, domain.Quiz{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, room.QuizID)
	if err != nil {
		return domain.Room{}, domain.Quiz{}, quizError(roomID, room.QuizID, err)
	}
	return room, quiz, nil
}

// quizLoader memoizes the quiz of the room being mutated across retry attempts.
func (s *RoomService) quizLoader(ctx context.Context) func(domain.Room) (domain.Quiz, error) {
	var (
		loaded bool
		quiz   domain.Quiz
	)
	return func(room domain.Room) (domain.Quiz, error) {
		if loaded && quiz.ID == room.QuizID {
			return quiz, nil
		}
		q, err := s.quizzes.GetQuiz(ctx, room.QuizID)
		if err != nil {
			return domain.Quiz{}, quizError(room.ID, room.QuizID, err)
		}
		quiz, loaded = q, true
		return quiz, nil
	}
}

// mutate runs apply as a read-modify-write against one room, re-reading and re-applying
// on version conflicts until MaxRetries attempts have been spent.
func (s *RoomService) mutate(ctx context.Context, op, roomID string, apply func(room *domain.Room) error) (domain.Room, error) {
	for attempt := 1; attempt <= s.settings.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.Room{}, err
		}
		room, err := s.rooms.Get(ctx, roomID)
		if err != nil {
			return domain.Room{}, storeError(roomID, err)
		}
		if err := apply(&room); err != nil {
			if errors.Is(err, errUnchanged) {
				return room, nil
			}
			return domain.Room{}, err
		}
		err = s.rooms.Update(ctx, room)
		if err == nil {
			room.Version++
			return room, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return domain.Room{}, storeError(roomID, err)
		}
		metrics.OptimisticRetries.WithLabelValues(op).Inc()
		s.logger.Debug("room version conflict",
			zap.String("op", op),
			zap.String("room_id", roomID),
			zap.Int("attempt", attempt))
	}
	metrics.ContentionFailures.WithLabelValues(op).Inc()
	s.logger.Warn("room update retries exhausted", zap.String("op", op), zap.String("room_id", roomID))
	return domain.Room{}, domain.NewError(domain.ErrContention, roomID, op+" retries exhausted")
}

func (s *RoomService) transitioned(room domain.Room) {
	metrics.RoomTransitions.WithLabelValues(string(room.Status)).Inc()
	s.logger.Info("room transitioned",
		zap.String("room_id", room.ID),
		zap.String("status", string(room.Status)),
		zap.Int("question", room.CurrentQuestion))
}

func storeError(roomID string, err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	kind := domain.KindOf(err)
	switch kind {
	case domain.ErrNotFound:
		return domain.NewError(domain.ErrNotFound, roomID, "room not found").Wrap(err)
	case nil:
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		kind = domain.ErrStorage
	}
	return domain.NewError(kind, roomID, "").Wrap(err)
}

func quizError(roomID, quizID string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewError(domain.ErrNotFound, roomID, "quiz "+quizID+" not found").Wrap(err)
	}
	return storeError(roomID, err)
}
