package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a room, participant, quiz or question does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotAuthorized is returned when the caller lacks host or roster authority.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrInvalidState indicates the operation is illegal for the room's current status.
	ErrInvalidState = errors.New("invalid state")
	// ErrPreconditionFailed indicates a transition requirement is unmet (e.g. empty roster on start).
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrCapacityExceeded is returned when the roster is full.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrConflict indicates a uniqueness collision (join code, duplicate join).
	ErrConflict = errors.New("conflict")
	// ErrDuplicateAnswer marks a second answer for the same participant and question.
	ErrDuplicateAnswer = errors.New("duplicate answer")
	// ErrStaleQuestion is returned for answers to a question that is no longer current.
	ErrStaleQuestion = errors.New("stale question")
	// ErrContention is returned when optimistic retries are exhausted.
	ErrContention = errors.New("contention")
	// ErrStorage wraps failures of the backing store.
	ErrStorage = errors.New("storage error")
	// ErrInvalidArgument indicates malformed input such as an out-of-range option.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrVersionConflict is returned by room stores when the stored revision moved on.
	ErrVersionConflict = errors.New("version conflict")

	// ErrRoomNotFound is the store-level not-found for rooms.
	ErrRoomNotFound = fmt.Errorf("room %w", ErrNotFound)
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = fmt.Errorf("quiz %w", ErrNotFound)
	// ErrCodeTaken is returned by room stores when an active room already holds the join code.
	ErrCodeTaken = fmt.Errorf("join code %w", ErrConflict)
)

// Kinds lists every error kind surfaced to callers.
var Kinds = []error{
	ErrNotFound,
	ErrNotAuthorized,
	ErrInvalidState,
	ErrPreconditionFailed,
	ErrCapacityExceeded,
	ErrConflict,
	ErrDuplicateAnswer,
	ErrStaleQuestion,
	ErrContention,
	ErrStorage,
	ErrInvalidArgument,
}

// Error carries the kind of a rejected operation plus the ids a caller needs to react to it.
type Error struct {
	Kind          error
	RoomID        string
	ParticipantID string
	QuestionIndex *int
	Detail        string
	Err           error
}

// NewError builds an Error of the given kind for a room.
func NewError(kind error, roomID, detail string) *Error {
	return &Error{Kind: kind, RoomID: roomID, Detail: detail}
}

// ForParticipant attaches the participant the error concerns.
func (e *Error) ForParticipant(id string) *Error {
	e.ParticipantID = id
	return e
}

// ForQuestion attaches the question index the error concerns.
func (e *Error) ForQuestion(idx int) *Error {
	e.QuestionIndex = &idx
	return e
}

// Wrap records the underlying cause.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.RoomID != "" {
		fmt.Fprintf(&b, " (room %s", e.RoomID)
		if e.ParticipantID != "" {
			fmt.Fprintf(&b, ", participant %s", e.ParticipantID)
		}
		if e.QuestionIndex != nil {
			fmt.Fprintf(&b, ", question %d", *e.QuestionIndex)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf classifies err into one of Kinds, or nil when it matches none.
func KindOf(err error) error {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	for _, kind := range Kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// KindName is the stable wire name of an error kind.
func KindName(kind error) string {
	switch kind {
	case ErrNotFound:
		return "not_found"
	case ErrNotAuthorized:
		return "not_authorized"
	case ErrInvalidState:
		return "invalid_state"
	case ErrPreconditionFailed:
		return "precondition_failed"
	case ErrCapacityExceeded:
		return "capacity_exceeded"
	case ErrConflict:
		return "conflict"
	case ErrDuplicateAnswer:
		return "duplicate_answer"
	case ErrStaleQuestion:
		return "stale_question"
	case ErrContention:
		return "contention"
	case ErrStorage:
		return "storage_error"
	case ErrInvalidArgument:
		return "invalid_argument"
	default:
		return "internal"
	}
}
