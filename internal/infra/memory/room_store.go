package memory

import (
	"context"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
)

// RoomStore is an in-memory implementation of app.RoomRepository.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]domain.Room
	// codes indexes active rooms by join code.
	codes map[string]string
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms: make(map[string]domain.Room),
		codes: make(map[string]string),
	}
}

func (s *RoomStore) Create(_ context.Context, room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; ok {
		return domain.ErrConflict
	}
	code := domain.NormalizeCode(room.JoinCode)
	if _, taken := s.codes[code]; taken {
		return domain.ErrCodeTaken
	}
	room.Version = 1
	s.rooms[room.ID] = room.Clone()
	if room.Active() {
		s.codes[code] = room.ID
	}
	return nil
}

func (s *RoomStore) Get(_ context.Context, id string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (s *RoomStore) GetByCode(_ context.Context, code string) (domain.Room, error) {
	code = domain.NormalizeCode(code)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.codes[code]; ok {
		return s.rooms[id].Clone(), nil
	}
	var (
		latest domain.Room
		found  bool
	)
	for _, room := range s.rooms {
		if room.JoinCode != code {
			continue
		}
		if !found || room.CreatedAt.After(latest.CreatedAt) {
			latest, found = room, true
		}
	}
	if !found {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return latest.Clone(), nil
}

func (s *RoomStore) Update(_ context.Context, room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.rooms[room.ID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if current.Version != room.Version {
		return domain.ErrVersionConflict
	}
	room.Version++
	s.rooms[room.ID] = room.Clone()
	if !room.Active() && s.codes[room.JoinCode] == room.ID {
		delete(s.codes, room.JoinCode)
	}
	return nil
}

func (s *RoomStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return domain.ErrRoomNotFound
	}
	s.remove(room)
	return nil
}

func (s *RoomStore) SweepExpired(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, room := range s.rooms {
		if room.CreatedAt.Before(cutoff) {
			s.remove(room)
			n++
		}
	}
	return n, nil
}

// remove must be called with mu held.
func (s *RoomStore) remove(room domain.Room) {
	delete(s.rooms, room.ID)
	if s.codes[room.JoinCode] == room.ID {
		delete(s.codes, room.JoinCode)
	}
}
