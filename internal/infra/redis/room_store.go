package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/domain"
)

const (
	createdIndexKey = "rooms:created"
	removeAttempts  = 5
)

// RoomStore keeps rooms as JSON documents in Redis.
//
//	room:{id}           room JSON, version included
//	room:code:{CODE}    id of the active room holding CODE (SETNX on create)
//	room:lastcode:{CODE} id of the most recent room created with CODE
//	rooms:created       ZSET of room ids scored by creation time, used by sweeps
//
// Updates use WATCH/MULTI on the room key so a concurrent writer aborts the transaction.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRoomStore builds a store whose keys expire after ttl (0 keeps them until swept).
func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	return &RoomStore{client: client, ttl: ttl}
}

func (s *RoomStore) Create(ctx context.Context, room domain.Room) error {
	room.JoinCode = domain.NormalizeCode(room.JoinCode)
	room.Version = 1
	data, err := json.Marshal(room)
	if err != nil {
		return storageErr("encode room", err)
	}

	codeKey := activeCodeKey(room.JoinCode)
	ok, err := s.client.SetNX(ctx, codeKey, room.ID, s.ttl).Result()
	if err != nil {
		return storageErr("reserve join code", err)
	}
	if !ok {
		return domain.ErrCodeTaken
	}

	key := roomKey(room.ID)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			pipe.Set(ctx, lastCodeKey(room.JoinCode), room.ID, s.ttl)
			pipe.ZAdd(ctx, createdIndexKey, redis.Z{Score: float64(room.CreatedAt.Unix()), Member: room.ID})
			return nil
		})
		return err
	}, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrConflict), errors.Is(err, redis.TxFailedErr):
		// another room owns this id; give the code back and leave it alone
		_ = s.client.Del(ctx, codeKey).Err()
		return domain.ErrConflict
	}
	// the transaction may or may not have applied
	if undoErr := s.remove(ctx, room); undoErr != nil {
		return storageErr("create room", errors.Join(err, undoErr))
	}
	return storageErr("create room", err)
}

func (s *RoomStore) Get(ctx context.Context, id string) (domain.Room, error) {
	return getRoom(ctx, s.client, id)
}

func (s *RoomStore) GetByCode(ctx context.Context, code string) (domain.Room, error) {
	code = domain.NormalizeCode(code)
	for _, key := range []string{activeCodeKey(code), lastCodeKey(code)} {
		id, err := s.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return domain.Room{}, storageErr("lookup join code", err)
		}
		room, err := s.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		return room, err
	}
	return domain.Room{}, domain.ErrRoomNotFound
}

func (s *RoomStore) Update(ctx context.Context, room domain.Room) error {
	key := roomKey(room.ID)
	codeKey := activeCodeKey(room.JoinCode)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := getRoom(ctx, tx, room.ID)
		if err != nil {
			return err
		}
		if current.Version != room.Version {
			return domain.ErrVersionConflict
		}
		holder, err := tx.Get(ctx, codeKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return storageErr("read join code", err)
		}

		next := room
		next.Version++
		data, err := json.Marshal(next)
		if err != nil {
			return storageErr("encode room", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			if !next.Active() && holder == room.ID {
				pipe.Del(ctx, codeKey)
			}
			return nil
		})
		return err
	}, key, codeKey)

	if errors.Is(err, redis.TxFailedErr) {
		return domain.ErrVersionConflict
	}
	if err != nil && domain.KindOf(err) == nil && !errors.Is(err, domain.ErrVersionConflict) {
		return storageErr("update room", err)
	}
	return err
}

func (s *RoomStore) Delete(ctx context.Context, id string) error {
	room, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.remove(ctx, room)
}

func (s *RoomStore) SweepExpired(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := s.client.ZRangeByScore(ctx, createdIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, storageErr("scan expired rooms", err)
	}

	swept := 0
	for _, id := range ids {
		room, err := s.Get(ctx, id)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// the key already expired on its own
			if err := s.client.ZRem(ctx, createdIndexKey, id).Err(); err != nil {
				return swept, storageErr("unindex room", err)
			}
			continue
		case err != nil:
			return swept, err
		}
		if err := s.remove(ctx, room); err != nil {
			return swept, err
		}
		swept++
	}
	return swept, nil
}

// remove deletes a room and the code keys it still holds. The code keys are watched so a
// room that takes over the code mid-delete keeps it.
func (s *RoomStore) remove(ctx context.Context, room domain.Room) error {
	key := roomKey(room.ID)
	codeKey := activeCodeKey(room.JoinCode)
	lastKey := lastCodeKey(room.JoinCode)

	var err error
	for attempt := 0; attempt < removeAttempts; attempt++ {
		err = s.client.Watch(ctx, func(tx *redis.Tx) error {
			holder, err := tx.Get(ctx, codeKey).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			last, err := tx.Get(ctx, lastKey).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.ZRem(ctx, createdIndexKey, room.ID)
				if holder == room.ID {
					pipe.Del(ctx, codeKey)
				}
				if last == room.ID {
					pipe.Del(ctx, lastKey)
				}
				return nil
			})
			return err
		}, key, codeKey, lastKey)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return storageErr("delete room", err)
	}
	return nil
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getRoom(ctx context.Context, c stringGetter, id string) (domain.Room, error) {
	data, err := c.Get(ctx, roomKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, storageErr("get room", err)
	}
	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return domain.Room{}, storageErr("decode room", err)
	}
	return room, nil
}

func roomKey(id string) string {
	return "room:" + id
}

func activeCodeKey(code string) string {
	return "room:code:" + code
}

func lastCodeKey(code string) string {
	return "room:lastcode:" + code
}
