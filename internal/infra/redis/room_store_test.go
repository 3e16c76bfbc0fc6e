package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/domain"
)

func TestRoomStoreCreateAndVersionedUpdate(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRoomStore(client, time.Hour)
	ctx := context.Background()

	room := domain.NewRoom("room-1", "abc234", "quiz-1", "host", time.Now())
	if err := store.Create(ctx, room); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got, _ := mr.Get("room:code:ABC234"); got != "room-1" {
		t.Fatalf("expected code reserved for room-1, got %q", got)
	}

	got, err := store.Get(ctx, "room-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 1 {
		t.Fatalf("expected version 1, got %d", got.Version)
	}

	got.Participants = append(got.Participants, domain.Participant{ID: "p1", DisplayName: "Ann"})
	got.Scores["p1"] = 0
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := store.Update(ctx, got); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected version conflict on stale write, got %v", err)
	}

	fresh, err := store.Get(ctx, "room-1")
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if fresh.Version != 2 || len(fresh.Participants) != 1 {
		t.Fatalf("unexpected room: version %d, %d participants", fresh.Version, len(fresh.Participants))
	}
	if ttl := mr.TTL("room:room-1"); ttl <= 0 {
		t.Fatalf("expected room ttl kept across updates, got %s", ttl)
	}
}

func TestRoomStoreCodeCollisionAndRelease(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRoomStore(client, 0)
	ctx := context.Background()
	now := time.Now()

	if err := store.Create(ctx, domain.NewRoom("room-1", "ABC234", "quiz-1", "host", now)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, domain.NewRoom("room-2", "ABC234", "quiz-1", "host", now)); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected code conflict, got %v", err)
	}
	if mr.Exists("room:room-2") {
		t.Fatalf("rejected room must not be stored")
	}

	room, _ := store.Get(ctx, "room-1")
	room.Status = domain.StatusFinished
	if err := store.Update(ctx, room); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if mr.Exists("room:code:ABC234") {
		t.Fatalf("expected code released after finish")
	}

	byCode, err := store.GetByCode(ctx, "abc234")
	if err != nil || byCode.ID != "room-1" {
		t.Fatalf("expected finished room by code, got %q (%v)", byCode.ID, err)
	}

	if err := store.Create(ctx, domain.NewRoom("room-2", "ABC234", "quiz-1", "host", now)); err != nil {
		t.Fatalf("reuse code: %v", err)
	}
	byCode, err = store.GetByCode(ctx, "ABC234")
	if err != nil || byCode.ID != "room-2" {
		t.Fatalf("expected active room-2 by code, got %q (%v)", byCode.ID, err)
	}
}

func TestRoomStoreDeleteAndSweep(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRoomStore(client, 0)
	ctx := context.Background()
	now := time.Now()

	_ = store.Create(ctx, domain.NewRoom("old", "AAAAAA", "quiz-1", "host", now.Add(-48*time.Hour)))
	_ = store.Create(ctx, domain.NewRoom("gone", "CCCCCC", "quiz-1", "host", now.Add(-30*time.Hour)))
	_ = store.Create(ctx, domain.NewRoom("new", "BBBBBB", "quiz-1", "host", now))
	mr.Del("room:gone")

	n, err := store.SweepExpired(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 swept room, got %d", n)
	}
	if _, err := store.Get(ctx, "old"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected old room removed, got %v", err)
	}
	if mr.Exists("room:code:AAAAAA") {
		t.Fatalf("expected swept room's code released")
	}
	members, _ := mr.ZMembers(createdIndexKey)
	if len(members) != 1 || members[0] != "new" {
		t.Fatalf("unexpected creation index %v", members)
	}

	if err := store.Delete(ctx, "new"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "new"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if _, err := store.GetByCode(ctx, "BBBBBB"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected code lookup to miss, got %v", err)
	}
}

func TestRoomStoreUpdateUnknownRoom(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRoomStore(client, 0)
	room := domain.NewRoom("nope", "ZZZZZZ", "quiz-1", "host", time.Now())
	room.Version = 1
	if err := store.Update(context.Background(), room); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// execHook runs fn once, right before the first pipeline holding a command named on is sent.
type execHook struct {
	on   string
	once sync.Once
	fn   func() error
}

func (h *execHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *execHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook { return next }

func (h *execHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			if cmd.Name() != h.on {
				continue
			}
			var err error
			h.once.Do(func() { err = h.fn() })
			if err != nil {
				return err
			}
			break
		}
		return next(ctx, cmds)
	}
}

func TestRoomStoreDeleteKeepsCodeTakenOverMidDelete(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRoomStore(client, 0)
	ctx := context.Background()

	if err := store.Create(ctx, domain.NewRoom("room-a", "ABC234", "quiz-1", "host", time.Now())); err != nil {
		t.Fatalf("create: %v", err)
	}
	// room-a finishes and room-b claims the code between the holder read and the delete
	client.AddHook(&execHook{on: "del", fn: func() error {
		mr.Set("room:code:ABC234", "room-b")
		mr.Set("room:lastcode:ABC234", "room-b")
		return nil
	}})

	if err := store.Delete(ctx, "room-a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("room:room-a") {
		t.Fatalf("expected room-a removed")
	}
	if got, _ := mr.Get("room:code:ABC234"); got != "room-b" {
		t.Fatalf("expected active code kept for room-b, got %q", got)
	}
	if got, _ := mr.Get("room:lastcode:ABC234"); got != "room-b" {
		t.Fatalf("expected last code kept for room-b, got %q", got)
	}
}

func TestRoomStoreCreateUndoesPartialWrites(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRoomStore(client, time.Hour)
	ctx := context.Background()

	client.AddHook(&execHook{on: "zadd", fn: func() error {
		return errors.New("connection reset")
	}})

	room := domain.NewRoom("room-1", "ABC234", "quiz-1", "host", time.Now())
	if err := store.Create(ctx, room); !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	for _, key := range []string{"room:room-1", "room:code:ABC234", "room:lastcode:ABC234"} {
		if mr.Exists(key) {
			t.Fatalf("expected %s cleaned up after failed create", key)
		}
	}
	if members, _ := mr.ZMembers(createdIndexKey); len(members) != 0 {
		t.Fatalf("expected empty creation index, got %v", members)
	}

	if err := store.Create(ctx, room); err != nil {
		t.Fatalf("retry create: %v", err)
	}
	if got, _ := mr.Get("room:code:ABC234"); got != "room-1" {
		t.Fatalf("expected code reserved on retry, got %q", got)
	}
}
