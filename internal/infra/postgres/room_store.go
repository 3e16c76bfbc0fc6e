package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"live-quiz-service/internal/domain"
)

// roomRow is the live_rooms table. The aggregate lives in data; the other columns back
// lookups, the partial unique index on active join codes and optimistic versioning.
type roomRow struct {
	bun.BaseModel `bun:"table:live_rooms"`

	ID        string      `bun:"id,pk"`
	JoinCode  string      `bun:"join_code,notnull"`
	Status    string      `bun:"status,notnull"`
	CreatedAt time.Time   `bun:"created_at,notnull"`
	Version   int64       `bun:"version,notnull"`
	Data      domain.Room `bun:"data,type:jsonb,notnull"`
}

func newRoomRow(room domain.Room) roomRow {
	room.JoinCode = domain.NormalizeCode(room.JoinCode)
	return roomRow{
		ID:        room.ID,
		JoinCode:  room.JoinCode,
		Status:    string(room.Status),
		CreatedAt: room.CreatedAt,
		Version:   room.Version,
		Data:      room,
	}
}

func (r roomRow) room() domain.Room {
	room := r.Data
	room.Version = r.Version
	return room
}

// RoomStore persists rooms in Postgres through bun.
type RoomStore struct {
	db *bun.DB
}

func NewRoomStore(db *bun.DB) *RoomStore {
	return &RoomStore{db: db}
}

func (s *RoomStore) Create(ctx context.Context, room domain.Room) error {
	room.Version = 1
	row := newRoomRow(room)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCodeTaken
		}
		return storageErr("insert room", err)
	}
	return nil
}

func (s *RoomStore) Get(ctx context.Context, id string) (domain.Room, error) {
	var row roomRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, storageErr("select room", err)
	}
	return row.room(), nil
}

func (s *RoomStore) GetByCode(ctx context.Context, code string) (domain.Room, error) {
	var row roomRow
	err := s.db.NewSelect().Model(&row).
		Where("join_code = ?", domain.NormalizeCode(code)).
		OrderExpr("status = ? ASC, created_at DESC", string(domain.StatusFinished)).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, storageErr("select room by code", err)
	}
	return row.room(), nil
}

func (s *RoomStore) Update(ctx context.Context, room domain.Room) error {
	expected := room.Version
	room.Version++
	row := newRoomRow(room)
	res, err := s.db.NewUpdate().Model(&row).
		Column("join_code", "status", "version", "data").
		Where("id = ?", row.ID).
		Where("version = ?", expected).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCodeTaken
		}
		return storageErr("update room", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	exists, err := s.db.NewSelect().Model((*roomRow)(nil)).Where("id = ?", row.ID).Exists(ctx)
	if err != nil {
		return storageErr("check room", err)
	}
	if !exists {
		return domain.ErrRoomNotFound
	}
	return domain.ErrVersionConflict
}

func (s *RoomStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().Model((*roomRow)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return storageErr("delete room", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (s *RoomStore) SweepExpired(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.NewDelete().Model((*roomRow)(nil)).Where("created_at < ?", cutoff).Exec(ctx)
	if err != nil {
		return 0, storageErr("sweep rooms", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("sweep rooms", err)
	}
	return int(n), nil
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}

func storageErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("postgres %s: %w: %w", op, domain.ErrStorage, err)
}
