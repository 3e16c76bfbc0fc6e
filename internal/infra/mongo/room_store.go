package mongo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"live-quiz-service/internal/domain"
)

const roomsCollection = "live_rooms"

type scoreDoc struct {
	ParticipantID string `bson:"participantId"`
	Score         int    `bson:"score"`
}

// roomDoc flattens answers and scores into arrays so participant ids never become field names.
type roomDoc struct {
	ID                string               `bson:"_id"`
	JoinCode          string               `bson:"joinCode"`
	QuizID            string               `bson:"quizId"`
	HostID            string               `bson:"hostId"`
	Status            string               `bson:"status"`
	Active            bool                 `bson:"active"`
	Participants      []domain.Participant `bson:"participants"`
	CurrentQuestion   int                  `bson:"currentQuestion"`
	Answers           []domain.Answer      `bson:"answers"`
	Scores            []scoreDoc           `bson:"scores"`
	QuestionStartedAt *time.Time           `bson:"questionStartedAt,omitempty"`
	StartedAt         *time.Time           `bson:"startedAt,omitempty"`
	FinishedAt        *time.Time           `bson:"finishedAt,omitempty"`
	CreatedAt         time.Time            `bson:"createdAt"`
	Version           int64                `bson:"version"`
}

func toDoc(room domain.Room) roomDoc {
	doc := roomDoc{
		ID:                room.ID,
		JoinCode:          domain.NormalizeCode(room.JoinCode),
		QuizID:            room.QuizID,
		HostID:            room.HostID,
		Status:            string(room.Status),
		Active:            room.Active(),
		Participants:      room.Participants,
		CurrentQuestion:   room.CurrentQuestion,
		Answers:           []domain.Answer{},
		Scores:            make([]scoreDoc, 0, len(room.Scores)),
		QuestionStartedAt: room.QuestionStartedAt,
		StartedAt:         room.StartedAt,
		FinishedAt:        room.FinishedAt,
		CreatedAt:         room.CreatedAt,
		Version:           room.Version,
	}
	if doc.Participants == nil {
		doc.Participants = []domain.Participant{}
	}
	indexes := make([]int, 0, len(room.Answers))
	for idx := range room.Answers {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	for _, idx := range indexes {
		doc.Answers = append(doc.Answers, room.Answers[idx]...)
	}
	for id, score := range room.Scores {
		doc.Scores = append(doc.Scores, scoreDoc{ParticipantID: id, Score: score})
	}
	return doc
}

func (d roomDoc) room() domain.Room {
	room := domain.Room{
		ID:                d.ID,
		JoinCode:          d.JoinCode,
		QuizID:            d.QuizID,
		HostID:            d.HostID,
		Status:            domain.RoomStatus(d.Status),
		Participants:      d.Participants,
		CurrentQuestion:   d.CurrentQuestion,
		Answers:           make(map[int][]domain.Answer),
		Scores:            make(map[string]int, len(d.Scores)),
		QuestionStartedAt: d.QuestionStartedAt,
		StartedAt:         d.StartedAt,
		FinishedAt:        d.FinishedAt,
		CreatedAt:         d.CreatedAt,
		Version:           d.Version,
	}
	if room.Participants == nil {
		room.Participants = []domain.Participant{}
	}
	for _, a := range d.Answers {
		room.Answers[a.QuestionIndex] = append(room.Answers[a.QuestionIndex], a)
	}
	for _, s := range d.Scores {
		room.Scores[s.ParticipantID] = s.Score
	}
	return room
}

// RoomStore persists rooms in a MongoDB collection, versioned through a filter on version.
type RoomStore struct {
	collection *mongo.Collection
}

func NewRoomStore(db *mongo.Database) *RoomStore {
	return &RoomStore{collection: db.Collection(roomsCollection)}
}

// EnsureIndexes creates the unique active-code index and the lookup/sweep indexes.
func (s *RoomStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "joinCode", Value: 1}},
			Options: options.Index().
				SetName("active_join_code").
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "active", Value: true}}),
		},
		{
			Keys:    bson.D{{Key: "joinCode", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("join_code_created_at"),
		},
		{
			Keys:    bson.D{{Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("created_at"),
		},
	})
	if err != nil {
		return storageErr("create room indexes", err)
	}
	return nil
}

func (s *RoomStore) Create(ctx context.Context, room domain.Room) error {
	room.Version = 1
	if _, err := s.collection.InsertOne(ctx, toDoc(room)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrCodeTaken
		}
		return storageErr("insert room", err)
	}
	return nil
}

func (s *RoomStore) Get(ctx context.Context, id string) (domain.Room, error) {
	return s.findOne(ctx, bson.D{{Key: "_id", Value: id}}, nil)
}

func (s *RoomStore) GetByCode(ctx context.Context, code string) (domain.Room, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "active", Value: -1}, {Key: "createdAt", Value: -1}})
	return s.findOne(ctx, bson.D{{Key: "joinCode", Value: domain.NormalizeCode(code)}}, opts)
}

func (s *RoomStore) Update(ctx context.Context, room domain.Room) error {
	expected := room.Version
	room.Version++
	res, err := s.collection.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: room.ID}, {Key: "version", Value: expected}},
		toDoc(room))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrCodeTaken
		}
		return storageErr("replace room", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	n, err := s.collection.CountDocuments(ctx, bson.D{{Key: "_id", Value: room.ID}})
	if err != nil {
		return storageErr("count room", err)
	}
	if n == 0 {
		return domain.ErrRoomNotFound
	}
	return domain.ErrVersionConflict
}

func (s *RoomStore) Delete(ctx context.Context, id string) error {
	res, err := s.collection.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return storageErr("delete room", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (s *RoomStore) SweepExpired(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.collection.DeleteMany(ctx, bson.D{{Key: "createdAt", Value: bson.D{{Key: "$lt", Value: cutoff}}}})
	if err != nil {
		return 0, storageErr("sweep rooms", err)
	}
	return int(res.DeletedCount), nil
}

func (s *RoomStore) findOne(ctx context.Context, filter bson.D, opts *options.FindOneOptions) (domain.Room, error) {
	var doc roomDoc
	var err error
	if opts != nil {
		err = s.collection.FindOne(ctx, filter, opts).Decode(&doc)
	} else {
		err = s.collection.FindOne(ctx, filter).Decode(&doc)
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, storageErr("find room", err)
	}
	return doc.room(), nil
}

func storageErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("mongo %s: %w: %w", op, domain.ErrStorage, err)
}
