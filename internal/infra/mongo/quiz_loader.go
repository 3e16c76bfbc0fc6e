package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"live-quiz-service/internal/domain"
)

const quizzesCollection = "quizzes"

// QuizLoader reads quiz documents from the quizzes collection.
type QuizLoader struct {
	collection *mongo.Collection
}

func NewQuizLoader(db *mongo.Database) *QuizLoader {
	return &QuizLoader{collection: db.Collection(quizzesCollection)}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := l.collection.FindOne(ctx, bson.D{{Key: "_id", Value: quizID}}).Decode(&quiz)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, storageErr("find quiz", err)
	}
	return quiz, nil
}

// SaveQuiz upserts a quiz document.
func (l *QuizLoader) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	_, err := l.collection.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: quiz.ID}},
		quiz,
		options.Replace().SetUpsert(true))
	if err != nil {
		return storageErr("save quiz", err)
	}
	return nil
}

// Connect opens a client and verifies the deployment is reachable.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, storageErr("connect", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, storageErr("ping", err)
	}
	return client, nil
}
