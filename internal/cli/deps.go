package cli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	inframongo "live-quiz-service/internal/infra/mongo"
	"live-quiz-service/internal/infra/postgres"
	infraredis "live-quiz-service/internal/infra/redis"
)

// deps holds the connections opened for a command; close releases them.
type deps struct {
	service *app.RoomService
	closers []func()
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func buildDeps(ctx context.Context, cfg config.Config, logger *zap.Logger) (*deps, error) {
	d := &deps{}
	fail := func(err error) (*deps, error) {
		d.close()
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		d.closers = append(d.closers, func() { _ = redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("redis ping: %w", err))
		}
	}

	var mongoDB *mongodriver.Database
	if cfg.Mongo.URI != "" && (cfg.Store.Driver == config.DriverMongo || cfg.Quiz.Source == config.DriverMongo) {
		client, err := inframongo.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			return fail(err)
		}
		d.closers = append(d.closers, func() { _ = client.Disconnect(context.Background()) })
		mongoDB = client.Database(cfg.Mongo.Database)
	}

	var bunDB *bun.DB
	if cfg.Store.Driver == config.DriverPostgres {
		bunDB = openBun(cfg.Postgres.URL)
		d.closers = append(d.closers, func() { _ = bunDB.Close() })
	}

	var loader memory.QuizLoader
	switch cfg.Quiz.Source {
	case config.DriverPostgres:
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fail(fmt.Errorf("postgres connect: %w", err))
		}
		d.closers = append(d.closers, pool.Close)
		loader = postgres.NewQuizLoader(pool)
	case config.DriverMongo:
		loader = inframongo.NewQuizLoader(mongoDB)
	default:
		loader = memory.NewStaticQuizLoader(sampleQuizzes())
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizzes app.QuizRepository
	if redisClient != nil {
		quizzes = infraredis.NewQuizCache(redisClient, loader, quizTTL)
	} else {
		quizzes = memory.NewQuizCache(loader, quizTTL)
	}

	var rooms app.RoomRepository
	switch cfg.Store.Driver {
	case config.DriverRedis:
		rooms = infraredis.NewRoomStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 0))
	case config.DriverPostgres:
		rooms = postgres.NewRoomStore(bunDB)
	case config.DriverMongo:
		store := inframongo.NewRoomStore(mongoDB)
		if err := store.EnsureIndexes(ctx); err != nil {
			return fail(err)
		}
		rooms = store
	default:
		rooms = memory.NewRoomStore()
	}

	d.service = app.NewRoomService(rooms, quizzes,
		app.WithLogger(logger),
		app.WithSettings(roomSettings(cfg)))
	logger.Info("dependencies ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("quiz_source", cfg.Quiz.Source),
		zap.Bool("redis_quiz_cache", redisClient != nil))
	return d, nil
}

func roomSettings(cfg config.Config) app.Settings {
	def := app.DefaultSettings()
	return app.Settings{
		AnswerWindow:    config.TTLDuration(cfg.Room.AnswerWindow, def.AnswerWindow),
		MaxParticipants: cfg.Room.MaxParticipants,
		MaxRetries:      cfg.Room.MaxRetries,
		CodeAttempts:    cfg.Room.CodeAttempts,
		BroadcastTop:    cfg.Room.BroadcastTop,
		Retention:       config.TTLDuration(cfg.Room.Retention, def.Retention),
	}
}

func openBun(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// sampleQuizzes is the demo catalog served when quiz.source is static.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:      "quiz-1",
			Title:   "Warm-up",
			OwnerID: "demo-host",
			Questions: []domain.Question{
				{Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5", "22"}, CorrectOption: 1},
				{Prompt: "Which planet is known as the red planet?", Options: []string{"Venus", "Jupiter", "Mars", "Mercury"}, CorrectOption: 2},
				{Prompt: "How many minutes are in an hour?", Options: []string{"60", "100", "30", "90"}, CorrectOption: 0},
			},
		},
	}
}
