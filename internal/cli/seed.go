package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	inframongo "live-quiz-service/internal/infra/mongo"
	"live-quiz-service/internal/infra/postgres"
	infraredis "live-quiz-service/internal/infra/redis"
	"live-quiz-service/internal/logging"
)

type quizCatalog interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	SaveQuiz(ctx context.Context, quiz domain.Quiz) error
}

type quizInvalidator interface {
	Invalidate(ctx context.Context, quizID string) error
}

type seedFile struct {
	Quizzes []domain.Quiz `yaml:"quizzes"`
}

// NewSeedCmd upserts quizzes from a YAML file into the configured quiz source and drops
// their shared Redis cache entries so running servers reload them.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert quizzes from a YAML file into the quiz catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Env, cfg.Logging.Level)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			quizzes, err := readSeedFile(file)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			catalog, closeCatalog, err := openQuizCatalog(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeCatalog()

			var cache quizInvalidator
			if cfg.Redis.Addr != "" {
				client := redis.NewClient(&redis.Options{
					Addr:     cfg.Redis.Addr,
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
				})
				defer func() { _ = client.Close() }()
				cache = infraredis.NewQuizCache(client, catalog, config.TTLDuration(cfg.Quiz.TTL, 0))
			}

			n, err := seedQuizzes(ctx, catalog, cache, quizzes, logger)
			if err != nil {
				return err
			}
			cmd.Printf("seeded %d quizzes\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML file with a top-level quizzes list")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readSeedFile(path string) ([]domain.Quiz, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if len(f.Quizzes) == 0 {
		return nil, fmt.Errorf("seed file %s has no quizzes", path)
	}
	for _, q := range f.Quizzes {
		if err := validateQuiz(q); err != nil {
			return nil, err
		}
	}
	return f.Quizzes, nil
}

func validateQuiz(q domain.Quiz) error {
	if q.ID == "" || q.OwnerID == "" {
		return fmt.Errorf("quiz %q: id and ownerId are required", q.ID)
	}
	if len(q.Questions) == 0 {
		return fmt.Errorf("quiz %q: no questions", q.ID)
	}
	for i, question := range q.Questions {
		if len(question.Options) < 2 {
			return fmt.Errorf("quiz %q question %d: needs at least two options", q.ID, i)
		}
		if question.CorrectOption < 0 || question.CorrectOption >= len(question.Options) {
			return fmt.Errorf("quiz %q question %d: correctOption %d out of range", q.ID, i, question.CorrectOption)
		}
	}
	return nil
}

func openQuizCatalog(ctx context.Context, cfg config.Config) (quizCatalog, func(), error) {
	switch cfg.Quiz.Source {
	case config.DriverPostgres:
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		return postgres.NewQuizLoader(pool), pool.Close, nil
	case config.DriverMongo:
		client, err := inframongo.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() { _ = client.Disconnect(context.Background()) }
		return inframongo.NewQuizLoader(client.Database(cfg.Mongo.Database)), closeFn, nil
	default:
		return nil, nil, fmt.Errorf("quiz.source %q is read-only; seed needs postgres or mongo", cfg.Quiz.Source)
	}
}

// seedQuizzes saves every quiz and then drops its cached copy, if a cache is given.
func seedQuizzes(ctx context.Context, catalog quizCatalog, cache quizInvalidator, quizzes []domain.Quiz, logger *zap.Logger) (int, error) {
	for i, q := range quizzes {
		if err := catalog.SaveQuiz(ctx, q); err != nil {
			return i, fmt.Errorf("save quiz %s: %w", q.ID, err)
		}
		if cache != nil {
			if err := cache.Invalidate(ctx, q.ID); err != nil {
				return i, err
			}
		}
		logger.Info("quiz seeded", zap.String("quiz_id", q.ID), zap.Int("questions", len(q.Questions)))
	}
	return len(quizzes), nil
}
