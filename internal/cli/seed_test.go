package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"live-quiz-service/internal/domain"
	infraredis "live-quiz-service/internal/infra/redis"
)

type mapCatalog struct {
	quizzes map[string]domain.Quiz
}

func (c *mapCatalog) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	q, ok := c.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return q, nil
}

func (c *mapCatalog) SaveQuiz(_ context.Context, quiz domain.Quiz) error {
	c.quizzes[quiz.ID] = quiz
	return nil
}

const seedYAML = `quizzes:
  - id: quiz-9
    title: Capitals
    ownerId: host-1
    questions:
      - prompt: Capital of Norway?
        options: [Oslo, Bergen, Tromso]
        correctOption: 0
`

func writeSeedFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quizzes.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
	return path
}

func TestReadSeedFile(t *testing.T) {
	quizzes, err := readSeedFile(writeSeedFile(t, seedYAML))
	if err != nil {
		t.Fatalf("read seed file: %v", err)
	}
	if len(quizzes) != 1 || quizzes[0].OwnerID != "host-1" || quizzes[0].Questions[0].Options[0] != "Oslo" {
		t.Fatalf("unexpected quizzes %+v", quizzes)
	}

	bad := strings.Replace(seedYAML, "correctOption: 0", "correctOption: 5", 1)
	if _, err := readSeedFile(writeSeedFile(t, bad)); err == nil || !strings.Contains(err.Error(), "out of range") {
		t.Fatalf("expected out of range error, got %v", err)
	}
	if _, err := readSeedFile(writeSeedFile(t, "quizzes: []\n")); err == nil {
		t.Fatalf("expected empty seed file to fail")
	}
}

func TestSeedQuizzesDropsSharedCacheEntry(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	stale := domain.Quiz{ID: "quiz-9", OwnerID: "host-1", Title: "Old", Questions: []domain.Question{
		{Prompt: "?", Options: []string{"a", "b"}, CorrectOption: 1},
	}}
	catalog := &mapCatalog{quizzes: map[string]domain.Quiz{"quiz-9": stale}}
	cache := infraredis.NewQuizCache(client, catalog, time.Hour)
	if _, err := cache.GetQuiz(ctx, "quiz-9"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if !mr.Exists("quiz:quiz-9") {
		t.Fatalf("expected cached quiz")
	}

	quizzes, err := readSeedFile(writeSeedFile(t, seedYAML))
	if err != nil {
		t.Fatalf("read seed file: %v", err)
	}
	n, err := seedQuizzes(ctx, catalog, cache, quizzes, zap.NewNop())
	if err != nil || n != 1 {
		t.Fatalf("seed: n=%d err=%v", n, err)
	}
	if mr.Exists("quiz:quiz-9") {
		t.Fatalf("expected cache entry dropped after seeding")
	}
	fresh, err := cache.GetQuiz(ctx, "quiz-9")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if fresh.Title != "Capitals" {
		t.Fatalf("expected seeded quiz after reload, got %q", fresh.Title)
	}
}

func TestSeedCommandRejectsStaticSource(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("logging:\n  level: error\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"seed", "--config", cfgPath, "--file", writeSeedFile(t, seedYAML)})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "read-only") {
		t.Fatalf("expected read-only source error, got %v", err)
	}
}
