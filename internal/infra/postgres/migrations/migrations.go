package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var (
	//go:embed 0001_create_quizzes.sql
	createQuizzesSQL string
	//go:embed 0002_create_live_rooms.sql
	createLiveRoomsSQL string
)

// Migrations holds the schema for the quiz catalog and live rooms.
var Migrations = migrate.NewMigrations()

func init() {
	Migrations.Add(migrate.Migration{
		Name:    "20241122000001",
		Comment: "create_quizzes",
		Up:      execSQL(createQuizzesSQL),
		Down:    execSQL(`DROP TABLE IF EXISTS quizzes`),
	})
	Migrations.Add(migrate.Migration{
		Name:    "20241122000002",
		Comment: "create_live_rooms",
		Up:      execSQL(createLiveRoomsSQL),
		Down:    execSQL(`DROP TABLE IF EXISTS live_rooms`),
	})
}

func execSQL(query string) migrate.MigrationFunc {
	return func(ctx context.Context, db *bun.DB) error {
		_, err := db.ExecContext(ctx, query)
		return err
	}
}
