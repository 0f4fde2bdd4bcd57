// Package migrations holds the Postgres schema of quiz answers and diary posts.
package migrations

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

var (
	//go:embed 0001_create_quiz_answers.sql
	createQuizAnswersSQL string

	//go:embed 0002_create_diary_posts.sql
	createDiaryPostsSQL string
)

var Migrations = migrate.NewMigrations()

func init() {
	register := func(name, up, down string) {
		Migrations.Add(migrate.Migration{
			Name: name,
			Up: func(ctx context.Context, db *bun.DB) error {
				_, err := db.ExecContext(ctx, up)
				return err
			},
			Down: func(ctx context.Context, db *bun.DB) error {
				_, err := db.ExecContext(ctx, down)
				return err
			},
		})
	}

	register("20251220000001", createQuizAnswersSQL, `DROP TABLE IF EXISTS quiz_answers`)
	register("20251220000002", createDiaryPostsSQL, `DROP TABLE IF EXISTS diary_posts`)
}

// Run applies every pending migration to the database at dsn.
func Run(ctx context.Context, dsn string) error {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, Migrations)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if group.IsZero() {
		slog.InfoContext(ctx, "migrations: schema is up to date")
		return nil
	}

	slog.InfoContext(ctx, "migrations: applied", "group", group.String())
	return nil
}
