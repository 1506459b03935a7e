package cli

import (
	"context"
	"fmt"
	"log"

	"quiz-battle-service/internal/config"
	"quiz-battle-service/internal/infra/postgres"
	pgmigrations "quiz-battle-service/internal/infra/postgres/migrations"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun/migrate"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if err := runMigrationsWithConfig(cmd.Context(), cfg); err != nil {
				return err
			}
			if seed {
				return seedQuestions(cmd.Context(), cfg.Postgres.URL)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "load the sample question bank after migrating")
	return cmd
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	db := postgres.OpenDB(cfg.Postgres.URL)
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return err
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		log.Printf("no new migrations")
		return nil
	}
	log.Printf("migrations applied: %s", group)
	return nil
}

func seedQuestions(ctx context.Context, url string) error {
	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return err
	}
	defer pool.Close()

	questions := sampleQuestions()
	if err := postgres.NewQuestionLoader(pool).Seed(ctx, questions); err != nil {
		return err
	}
	log.Printf("seeded %d questions", len(questions))
	return nil
}
