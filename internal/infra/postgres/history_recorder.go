package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"quiz-battle-service/internal/domain"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// OpenDB opens a bun handle over the pgdriver connector.
func OpenDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

type historyRow struct {
	bun.BaseModel `bun:"table:game_history"`

	ID             string                    `bun:"id,pk"`
	UserID         string                    `bun:"user_id,notnull"`
	UserName       string                    `bun:"user_name"`
	GameID         string                    `bun:"game_id"`
	Mode           string                    `bun:"mode"`
	Type           string                    `bun:"type"`
	Score          int                       `bun:"score"`
	TotalQuestions int                       `bun:"total_questions"`
	CorrectAnswers int                       `bun:"correct_answers"`
	WrongAnswers   int                       `bun:"wrong_answers"`
	SkippedAnswers int                       `bun:"skipped_answers"`
	TimeSpent      int                       `bun:"time_spent"`
	Accuracy       int                       `bun:"accuracy"`
	Subject        string                    `bun:"subject"`
	Board          string                    `bun:"board"`
	Class          string                    `bun:"class"`
	Difficulty     string                    `bun:"difficulty"`
	Questions      []domain.QuestionAnalysis `bun:"questions,type:jsonb"`
	PlayedAt       time.Time                 `bun:"played_at,notnull"`
}

type statsRow struct {
	bun.BaseModel `bun:"table:user_stats"`

	UserID     string    `bun:"user_id,pk"`
	TotalXP    int       `bun:"total_xp"`
	TotalGames int       `bun:"total_games"`
	Level      int       `bun:"level"`
	RankTitle  string    `bun:"rank_title"`
	UpdatedAt  time.Time `bun:"updated_at"`
}

// HistoryRecorder appends game history and folds it into user stats in one transaction.
type HistoryRecorder struct {
	db  *bun.DB
	now func() time.Time
}

func NewHistoryRecorder(db *bun.DB) *HistoryRecorder {
	return &HistoryRecorder{db: db, now: time.Now}
}

func (r *HistoryRecorder) Append(ctx context.Context, record domain.HistoryRecord) (string, error) {
	now := r.now().UTC()
	if record.PlayedAt.IsZero() {
		record.PlayedAt = now
	}
	row := &historyRow{
		ID:             uuid.NewString(),
		UserID:         record.UserID,
		UserName:       record.UserName,
		GameID:         record.GameID,
		Mode:           string(record.Mode),
		Type:           string(record.Type),
		Score:          record.Score,
		TotalQuestions: record.TotalQuestions,
		CorrectAnswers: record.CorrectAnswers,
		WrongAnswers:   record.WrongAnswers,
		SkippedAnswers: record.SkippedAnswers,
		TimeSpent:      record.TimeSpent,
		Accuracy:       domain.AccuracyPercent(record.CorrectAnswers, record.TotalQuestions),
		Subject:        record.Subject,
		Board:          record.Board,
		Class:          record.Class,
		Difficulty:     record.Difficulty,
		Questions:      record.Questions,
		PlayedAt:       record.PlayedAt,
	}

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return fmt.Errorf("insert history: %w", err)
		}

		current := new(statsRow)
		err := tx.NewSelect().Model(current).Where("user_id = ?", record.UserID).For("UPDATE").Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read stats: %w", err)
		}
		next := domain.UserStats{
			UserID:     record.UserID,
			TotalXP:    current.TotalXP,
			TotalGames: current.TotalGames,
		}.Apply(record.Score, now)

		_, err = tx.NewInsert().
			Model(&statsRow{
				UserID:     next.UserID,
				TotalXP:    next.TotalXP,
				TotalGames: next.TotalGames,
				Level:      next.Level,
				RankTitle:  next.RankTitle,
				UpdatedAt:  next.UpdatedAt,
			}).
			On("CONFLICT (user_id) DO UPDATE").
			Set("total_xp = EXCLUDED.total_xp").
			Set("total_games = EXCLUDED.total_games").
			Set("level = EXCLUDED.level").
			Set("rank_title = EXCLUDED.rank_title").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert stats: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return row.ID, nil
}

// Stats returns the aggregate profile of userID.
func (r *HistoryRecorder) Stats(ctx context.Context, userID string) (domain.UserStats, error) {
	row := new(statsRow)
	err := r.db.NewSelect().Model(row).Where("user_id = ?", userID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserStats{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("read stats: %w", err)
	}
	return domain.UserStats{
		UserID:     row.UserID,
		TotalXP:    row.TotalXP,
		TotalGames: row.TotalGames,
		Level:      row.Level,
		RankTitle:  row.RankTitle,
		UpdatedAt:  row.UpdatedAt,
	}, nil
}

// RecordsFor lists userID's games, newest first.
func (r *HistoryRecorder) RecordsFor(ctx context.Context, userID string, limit int) ([]domain.HistoryRecord, error) {
	var rows []historyRow
	q := r.db.NewSelect().Model(&rows).Where("user_id = ?", userID).Order("played_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	out := make([]domain.HistoryRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.HistoryRecord{
			UserID:         row.UserID,
			UserName:       row.UserName,
			GameID:         row.GameID,
			Mode:           domain.GameKind(row.Mode),
			Type:           domain.QuizMode(row.Type),
			Score:          row.Score,
			TotalQuestions: row.TotalQuestions,
			CorrectAnswers: row.CorrectAnswers,
			WrongAnswers:   row.WrongAnswers,
			SkippedAnswers: row.SkippedAnswers,
			TimeSpent:      row.TimeSpent,
			Accuracy:       row.Accuracy,
			Subject:        row.Subject,
			Board:          row.Board,
			Class:          row.Class,
			Difficulty:     row.Difficulty,
			Questions:      row.Questions,
			PlayedAt:       row.PlayedAt,
		})
	}
	return out, nil
}
