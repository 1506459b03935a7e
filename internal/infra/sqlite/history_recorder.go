package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"quiz-battle-service/internal/domain"
	"github.com/google/uuid"
)

//go:embed schema.sql
var embeddedSchema embed.FS

// HistoryRecorder stores game history in a single SQLite file.
type HistoryRecorder struct {
	db  *sql.DB
	now func() time.Time
}

func NewHistoryRecorder(db *sql.DB) *HistoryRecorder {
	return &HistoryRecorder{db: db, now: time.Now}
}

func (r *HistoryRecorder) InitSchema() error {
	b, err := embeddedSchema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = r.db.Exec(strings.TrimSpace(string(b)))
	return err
}

func (r *HistoryRecorder) Append(ctx context.Context, record domain.HistoryRecord) (string, error) {
	now := r.now().UTC()
	if record.PlayedAt.IsZero() {
		record.PlayedAt = now
	}
	questions, err := json.Marshal(record.Questions)
	if err != nil {
		return "", fmt.Errorf("encode analysis: %w", err)
	}
	id := uuid.NewString()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO game_history (
		id, user_id, user_name, game_id, mode, type, score, total_questions, correct_answers,
		wrong_answers, skipped_answers, time_spent, accuracy, subject, board, class, difficulty,
		questions, played_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, record.UserID, record.UserName, record.GameID, string(record.Mode), string(record.Type),
		record.Score, record.TotalQuestions, record.CorrectAnswers, record.WrongAnswers,
		record.SkippedAnswers, record.TimeSpent,
		domain.AccuracyPercent(record.CorrectAnswers, record.TotalQuestions),
		record.Subject, record.Board, record.Class, record.Difficulty, string(questions),
		record.PlayedAt.UTC())
	if err != nil {
		return "", fmt.Errorf("insert history: %w", err)
	}

	current, err := statsFrom(tx.QueryRowContext(ctx,
		`SELECT user_id, total_xp, total_games, level, rank_title, updated_at FROM user_stats WHERE user_id = ?`,
		record.UserID))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}
	current.UserID = record.UserID
	next := current.Apply(record.Score, now)

	_, err = tx.ExecContext(ctx, `INSERT INTO user_stats (user_id, total_xp, total_games, level, rank_title, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			total_xp = excluded.total_xp, total_games = excluded.total_games, level = excluded.level,
			rank_title = excluded.rank_title, updated_at = excluded.updated_at`,
		next.UserID, next.TotalXP, next.TotalGames, next.Level, next.RankTitle, next.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("upsert stats: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// Stats returns the aggregate profile of userID.
func (r *HistoryRecorder) Stats(ctx context.Context, userID string) (domain.UserStats, error) {
	return statsFrom(r.db.QueryRowContext(ctx,
		`SELECT user_id, total_xp, total_games, level, rank_title, updated_at FROM user_stats WHERE user_id = ?`,
		userID))
}

// RecordsFor lists userID's games, newest first.
func (r *HistoryRecorder) RecordsFor(ctx context.Context, userID string) ([]domain.HistoryRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id, user_name, game_id, mode, type, score,
		total_questions, correct_answers, wrong_answers, skipped_answers, time_spent, accuracy,
		subject, board, class, difficulty, questions, played_at
		FROM game_history WHERE user_id = ? ORDER BY played_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.HistoryRecord
	for rows.Next() {
		var (
			rec            domain.HistoryRecord
			mode, quizType string
			questions      sql.NullString
		)
		if err := rows.Scan(&rec.UserID, &rec.UserName, &rec.GameID, &mode, &quizType, &rec.Score,
			&rec.TotalQuestions, &rec.CorrectAnswers, &rec.WrongAnswers, &rec.SkippedAnswers,
			&rec.TimeSpent, &rec.Accuracy, &rec.Subject, &rec.Board, &rec.Class, &rec.Difficulty,
			&questions, &rec.PlayedAt); err != nil {
			return nil, err
		}
		rec.Mode = domain.GameKind(mode)
		rec.Type = domain.QuizMode(quizType)
		if questions.Valid && questions.String != "" && questions.String != "null" {
			if err := json.Unmarshal([]byte(questions.String), &rec.Questions); err != nil {
				return nil, fmt.Errorf("decode analysis: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func statsFrom(row *sql.Row) (domain.UserStats, error) {
	var s domain.UserStats
	err := row.Scan(&s.UserID, &s.TotalXP, &s.TotalGames, &s.Level, &s.RankTitle, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserStats{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("read stats: %w", err)
	}
	return s, nil
}
