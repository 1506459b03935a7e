package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"quiz-battle-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionLoader loads question JSONB from Postgres.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

// LoadQuestions returns the stored questions among ids. Unknown ids are left out.
func (l *QuestionLoader) LoadQuestions(ctx context.Context, ids []string) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `SELECT data FROM questions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	return scanQuestions(rows)
}

// Catalog returns the whole bank ordered by id.
func (l *QuestionLoader) Catalog(ctx context.Context) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `SELECT data FROM questions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return scanQuestions(rows)
}

// Seed upserts questions in one batch.
func (l *QuestionLoader) Seed(ctx context.Context, questions []domain.Question) error {
	batch := &pgx.Batch{}
	for _, q := range questions {
		data, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("encode question %s: %w", q.ID, err)
		}
		batch.Queue(`INSERT INTO questions (id, board, class, subject, chapter, difficulty, data)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				board = EXCLUDED.board, class = EXCLUDED.class, subject = EXCLUDED.subject,
				chapter = EXCLUDED.chapter, difficulty = EXCLUDED.difficulty, data = EXCLUDED.data`,
			q.ID, q.Board, q.Class, q.Subject, q.Chapter, q.Difficulty, data)
	}
	results := l.pool.SendBatch(ctx, batch)
	defer results.Close()
	for _, q := range questions {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("seed question %s: %w", q.ID, err)
		}
	}
	return nil
}

func scanQuestions(rows pgx.Rows) ([]domain.Question, error) {
	defer rows.Close()
	var out []domain.Question
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		var q domain.Question
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("unmarshal question: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	return out, nil
}
