package app

import (
	"context"

	"quiz-battle-service/internal/domain"
)

// QuestionProvider serves question content for a room's fixed question list.
type QuestionProvider interface {
	Questions(ctx context.Context, ids []string) ([]domain.Question, error)
}

// QuestionCatalog lists the question bank used to build new rooms.
type QuestionCatalog interface {
	Catalog(ctx context.Context) ([]domain.Question, error)
}

// HistoryRecorder durably appends a finished game and updates the player's aggregate stats.
type HistoryRecorder interface {
	Append(ctx context.Context, record domain.HistoryRecord) (string, error)
}
