package memory

import (
	"context"
	"sync"
	"time"

	"quiz-battle-service/internal/domain"
	"github.com/google/uuid"
)

// HistoryRecorder keeps finished-game records and profile stats in memory.
type HistoryRecorder struct {
	mu      sync.RWMutex
	now     func() time.Time
	records map[string]domain.HistoryRecord
	byUser  map[string][]string
	stats   map[string]domain.UserStats
}

func NewHistoryRecorder() *HistoryRecorder {
	return &HistoryRecorder{
		now:     time.Now,
		records: make(map[string]domain.HistoryRecord),
		byUser:  make(map[string][]string),
		stats:   make(map[string]domain.UserStats),
	}
}

func (r *HistoryRecorder) Append(ctx context.Context, record domain.HistoryRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	now := r.now()
	if record.PlayedAt.IsZero() {
		record.PlayedAt = now
	}
	record.Accuracy = domain.AccuracyPercent(record.CorrectAnswers, record.TotalQuestions)
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[id] = record
	r.byUser[record.UserID] = append(r.byUser[record.UserID], id)
	stats := r.stats[record.UserID]
	stats.UserID = record.UserID
	r.stats[record.UserID] = stats.Apply(record.Score, now)
	return id, nil
}

// Record returns a stored record by id.
func (r *HistoryRecorder) Record(id string) (domain.HistoryRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[id]
	return record, ok
}

// RecordsFor lists a user's records in append order.
func (r *HistoryRecorder) RecordsFor(userID string) []domain.HistoryRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byUser[userID]
	out := make([]domain.HistoryRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.records[id])
	}
	return out
}

// Stats returns the user's aggregate profile.
func (r *HistoryRecorder) Stats(userID string) (domain.UserStats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats, ok := r.stats[userID]
	return stats, ok
}
