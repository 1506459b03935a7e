package memory

import (
	"context"
	"testing"

	"quiz-battle-service/internal/domain"
)

func TestHistoryRecorderAppendsAndUpdatesStats(t *testing.T) {
	recorder := NewHistoryRecorder()
	ctx := context.Background()

	for _, score := range []int{600, 500} {
		id, err := recorder.Append(ctx, domain.HistoryRecord{
			UserID:         "u1",
			GameID:         "AB12CD",
			Score:          score,
			TotalQuestions: 4,
			CorrectAnswers: 3,
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		record, ok := recorder.Record(id)
		if !ok || record.Accuracy != 75 {
			t.Fatalf("unexpected record %+v", record)
		}
	}

	stats, ok := recorder.Stats("u1")
	if !ok {
		t.Fatalf("expected stats")
	}
	if stats.TotalXP != 1100 || stats.TotalGames != 2 || stats.Level != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if got := recorder.RecordsFor("u1"); len(got) != 2 || got[0].Score != 600 {
		t.Fatalf("unexpected records %+v", got)
	}
}
