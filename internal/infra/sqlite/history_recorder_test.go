package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"quiz-battle-service/internal/domain"
	_ "github.com/mattn/go-sqlite3"
)

func newTestRecorder(t *testing.T) *HistoryRecorder {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)

	r := NewHistoryRecorder(db)
	r.now = func() time.Time { return time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC) }
	if err := r.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return r
}

func TestAppendStoresRecordAndStats(t *testing.T) {
	ctx := context.Background()
	r := newTestRecorder(t)

	if _, err := r.Stats(ctx, "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no stats yet, got %v", err)
	}

	answer := "4"
	id, err := r.Append(ctx, domain.HistoryRecord{
		UserID:         "u1",
		UserName:       "Ana",
		GameID:         "ROOM01",
		Mode:           domain.KindMultiplayer,
		Type:           domain.ModeExam,
		Score:          990,
		TotalQuestions: 3,
		CorrectAnswers: 2,
		WrongAnswers:   1,
		Questions: []domain.QuestionAnalysis{
			{QuestionID: "q1", UserAnswer: &answer, CorrectAnswer: "4", IsCorrect: true},
		},
	})
	if err != nil || id == "" {
		t.Fatalf("append: id=%q err=%v", id, err)
	}
	if _, err := r.Append(ctx, domain.HistoryRecord{UserID: "u1", Score: 20, TotalQuestions: 1}); err != nil {
		t.Fatalf("second append: %v", err)
	}

	stats, err := r.Stats(ctx, "u1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalXP != 1010 || stats.TotalGames != 2 || stats.Level != 2 || stats.RankTitle != "Rookie" {
		t.Fatalf("unexpected stats %+v", stats)
	}

	records, err := r.RecordsFor(ctx, "u1")
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	var exam domain.HistoryRecord
	for _, rec := range records {
		if rec.GameID == "ROOM01" {
			exam = rec
		}
	}
	if exam.Accuracy != 67 || exam.Type != domain.ModeExam || len(exam.Questions) != 1 || *exam.Questions[0].UserAnswer != "4" {
		t.Fatalf("unexpected record %+v", exam)
	}
}
