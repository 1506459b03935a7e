package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/infra/memory"
)

func TestQuestionRepositoryCachesInRedis(t *testing.T) {
	ctx := context.Background()
	mr, client := newClient(t)
	loader := &countingLoader{QuestionLoader: memory.NewStaticQuestionLoader(sampleQuestions())}
	repo := NewQuestionRepository(client, loader, time.Minute)

	got, err := repo.Questions(ctx, []string{"q2", "q1"})
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(got) != 2 || got[0].ID != "q2" || got[1].ID != "q1" {
		t.Fatalf("expected request order, got %+v", got)
	}
	if !mr.Exists("quizroom:question:q1") {
		t.Fatalf("expected question cached in redis")
	}

	// second call should hit cache, loader not incremented
	if _, err := repo.Questions(ctx, []string{"q1", "q2"}); err != nil {
		t.Fatalf("questions: %v", err)
	}
	if loader.loads() != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.loads())
	}

	if _, err := repo.Questions(ctx, []string{"q1", "nope"}); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
}

func TestQuestionRepositoryCatalog(t *testing.T) {
	ctx := context.Background()
	_, client := newClient(t)
	loader := &countingLoader{QuestionLoader: memory.NewStaticQuestionLoader(sampleQuestions())}
	repo := NewQuestionRepository(client, loader, time.Minute)

	for i := 0; i < 2; i++ {
		questions, err := repo.Catalog(ctx)
		if err != nil {
			t.Fatalf("catalog: %v", err)
		}
		if len(questions) != 2 {
			t.Fatalf("expected 2 questions, got %d", len(questions))
		}
	}
	if loader.catalogs() != 1 {
		t.Fatalf("expected catalog loaded once, got %d", loader.catalogs())
	}
}

type countingLoader struct {
	QuestionLoader

	mu           sync.Mutex
	loadCalls    int
	catalogCalls int
}

func (l *countingLoader) LoadQuestions(ctx context.Context, ids []string) ([]domain.Question, error) {
	l.mu.Lock()
	l.loadCalls++
	l.mu.Unlock()
	return l.QuestionLoader.LoadQuestions(ctx, ids)
}

func (l *countingLoader) Catalog(ctx context.Context) ([]domain.Question, error) {
	l.mu.Lock()
	l.catalogCalls++
	l.mu.Unlock()
	return l.QuestionLoader.Catalog(ctx)
}

func (l *countingLoader) loads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadCalls
}

func (l *countingLoader) catalogs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.catalogCalls
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: "4"},
		{ID: "q2", Prompt: "What is 3 x 3?", Options: []string{"6", "9", "12"}, CorrectAnswer: "9"},
	}
}
