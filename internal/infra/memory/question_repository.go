package memory

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"quiz-battle-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches question content from a backing store (e.g., document DB).
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, ids []string) ([]domain.Question, error)
	Catalog(ctx context.Context) ([]domain.Question, error)
}

// QuestionRepository caches questions with TTL to avoid repeated DB hits.
type QuestionRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu      sync.RWMutex
	cache   map[string]cachedQuestion
	catalog cachedCatalog
}

type cachedQuestion struct {
	question  domain.Question
	expiresAt time.Time
}

type cachedCatalog struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionRepository(loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuestion),
	}
}

// Questions returns content for ids in the same order.
func (r *QuestionRepository) Questions(ctx context.Context, ids []string) ([]domain.Question, error) {
	found, missing := r.cached(ids)
	if len(missing) == 0 {
		return ordered(ids, found)
	}

	key := strings.Join(missing, ",")
	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		loaded, err := r.loader.LoadQuestions(ctx, missing)
		if err != nil {
			return nil, err
		}
		expiresAt := r.clock().Add(r.ttlWithJitter())
		r.mu.Lock()
		for _, q := range loaded {
			r.cache[q.ID] = cachedQuestion{question: q, expiresAt: expiresAt}
		}
		r.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	for _, q := range result.([]domain.Question) {
		found[q.ID] = q
	}
	return ordered(ids, found)
}

// Catalog returns the whole bank, cached as one entry.
func (r *QuestionRepository) Catalog(ctx context.Context) ([]domain.Question, error) {
	now := r.clock()
	r.mu.RLock()
	if r.catalog.questions != nil && r.catalog.expiresAt.After(now) {
		questions := r.catalog.questions
		r.mu.RUnlock()
		return questions, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do("catalog", func() (interface{}, error) {
		questions, err := r.loader.Catalog(ctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.catalog = cachedCatalog{questions: questions, expiresAt: r.clock().Add(r.ttlWithJitter())}
		r.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (r *QuestionRepository) cached(ids []string) (map[string]domain.Question, []string) {
	now := r.clock()
	found := make(map[string]domain.Question, len(ids))
	var missing []string

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range ids {
		if entry, ok := r.cache[id]; ok && entry.expiresAt.After(now) {
			found[id] = entry.question
			continue
		}
		missing = append(missing, id)
	}
	return found, missing
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

func ordered(ids []string, found map[string]domain.Question) ([]domain.Question, error) {
	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := found[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, id)
		}
		out = append(out, q)
	}
	return out, nil
}

// StaticQuestionLoader is a simple loader backed by an in-memory slice (useful for tests/demos).
type StaticQuestionLoader struct {
	questions []domain.Question
	byID      map[string]domain.Question
}

func NewStaticQuestionLoader(questions []domain.Question) *StaticQuestionLoader {
	byID := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	return &StaticQuestionLoader{questions: questions, byID: byID}
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context, ids []string) ([]domain.Question, error) {
	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := l.byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, id)
		}
		out = append(out, q)
	}
	return out, nil
}

func (l *StaticQuestionLoader) Catalog(_ context.Context) ([]domain.Question, error) {
	out := make([]domain.Question, len(l.questions))
	copy(out, l.questions)
	return out, nil
}
