package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"quiz-battle-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches question content from a backing store (e.g., Postgres).
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, ids []string) ([]domain.Question, error)
	Catalog(ctx context.Context) ([]domain.Question, error)
}

// QuestionRepository caches question content in Redis and falls back to a loader on miss.
// Each question is stored as JSON under quizroom:question:{id}; the whole bank under
// quizroom:questions:catalog.
type QuestionRepository struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

func NewQuestionRepository(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Questions returns content for ids in the same order.
func (r *QuestionRepository) Questions(ctx context.Context, ids []string) ([]domain.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	found, missing := r.cached(ctx, ids)
	if len(missing) == 0 {
		return ordered(ids, found)
	}

	result, err, _ := r.sf.Do(strings.Join(missing, ","), func() (interface{}, error) {
		loaded, err := r.loader.LoadQuestions(ctx, missing)
		if err != nil {
			return nil, err
		}
		ttl := r.ttlWithJitter()
		pipe := r.client.Pipeline()
		for _, q := range loaded {
			data, err := json.Marshal(q)
			if err != nil {
				return nil, fmt.Errorf("encode question %s: %w", q.ID, err)
			}
			pipe.Set(ctx, r.questionKey(q.ID), data, ttl)
		}
		// the cache is best effort; a failed write only costs another load
		_, _ = pipe.Exec(ctx)
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

// Catalog returns the whole bank.
func (r *QuestionRepository) Catalog(ctx context.Context) ([]domain.Question, error) {
	if raw, err := r.client.Get(ctx, r.catalogKey()).Bytes(); err == nil {
		var questions []domain.Question
		if err := json.Unmarshal(raw, &questions); err == nil {
			return questions, nil
		}
	}

	result, err, _ := r.sf.Do("catalog", func() (interface{}, error) {
		questions, err := r.loader.Catalog(ctx)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(questions); err == nil {
			_ = r.client.Set(ctx, r.catalogKey(), data, r.ttlWithJitter()).Err()
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (r *QuestionRepository) cached(ctx context.Context, ids []string) (map[string]domain.Question, []string) {
	found := make(map[string]domain.Question, len(ids))
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.questionKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return found, append([]string(nil), ids...)
	}

	var missing []string
	for i, id := range ids {
		var q domain.Question
		raw, ok := values[i].(string)
		if !ok || json.Unmarshal([]byte(raw), &q) != nil {
			missing = append(missing, id)
			continue
		}
		found[id] = q
	}
	return found, missing
}

func (r *QuestionRepository) questionKey(id string) string {
	return "quizroom:question:" + id
}

func (r *QuestionRepository) catalogKey() string {
	return "quizroom:questions:catalog"
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
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
