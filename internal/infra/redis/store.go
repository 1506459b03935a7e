package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"quiz-battle-service/internal/store"
	"github.com/redis/go-redis/v9"
)

// docDepth is how many leading path segments name one stored document (rooms/{code}).
const docDepth = 2

const maxTxRetries = 16

// ErrContention is returned when a write keeps losing its optimistic transaction.
var ErrContention = errors.New("redis store: write contention")

// Store keeps the shared tree in Redis as one JSON document per room.
// Writes run as WATCH/MULTI transactions on the document and publish the changed
// paths on the document channel in the same transaction, so subscribers on any
// instance re-read after every committed change.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, prefix: "quizroom", ttl: ttl}
}

// Connect opens a client handle. Paths registered with RemoveOnDisconnect are removed on Close.
func (s *Store) Connect() *Conn {
	return &Conn{store: s}
}

func (s *Store) split(path string) ([]string, error) {
	segs, err := store.Split(path)
	if err != nil {
		return nil, err
	}
	if len(segs) < docDepth {
		return nil, fmt.Errorf("%w: %q is above document level", store.ErrInvalidPath, path)
	}
	return segs, nil
}

func (s *Store) docKey(segs []string) string {
	return s.prefix + ":doc:" + store.Join(segs[:docDepth]...)
}

func (s *Store) channel(segs []string) string {
	return s.prefix + ":chan:" + store.Join(segs[:docDepth]...)
}

func (s *Store) get(ctx context.Context, path string) (store.Snapshot, error) {
	segs, err := s.split(path)
	if err != nil {
		return store.Snapshot{}, err
	}
	raw, err := s.client.Get(ctx, s.docKey(segs)).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.Snapshot{Path: path}, nil
	}
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := store.Normalize(json.RawMessage(raw))
	if err != nil {
		return store.Snapshot{}, err
	}
	node, _ := store.Lookup(doc, segs[docDepth:])
	value, ok := store.Encode(node)
	return store.Snapshot{Path: path, Exists: ok, Value: value}, nil
}

func (s *Store) set(ctx context.Context, path string, value any) error {
	segs, err := s.split(path)
	if err != nil {
		return err
	}
	normalized, err := store.Normalize(value)
	if err != nil {
		return err
	}
	return s.mutate(ctx, segs, func(doc any) (any, [][]string, error) {
		return store.Put(doc, segs[docDepth:], normalized), [][]string{segs}, nil
	})
}

func (s *Store) update(ctx context.Context, path string, fields map[string]any) error {
	segs, err := s.split(path)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	return s.mutate(ctx, segs, func(doc any) (any, [][]string, error) {
		next, changed, err := store.Merge(doc, segs[docDepth:], fields)
		if err != nil {
			return nil, nil, err
		}
		for i, rel := range changed {
			changed[i] = append(append([]string(nil), segs[:docDepth]...), rel...)
		}
		return next, changed, nil
	})
}

// mutate applies fn to the current document under WATCH and retries lost races.
func (s *Store) mutate(ctx context.Context, segs []string, fn func(doc any) (any, [][]string, error)) error {
	key := s.docKey(segs)
	txf := func(tx *redis.Tx) error {
		var doc any
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if doc, err = store.Normalize(json.RawMessage(raw)); err != nil {
				return err
			}
		}

		next, changed, err := fn(doc)
		if err != nil {
			return err
		}
		notice, err := json.Marshal(joinAll(changed))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if value, ok := store.Encode(next); ok {
				pipe.Set(ctx, key, []byte(value), s.ttl)
			} else {
				pipe.Del(ctx, key)
			}
			pipe.Publish(ctx, s.channel(segs), notice)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("%w on %s", ErrContention, key)
}

func (s *Store) subscribe(ctx context.Context, path string) (<-chan store.Snapshot, func(), error) {
	segs, err := s.split(path)
	if err != nil {
		return nil, nil, err
	}
	ps := s.client.Subscribe(ctx, s.channel(segs))
	// wait for the subscription to be active so no change after the initial read is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", path, err)
	}
	initial, err := s.get(ctx, path)
	if err != nil {
		_ = ps.Close()
		return nil, nil, err
	}

	out := make(chan store.Snapshot, store.SubscriptionBuffer)
	out <- initial
	subCtx, cancel := context.WithCancel(ctx)
	msgs := ps.Channel()
	go func() {
		defer close(out)
		defer ps.Close()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					store.Offer(out, store.Snapshot{Path: path, Err: store.ErrClosed})
					return
				}
				if !touches(msg.Payload, segs) {
					continue
				}
				snap, err := s.get(subCtx, path)
				if err != nil {
					if subCtx.Err() != nil {
						return
					}
					log.Printf("redis store: refresh %s: %v", path, err)
					store.Offer(out, store.Snapshot{Path: path, Err: err})
					return
				}
				store.Offer(out, snap)
			}
		}
	}()
	return out, cancel, nil
}

func joinAll(paths [][]string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = store.Join(p...)
	}
	return out
}

// touches reports whether a change notice concerns the watched path. Unreadable notices count.
func touches(payload string, watched []string) bool {
	var changed []string
	if err := json.Unmarshal([]byte(payload), &changed); err != nil {
		return true
	}
	for _, c := range changed {
		segs, err := store.Split(c)
		if err != nil || store.Related(watched, segs) {
			return true
		}
	}
	return false
}

// Conn is one client's handle on a Store.
type Conn struct {
	store *Store

	mu           sync.Mutex
	closed       bool
	onDisconnect []string
	cancels      []func()
}

var _ store.Conn = (*Conn)(nil)

func (c *Conn) Get(ctx context.Context, path string) (store.Snapshot, error) {
	if err := c.check(); err != nil {
		return store.Snapshot{}, err
	}
	return c.store.get(ctx, path)
}

func (c *Conn) Set(ctx context.Context, path string, value any) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.store.set(ctx, path, value)
}

func (c *Conn) Update(ctx context.Context, path string, fields map[string]any) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.store.update(ctx, path, fields)
}

func (c *Conn) Remove(ctx context.Context, path string) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.store.set(ctx, path, nil)
}

func (c *Conn) Subscribe(ctx context.Context, path string) (<-chan store.Snapshot, func(), error) {
	if err := c.check(); err != nil {
		return nil, nil, err
	}
	ch, cancel, err := c.store.subscribe(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	c.mu.Lock()
	c.cancels = append(c.cancels, cancel)
	c.mu.Unlock()
	return ch, cancel, nil
}

func (c *Conn) RemoveOnDisconnect(_ context.Context, path string) error {
	if err := c.check(); err != nil {
		return err
	}
	if _, err := c.store.split(path); err != nil {
		return err
	}
	c.mu.Lock()
	c.onDisconnect = append(c.onDisconnect, path)
	c.mu.Unlock()
	return nil
}

// Close ends this handle's subscriptions and runs its registered removals.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	paths, cancels := c.onDisconnect, c.cancels
	c.onDisconnect, c.cancels = nil, nil
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	for _, path := range paths {
		if err := c.store.set(ctx, path, nil); err != nil {
			errs = append(errs, fmt.Errorf("remove %s on disconnect: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Conn) check() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return store.ErrClosed
	}
	return nil
}
