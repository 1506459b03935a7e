package memory

import (
	"context"
	"sync"

	"quiz-battle-service/internal/store"
)

// Store is an in-process shared state tree. Clients talk to it through Conn handles.
type Store struct {
	mu   sync.Mutex
	root any
	subs map[*subscription]struct{}
}

type subscription struct {
	path string
	segs []string
	ch   chan store.Snapshot
}

func NewStore() *Store {
	return &Store{subs: make(map[*subscription]struct{})}
}

// Connect opens a client handle. Paths registered with RemoveOnDisconnect are removed on Close.
func (s *Store) Connect() *Conn {
	return &Conn{store: s}
}

func (s *Store) get(path string) (store.Snapshot, error) {
	segs, err := store.Split(path)
	if err != nil {
		return store.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(path, segs), nil
}

func (s *Store) set(path string, value any) error {
	segs, err := store.Split(path)
	if err != nil {
		return err
	}
	normalized, err := store.Normalize(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root = store.Put(s.root, segs, normalized)
	s.broadcastLocked([][]string{segs})
	return nil
}

func (s *Store) update(path string, fields map[string]any) error {
	segs, err := store.Split(path)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	root, changed, err := store.Merge(s.root, segs, fields)
	if err != nil {
		return err
	}
	s.root = root
	s.broadcastLocked(changed)
	return nil
}

func (s *Store) subscribe(path string) (<-chan store.Snapshot, func(), error) {
	segs, err := store.Split(path)
	if err != nil {
		return nil, nil, err
	}
	sub := &subscription{path: path, segs: segs, ch: make(chan store.Snapshot, store.SubscriptionBuffer)}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	sub.ch <- s.snapshotLocked(path, segs)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subs[sub]; ok {
			delete(s.subs, sub)
			close(sub.ch)
		}
		s.mu.Unlock()
	}
	return sub.ch, cancel, nil
}

func (s *Store) broadcastLocked(changed [][]string) {
	for sub := range s.subs {
		for _, c := range changed {
			if store.Related(sub.segs, c) {
				store.Offer(sub.ch, s.snapshotLocked(sub.path, sub.segs))
				break
			}
		}
	}
}

func (s *Store) snapshotLocked(path string, segs []string) store.Snapshot {
	node, _ := store.Lookup(s.root, segs)
	value, ok := store.Encode(node)
	return store.Snapshot{Path: path, Exists: ok, Value: value}
}

// Conn is one client's view of a Store.
type Conn struct {
	store *Store

	mu           sync.Mutex
	closed       bool
	onDisconnect []string
	cancels      []func()
}

var _ store.Conn = (*Conn)(nil)

func (c *Conn) Get(ctx context.Context, path string) (store.Snapshot, error) {
	if err := c.check(ctx); err != nil {
		return store.Snapshot{}, err
	}
	return c.store.get(path)
}

func (c *Conn) Set(ctx context.Context, path string, value any) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	return c.store.set(path, value)
}

func (c *Conn) Update(ctx context.Context, path string, fields map[string]any) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	return c.store.update(path, fields)
}

func (c *Conn) Remove(ctx context.Context, path string) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	return c.store.set(path, nil)
}

func (c *Conn) Subscribe(ctx context.Context, path string) (<-chan store.Snapshot, func(), error) {
	if err := c.check(ctx); err != nil {
		return nil, nil, err
	}
	ch, cancel, err := c.store.subscribe(path)
	if err != nil {
		return nil, nil, err
	}
	stop := context.AfterFunc(ctx, cancel)
	release := func() {
		stop()
		cancel()
	}
	c.mu.Lock()
	c.cancels = append(c.cancels, release)
	c.mu.Unlock()
	return ch, release, nil
}

func (c *Conn) RemoveOnDisconnect(ctx context.Context, path string) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	if _, err := store.Split(path); err != nil {
		return err
	}
	c.mu.Lock()
	c.onDisconnect = append(c.onDisconnect, path)
	c.mu.Unlock()
	return nil
}

// Close runs the registered removals and ends every subscription opened on this handle.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	paths := c.onDisconnect
	cancels := c.cancels
	c.onDisconnect, c.cancels = nil, nil
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	for _, path := range paths {
		_ = c.store.set(path, nil)
	}
	return nil
}

func (c *Conn) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return store.ErrClosed
	}
	return nil
}
