package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"quiz-battle-service/internal/store"
	transport "quiz-battle-service/internal/transport/http"
	"github.com/gorilla/websocket"
)

// ErrConnectionLost is delivered to open subscriptions when the socket drops unexpectedly.
var ErrConnectionLost = errors.New("remote store connection lost")

// Conn is a store.Conn served by a gateway over one websocket.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	nextID  atomic.Uint64
	done    chan struct{}

	mu      sync.Mutex
	closing bool
	closed  bool
	pending map[uint64]chan transport.Response
	subs    map[uint64]chan store.Snapshot
}

var _ store.Conn = (*Conn)(nil)

// Dial opens a gateway connection at url (ws:// or wss://).
func Dial(ctx context.Context, url string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Conn{
		ws:      ws,
		done:    make(chan struct{}),
		pending: make(map[uint64]chan transport.Response),
		subs:    make(map[uint64]chan store.Snapshot),
	}
	go c.readLoop()
	return c, nil
}

func (c *Conn) Get(ctx context.Context, path string) (store.Snapshot, error) {
	resp, err := c.call(ctx, transport.Request{Op: transport.OpGet, Path: path})
	if err != nil {
		return store.Snapshot{}, err
	}
	return store.Snapshot{Path: path, Exists: resp.Exists, Value: resp.Value}, nil
}

func (c *Conn) Set(ctx context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	_, err = c.call(ctx, transport.Request{Op: transport.OpSet, Path: path, Value: raw})
	return err
}

func (c *Conn) Update(ctx context.Context, path string, fields map[string]any) error {
	encoded := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode field %s: %w", k, err)
		}
		encoded[k] = raw
	}
	_, err := c.call(ctx, transport.Request{Op: transport.OpUpdate, Path: path, Fields: encoded})
	return err
}

func (c *Conn) Remove(ctx context.Context, path string) error {
	_, err := c.call(ctx, transport.Request{Op: transport.OpRemove, Path: path})
	return err
}

func (c *Conn) RemoveOnDisconnect(ctx context.Context, path string) error {
	_, err := c.call(ctx, transport.Request{Op: transport.OpRemoveOnDisconnect, Path: path})
	return err
}

func (c *Conn) Subscribe(ctx context.Context, path string) (<-chan store.Snapshot, func(), error) {
	id := c.nextID.Add(1)
	ch := make(chan store.Snapshot, store.SubscriptionBuffer)

	// registered before the request so no snapshot can arrive unrouted
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, nil, store.ErrClosed
	}
	c.subs[id] = ch
	c.mu.Unlock()

	if _, err := c.roundTrip(ctx, transport.Request{ID: id, Op: transport.OpSubscribe, Path: path}); err != nil {
		c.dropSub(id)
		return nil, nil, err
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			if !c.dropSub(id) {
				return
			}
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_, _ = c.call(ctx, transport.Request{Op: transport.OpUnsubscribe, Sub: id})
			}()
		})
	}
	stop := context.AfterFunc(ctx, cancel)
	return ch, func() {
		stop()
		cancel()
	}, nil
}

// Close ends the socket. The gateway then runs this connection's disconnect removals.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		<-c.done
		return nil
	}
	c.closing = true
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := c.ws.Close()
	<-c.done
	return err
}

func (c *Conn) call(ctx context.Context, req transport.Request) (transport.Response, error) {
	req.ID = c.nextID.Add(1)
	return c.roundTrip(ctx, req)
}

func (c *Conn) roundTrip(ctx context.Context, req transport.Request) (transport.Response, error) {
	if err := ctx.Err(); err != nil {
		return transport.Response{}, err
	}
	reply := make(chan transport.Response, 1)
	c.mu.Lock()
	if c.closed || c.closing {
		c.mu.Unlock()
		return transport.Response{}, store.ErrClosed
	}
	c.pending[req.ID] = reply
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.ws.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.dropPending(req.ID)
		return transport.Response{}, fmt.Errorf("send %s: %w", req.Op, err)
	}

	select {
	case resp, ok := <-reply:
		if !ok {
			return transport.Response{}, store.ErrClosed
		}
		if resp.Type == transport.TypeError {
			return resp, remoteError(resp)
		}
		return resp, nil
	case <-ctx.Done():
		c.dropPending(req.ID)
		return transport.Response{}, ctx.Err()
	}
}

func (c *Conn) readLoop() {
	defer close(c.done)
	for {
		var resp transport.Response
		if err := c.ws.ReadJSON(&resp); err != nil {
			c.shutdown()
			return
		}
		if resp.ID == 0 && resp.Sub != 0 {
			c.route(resp)
			continue
		}
		c.mu.Lock()
		reply, ok := c.pending[resp.ID]
		delete(c.pending, resp.ID)
		c.mu.Unlock()
		if ok {
			reply <- resp
		}
	}
}

func (c *Conn) route(resp transport.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.subs[resp.Sub]
	if !ok {
		return
	}
	if resp.Type == transport.TypeError {
		store.Offer(ch, store.Snapshot{Path: resp.Path, Err: remoteError(resp)})
		delete(c.subs, resp.Sub)
		close(ch)
		return
	}
	store.Offer(ch, store.Snapshot{Path: resp.Path, Exists: resp.Exists, Value: resp.Value})
}

func (c *Conn) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, reply := range c.pending {
		close(reply)
		delete(c.pending, id)
	}
	for id, ch := range c.subs {
		if !c.closing {
			store.Offer(ch, store.Snapshot{Err: ErrConnectionLost})
		}
		close(ch)
		delete(c.subs, id)
	}
}

func (c *Conn) dropSub(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.subs[id]
	if ok {
		delete(c.subs, id)
		close(ch)
	}
	return ok
}

func (c *Conn) dropPending(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func remoteError(resp transport.Response) error {
	if sentinel := transport.CodeError(resp.Code); sentinel != nil {
		return fmt.Errorf("%w: %s", sentinel, resp.Error)
	}
	return fmt.Errorf("remote store: %s", resp.Error)
}
