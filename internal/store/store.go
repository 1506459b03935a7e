// Package store defines the shared state store that coordinators synchronize through.
//
// The store is a JSON tree addressed by slash-separated paths. Writes either replace a
// subtree (Set), overwrite named children atomically (Update), or delete (Remove).
// Subscribers receive the full current value at their path whenever anything at, above
// or below that path changes. There are no cross-path transactions and no compare-and-swap.
package store

import (
	"context"
	"encoding/json"
	"errors"

	"quiz-battle-service/internal/domain"
)

// ErrInvalidPath is returned for paths with empty or reserved segments.
var ErrInvalidPath = errors.New("invalid store path")

// ErrClosed is returned by a connection after Close.
var ErrClosed = errors.New("store connection closed")

// Snapshot is the value observed at a path.
type Snapshot struct {
	Path   string
	Exists bool
	Value  json.RawMessage
	// Err is set on the final snapshot of a failed subscription.
	Err error
}

// Decode unmarshals the snapshot value into v.
func (s Snapshot) Decode(v any) error {
	if !s.Exists {
		return domain.ErrNotFound
	}
	return json.Unmarshal(s.Value, v)
}

// Store is the read/write/subscribe contract used by the coordinator and registry.
type Store interface {
	Get(ctx context.Context, path string) (Snapshot, error)
	Set(ctx context.Context, path string, value any) error
	Update(ctx context.Context, path string, fields map[string]any) error
	Remove(ctx context.Context, path string) error
	// Subscribe delivers the current value immediately, then again after every
	// relevant change. Slow consumers only ever miss intermediate values, never the latest.
	// The caller must invoke the returned cancel function to avoid leaks.
	Subscribe(ctx context.Context, path string) (<-chan Snapshot, func(), error)
	// RemoveOnDisconnect registers a best-effort removal run when the connection closes.
	RemoveOnDisconnect(ctx context.Context, path string) error
}

// Conn is a Store bound to one client connection.
type Conn interface {
	Store
	Close() error
}

// SubscriptionBuffer is the channel capacity used by every backend.
const SubscriptionBuffer = 8

// Offer delivers snap without blocking, dropping the oldest queued value when full.
// Only one goroutine may send on ch at a time.
func Offer(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
