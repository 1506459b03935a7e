package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"quiz-battle-service/internal/store"
	"github.com/gorilla/websocket"
)

// Gateway exposes a shared store to remote coordinators over websocket.
// Each socket gets its own store connection, so its remove-on-disconnect
// registrations run when the socket goes away.
type Gateway struct {
	connect  func() store.Conn
	upgrader websocket.Upgrader
}

func NewGateway(connect func() store.Conn) *Gateway {
	return &Gateway{
		connect: connect,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the request and serves store frames until the socket closes.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	conn := g.connect()
	defer func() {
		if err := conn.Close(); err != nil {
			log.Printf("gateway: close store connection: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s := &session{
		conn:         conn,
		send:         make(chan Response, 64),
		closeSignals: make(chan struct{}),
		subs:         make(map[uint64]func()),
	}
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range s.send {
			if err := ws.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				// keep draining so producers never block on a dead socket
				for range s.send {
				}
				return
			}
		}
	}()

	for {
		var req Request
		if err := ws.ReadJSON(&req); err != nil {
			break
		}
		s.handle(ctx, req)
	}

	for _, stop := range s.subs {
		stop()
	}
	close(s.closeSignals)
	s.wg.Wait()
	close(s.send)
	<-writerDone
}

type session struct {
	conn         store.Conn
	send         chan Response
	closeSignals chan struct{}
	wg           sync.WaitGroup
	// subs is only touched by the reader loop.
	subs map[uint64]func()
}

func (s *session) push(msg Response) bool {
	select {
	case s.send <- msg:
		return true
	case <-s.closeSignals:
		return false
	}
}

func (s *session) fail(id uint64, code string, err error) {
	s.push(Response{ID: id, Type: TypeError, Code: code, Error: err.Error()})
}

func (s *session) handle(ctx context.Context, req Request) {
	switch req.Op {
	case OpGet:
		snap, err := s.conn.Get(ctx, req.Path)
		if err != nil {
			s.fail(req.ID, ErrorCode(err), err)
			return
		}
		s.push(Response{ID: req.ID, Type: TypeValue, Path: snap.Path, Exists: snap.Exists, Value: snap.Value})
	case OpSet:
		s.ack(req.ID, s.conn.Set(ctx, req.Path, rawValue(req.Value)))
	case OpUpdate:
		fields := make(map[string]any, len(req.Fields))
		for k, v := range req.Fields {
			fields[k] = rawValue(v)
		}
		s.ack(req.ID, s.conn.Update(ctx, req.Path, fields))
	case OpRemove:
		s.ack(req.ID, s.conn.Remove(ctx, req.Path))
	case OpRemoveOnDisconnect:
		s.ack(req.ID, s.conn.RemoveOnDisconnect(ctx, req.Path))
	case OpSubscribe:
		s.subscribe(ctx, req)
	case OpUnsubscribe:
		if stop, ok := s.subs[req.Sub]; ok {
			stop()
			delete(s.subs, req.Sub)
		}
		s.push(Response{ID: req.ID, Type: TypeAck})
	default:
		s.fail(req.ID, CodeBadRequest, fmt.Errorf("unsupported op %q", req.Op))
	}
}

func (s *session) ack(id uint64, err error) {
	if err != nil {
		s.fail(id, ErrorCode(err), err)
		return
	}
	s.push(Response{ID: id, Type: TypeAck})
}

func (s *session) subscribe(ctx context.Context, req Request) {
	if _, dup := s.subs[req.ID]; dup {
		s.fail(req.ID, CodeBadRequest, fmt.Errorf("subscription %d already open", req.ID))
		return
	}
	updates, stop, err := s.conn.Subscribe(ctx, req.Path)
	if err != nil {
		s.fail(req.ID, ErrorCode(err), err)
		return
	}
	s.subs[req.ID] = stop
	// the ack goes out before any snapshot of this subscription
	s.push(Response{ID: req.ID, Type: TypeAck, Sub: req.ID})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for snap := range updates {
			msg := Response{Type: TypeSnapshot, Sub: req.ID, Path: snap.Path, Exists: snap.Exists, Value: snap.Value}
			if snap.Err != nil {
				msg = Response{Type: TypeError, Sub: req.ID, Path: snap.Path, Code: ErrorCode(snap.Err), Error: snap.Err.Error()}
			}
			if !s.push(msg) {
				return
			}
		}
	}()
}

// rawValue turns an absent or null JSON value into a deletion.
func rawValue(v json.RawMessage) any {
	if len(v) == 0 || string(v) == "null" {
		return nil
	}
	return v
}
