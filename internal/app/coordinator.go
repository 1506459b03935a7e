package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/store"
	"github.com/google/uuid"
)

// Reactions is the fixed set of emoji a player may send.
var Reactions = []string{"👍", "❤️", "😂", "😮", "🔥", "🎉"}

var errStopped = errors.New("coordinator stopped")

// Identity is the local player a coordinator acts for.
type Identity struct {
	PlayerID string
	Name     string
}

// Deps are the collaborators of a coordinator. Store is required; Questions and History
// are only needed to hand in a finished result.
type Deps struct {
	Store     store.Store
	Questions QuestionProvider
	History   HistoryRecorder
}

// Option customizes a coordinator.
type Option func(*Coordinator)

// WithClock is test-only for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithPresence removes the local player record when the store connection drops.
func WithPresence() Option {
	return func(c *Coordinator) { c.presence = true }
}

// Coordinator keeps one client's projection of a room in sync and is the only way that
// client mutates the room. It writes its own player record and, when it is the host,
// the room's game state; nothing else.
type Coordinator struct {
	deps     Deps
	code     string
	me       Identity
	now      func() time.Time
	presence bool

	ctx       context.Context
	stop      context.CancelFunc
	cancelSub func()
	done      chan struct{}

	// handedIn guards the result hand-over; it is set before any store or history call.
	handedIn atomic.Bool

	mu               sync.Mutex
	state            State
	room             *domain.Room
	gameState        domain.GameState
	err              error
	terminal         bool
	pendingJoin      bool
	submittedLocally bool
	advancing        bool
	playStartedAt    time.Time
	completion       *Completion
	changed          chan struct{}
	updates          chan View
}

// Connect subscribes to the room and starts projecting it. The coordinator runs until
// ctx ends or Close is called. A missing room is reported through the view, not here.
func Connect(ctx context.Context, deps Deps, code string, me Identity, opts ...Option) (*Coordinator, error) {
	if deps.Store == nil {
		return nil, errors.New("coordinator requires a store")
	}
	c := &Coordinator{
		deps:    deps,
		code:    NormalizeCode(code),
		me:      me,
		now:     time.Now,
		state:   StateSyncing,
		done:    make(chan struct{}),
		changed: make(chan struct{}),
		updates: make(chan View, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.code == "" {
		return nil, fmt.Errorf("%w: empty room code", domain.ErrRoomNotFound)
	}

	c.ctx, c.stop = context.WithCancel(ctx)
	ch, cancel, err := deps.Store.Subscribe(c.ctx, RoomPath(c.code))
	if err != nil {
		c.stop()
		return nil, fmt.Errorf("subscribe room %s: %w", c.code, err)
	}
	c.cancelSub = sync.OnceFunc(cancel)
	go c.run(ch)
	return c, nil
}

// Code is the room code this coordinator follows.
func (c *Coordinator) Code() string {
	return c.code
}

// Identity is the local player.
func (c *Coordinator) Identity() Identity {
	return c.me
}

// View returns the current projection.
func (c *Coordinator) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Updates delivers the latest view after every change. Intermediate views may be skipped.
func (c *Coordinator) Updates() <-chan View {
	return c.updates
}

// WaitFor blocks until pred holds for the current view, ctx ends, or the coordinator stops.
func (c *Coordinator) WaitFor(ctx context.Context, pred func(View) bool) (View, error) {
	for {
		c.mu.Lock()
		v := c.viewLocked()
		changed := c.changed
		c.mu.Unlock()

		if pred(v) {
			return v, nil
		}
		select {
		case <-c.done:
			v = c.View()
			if pred(v) {
				return v, nil
			}
			if v.Err != nil {
				return v, v.Err
			}
			return v, errStopped
		default:
		}
		select {
		case <-changed:
		case <-c.done:
		case <-ctx.Done():
			return v, ctx.Err()
		}
	}
}

// Close ends the subscription and waits for the projection loop to exit.
func (c *Coordinator) Close() {
	c.stop()
	c.cancelSub()
	<-c.done
}

// Join adds the local player to the room unless already present.
func (c *Coordinator) Join(ctx context.Context, code string) error {
	if c.me.PlayerID == "" || c.me.Name == "" {
		return domain.ErrIdentityRequired
	}
	room, err := c.resolved()
	if err != nil {
		return err
	}
	if target := NormalizeCode(code); target != "" && target != c.code {
		return fmt.Errorf("%w: following %s, asked to join %s", domain.ErrRoomNotResolved, c.code, target)
	}
	if room.GameState.Status == domain.PhaseFinished {
		return domain.ErrRoomFinished
	}

	c.mu.Lock()
	if c.pendingJoin {
		c.mu.Unlock()
		return nil
	}
	c.pendingJoin = true
	c.mu.Unlock()

	path := PlayerPath(c.code, c.me.PlayerID)
	snap, err := c.deps.Store.Get(ctx, path)
	if err != nil {
		return c.joinFailed(fmt.Errorf("read player: %w", err))
	}
	if snap.Exists {
		c.mu.Lock()
		c.pendingJoin = false
		c.publishLocked()
		c.mu.Unlock()
		return nil
	}
	if limit := room.Config.MaxPlayers; limit > 0 && len(room.Players) >= limit {
		return c.joinFailed(domain.ErrRoomFull)
	}

	player := domain.Player{
		ID:       c.me.PlayerID,
		Name:     c.me.Name,
		Score:    0,
		IsHost:   room.HostID == c.me.PlayerID,
		Status:   domain.StatusReady,
		Streak:   0,
		JoinedAt: domain.Millis(c.now()),
	}
	c.mu.Lock()
	c.publishLocked()
	c.mu.Unlock()
	if err := c.deps.Store.Set(ctx, path, player); err != nil {
		return c.joinFailed(fmt.Errorf("write player: %w", err))
	}
	if c.presence {
		if err := c.deps.Store.RemoveOnDisconnect(ctx, path); err != nil {
			log.Printf("room %s: register presence for %s: %v", c.code, c.me.PlayerID, err)
		}
	}
	return c.written(nil)
}

// Start moves the room from lobby to playing. Only the host may call it.
func (c *Coordinator) Start(ctx context.Context) error {
	room, err := c.resolved()
	if err != nil {
		return err
	}
	if room.HostID != c.me.PlayerID {
		log.Printf("start rejected: %s is not host of room %s", c.me.PlayerID, c.code)
		return domain.ErrNotHost
	}
	if room.GameState.Status.Rank() >= domain.PhasePlaying.Rank() {
		return nil
	}
	err = c.deps.Store.Update(ctx, GameStatePath(c.code), map[string]any{
		"status":    domain.PhasePlaying,
		"startTime": domain.Millis(c.now()),
	})
	return c.written(err)
}

// SubmitAnswer writes the score the runtime computed. In exam mode it also hands in.
func (c *Coordinator) SubmitAnswer(ctx context.Context, points int) error {
	room, err := c.resolved()
	if err != nil {
		return err
	}
	status := domain.StatusPlaying
	if room.Config.QuizMode == domain.ModeExam {
		status = domain.StatusSubmitted
		c.mu.Lock()
		c.submittedLocally = true
		c.publishLocked()
		c.mu.Unlock()
	}
	err = c.updateSelf(ctx, map[string]any{"score": points, "status": status})
	if err != nil && status == domain.StatusSubmitted {
		c.mu.Lock()
		c.submittedLocally = false
		c.publishLocked()
		c.mu.Unlock()
	}
	return c.written(err)
}

// UpdateStreak writes the local player's current streak.
func (c *Coordinator) UpdateStreak(ctx context.Context, streak int) error {
	if _, err := c.resolved(); err != nil {
		return err
	}
	return c.written(c.updateSelf(ctx, map[string]any{"streak": streak}))
}

// RecordProgress writes the running score and streak in one update.
func (c *Coordinator) RecordProgress(ctx context.Context, score, streak int) error {
	if _, err := c.resolved(); err != nil {
		return err
	}
	return c.written(c.updateSelf(ctx, map[string]any{
		"score":  score,
		"streak": streak,
		"status": domain.StatusPlaying,
	}))
}

// Advance ends the battle. Only the host may call it; ending a finished room is a no-op.
func (c *Coordinator) Advance(ctx context.Context) error {
	room, err := c.resolved()
	if err != nil {
		return err
	}
	if room.HostID != c.me.PlayerID {
		log.Printf("advance rejected: %s is not host of room %s", c.me.PlayerID, c.code)
		return domain.ErrNotHost
	}
	if room.GameState.Status == domain.PhaseFinished {
		return nil
	}
	return c.written(c.writeFinish(ctx))
}

// Finish is Advance under the name used by the result screen.
func (c *Coordinator) Finish(ctx context.Context) error {
	return c.Advance(ctx)
}

// Leave removes the local player record.
func (c *Coordinator) Leave(ctx context.Context) error {
	c.mu.Lock()
	c.pendingJoin = false
	c.mu.Unlock()
	err := c.deps.Store.Remove(ctx, PlayerPath(c.code, c.me.PlayerID))
	if err != nil {
		err = fmt.Errorf("leave room: %w", err)
	}
	return c.written(err)
}

// SendMessage posts a chat line. Blank text is ignored.
func (c *Coordinator) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return c.sendChat(ctx, text, domain.MessageText)
}

// SendReaction posts one of the fixed Reactions.
func (c *Coordinator) SendReaction(ctx context.Context, emoji string) error {
	for _, r := range Reactions {
		if r == emoji {
			return c.sendChat(ctx, emoji, domain.MessageReaction)
		}
	}
	return fmt.Errorf("%w: %q", domain.ErrUnknownReaction, emoji)
}

func (c *Coordinator) sendChat(ctx context.Context, text string, kind domain.MessageKind) error {
	if c.me.PlayerID == "" || c.me.Name == "" {
		return domain.ErrIdentityRequired
	}
	msg := domain.ChatMessage{
		SenderID:   c.me.PlayerID,
		SenderName: c.me.Name,
		Text:       text,
		Type:       kind,
		Timestamp:  domain.Millis(c.now()),
	}
	if err := c.deps.Store.Set(ctx, ChatMessagePath(c.code, uuid.NewString()), msg); err != nil {
		return c.written(fmt.Errorf("send chat: %w", err))
	}
	return nil
}

func (c *Coordinator) run(ch <-chan store.Snapshot) {
	defer close(c.done)
	for snap := range ch {
		if !c.apply(snap) {
			c.cancelSub()
		}
	}
	c.mu.Lock()
	if !c.terminal {
		c.state = StateDisconnected
	}
	c.publishLocked()
	c.mu.Unlock()
}

// apply projects one remote snapshot. It returns false once the session is over.
func (c *Coordinator) apply(snap store.Snapshot) bool {
	c.mu.Lock()
	if c.terminal {
		c.mu.Unlock()
		return false
	}
	if snap.Err != nil {
		log.Printf("room %s subscription failed: %v", c.code, snap.Err)
		c.failLocked(fmt.Errorf("room %s subscription: %w", c.code, snap.Err))
		c.mu.Unlock()
		return false
	}
	if !snap.Exists {
		log.Printf("room %s not found", c.code)
		c.room = nil
		c.failLocked(domain.ErrRoomNotFound)
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	var room domain.Room
	if err := snap.Decode(&room); err != nil {
		log.Printf("room %s: decode snapshot: %v", c.code, err)
		c.mu.Lock()
		c.err = fmt.Errorf("decode room: %w", err)
		c.publishLocked()
		c.mu.Unlock()
		return true
	}
	room = repairRoom(c.code, room)

	c.mu.Lock()
	if c.terminal {
		c.mu.Unlock()
		return false
	}
	if room.GameState.Status.Rank() < c.gameState.Status.Rank() {
		// stale update; keep the newer phase already shown
		room.GameState = c.gameState
	} else {
		c.gameState = room.GameState
	}
	if room.GameState.Status == domain.PhasePlaying && c.playStartedAt.IsZero() {
		c.playStartedAt = c.now()
	}
	if _, ok := room.Players[c.me.PlayerID]; ok {
		c.pendingJoin = false
	}
	c.room = &room
	c.state = stateFor(room.GameState.Status)

	advance := c.shouldAdvanceLocked()
	if advance {
		c.advancing = true
	}
	c.publishLocked()
	c.mu.Unlock()

	if advance {
		c.reconcileAdvance()
	}
	return true
}

// shouldAdvanceLocked is the host's completion check, evaluated on every projection.
func (c *Coordinator) shouldAdvanceLocked() bool {
	return c.room != nil &&
		!c.advancing &&
		c.room.HostID == c.me.PlayerID &&
		c.room.Config.QuizMode == domain.ModeExam &&
		c.room.GameState.Status != domain.PhaseFinished &&
		allSubmitted(c.room.Players)
}

func (c *Coordinator) reconcileAdvance() {
	log.Printf("room %s: all players submitted, finishing", c.code)
	if err := c.writeFinish(c.ctx); err != nil {
		log.Printf("room %s: finish failed: %v", c.code, err)
		c.mu.Lock()
		c.advancing = false
		c.err = err
		c.publishLocked()
		c.mu.Unlock()
	}
}

func (c *Coordinator) writeFinish(ctx context.Context) error {
	err := c.deps.Store.Update(ctx, GameStatePath(c.code), map[string]any{
		"status":  domain.PhaseFinished,
		"endTime": domain.Millis(c.now()),
	})
	if err != nil {
		return fmt.Errorf("finish room: %w", err)
	}
	return nil
}

func (c *Coordinator) updateSelf(ctx context.Context, fields map[string]any) error {
	if c.me.PlayerID == "" {
		return domain.ErrIdentityRequired
	}
	if err := c.deps.Store.Update(ctx, PlayerPath(c.code, c.me.PlayerID), fields); err != nil {
		return fmt.Errorf("update player: %w", err)
	}
	return nil
}

func (c *Coordinator) resolved() (domain.Room, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		if c.terminal && errors.Is(c.err, domain.ErrRoomNotFound) {
			return domain.Room{}, domain.ErrRoomNotFound
		}
		return domain.Room{}, domain.ErrRoomNotResolved
	}
	return *c.room, nil
}

func (c *Coordinator) joinFailed(err error) error {
	c.mu.Lock()
	c.pendingJoin = false
	c.mu.Unlock()
	return c.written(err)
}

// written records the outcome of an intent's store round-trip.
func (c *Coordinator) written(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.terminal {
		c.err = err
	}
	c.publishLocked()
	return err
}

func (c *Coordinator) failLocked(err error) {
	c.terminal = true
	c.state = StateErrored
	c.err = err
	c.publishLocked()
}

func (c *Coordinator) viewLocked() View {
	v := View{
		State:       c.state,
		Room:        c.room,
		IsConnected: c.room != nil && !c.terminal && c.state != StateDisconnected,
		Completion:  c.completion,
		Err:         c.err,
	}
	if c.room == nil {
		return v
	}
	v.Players = leaderboard(c.room.Players)
	v.Messages = recentMessages(c.room.Chat)
	v.IsHost = c.room.HostID == c.me.PlayerID
	me, ok := c.room.Players[c.me.PlayerID]
	v.Joined = ok || c.pendingJoin
	v.Submitted = c.submittedLocally || (ok && me.Status == domain.StatusSubmitted)
	return v
}

func (c *Coordinator) publishLocked() {
	v := c.viewLocked()
	close(c.changed)
	c.changed = make(chan struct{})
	select {
	case c.updates <- v:
	default:
		select {
		case <-c.updates:
		default:
		}
		c.updates <- v
	}
}
