package app_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/infra/memory"
	"quiz-battle-service/internal/store"
)

var testNow = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

// ticking returns a clock that advances one second per call.
func ticking() func() time.Time {
	var mu sync.Mutex
	now := testNow
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

type write struct {
	Op   string
	Path string
}

// recordingStore logs every write that passes through it and can be told to fail them.
type recordingStore struct {
	store.Store

	mu     sync.Mutex
	writes []write
	fail   error
}

func record(st store.Store) *recordingStore {
	return &recordingStore{Store: st}
}

func (r *recordingStore) Set(ctx context.Context, path string, value any) error {
	if err := r.note("set", path); err != nil {
		return err
	}
	return r.Store.Set(ctx, path, value)
}

func (r *recordingStore) Update(ctx context.Context, path string, fields map[string]any) error {
	if err := r.note("update", path); err != nil {
		return err
	}
	return r.Store.Update(ctx, path, fields)
}

func (r *recordingStore) Remove(ctx context.Context, path string) error {
	if err := r.note("remove", path); err != nil {
		return err
	}
	return r.Store.Remove(ctx, path)
}

func (r *recordingStore) note(op, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.writes = append(r.writes, write{Op: op, Path: path})
	return nil
}

func (r *recordingStore) failWith(err error) {
	r.mu.Lock()
	r.fail = err
	r.mu.Unlock()
}

func (r *recordingStore) all() []write {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]write(nil), r.writes...)
}

func (r *recordingStore) count(path string) int {
	n := 0
	for _, w := range r.all() {
		if w.Path == path {
			n++
		}
	}
	return n
}

func fixedCodes(codes ...string) func() (string, error) {
	var mu sync.Mutex
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(codes) == 0 {
			return "", fmt.Errorf("no more codes")
		}
		code := codes[0]
		codes = codes[1:]
		return code, nil
	}
}

func questionBank() []domain.Question {
	bank := make([]domain.Question, 0, 6)
	for i := 1; i <= 6; i++ {
		difficulty := "Easy"
		if i > 4 {
			difficulty = "Hard"
		}
		bank = append(bank, domain.Question{
			ID:            fmt.Sprintf("q%d", i),
			Prompt:        fmt.Sprintf("What is %d + %d?", i, i),
			Options:       []string{fmt.Sprint(i), fmt.Sprint(i * 2), fmt.Sprint(i * 3), fmt.Sprint(i * 4)},
			CorrectAnswer: fmt.Sprint(i * 2),
			Board:         "CBSE",
			Class:         "10",
			Subject:       "Maths",
			Chapter:       "Arithmetic",
			Difficulty:    difficulty,
		})
	}
	return bank
}

func roomConfig(mode domain.QuizMode, n int) domain.RoomConfig {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("q%d", i+1)
	}
	return domain.RoomConfig{
		Board:           "CBSE",
		Class:           "10",
		Subjects:        []string{"Maths"},
		Difficulty:      "Easy",
		QuestionIDs:     ids,
		TotalQuestions:  n,
		TimePerQuestion: 30,
		QuizMode:        mode,
	}
}

type harness struct {
	mem     *memory.Store
	history *memory.HistoryRecorder
	qs      *memory.QuestionRepository
}

func newHarness() *harness {
	return &harness{
		mem:     memory.NewStore(),
		history: memory.NewHistoryRecorder(),
		qs:      memory.NewQuestionRepository(memory.NewStaticQuestionLoader(questionBank()), time.Minute),
	}
}

func (h *harness) createRoom(t *testing.T, cfg domain.RoomConfig, host, code string) string {
	t.Helper()
	conn := h.mem.Connect()
	defer conn.Close()
	got, err := app.NewRegistryWithCodes(conn, fixedCodes(code)).CreateRoom(context.Background(), cfg, host)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return got
}

// connect opens a coordinator on its own connection, wrapped in a recording store.
func (h *harness) connect(t *testing.T, code, id, name string, opts ...app.Option) (*app.Coordinator, *recordingStore) {
	t.Helper()
	conn := h.mem.Connect()
	rec := record(conn)
	opts = append([]app.Option{app.WithClock(clock)}, opts...)
	c, err := app.Connect(context.Background(), app.Deps{Store: rec, Questions: h.qs, History: h.history}, code, app.Identity{PlayerID: id, Name: name}, opts...)
	if err != nil {
		t.Fatalf("connect %s: %v", id, err)
	}
	t.Cleanup(func() {
		c.Close()
		conn.Close()
	})
	return c, rec
}

func waitFor(t *testing.T, c *app.Coordinator, what string, pred func(app.View) bool) app.View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := c.WaitFor(ctx, pred)
	if err != nil {
		t.Fatalf("waiting for %s: %v (state %s)", what, err, v.State)
	}
	return v
}

func inState(s app.State) func(app.View) bool {
	return func(v app.View) bool { return v.State == s }
}

func hasPlayers(n int) func(app.View) bool {
	return func(v app.View) bool { return len(v.Players) == n }
}

// fakeScheduler collects timers so tests fire them by hand.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	d time.Duration
	f func()

	mu      sync.Mutex
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *fakeTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// fire runs the callback even when stopped, like a timer that raced its Stop.
func (t *fakeTimer) fire() { t.f() }

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) app.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) last(t *testing.T) *fakeTimer {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		t.Fatalf("no timer scheduled")
	}
	return s.timers[len(s.timers)-1]
}

func (s *fakeScheduler) scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func playerWrites(writes []write) []string {
	var paths []string
	for _, w := range writes {
		if strings.Contains(w.Path, "/players/") {
			paths = append(paths, w.Path)
		}
	}
	return paths
}
