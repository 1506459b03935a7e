package app

import (
	"sync"
	"time"

	"quiz-battle-service/internal/domain"
)

// Timer is a pending callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d. The default uses time.AfterFunc.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type wallScheduler struct{}

func (wallScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Scoring holds the point constants of both modes.
type Scoring struct {
	Base        int // instant: points for a correct answer
	StreakBonus int // instant: extra points per prior consecutive correct answer
	ExamWeight  int // exam: points per correct answer
}

// DefaultScoring matches the rules shown to players.
var DefaultScoring = Scoring{Base: 10, StreakBonus: 2, ExamWeight: 4}

// RuntimeConfig drives one local quiz traversal.
type RuntimeConfig struct {
	Mode         domain.QuizMode
	QuestionTime time.Duration // instant, per question
	ExamTime     time.Duration // exam, whole set
	// AutoAdvance moves to the next instant question this long after it locks. Zero waits for Next.
	AutoAdvance time.Duration
	Scoring     Scoring
	Scheduler   Scheduler
}

// RuntimeConfigFor derives the runtime settings of a room.
func RuntimeConfigFor(cfg domain.RoomConfig) RuntimeConfig {
	return RuntimeConfig{
		Mode:         cfg.QuizMode,
		QuestionTime: cfg.QuestionTime(),
		ExamTime:     cfg.ExamTime(),
		Scoring:      DefaultScoring,
	}
}

// Progress is emitted each time an instant question locks.
type Progress struct {
	QuestionID string
	Index      int
	Answer     string // empty on timeout
	Correct    bool
	TimedOut   bool
	Score      int // cumulative
	Streak     int
}

// Result is the finished answer set of one runtime.
type Result struct {
	Score     int
	Correct   int
	Streak    int
	Responses map[string]string
	TimedOut  bool
}

// RuntimeHooks receive runtime events. Hooks run outside the runtime's lock and may call back into it.
type RuntimeHooks struct {
	OnProgress func(Progress)
	OnFinish   func(Result)
}

// QuestionStatus is the exam palette state of one question.
type QuestionStatus string

const (
	QuestionNotVisited     QuestionStatus = "not-visited"
	QuestionNotAnswered    QuestionStatus = "not-answered"
	QuestionAnswered       QuestionStatus = "answered"
	QuestionMarkedReview   QuestionStatus = "marked-review"
	QuestionAnsweredMarked QuestionStatus = "answered-marked"
)

// RuntimeState is a point-in-time copy of a runtime.
type RuntimeState struct {
	Index    int
	Question domain.Question
	Score    int
	Streak   int
	Locked   bool
	Started  bool
	Finished bool
	Answer   string
}

// Runtime is one player's local pass over a room's questions. It produces its Result once.
type Runtime struct {
	cfg       RuntimeConfig
	questions []domain.Question
	hooks     RuntimeHooks

	mu        sync.Mutex
	started   bool
	finished  bool
	index     int
	locked    bool
	gen       int
	timer     Timer
	score     int
	streak    int
	correct   int
	responses map[string]string
	visited   map[string]bool
	flagged   map[string]bool
	result    *Result
}

// NewRuntime prepares a runtime over questions in play order.
func NewRuntime(cfg RuntimeConfig, questions []domain.Question, hooks RuntimeHooks) (*Runtime, error) {
	if !cfg.Mode.Valid() {
		return nil, domain.ErrWrongMode
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = wallScheduler{}
	}
	if cfg.Scoring == (Scoring{}) {
		cfg.Scoring = DefaultScoring
	}
	return &Runtime{
		cfg:       cfg,
		questions: append([]domain.Question(nil), questions...),
		hooks:     hooks,
		responses: make(map[string]string, len(questions)),
		visited:   make(map[string]bool, len(questions)),
		flagged:   make(map[string]bool),
	}, nil
}

// Start shows the first question and arms its countdown. Repeated calls are no-ops.
func (r *Runtime) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	if len(r.questions) == 0 {
		res := r.finishLocked(false)
		r.mu.Unlock()
		r.emitFinish(res)
		return
	}
	r.visitLocked()
	switch r.cfg.Mode {
	case domain.ModeInstant:
		r.armLocked(r.cfg.QuestionTime, r.questionExpired)
	case domain.ModeExam:
		r.armLocked(r.cfg.ExamTime, r.examExpired)
	}
	r.mu.Unlock()
}

// Answer locks the current instant question. The first answer wins; later calls report false.
func (r *Runtime) Answer(answer string) (Progress, bool, error) {
	if r.cfg.Mode != domain.ModeInstant {
		return Progress{}, false, domain.ErrWrongMode
	}
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return Progress{}, false, domain.ErrAlreadyFinished
	}
	if !r.started || r.locked {
		r.mu.Unlock()
		return Progress{}, false, nil
	}
	p := r.lockLocked(answer, false)
	r.mu.Unlock()
	r.emitProgress(p)
	return p, true, nil
}

// Next moves past a locked instant question, finishing after the last one.
func (r *Runtime) Next() error {
	if r.cfg.Mode != domain.ModeInstant {
		return domain.ErrWrongMode
	}
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return domain.ErrAlreadyFinished
	}
	if !r.locked {
		r.mu.Unlock()
		return domain.ErrNotAnswered
	}
	res := r.nextLocked()
	r.mu.Unlock()
	if res != nil {
		r.emitFinish(res)
	}
	return nil
}

// Select records or replaces the exam answer of the current question.
func (r *Runtime) Select(answer string) error {
	if r.cfg.Mode != domain.ModeExam {
		return domain.ErrWrongMode
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return domain.ErrAlreadyFinished
	}
	if r.index >= len(r.questions) {
		return domain.ErrQuestionNotFound
	}
	id := r.questions[r.index].ID
	if answer == "" {
		delete(r.responses, id)
	} else {
		r.responses[id] = answer
	}
	return nil
}

// ToggleFlag marks or unmarks the current exam question for review.
func (r *Runtime) ToggleFlag() error {
	if r.cfg.Mode != domain.ModeExam {
		return domain.ErrWrongMode
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return domain.ErrAlreadyFinished
	}
	if r.index >= len(r.questions) {
		return domain.ErrQuestionNotFound
	}
	id := r.questions[r.index].ID
	r.flagged[id] = !r.flagged[id]
	return nil
}

// Goto jumps to question i of the exam.
func (r *Runtime) Goto(i int) error {
	if r.cfg.Mode != domain.ModeExam {
		return domain.ErrWrongMode
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return domain.ErrAlreadyFinished
	}
	if i < 0 || i >= len(r.questions) {
		return domain.ErrQuestionNotFound
	}
	r.index = i
	r.visitLocked()
	return nil
}

// Submit hands in the exam. It reports false when the result was already produced.
func (r *Runtime) Submit() (Result, bool, error) {
	if r.cfg.Mode != domain.ModeExam {
		return Result{}, false, domain.ErrWrongMode
	}
	r.mu.Lock()
	if r.finished {
		res := *r.result
		r.mu.Unlock()
		return res, false, nil
	}
	res := r.finishLocked(false)
	r.mu.Unlock()
	r.emitFinish(res)
	return *res, true, nil
}

// Stop cancels pending countdowns without producing a result.
func (r *Runtime) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// Snapshot returns the runtime's current state.
func (r *Runtime) Snapshot() RuntimeState {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := RuntimeState{
		Index:    r.index,
		Score:    r.score,
		Streak:   r.streak,
		Locked:   r.locked,
		Started:  r.started,
		Finished: r.finished,
	}
	if r.index < len(r.questions) {
		s.Question = r.questions[r.index]
		s.Answer = r.responses[s.Question.ID]
	}
	return s
}

// Result returns the finished answer set once produced.
func (r *Runtime) Result() (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.result == nil {
		return Result{}, false
	}
	return *r.result, true
}

// Summary lists the exam palette status of every question in order.
func (r *Runtime) Summary() []QuestionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]QuestionStatus, len(r.questions))
	for i, q := range r.questions {
		_, answered := r.responses[q.ID]
		switch {
		case answered && r.flagged[q.ID]:
			out[i] = QuestionAnsweredMarked
		case r.flagged[q.ID]:
			out[i] = QuestionMarkedReview
		case answered:
			out[i] = QuestionAnswered
		case r.visited[q.ID]:
			out[i] = QuestionNotAnswered
		default:
			out[i] = QuestionNotVisited
		}
	}
	return out
}

func (r *Runtime) questionExpired(gen int) {
	r.mu.Lock()
	if gen != r.gen || r.finished || r.locked {
		r.mu.Unlock()
		return
	}
	p := r.lockLocked("", true)
	r.mu.Unlock()
	r.emitProgress(p)
}

func (r *Runtime) examExpired(gen int) {
	r.mu.Lock()
	if gen != r.gen || r.finished {
		r.mu.Unlock()
		return
	}
	res := r.finishLocked(true)
	r.mu.Unlock()
	r.emitFinish(res)
}

func (r *Runtime) advanceExpired(gen int) {
	r.mu.Lock()
	if gen != r.gen || r.finished || !r.locked {
		r.mu.Unlock()
		return
	}
	res := r.nextLocked()
	r.mu.Unlock()
	if res != nil {
		r.emitFinish(res)
	}
}

// lockLocked scores the current instant question.
func (r *Runtime) lockLocked(answer string, timedOut bool) Progress {
	q := r.questions[r.index]
	r.locked = true
	r.stopTimerLocked()

	correct := answer != "" && q.IsCorrect(answer)
	if correct {
		r.score += r.cfg.Scoring.Base + r.streak*r.cfg.Scoring.StreakBonus
		r.streak++
		r.correct++
	} else {
		r.streak = 0
	}
	if answer != "" {
		r.responses[q.ID] = answer
	}
	if r.cfg.AutoAdvance > 0 {
		r.armLocked(r.cfg.AutoAdvance, r.advanceExpired)
	}
	return Progress{
		QuestionID: q.ID,
		Index:      r.index,
		Answer:     answer,
		Correct:    correct,
		TimedOut:   timedOut,
		Score:      r.score,
		Streak:     r.streak,
	}
}

func (r *Runtime) nextLocked() *Result {
	r.stopTimerLocked()
	if r.index+1 >= len(r.questions) {
		return r.finishLocked(false)
	}
	r.index++
	r.locked = false
	r.visitLocked()
	r.armLocked(r.cfg.QuestionTime, r.questionExpired)
	return nil
}

func (r *Runtime) finishLocked(timedOut bool) *Result {
	r.stopTimerLocked()
	r.finished = true
	if r.cfg.Mode == domain.ModeExam {
		r.correct = 0
		for _, q := range r.questions {
			if a, ok := r.responses[q.ID]; ok && q.IsCorrect(a) {
				r.correct++
			}
		}
		r.score = r.correct * r.cfg.Scoring.ExamWeight
	}
	responses := make(map[string]string, len(r.responses))
	for k, v := range r.responses {
		responses[k] = v
	}
	r.result = &Result{
		Score:     r.score,
		Correct:   r.correct,
		Streak:    r.streak,
		Responses: responses,
		TimedOut:  timedOut,
	}
	return r.result
}

func (r *Runtime) visitLocked() {
	r.visited[r.questions[r.index].ID] = true
}

// armLocked replaces the pending countdown; callbacks from older countdowns are ignored.
func (r *Runtime) armLocked(d time.Duration, fire func(gen int)) {
	r.stopTimerLocked()
	if d <= 0 {
		return
	}
	gen := r.gen
	r.timer = r.cfg.Scheduler.AfterFunc(d, func() { fire(gen) })
}

func (r *Runtime) stopTimerLocked() {
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Runtime) emitProgress(p Progress) {
	if r.hooks.OnProgress != nil {
		r.hooks.OnProgress(p)
	}
}

func (r *Runtime) emitFinish(res *Result) {
	if r.hooks.OnFinish != nil {
		out := *res
		r.hooks.OnFinish(out)
	}
}
