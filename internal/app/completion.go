package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"quiz-battle-service/internal/domain"
)

// Completion is the outcome of handing a finished result to the coordinator.
type Completion struct {
	Score     int
	Correct   int
	Wrong     int
	Skipped   int
	HistoryID string
	// HistoryErr is set when the record could not be appended. The local result stands regardless.
	HistoryErr error
	// Duplicate marks a repeated hand-over that was rejected before doing any work.
	Duplicate bool
}

// Complete writes the final score and appends the player's history record exactly once.
// Later calls return a Duplicate completion without touching the store or the recorder.
func (c *Coordinator) Complete(ctx context.Context, res Result) (Completion, error) {
	if !c.handedIn.CompareAndSwap(false, true) {
		return Completion{Duplicate: true}, nil
	}
	room, err := c.resolved()
	if err != nil {
		// nothing was sent yet, the result can be handed in again
		c.handedIn.Store(false)
		return Completion{}, err
	}

	submitErr := c.SubmitAnswer(ctx, res.Score)
	if submitErr != nil {
		log.Printf("room %s: submit score for %s: %v", c.code, c.me.PlayerID, submitErr)
	}

	ids := room.Config.QuestionIDs
	var questions []domain.Question
	if c.deps.Questions != nil {
		questions, err = c.deps.Questions.Questions(ctx, ids)
		if err != nil {
			log.Printf("room %s: load questions for history: %v", c.code, err)
			questions = nil
		}
	}
	analysis, correct, wrong, skipped := domain.Analyze(ids, questions, res.Responses)
	if questions == nil {
		// without content only the runtime knows what was correct
		analysis = nil
		answered := len(ids) - skipped
		correct = min(res.Correct, answered)
		wrong = answered - correct
	}

	out := Completion{
		Score:   res.Score,
		Correct: correct,
		Wrong:   wrong,
		Skipped: skipped,
	}
	if c.deps.History != nil {
		record := domain.HistoryRecord{
			UserID:         c.me.PlayerID,
			UserName:       c.me.Name,
			GameID:         c.code,
			Mode:           domain.KindMultiplayer,
			Type:           room.Config.QuizMode,
			Score:          res.Score,
			TotalQuestions: len(ids),
			CorrectAnswers: correct,
			WrongAnswers:   wrong,
			SkippedAnswers: skipped,
			TimeSpent:      c.timeSpent(room),
			Subject:        room.Config.Subject,
			Board:          room.Config.Board,
			Class:          room.Config.Class,
			Difficulty:     room.Config.Difficulty,
			Questions:      analysis,
		}
		id, err := c.deps.History.Append(ctx, record)
		if err != nil {
			log.Printf("room %s: save history for %s: %v", c.code, c.me.PlayerID, err)
			out.HistoryErr = fmt.Errorf("append history: %w", err)
		} else {
			out.HistoryID = id
		}
	}

	c.mu.Lock()
	c.completion = &out
	c.publishLocked()
	c.mu.Unlock()
	return out, submitErr
}

// Hooks wires a runtime to this coordinator: every locked instant question is written as
// one progress update and the finished result is handed in once.
func (c *Coordinator) Hooks(ctx context.Context) RuntimeHooks {
	return RuntimeHooks{
		OnProgress: func(p Progress) {
			if err := c.RecordProgress(ctx, p.Score, p.Streak); err != nil {
				log.Printf("room %s: record progress for %s: %v", c.code, c.me.PlayerID, err)
			}
		},
		OnFinish: func(res Result) {
			if _, err := c.Complete(ctx, res); err != nil {
				log.Printf("room %s: complete for %s: %v", c.code, c.me.PlayerID, err)
			}
		},
	}
}

// NewRuntime loads the room's questions and builds a runtime bound to this coordinator.
// sched may be nil to use wall-clock timers.
func (c *Coordinator) NewRuntime(ctx context.Context, sched Scheduler) (*Runtime, error) {
	room, err := c.resolved()
	if err != nil {
		return nil, err
	}
	if c.deps.Questions == nil {
		return nil, fmt.Errorf("%w: no question provider", domain.ErrQuestionNotFound)
	}
	questions, err := c.deps.Questions.Questions(ctx, room.Config.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("load room questions: %w", err)
	}
	cfg := RuntimeConfigFor(room.Config)
	cfg.Scheduler = sched
	return NewRuntime(cfg, questions, c.Hooks(ctx))
}

func (c *Coordinator) timeSpent(room domain.Room) int {
	now := c.now()
	c.mu.Lock()
	start := c.playStartedAt
	c.mu.Unlock()
	if room.GameState.StartTime > 0 {
		start = domain.FromMillis(room.GameState.StartTime)
	}
	if start.IsZero() || now.Before(start) {
		return 0
	}
	return int(now.Sub(start) / time.Second)
}
