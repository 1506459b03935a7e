package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sync"
	"time"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/infra/memory"
	"quiz-battle-service/internal/remote"
	"quiz-battle-service/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type simulation struct {
	players   int
	mode      string
	questions int
	accuracy  float64
	server    string
	seed      int64
	timeout   time.Duration
}

// NewSimulateCmd runs bot players through one complete battle.
func NewSimulateCmd() *cobra.Command {
	sim := simulation{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Play a full battle with bot players and print the leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), sim.timeout)
			defer cancel()
			board, err := sim.run(ctx)
			if err != nil {
				return err
			}
			printLeaderboard(cmd.OutOrStdout(), board)
			return nil
		},
	}
	fs := cmd.Flags()
	fs.IntVar(&sim.players, "players", 4, "number of bot players, the first one hosts")
	fs.StringVar(&sim.mode, "mode", string(domain.ModeInstant), "quiz mode: instant or exam")
	fs.IntVar(&sim.questions, "questions", 5, "questions per battle")
	fs.Float64Var(&sim.accuracy, "accuracy", 0.7, "chance a bot answers correctly")
	fs.StringVar(&sim.server, "server", "", "base URL of a running server; empty runs in-process")
	fs.Int64Var(&sim.seed, "seed", 0, "random seed, 0 picks one")
	fs.DurationVar(&sim.timeout, "timeout", 2*time.Minute, "abort the battle after this long")
	return cmd
}

// env abstracts where the bots play: an in-process store or a remote server.
type env struct {
	createRoom func(ctx context.Context, sel app.Selection, hostID string) (string, error)
	deps       func(ctx context.Context) (app.Deps, io.Closer, error)
}

func (s simulation) env() env {
	if s.server != "" {
		client := remote.NewClient(s.server)
		return env{
			createRoom: func(ctx context.Context, sel app.Selection, hostID string) (string, error) {
				code, _, err := client.CreateFromSelection(ctx, sel, hostID)
				return code, err
			},
			deps: func(ctx context.Context) (app.Deps, io.Closer, error) {
				conn, err := client.Dial(ctx)
				if err != nil {
					return app.Deps{}, nil, err
				}
				return client.Deps(conn), conn, nil
			},
		}
	}

	shared := memory.NewStore()
	questions := memory.NewQuestionRepository(memory.NewStaticQuestionLoader(sampleQuestions()), time.Hour)
	history := memory.NewHistoryRecorder()
	return env{
		createRoom: func(ctx context.Context, sel app.Selection, hostID string) (string, error) {
			conn := shared.Connect()
			defer conn.Close()
			code, _, err := app.NewRegistry(conn).CreateFromSelection(ctx, questions, sel, hostID)
			return code, err
		},
		deps: func(ctx context.Context) (app.Deps, io.Closer, error) {
			var conn store.Conn = shared.Connect()
			return app.Deps{Store: conn, Questions: questions, History: history}, conn, nil
		},
	}
}

func (s simulation) run(ctx context.Context) ([]domain.Player, error) {
	mode := domain.QuizMode(s.mode)
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidConfig, s.mode)
	}
	if s.players < 1 {
		return nil, fmt.Errorf("%w: at least one player required", domain.ErrInvalidConfig)
	}
	seed := s.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	e := s.env()
	ids := make([]string, s.players)
	for i := range ids {
		ids[i] = uuid.NewString()
	}
	code, err := e.createRoom(ctx, app.Selection{
		Board:           "CBSE",
		Class:           "10",
		Subjects:        []string{"Maths", "Science"},
		Count:           s.questions,
		TimePerQuestion: 20,
		QuizMode:        mode,
		MaxPlayers:      s.players,
	}, ids[0])
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	log.Printf("simulating %d players in %s room %s", s.players, mode, code)

	var (
		played sync.WaitGroup
		mu     sync.Mutex
		board  []domain.Player
	)
	played.Add(s.players)
	g, ctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		b := bot{
			id:       id,
			name:     fmt.Sprintf("bot-%d", i+1),
			host:     i == 0,
			players:  s.players,
			accuracy: s.accuracy,
			rnd:      rand.New(rand.NewSource(seed + int64(i))),
		}
		g.Go(func() error {
			deps, closer, err := e.deps(ctx)
			if err != nil {
				return err
			}
			defer closer.Close()
			final, err := b.play(ctx, deps, code, &played)
			if err != nil {
				return fmt.Errorf("%s: %w", b.name, err)
			}
			if b.host {
				mu.Lock()
				board = final
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return board, nil
}

type bot struct {
	id       string
	name     string
	host     bool
	players  int
	accuracy float64
	rnd      *rand.Rand
}

func (b bot) play(ctx context.Context, deps app.Deps, code string, played *sync.WaitGroup) ([]domain.Player, error) {
	var once sync.Once
	done := func() { once.Do(played.Done) }
	defer done()

	c, err := app.Connect(ctx, deps, code, app.Identity{PlayerID: b.id, Name: b.name}, app.WithPresence())
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if _, err := c.WaitFor(ctx, func(v app.View) bool { return v.State == app.StateLobby }); err != nil {
		return nil, err
	}
	if err := c.Join(ctx, code); err != nil {
		return nil, err
	}
	if b.host {
		if _, err := c.WaitFor(ctx, func(v app.View) bool { return len(v.Players) == b.players }); err != nil {
			return nil, err
		}
		if err := c.Start(ctx); err != nil {
			return nil, err
		}
	}
	if _, err := c.WaitFor(ctx, func(v app.View) bool { return v.State == app.StatePlaying }); err != nil {
		return nil, err
	}

	rt, err := c.NewRuntime(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer rt.Stop()
	rt.Start()
	mode := c.View().Room.Config.QuizMode
	if mode == domain.ModeExam {
		err = b.sitExam(rt)
	} else {
		err = b.playInstant(rt)
	}
	if err != nil {
		return nil, err
	}
	done()

	if b.host && mode == domain.ModeInstant {
		// instant rooms only finish when the host says so
		if err := waitGroup(ctx, played); err != nil {
			return nil, err
		}
		if err := c.Finish(ctx); err != nil {
			return nil, err
		}
	}
	v, err := c.WaitFor(ctx, func(v app.View) bool { return v.State == app.StateFinished })
	if err != nil {
		return nil, err
	}
	if v.Completion != nil && v.Completion.HistoryErr != nil {
		log.Printf("%s: history not saved: %v", b.name, v.Completion.HistoryErr)
	}
	return v.Players, nil
}

func (b bot) pick(q domain.Question) string {
	if b.rnd.Float64() < b.accuracy {
		return q.CorrectAnswer
	}
	wrong := make([]string, 0, len(q.Options))
	for _, o := range q.Options {
		if o != q.CorrectAnswer {
			wrong = append(wrong, o)
		}
	}
	if len(wrong) == 0 {
		return q.CorrectAnswer
	}
	return wrong[b.rnd.Intn(len(wrong))]
}

func (b bot) playInstant(rt *app.Runtime) error {
	for {
		st := rt.Snapshot()
		if st.Finished {
			return nil
		}
		if !st.Locked {
			if _, _, err := rt.Answer(b.pick(st.Question)); err != nil {
				return err
			}
		}
		if err := rt.Next(); err != nil && !errors.Is(err, domain.ErrAlreadyFinished) {
			return err
		}
	}
}

func (b bot) sitExam(rt *app.Runtime) error {
	for i := 0; ; i++ {
		if err := rt.Goto(i); err != nil {
			break
		}
		st := rt.Snapshot()
		if st.Finished {
			return nil
		}
		// leave roughly one in ten unanswered
		if b.rnd.Intn(10) == 0 {
			continue
		}
		if err := rt.Select(b.pick(st.Question)); err != nil {
			return err
		}
	}
	_, _, err := rt.Submit()
	if errors.Is(err, domain.ErrAlreadyFinished) {
		return nil
	}
	return err
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func printLeaderboard(w io.Writer, players []domain.Player) {
	fmt.Fprintln(w, "RANK  PLAYER      SCORE  STREAK")
	for i, p := range players {
		fmt.Fprintf(w, "%-5d %-11s %5d  %6d\n", i+1, p.Name, p.Score, p.Streak)
	}
}
