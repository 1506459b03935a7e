package app_test

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/infra/memory"
)

func TestCreateRoomRetriesTakenCode(t *testing.T) {
	ctx := context.Background()
	conn := memory.NewStore().Connect()
	defer conn.Close()

	if err := conn.Set(ctx, app.RoomPath("TAKEN1"), map[string]any{"hostId": "someone"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	reg := app.NewRegistryWithCodes(conn, fixedCodes("TAKEN1", "ABC123"))
	code, err := reg.CreateRoom(ctx, roomConfig(domain.ModeExam, 5), "host-1")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if code != "ABC123" {
		t.Fatalf("expected retry onto ABC123, got %s", code)
	}

	snap, err := conn.Get(ctx, app.RoomPath(code))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var room domain.Room
	if err := snap.Decode(&room); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if room.GameState.Status != domain.PhaseLobby || room.HostID != "host-1" || len(room.Players) != 0 {
		t.Fatalf("unexpected room %+v", room)
	}
	if room.Config.TotalTime != 3 {
		t.Fatalf("expected 5x30s to round up to 3 minutes, got %d", room.Config.TotalTime)
	}
	if room.Config.Subject != "Maths" || room.Config.MaxPlayers == 0 {
		t.Fatalf("expected derived subject and max players, got %+v", room.Config)
	}
}

func TestCreateRoomValidatesConfig(t *testing.T) {
	ctx := context.Background()
	conn := memory.NewStore().Connect()
	defer conn.Close()
	reg := app.NewRegistry(conn)

	cfg := roomConfig(domain.ModeExam, 3)
	cfg.TotalQuestions = 4
	if _, err := reg.CreateRoom(ctx, cfg, "host-1"); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected invalid config for count mismatch, got %v", err)
	}

	cfg = roomConfig("speedrun", 3)
	if _, err := reg.CreateRoom(ctx, cfg, "host-1"); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected invalid config for unknown mode, got %v", err)
	}

	if _, err := reg.CreateRoom(ctx, roomConfig(domain.ModeExam, 3), ""); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected host id to be required, got %v", err)
	}
}

func TestRandomCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := app.RandomCode()
		if err != nil {
			t.Fatalf("random code: %v", err)
		}
		if len(code) != app.CodeLength {
			t.Fatalf("expected %d characters, got %q", app.CodeLength, code)
		}
		for _, r := range code {
			if !strings.ContainsRune(app.CodeAlphabet, r) {
				t.Fatalf("unexpected character %q in %q", r, code)
			}
		}
	}
}

func TestBuildConfigFiltersCatalog(t *testing.T) {
	sel := app.Selection{
		Board:      "CBSE",
		Class:      "10",
		Subjects:   []string{"Maths"},
		Difficulty: "easy",
		Count:      3,
		QuizMode:   domain.ModeExam,
	}
	cfg, err := app.BuildConfig(questionBank(), sel, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("build config: %v", err)
	}
	if len(cfg.QuestionIDs) != 3 || cfg.TotalQuestions != 3 {
		t.Fatalf("expected 3 questions, got %+v", cfg)
	}
	for _, id := range cfg.QuestionIDs {
		if id == "q5" || id == "q6" {
			t.Fatalf("hard question %s selected for easy room", id)
		}
	}
	if cfg.TimePerQuestion != 30 || cfg.TotalTime != 2 {
		t.Fatalf("unexpected timing %d/%d", cfg.TimePerQuestion, cfg.TotalTime)
	}

	sel.Count = 5
	if _, err := app.BuildConfig(questionBank(), sel, nil); !errors.Is(err, domain.ErrNotEnoughQuestions) {
		t.Fatalf("expected not enough questions, got %v", err)
	}

	sel.Difficulty = app.DifficultyMixed
	sel.Chapters = []string{"Geometry"}
	sel.Count = 1
	if _, err := app.BuildConfig(questionBank(), sel, nil); !errors.Is(err, domain.ErrNotEnoughQuestions) {
		t.Fatalf("expected chapter filter to exclude everything, got %v", err)
	}
}

func TestCreateFromSelection(t *testing.T) {
	ctx := context.Background()
	conn := memory.NewStore().Connect()
	defer conn.Close()

	catalog := memory.NewStaticQuestionLoader(questionBank())
	reg := app.NewRegistryWithCodes(conn, fixedCodes("SEL001"))
	code, cfg, err := reg.CreateFromSelection(ctx, catalog, app.Selection{
		Board:    "CBSE",
		Class:    "10",
		Subjects: []string{"Maths"},
		Count:    6,
	}, "host-1")
	if err != nil {
		t.Fatalf("create from selection: %v", err)
	}
	if code != "SEL001" || cfg.QuizMode != domain.ModeInstant || len(cfg.QuestionIDs) != 6 {
		t.Fatalf("unexpected result %s %+v", code, cfg)
	}
}
