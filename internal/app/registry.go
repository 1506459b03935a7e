package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"

	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/store"
)

const (
	// CodeAlphabet is the set of characters room codes are drawn from.
	CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// CodeLength is the number of characters in a room code.
	CodeLength = 6

	defaultTimePerQuestion = 30
	defaultMaxPlayers      = 100
)

// Registry allocates room codes and writes new rooms in the lobby phase.
type Registry struct {
	store store.Store
	codes func() (string, error)
}

func NewRegistry(st store.Store) *Registry {
	return &Registry{store: st, codes: RandomCode}
}

// NewRegistryWithCodes is test-only for deterministic codes.
func NewRegistryWithCodes(st store.Store, codes func() (string, error)) *Registry {
	return &Registry{store: st, codes: codes}
}

// CreateRoom stores a new room for hostID and returns its code. Codes already in use are
// regenerated until a free one is found or ctx ends.
func (r *Registry) CreateRoom(ctx context.Context, cfg domain.RoomConfig, hostID string) (string, error) {
	if hostID == "" {
		return "", fmt.Errorf("%w: host id required", domain.ErrInvalidConfig)
	}
	cfg, err := NormalizeConfig(cfg)
	if err != nil {
		return "", err
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code, err := r.codes()
		if err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		snap, err := r.store.Get(ctx, RoomPath(code))
		if err != nil {
			return "", fmt.Errorf("check room code: %w", err)
		}
		if snap.Exists {
			log.Printf("room code %s already taken, retrying", code)
			continue
		}

		room := domain.Room{
			Config:    cfg,
			GameState: domain.GameState{Status: domain.PhaseLobby},
			HostID:    hostID,
		}
		if err := r.store.Set(ctx, RoomPath(code), room); err != nil {
			return "", fmt.Errorf("create room: %w", err)
		}
		log.Printf("room %s created by %s (%s, %d questions)", code, hostID, cfg.QuizMode, cfg.TotalQuestions)
		return code, nil
	}
}

// CreateFromSelection picks questions from the catalog and creates the room.
func (r *Registry) CreateFromSelection(ctx context.Context, catalog QuestionCatalog, sel Selection, hostID string) (string, domain.RoomConfig, error) {
	questions, err := catalog.Catalog(ctx)
	if err != nil {
		return "", domain.RoomConfig{}, fmt.Errorf("load catalog: %w", err)
	}
	cfg, err := BuildConfig(questions, sel, nil)
	if err != nil {
		return "", domain.RoomConfig{}, err
	}
	code, err := r.CreateRoom(ctx, cfg, hostID)
	return code, cfg, err
}

// RandomCode draws CodeLength characters from CodeAlphabet.
func RandomCode() (string, error) {
	base := big.NewInt(int64(len(CodeAlphabet)))
	code := make([]byte, CodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", err
		}
		code[i] = CodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// NormalizeConfig validates cfg and fills its defaults and derived fields.
func NormalizeConfig(cfg domain.RoomConfig) (domain.RoomConfig, error) {
	if cfg.QuizMode == "" {
		cfg.QuizMode = domain.ModeInstant
	}
	if !cfg.QuizMode.Valid() {
		return cfg, fmt.Errorf("%w: unknown quiz mode %q", domain.ErrInvalidConfig, cfg.QuizMode)
	}
	if len(cfg.QuestionIDs) == 0 {
		return cfg, fmt.Errorf("%w: no questions", domain.ErrInvalidConfig)
	}
	if cfg.TotalQuestions == 0 {
		cfg.TotalQuestions = len(cfg.QuestionIDs)
	}
	if cfg.TotalQuestions != len(cfg.QuestionIDs) {
		return cfg, fmt.Errorf("%w: totalQuestions %d does not match %d question ids", domain.ErrInvalidConfig, cfg.TotalQuestions, len(cfg.QuestionIDs))
	}
	cfg.QuestionIDs = append([]string(nil), cfg.QuestionIDs...)
	if cfg.TimePerQuestion <= 0 {
		cfg.TimePerQuestion = defaultTimePerQuestion
	}
	if cfg.TotalTime <= 0 {
		cfg.TotalTime = totalMinutes(cfg.TotalQuestions, cfg.TimePerQuestion)
	}
	if cfg.MaxPlayers <= 0 {
		cfg.MaxPlayers = defaultMaxPlayers
	}
	cfg.Subject = cfg.DisplaySubject()
	return cfg, nil
}

func totalMinutes(count, secondsPerQuestion int) int {
	return (count*secondsPerQuestion + 59) / 60
}
