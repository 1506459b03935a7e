package app

import (
	"fmt"
	"math/rand"
	"strings"

	"quiz-battle-service/internal/domain"
)

// DifficultyMixed disables the difficulty filter.
const DifficultyMixed = "Mixed"

// Selection is what a host picks on the create-room screen.
type Selection struct {
	Board           string          `json:"board"`
	Class           string          `json:"class"`
	Subjects        []string        `json:"subjects"`
	Chapters        []string        `json:"chapters,omitempty"`
	Difficulty      string          `json:"difficulty"`
	Count           int             `json:"count"`
	TimePerQuestion int             `json:"timePerQuestion"`
	QuizMode        domain.QuizMode `json:"quizMode"`
	MaxPlayers      int             `json:"maxPlayers"`
}

// BuildConfig filters the catalog by the selection, shuffles the matches and keeps Count of them.
// rnd may be nil to use the shared source.
func BuildConfig(catalog []domain.Question, sel Selection, rnd *rand.Rand) (domain.RoomConfig, error) {
	if len(sel.Subjects) == 0 {
		return domain.RoomConfig{}, fmt.Errorf("%w: at least one subject required", domain.ErrInvalidConfig)
	}
	if sel.Count <= 0 {
		return domain.RoomConfig{}, fmt.Errorf("%w: question count must be positive", domain.ErrInvalidConfig)
	}
	if sel.Difficulty == "" {
		sel.Difficulty = DifficultyMixed
	}

	ids := make([]string, 0, len(catalog))
	for _, q := range catalog {
		if matches(q, sel) {
			ids = append(ids, q.ID)
		}
	}
	if len(ids) < sel.Count {
		return domain.RoomConfig{}, fmt.Errorf("%w: found only %d, need %d", domain.ErrNotEnoughQuestions, len(ids), sel.Count)
	}

	swap := func(i, j int) { ids[i], ids[j] = ids[j], ids[i] }
	if rnd != nil {
		rnd.Shuffle(len(ids), swap)
	} else {
		rand.Shuffle(len(ids), swap)
	}
	ids = ids[:sel.Count]

	timePerQuestion := sel.TimePerQuestion
	if timePerQuestion <= 0 {
		timePerQuestion = defaultTimePerQuestion
	}
	return NormalizeConfig(domain.RoomConfig{
		Board:           sel.Board,
		Class:           sel.Class,
		Subjects:        append([]string(nil), sel.Subjects...),
		Chapters:        domain.Chapters(sel.Chapters),
		Difficulty:      sel.Difficulty,
		QuestionIDs:     ids,
		TotalQuestions:  len(ids),
		TimePerQuestion: timePerQuestion,
		TotalTime:       totalMinutes(len(ids), timePerQuestion),
		QuizMode:        sel.QuizMode,
		MaxPlayers:      sel.MaxPlayers,
	})
}

func matches(q domain.Question, sel Selection) bool {
	if q.Board != sel.Board || q.Class != sel.Class {
		return false
	}
	if !contains(sel.Subjects, q.Subject) {
		return false
	}
	if len(sel.Chapters) > 0 && !contains(sel.Chapters, q.Chapter) {
		return false
	}
	if !strings.EqualFold(sel.Difficulty, DifficultyMixed) && !strings.EqualFold(sel.Difficulty, q.Difficulty) {
		return false
	}
	return true
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
