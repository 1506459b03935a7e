package domain

import "time"

// GameKind distinguishes solo practice from multiplayer battles in history.
type GameKind string

const (
	KindSolo        GameKind = "solo"
	KindMultiplayer GameKind = "multiplayer"
)

// QuestionAnalysis is the per-question breakdown stored with a history record.
type QuestionAnalysis struct {
	QuestionID    string   `json:"questionId"`
	Question      string   `json:"question"`
	UserAnswer    *string  `json:"userAnswer"`
	CorrectAnswer string   `json:"correctAnswer"`
	IsCorrect     bool     `json:"isCorrect"`
	Explanation   string   `json:"explanation,omitempty"`
	Options       []string `json:"options"`
}

// HistoryRecord is appended once per player per finished room.
type HistoryRecord struct {
	UserID         string             `json:"userId"`
	UserName       string             `json:"userName"`
	GameID         string             `json:"gameId"`
	Mode           GameKind           `json:"mode"`
	Type           QuizMode           `json:"type"`
	Score          int                `json:"score"`
	TotalQuestions int                `json:"totalQuestions"`
	CorrectAnswers int                `json:"correctAnswers"`
	WrongAnswers   int                `json:"wrongAnswers"`
	SkippedAnswers int                `json:"skippedAnswers"`
	TimeSpent      int                `json:"timeSpent"` // seconds
	Accuracy       int                `json:"accuracy"`
	Subject        string             `json:"subject"`
	Board          string             `json:"board"`
	Class          string             `json:"class"`
	Difficulty     string             `json:"difficulty"`
	Questions      []QuestionAnalysis `json:"questionsData,omitempty"`
	PlayedAt       time.Time          `json:"playedAt"`
}

// Analyze pairs every question id with the player's answer and fills the counts.
// questions may be in any order; ids without content still count as skipped or wrong.
func Analyze(ids []string, questions []Question, responses map[string]string) ([]QuestionAnalysis, int, int, int) {
	byID := make(map[string]Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	analysis := make([]QuestionAnalysis, 0, len(ids))
	var correct, wrong, skipped int
	for _, id := range ids {
		q := byID[id]
		entry := QuestionAnalysis{
			QuestionID:    id,
			Question:      q.Prompt,
			CorrectAnswer: q.CorrectAnswer,
			Explanation:   q.Explanation,
			Options:       q.Options,
		}
		if entry.Explanation == "" {
			entry.Explanation = "No explanation available."
		}
		answer, ok := responses[id]
		switch {
		case !ok || answer == "":
			skipped++
		case q.IsCorrect(answer):
			a := answer
			entry.UserAnswer = &a
			entry.IsCorrect = true
			correct++
		default:
			a := answer
			entry.UserAnswer = &a
			wrong++
		}
		analysis = append(analysis, entry)
	}
	return analysis, correct, wrong, skipped
}

// AccuracyPercent rounds correct/total to a whole percentage.
func AccuracyPercent(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return (correct*200 + total) / (total * 2)
}

// UserStats is the aggregate profile updated with every history append.
type UserStats struct {
	UserID     string    `json:"userId"`
	TotalXP    int       `json:"totalXP"`
	TotalGames int       `json:"totalGames"`
	Level      int       `json:"level"`
	RankTitle  string    `json:"rankTitle"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// XPPerLevel is the flat experience step between levels.
const XPPerLevel = 1000

// Apply folds one finished game into the stats.
func (s UserStats) Apply(score int, at time.Time) UserStats {
	s.TotalXP += score
	s.TotalGames++
	s.Level = s.TotalXP/XPPerLevel + 1
	s.RankTitle = RankTitle(s.Level)
	s.UpdatedAt = at
	return s
}

// RankTitle maps a level to its display title.
func RankTitle(level int) string {
	switch {
	case level >= 50:
		return "Grandmaster"
	case level >= 20:
		return "Master"
	case level >= 10:
		return "Elite"
	case level >= 5:
		return "Scholar"
	}
	return "Rookie"
}
