package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// QuizMode selects how a battle is scored.
type QuizMode string

const (
	ModeInstant QuizMode = "instant"
	ModeExam    QuizMode = "exam"
)

// Valid reports whether m is a known mode.
func (m QuizMode) Valid() bool {
	return m == ModeInstant || m == ModeExam
}

// Phase is the room-level game status. It only ever moves forward.
type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhasePlaying  Phase = "playing"
	PhaseFinished Phase = "finished"
)

// Rank orders phases; unknown phases rank below lobby.
func (p Phase) Rank() int {
	switch p {
	case PhaseLobby:
		return 1
	case PhasePlaying:
		return 2
	case PhaseFinished:
		return 3
	}
	return 0
}

// PlayerStatus tracks a single player's progress.
type PlayerStatus string

const (
	StatusReady     PlayerStatus = "ready"
	StatusPlaying   PlayerStatus = "playing"
	StatusSubmitted PlayerStatus = "submitted"
)

// MixedChapters is the wire value for "no chapter filter".
const MixedChapters = "Mixed"

// Chapters is either a list of chapter names or "Mixed" on the wire.
type Chapters []string

func (c Chapters) MarshalJSON() ([]byte, error) {
	if len(c) == 0 {
		return json.Marshal(MixedChapters)
	}
	return json.Marshal([]string(c))
}

func (c *Chapters) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" || single == MixedChapters {
			*c = nil
		} else {
			*c = Chapters{single}
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*c = list
	return nil
}

// RoomConfig is frozen when the room is created.
type RoomConfig struct {
	Board           string   `json:"board"`
	Class           string   `json:"class"`
	Subjects        []string `json:"subjects"`
	Subject         string   `json:"subject,omitempty"` // derived from Subjects on read when absent
	Chapters        Chapters `json:"chapters"`
	Difficulty      string   `json:"difficulty"`
	QuestionIDs     []string `json:"questionIds"`
	TotalQuestions  int      `json:"totalQuestions"`
	TimePerQuestion int      `json:"timePerQuestion,omitempty"` // seconds
	TotalTime       int      `json:"totalTime,omitempty"`       // minutes
	QuizMode        QuizMode `json:"quizMode"`
	MaxPlayers      int      `json:"maxPlayers,omitempty"`
}

// QuestionTime is the instant-mode per-question budget.
func (c RoomConfig) QuestionTime() time.Duration {
	return time.Duration(c.TimePerQuestion) * time.Second
}

// ExamTime is the exam-mode total budget.
func (c RoomConfig) ExamTime() time.Duration {
	return time.Duration(c.TotalTime) * time.Minute
}

// DisplaySubject is the singular label shown for the room.
func (c RoomConfig) DisplaySubject() string {
	if c.Subject != "" {
		return c.Subject
	}
	if len(c.Subjects) > 0 {
		return strings.Join(c.Subjects, ", ")
	}
	return "General"
}

// GameState is written only by the host's coordinator.
type GameState struct {
	Status    Phase `json:"status"`
	StartTime int64 `json:"startTime"`
	EndTime   int64 `json:"endTime,omitempty"`
}

// Player fields are written only by the player's own coordinator.
type Player struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Score    int          `json:"score"`
	IsHost   bool         `json:"isHost"`
	Status   PlayerStatus `json:"status"`
	Streak   int          `json:"streak"`
	JoinedAt int64        `json:"joinedAt"`
}

// MessageKind distinguishes chat text from emoji reactions.
type MessageKind string

const (
	MessageText     MessageKind = "text"
	MessageReaction MessageKind = "reaction"
)

// ChatMessage is one entry under rooms/{code}/chat.
type ChatMessage struct {
	ID         string      `json:"-"`
	SenderID   string      `json:"senderId"`
	SenderName string      `json:"senderName"`
	Text       string      `json:"text"`
	Type       MessageKind `json:"type"`
	Timestamp  int64       `json:"timestamp"`
}

// Room is the shared aggregate stored at rooms/{code}.
type Room struct {
	Code      string                 `json:"-"`
	Config    RoomConfig             `json:"config"`
	GameState GameState              `json:"gameState"`
	Players   map[string]Player      `json:"players,omitempty"`
	HostID    string                 `json:"hostId"`
	Chat      map[string]ChatMessage `json:"chat,omitempty"`
}

// Millis converts t to the wire timestamp format (unix milliseconds).
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis converts a wire timestamp back to time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
