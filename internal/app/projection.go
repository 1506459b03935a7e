package app

import (
	"sort"

	"quiz-battle-service/internal/domain"
)

// State is where a coordinator is in its lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateSyncing      State = "syncing"
	StateLobby        State = "lobby"
	StatePlaying      State = "playing"
	StateFinished     State = "finished"
	StateErrored      State = "errored"
)

// chatHistory is how many chat messages the view keeps.
const chatHistory = 50

// View is the local projection of the room that a UI renders.
type View struct {
	State       State
	Room        *domain.Room
	Players     []domain.Player // leaderboard order
	Messages    []domain.ChatMessage
	IsConnected bool
	IsHost      bool
	// Joined and Submitted include optimistic local assumptions not yet confirmed remotely.
	Joined    bool
	Submitted bool
	// Completion is set once the local result has been handed over.
	Completion *Completion
	Err        error
}

// Me returns the local player's record when present remotely.
func (v View) Me(playerID string) (domain.Player, bool) {
	if v.Room == nil {
		return domain.Player{}, false
	}
	p, ok := v.Room.Players[playerID]
	return p, ok
}

// SubmittedCount is how many players have handed in.
func (v View) SubmittedCount() int {
	n := 0
	for _, p := range v.Players {
		if p.Status == domain.StatusSubmitted {
			n++
		}
	}
	return n
}

// repairRoom fills fields that older writers may have omitted. It is read-path only:
// the repaired value is never written back.
func repairRoom(code string, room domain.Room) domain.Room {
	room.Code = code
	if room.Config.Subject == "" {
		room.Config.Subject = room.Config.DisplaySubject()
	}
	if room.Config.QuizMode == "" {
		room.Config.QuizMode = domain.ModeInstant
	}
	if room.Config.TotalQuestions == 0 {
		room.Config.TotalQuestions = len(room.Config.QuestionIDs)
	}
	if room.GameState.Status == "" {
		room.GameState.Status = domain.PhaseLobby
	}

	players := make(map[string]domain.Player, len(room.Players))
	for id, p := range room.Players {
		if p.ID == "" {
			p.ID = id
		}
		if p.Status == "" {
			p.Status = domain.StatusReady
		}
		p.IsHost = id == room.HostID
		players[id] = p
	}
	room.Players = players

	chat := make(map[string]domain.ChatMessage, len(room.Chat))
	for key, msg := range room.Chat {
		msg.ID = key
		if msg.Type == "" {
			msg.Type = domain.MessageText
		}
		chat[key] = msg
	}
	room.Chat = chat
	return room
}

// leaderboard orders players by score desc, then earliest join, then name.
func leaderboard(players map[string]domain.Player) []domain.Player {
	entries := make([]domain.Player, 0, len(players))
	for _, p := range players {
		entries = append(entries, p)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].JoinedAt != entries[j].JoinedAt {
			return entries[i].JoinedAt < entries[j].JoinedAt
		}
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].ID < entries[j].ID
	})
	return entries
}

func recentMessages(chat map[string]domain.ChatMessage) []domain.ChatMessage {
	msgs := make([]domain.ChatMessage, 0, len(chat))
	for _, m := range chat {
		msgs = append(msgs, m)
	}
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Timestamp != msgs[j].Timestamp {
			return msgs[i].Timestamp < msgs[j].Timestamp
		}
		return msgs[i].ID < msgs[j].ID
	})
	if len(msgs) > chatHistory {
		msgs = msgs[len(msgs)-chatHistory:]
	}
	return msgs
}

// allSubmitted reports whether a non-empty room has every player handed in.
func allSubmitted(players map[string]domain.Player) bool {
	if len(players) == 0 {
		return false
	}
	for _, p := range players {
		if p.Status != domain.StatusSubmitted {
			return false
		}
	}
	return true
}

func stateFor(phase domain.Phase) State {
	switch phase {
	case domain.PhasePlaying:
		return StatePlaying
	case domain.PhaseFinished:
		return StateFinished
	}
	return StateLobby
}
