package app

import (
	"strings"

	"quiz-battle-service/internal/store"
)

// RoomPath is the store path of a room aggregate.
func RoomPath(code string) string {
	return store.Join("rooms", code)
}

// PlayerPath is the store path of one player inside a room.
func PlayerPath(code, playerID string) string {
	return store.Join("rooms", code, "players", playerID)
}

// GameStatePath is the store path of a room's host-owned game state.
func GameStatePath(code string) string {
	return store.Join("rooms", code, "gameState")
}

// ChatMessagePath is the store path of one chat entry.
func ChatMessagePath(code, key string) string {
	return store.Join("rooms", code, "chat", key)
}

// NormalizeCode upper-cases and trims a typed room code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
