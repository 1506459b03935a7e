package store

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSplitRejectsReservedSegments(t *testing.T) {
	segs, err := Split("/rooms/AB12CD/players/")
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(segs) != 3 || segs[2] != "players" {
		t.Fatalf("unexpected segments %v", segs)
	}
	if _, err := Split("rooms//x"); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected invalid path, got %v", err)
	}
	if _, err := Split("rooms/a.b"); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected invalid path, got %v", err)
	}
}

func TestPutMergeAndPrune(t *testing.T) {
	value, err := Normalize(map[string]any{
		"gameState": map[string]any{"status": "lobby", "startTime": 0},
		"players":   map[string]any{},
		"hostId":    "h1",
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	root := Put(nil, []string{"rooms", "R1"}, value)
	if _, ok := Lookup(root, []string{"rooms", "R1", "players"}); ok {
		t.Fatalf("empty players object should be pruned")
	}

	root, changed, err := Merge(root, []string{"rooms", "R1", "gameState"}, map[string]any{"status": "playing", "startTime": 10})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(changed) != 2 {
		t.Fatalf("expected 2 changed paths, got %d", len(changed))
	}
	status, _ := Lookup(root, []string{"rooms", "R1", "gameState", "status"})
	if status != "playing" {
		t.Fatalf("expected playing, got %v", status)
	}
	host, _ := Lookup(root, []string{"rooms", "R1", "hostId"})
	if host != "h1" {
		t.Fatalf("merge must not touch siblings, hostId=%v", host)
	}

	root = Put(root, []string{"rooms", "R1"}, nil)
	if root != nil {
		t.Fatalf("expected empty tree after removal, got %v", root)
	}
}

func TestRelated(t *testing.T) {
	room := []string{"rooms", "R1"}
	if !Related(room, []string{"rooms", "R1", "players", "p1"}) {
		t.Fatalf("descendant change should be related")
	}
	if !Related(room, []string{"rooms"}) {
		t.Fatalf("ancestor change should be related")
	}
	if Related(room, []string{"rooms", "R2"}) {
		t.Fatalf("sibling change should not be related")
	}
}

func TestSnapshotDecode(t *testing.T) {
	snap := Snapshot{Exists: true, Value: json.RawMessage(`{"a":1}`)}
	var out struct{ A int }
	if err := snap.Decode(&out); err != nil || out.A != 1 {
		t.Fatalf("decode: %v %+v", err, out)
	}
	if err := (Snapshot{}).Decode(&out); err == nil {
		t.Fatalf("expected error decoding absent snapshot")
	}
}
