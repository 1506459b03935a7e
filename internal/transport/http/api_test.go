package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/infra/memory"
)

type apiFixture struct {
	mem     *memory.Store
	history *memory.HistoryRecorder
	server  *httptest.Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	mem := memory.NewStore()
	questions := memory.NewQuestionRepository(memory.NewStaticQuestionLoader(bank()), time.Minute)
	history := memory.NewHistoryRecorder()
	registry := app.NewRegistryWithCodes(mem.Connect(), func() (string, error) { return "ROOM42", nil })
	api := NewAPI(registry, questions, questions, history, "https://quiz.example")
	server := httptest.NewServer(api.Routes(nil))
	t.Cleanup(server.Close)
	return &apiFixture{mem: mem, history: history, server: server}
}

func bank() []domain.Question {
	out := make([]domain.Question, 0, 4)
	for i := 1; i <= 4; i++ {
		out = append(out, domain.Question{
			ID:            fmt.Sprintf("q%d", i),
			Prompt:        fmt.Sprintf("Question %d", i),
			Options:       []string{"a", "b", "c", "d"},
			CorrectAnswer: "a",
			Board:         "CBSE",
			Class:         "10",
			Subject:       "Science",
			Chapter:       "Light",
			Difficulty:    "Easy",
		})
	}
	return out
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestCreateRoomFromConfig(t *testing.T) {
	f := newAPIFixture(t)
	resp := postJSON(t, f.server.URL+"/rooms", CreateRoomRequest{
		HostID: "host",
		Config: &domain.RoomConfig{QuestionIDs: []string{"q1", "q2"}, QuizMode: domain.ModeExam, Subjects: []string{"Science"}},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var out CreateRoomResponse
	decodeBody(t, resp, &out)
	if out.Code != "ROOM42" || out.Config.TotalQuestions != 2 || out.Config.MaxPlayers == 0 {
		t.Fatalf("unexpected response %+v", out)
	}

	snap, err := f.mem.Connect().Get(context.Background(), app.RoomPath("ROOM42"))
	if err != nil || !snap.Exists {
		t.Fatalf("expected room stored, exists=%v err=%v", snap.Exists, err)
	}
}

func TestCreateRoomErrors(t *testing.T) {
	f := newAPIFixture(t)
	cases := []struct {
		name   string
		req    CreateRoomRequest
		status int
		code   string
	}{
		{"empty", CreateRoomRequest{HostID: "host"}, http.StatusBadRequest, ""},
		{"no questions", CreateRoomRequest{HostID: "host", Config: &domain.RoomConfig{QuizMode: domain.ModeInstant}}, http.StatusUnprocessableEntity, "invalid_config"},
		{"bad mode", CreateRoomRequest{HostID: "host", Config: &domain.RoomConfig{QuestionIDs: []string{"q1"}, QuizMode: "speedrun"}}, http.StatusUnprocessableEntity, "invalid_config"},
		{"not enough", CreateRoomRequest{HostID: "host", Selection: &app.Selection{Board: "CBSE", Class: "10", Subjects: []string{"Science"}, Count: 9}}, http.StatusUnprocessableEntity, "not_enough_questions"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, f.server.URL+"/rooms", tc.req)
			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.StatusCode)
			}
			var out ErrorResponse
			decodeBody(t, resp, &out)
			if out.Code != tc.code || out.Error == "" {
				t.Fatalf("unexpected error body %+v", out)
			}
		})
	}
}

func TestCreateRoomFromSelection(t *testing.T) {
	f := newAPIFixture(t)
	resp := postJSON(t, f.server.URL+"/rooms", CreateRoomRequest{
		HostID:    "host",
		Selection: &app.Selection{Board: "CBSE", Class: "10", Subjects: []string{"Science"}, Count: 3, QuizMode: domain.ModeInstant},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var out CreateRoomResponse
	decodeBody(t, resp, &out)
	if len(out.Config.QuestionIDs) != 3 {
		t.Fatalf("expected 3 questions, got %v", out.Config.QuestionIDs)
	}
}

func TestListQuestions(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := http.Get(f.server.URL + "/questions?ids=q3,q1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var questions []domain.Question
	decodeBody(t, resp, &questions)
	if len(questions) != 2 || questions[0].ID != "q3" || questions[1].ID != "q1" {
		t.Fatalf("expected q3,q1 in request order, got %+v", questions)
	}

	missing, err := http.Get(f.server.URL + "/questions?ids=q1,nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.StatusCode)
	}
	var out ErrorResponse
	decodeBody(t, missing, &out)
	if out.Code != "question_not_found" {
		t.Fatalf("expected question_not_found, got %+v", out)
	}
}

func TestAppendHistory(t *testing.T) {
	f := newAPIFixture(t)

	resp := postJSON(t, f.server.URL+"/history", domain.HistoryRecord{
		UserID:         "u1",
		GameID:         "ROOM42",
		Mode:           domain.KindMultiplayer,
		Type:           domain.ModeExam,
		Score:          8,
		TotalQuestions: 4,
		CorrectAnswers: 2,
		WrongAnswers:   2,
		Accuracy:       50,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var out HistoryResponse
	decodeBody(t, resp, &out)
	if _, ok := f.history.Record(out.ID); !ok {
		t.Fatalf("expected record %q stored", out.ID)
	}

	anon := postJSON(t, f.server.URL+"/history", domain.HistoryRecord{GameID: "ROOM42"})
	if anon.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without user, got %d", anon.StatusCode)
	}
}

func TestRoomQR(t *testing.T) {
	f := newAPIFixture(t)
	resp, err := http.Get(f.server.URL + "/rooms/room42/qr")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("expected png, got %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	var magic [8]byte
	if _, err := io.ReadFull(resp.Body, magic[:]); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.HasPrefix(magic[:], []byte("\x89PNG")) {
		t.Fatalf("expected png signature, got %q", magic)
	}
}
