package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

// API serves room creation, question content and history appends to remote clients.
type API struct {
	registry  *app.Registry
	catalog   app.QuestionCatalog
	questions app.QuestionProvider
	history   app.HistoryRecorder
	baseURL   string
}

func NewAPI(registry *app.Registry, catalog app.QuestionCatalog, questions app.QuestionProvider, history app.HistoryRecorder, baseURL string) *API {
	return &API{
		registry:  registry,
		catalog:   catalog,
		questions: questions,
		history:   history,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
	}
}

// CreateRoomRequest carries either a ready config or a selection to build one from.
type CreateRoomRequest struct {
	HostID    string             `json:"hostId"`
	Config    *domain.RoomConfig `json:"config,omitempty"`
	Selection *app.Selection     `json:"selection,omitempty"`
}

type CreateRoomResponse struct {
	Code   string            `json:"code"`
	Config domain.RoomConfig `json:"config"`
}

type HistoryResponse struct {
	ID string `json:"id"`
}

// Routes mounts the API and the store gateway on one router.
func (a *API) Routes(gateway *Gateway) http.Handler {
	router := httprouter.New()
	router.GET("/healthz", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Write([]byte("ok"))
	})
	router.POST("/rooms", a.createRoom)
	router.GET("/rooms/:code/qr", a.roomQR)
	router.GET("/questions", a.listQuestions)
	router.POST("/history", a.appendHistory)
	if gateway != nil {
		router.HandlerFunc(http.MethodGet, "/ws", gateway.ServeWS)
	}
	return router
}

func (a *API) createRoom(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid room request"))
		return
	}

	var (
		code string
		cfg  domain.RoomConfig
		err  error
	)
	switch {
	case req.Config != nil:
		if cfg, err = app.NormalizeConfig(*req.Config); err == nil {
			code, err = a.registry.CreateRoom(r.Context(), cfg, req.HostID)
		}
	case req.Selection != nil:
		if a.catalog == nil {
			writeError(w, http.StatusNotImplemented, errors.New("no question catalog configured"))
			return
		}
		code, cfg, err = a.registry.CreateFromSelection(r.Context(), a.catalog, *req.Selection, req.HostID)
	default:
		writeError(w, http.StatusBadRequest, errors.New("config or selection required"))
		return
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateRoomResponse{Code: code, Config: cfg})
}

func (a *API) roomQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := app.NormalizeCode(ps.ByName("code"))
	if code == "" {
		http.Error(w, "missing room code", http.StatusBadRequest)
		return
	}

	base := a.baseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}

	png, err := qrcode.Encode(base+"/room/"+code, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (a *API) listQuestions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	raw := r.URL.Query().Get("ids")
	if raw == "" {
		writeError(w, http.StatusBadRequest, errors.New("ids required"))
		return
	}
	ids := strings.Split(raw, ",")
	questions, err := a.questions.Questions(r.Context(), ids)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (a *API) appendHistory(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var record domain.HistoryRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid history record"))
		return
	}
	if record.UserID == "" {
		writeError(w, http.StatusBadRequest, domain.ErrIdentityRequired)
		return
	}
	id, err := a.history.Append(r.Context(), record)
	if err != nil {
		log.Printf("append history for %s: %v", record.UserID, err)
		writeError(w, http.StatusInternalServerError, errors.New("history unavailable"))
		return
	}
	writeJSON(w, http.StatusCreated, HistoryResponse{ID: id})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidConfig), errors.Is(err, domain.ErrNotEnoughQuestions):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrQuestionNotFound), errors.Is(err, domain.ErrRoomNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: DomainCode(err)})
}
