package jobs

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hiredraft/hiredraft/internal/server"
)

// Handler exposes the job lifecycle over HTTP: POST /kickoff and
// GET /status/{kickoff_id}.
type Handler struct {
	manager *Manager
	logger  *slog.Logger
}

// NewHandler builds the HTTP handler for the job gateway.
func NewHandler(manager *Manager) *Handler {
	return &Handler{
		manager: manager,
		logger:  slog.Default(),
	}
}

// Routes mounts the job endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/kickoff", h.handleKickoff)
	r.Get("/status/{kickoffID}", h.handleStatus)
}

type kickoffRequest struct {
	Inputs struct {
		UserMessage string `json:"user_message"`
		ID          string `json:"id"`
	} `json:"inputs"`
}

type kickoffResponse struct {
	KickoffID string `json:"kickoff_id"`
}

// statusResponse mirrors the wire shape pollers expect. Result stays null
// until SUCCESS; last_executed_task is the latest progress note.
type statusResponse struct {
	State            string          `json:"state"`
	Result           json.RawMessage `json:"result"`
	LastExecutedTask *string         `json:"last_executed_task"`
}

func (h *Handler) handleKickoff(w http.ResponseWriter, r *http.Request) {
	var req kickoffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.AddError(r.Context(), err)
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body: "+err.Error())
		return
	}

	id, err := h.manager.Kickoff(KickoffInputs{
		UserMessage:    req.Inputs.UserMessage,
		ConversationID: req.Inputs.ID,
	})
	if err != nil {
		server.AddError(r.Context(), err)
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, kickoffResponse{KickoffID: id})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "kickoffID")

	job, err := h.manager.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "unknown kickoff id")
		return
	}
	if err != nil {
		server.AddError(r.Context(), err)
		h.writeError(w, http.StatusInternalServerError, "internal_error", "failed to load job")
		return
	}

	resp := statusResponse{State: string(job.Status)}
	if len(job.Result) > 0 {
		resp.Result = job.Result
	}
	if job.ProgressNote != "" {
		resp.LastExecutedTask = &job.ProgressNote
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", slog.String("error", err.Error()))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, message string) {
	h.writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"type":    errType,
			"message": message,
		},
	})
}
