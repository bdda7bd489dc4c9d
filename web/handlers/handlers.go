// Package handlers provides the HTTP API for the browser client.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/duetlabs/duet/internal/core"
	"github.com/duetlabs/duet/internal/export"
	"github.com/duetlabs/duet/internal/prompt"
	"github.com/duetlabs/duet/internal/session"
	"github.com/duetlabs/duet/internal/storage"
	"github.com/duetlabs/duet/internal/turn"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	store   *session.Store
	ctrl    *turn.Controller
	bank    *prompt.Bank
	blobs   storage.BlobStore
	builder *export.Builder
}

// New creates a new Handler.
func New(store *session.Store, ctrl *turn.Controller, bank *prompt.Bank, blobs storage.BlobStore) *Handler {
	return &Handler{
		store:   store,
		ctrl:    ctrl,
		bank:    bank,
		blobs:   blobs,
		builder: export.NewBuilder(blobs, bank, nil),
	}
}

// Router builds the API router with the standard middleware stack.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all API routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/state", h.handleState)

		r.Put("/relationship", h.handleSetRelationship)
		r.Put("/players/{seat}", h.handleUpdatePlayer)
		r.Post("/players/swap", h.handleSwapPlayers)
		r.Put("/settings", h.handleUpdateSettings)

		r.Get("/prompts", h.handleListPrompts)

		r.Route("/turn", func(r chi.Router) {
			r.Post("/start", h.handleTurnStart)
			r.Post("/stop", h.handleTurnStop)
			r.Post("/retry", h.handleTurnRetry)
			r.Post("/cancel", h.handleTurnCancel)
			r.Post("/continue", h.handleTurnContinue)
			r.Post("/end", h.handleTurnEnd)
			r.Post("/rematch", h.handleTurnRematch)
			r.Post("/new-game", h.handleTurnNewGame)
			r.Post("/finish", h.handleTurnFinish)
			r.Post("/switch-camera", h.handleSwitchCamera)
		})

		r.Get("/games", h.handleListGames)
		r.Post("/games", h.handleNewGame)
		r.Delete("/games/{id}", h.handleDeleteGame)
		r.Get("/games/{id}/recordings", h.handleGameRecordings)
		r.Get("/games/{id}/archive", h.handleGameArchive)

		r.Get("/recordings/{id}/media", h.handleRecordingMedia)
		r.Delete("/recordings/{id}", h.handleDeleteRecording)

		r.Post("/reset", h.handleReset)
		r.Post("/reset-scores", h.handleResetScores)
	})
}

// turnStatus is the flow portion of the state payload.
type turnStatus struct {
	State       turn.State `json:"state"`
	NextSeat    core.Seat  `json:"nextSeat"`
	ActiveSeat  core.Seat  `json:"activeSeat,omitempty"`
	Countdown   int        `json:"countdown,omitempty"`
	Celebrating bool       `json:"celebrating"`
	PromptID    string     `json:"promptId,omitempty"`
	PromptText  string     `json:"promptText,omitempty"`
}

func (h *Handler) turnStatus() turnStatus {
	st := turnStatus{
		State:       h.ctrl.State(),
		NextSeat:    h.ctrl.NextSeat(),
		ActiveSeat:  h.ctrl.ActiveSeat(),
		Countdown:   h.ctrl.Countdown(),
		Celebrating: h.ctrl.Celebrating(),
	}
	if p, ok := h.ctrl.CurrentPrompt(); ok {
		st.PromptID = p.ID
		st.PromptText = p.Text
	}
	return st
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"relationship":  snap.Relationship,
		"seat1":         snap.Seat1,
		"seat2":         snap.Seat2,
		"preferredKind": snap.PreferredKind,
		"starScale":     snap.StarScale,
		"highScore":     snap.HighScore,
		"currentGameId": snap.CurrentGameID,
		"turn":          h.turnStatus(),
	})
}

func (h *Handler) handleSetRelationship(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Relationship core.Relationship `json:"relationship"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.ctrl.ChangeRelationship(req.Relationship); err != nil {
		if errors.Is(err, turn.ErrRecordingActive) {
			h.jsonError(w, err.Error(), http.StatusConflict)
			return
		}
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"relationship": req.Relationship})
}

func (h *Handler) handleUpdatePlayer(w http.ResponseWriter, r *http.Request) {
	seat := core.Seat(chi.URLParam(r, "seat"))
	if !seat.Valid() {
		h.jsonError(w, "unknown seat", http.StatusNotFound)
		return
	}

	var patch core.PlayerPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	h.store.SetPlayer(seat, patch)
	h.writeJSON(w, http.StatusOK, h.store.Player(seat))
}

func (h *Handler) handleSwapPlayers(w http.ResponseWriter, r *http.Request) {
	h.store.SwapPlayers()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"seat1": h.store.Player(core.Seat1),
		"seat2": h.store.Player(core.Seat2),
	})
}

func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PreferredKind *core.CaptureKind `json:"preferredKind"`
		StarScale     *float64          `json:"starScale"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.PreferredKind != nil {
		if !req.PreferredKind.Valid() {
			h.jsonError(w, "unknown capture kind", http.StatusBadRequest)
			return
		}
		h.store.SetPreferredKind(*req.PreferredKind)
	}
	if req.StarScale != nil {
		h.store.SetStarScale(*req.StarScale)
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"preferredKind": h.store.PreferredKind(),
		"starScale":     h.store.StarScale(),
	})
}

func (h *Handler) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	rel := core.Relationship(r.URL.Query().Get("relationship"))
	if rel == "" {
		rel = h.store.Relationship()
	}
	if !rel.Valid() {
		h.jsonError(w, "unknown relationship", http.StatusBadRequest)
		return
	}

	side := core.Seat(r.URL.Query().Get("side"))
	if side == "" {
		h.writeJSON(w, http.StatusOK, map[string]any{
			"seat1": h.bank.Prompts(rel, core.Seat1),
			"seat2": h.bank.Prompts(rel, core.Seat2),
		})
		return
	}
	if !side.Valid() {
		h.jsonError(w, "unknown seat", http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusOK, h.bank.Prompts(rel, side))
}

// Turn flow

func (h *Handler) handleTurnStart(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.StartTurn(r.Context()); err != nil {
		h.turnError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.turnStatus())
}

func (h *Handler) handleTurnStop(w http.ResponseWriter, r *http.Request) {
	meta, err := h.ctrl.StopTurn(r.Context())
	if err != nil {
		h.turnError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"recording": meta,
		"turn":      h.turnStatus(),
	})
}

func (h *Handler) handleTurnRetry(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.RetryCapture(r.Context()); err != nil {
		h.turnError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.turnStatus())
}

func (h *Handler) handleTurnCancel(w http.ResponseWriter, r *http.Request) {
	h.ctrl.Cancel(r.Context())
	h.writeJSON(w, http.StatusOK, h.turnStatus())
}

func (h *Handler) handleTurnContinue(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, h.ctrl.Continue)
}

func (h *Handler) handleTurnEnd(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, h.ctrl.End)
}

func (h *Handler) handleTurnRematch(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, h.ctrl.Rematch)
}

func (h *Handler) handleTurnNewGame(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, h.ctrl.NewGame)
}

func (h *Handler) handleTurnFinish(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, h.ctrl.Finish)
}

func (h *Handler) simpleTransition(w http.ResponseWriter, fn func() error) {
	if err := fn(); err != nil {
		h.turnError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.turnStatus())
}

func (h *Handler) handleSwitchCamera(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.SwitchCamera(r.Context()); err != nil {
		h.turnError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.turnStatus())
}

// Games and recordings

func (h *Handler) handleListGames(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"currentGameId": h.store.CurrentGameID(),
		"games":         h.store.Games(),
	})
}

func (h *Handler) handleNewGame(w http.ResponseWriter, r *http.Request) {
	game := h.store.StartNewGame()
	h.writeJSON(w, http.StatusCreated, game)
}

func (h *Handler) handleDeleteGame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.store.Game(id); !ok {
		h.jsonError(w, "game not found", http.StatusNotFound)
		return
	}
	h.store.DeleteGame(id)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"currentGameId": h.store.CurrentGameID(),
		"games":         h.store.Games(),
	})
}

func (h *Handler) handleGameRecordings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.store.Game(id); !ok {
		h.jsonError(w, "game not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, h.store.RecordingsForGame(id))
}

func (h *Handler) handleGameArchive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	game, ok := h.store.Game(id)
	if !ok {
		h.jsonError(w, "game not found", http.StatusNotFound)
		return
	}

	archive, name, err := h.builder.BuildArchive(game, h.store.RecordingsForGame(id))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if _, err := w.Write(archive); err != nil {
		slog.Error("Failed to write archive response", "error", err)
	}
}

func (h *Handler) handleRecordingMedia(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := h.store.Recording(id)
	if !ok {
		h.jsonError(w, "recording not found", http.StatusNotFound)
		return
	}

	data, err := h.blobs.Get(rec.BlobKey)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if data == nil {
		h.jsonError(w, "media no longer available", http.StatusGone)
		return
	}

	w.Header().Set("Content-Type", rec.Meta.MimeType)
	if _, err := w.Write(data); err != nil {
		slog.Error("Failed to write media response", "error", err)
	}
}

func (h *Handler) handleDeleteRecording(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.store.Recording(id); !ok {
		h.jsonError(w, "recording not found", http.StatusNotFound)
		return
	}
	h.store.RemoveRecording(id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	h.store.ResetGame()
	h.writeJSON(w, http.StatusOK, h.store.Snapshot())
}

func (h *Handler) handleResetScores(w http.ResponseWriter, r *http.Request) {
	h.store.ResetScores()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"seat1": h.store.Player(core.Seat1),
		"seat2": h.store.Player(core.Seat2),
	})
}

// turnError maps controller errors to HTTP status codes.
func (h *Handler) turnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, turn.ErrInvalidState):
		h.jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, turn.ErrNothingCaptured):
		h.jsonError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, turn.ErrCancelled):
		h.jsonError(w, err.Error(), http.StatusConflict)
	default:
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
