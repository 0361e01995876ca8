package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"ai-chat-transcript-service/internal/app"
	"ai-chat-transcript-service/internal/schema"
	"ai-chat-transcript-service/internal/service/session"
)

type submitRequest struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

type submitResponse struct {
	Sent bool         `json:"sent"`
	View session.View `json:"view"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if !application.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	h := &handlers{session: application.Session}

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Get("/transcript", h.transcript)
		r.Post("/messages", h.submit)
		r.Post("/awaiting/clear", h.clearAwaiting)
		r.Get("/models", h.models)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", h.conversations)
			r.Post("/new", h.startNew)
			r.Post("/{id}/open", h.open)
			r.Delete("/{id}", h.deleteConversation)
		})

		r.Handle("/ws", application.Hub)
	})

	return r
}

type handlers struct {
	session *session.Session
}

func (h *handlers) transcript(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

func (h *handlers) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode request"))
		return
	}

	sent, err := h.session.Submit(r.Context(), req.Text, req.Model)
	switch {
	case errors.Is(err, schema.ErrInvalidStep):
		writeError(w, http.StatusBadRequest, err)
		return
	case errors.Is(err, session.ErrTransportDelivery):
		writeError(w, http.StatusBadGateway, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	status := http.StatusAccepted
	if !sent {
		status = http.StatusOK
	}
	writeJSON(w, status, submitResponse{Sent: sent, View: h.session.Snapshot()})
}

func (h *handlers) clearAwaiting(w http.ResponseWriter, _ *http.Request) {
	h.session.ClearAwaiting()
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

func (h *handlers) models(w http.ResponseWriter, r *http.Request) {
	list, err := h.session.Models(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"models": list})
}

func (h *handlers) conversations(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") == "true" {
		if err := h.session.RefreshConversations(r.Context()); err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, h.session.Conversations())
}

func (h *handlers) startNew(w http.ResponseWriter, r *http.Request) {
	h.session.StartNew(r.Context())
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

func (h *handlers) open(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Open(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

func (h *handlers) deleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.session.DeleteConversation(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Str("component", "http").Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	log.Warn().Err(err).Str("component", "http").Int("status", status).Msg("request failed")
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
