// Package api exposes the builder and built agents over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/draftworks/agentsmith/internal/builder"
	"github.com/draftworks/agentsmith/internal/gateway"
	"github.com/draftworks/agentsmith/internal/provider"
	"github.com/draftworks/agentsmith/internal/schema"
	"github.com/draftworks/agentsmith/internal/store"
	"github.com/draftworks/agentsmith/internal/thread"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	threads *thread.Store
	builder *builder.Builder
	pg      *store.Store     // optional; nil disables persistence
	gw      *gateway.Manager // optional
	logger  *zap.Logger
}

// NewHandler creates an API handler. pg and gw may be nil.
func NewHandler(threads *thread.Store, b *builder.Builder, pg *store.Store, gw *gateway.Manager, logger *zap.Logger) *Handler {
	return &Handler{
		threads: threads,
		builder: b,
		pg:      pg,
		gw:      gw,
		logger:  logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/catalog", h.getCatalog)

		r.Post("/threads", h.createThread)
		r.Get("/threads", h.listThreads)

		r.Route("/threads/{id}", func(r chi.Router) {
			r.Post("/messages", h.postMessage)
			r.Post("/resume", h.resumeThread)
			r.Post("/restart", h.restartThread)
			r.Get("/config", h.getConfig)
			r.Get("/mock", h.getMock)
			r.Get("/agent", h.agentStatus)
			r.Post("/agent/chat", h.chatWithAgent)
		})

		r.Get("/gateway/status", h.gatewayStatus)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) getCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, schema.Catalog)
}

func (h *Handler) createThread(w http.ResponseWriter, r *http.Request) {
	th := h.threads.New()
	writeJSON(w, http.StatusCreated, map[string]string{"thread_id": th.ID()})
}

func (h *Handler) listThreads(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"thread_ids": h.threads.IDs()})
}

type messageRequest struct {
	Message string `json:"message"`
}

func (h *Handler) postMessage(w http.ResponseWriter, r *http.Request) {
	th, ok := h.thread(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	res, err := h.builder.HandleMessage(r.Context(), th, req.Message)
	if err != nil {
		if errors.Is(err, builder.ErrAwaitingInput) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		h.logger.Error("builder turn failed", zap.String("thread", th.ID()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	h.persist(r, th)
	writeJSON(w, http.StatusOK, res)
}

type resumeRequest struct {
	Answer string `json:"answer"`
}

func (h *Handler) resumeThread(w http.ResponseWriter, r *http.Request) {
	th, ok := h.thread(w, r)
	if !ok {
		return
	}
	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Answer == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "answer is required"})
		return
	}

	res, err := h.builder.Resume(r.Context(), th, req.Answer)
	if err != nil {
		if errors.Is(err, builder.ErrNoPending) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		h.logger.Error("resume failed", zap.String("thread", th.ID()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	h.persist(r, th)
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) restartThread(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.threads.Get(id); !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "thread not found"})
		return
	}

	fresh := h.threads.Restart(id)
	h.builder.DropAgent(id)
	if h.pg != nil {
		if err := h.pg.DeleteThread(r.Context(), id); err != nil {
			h.logger.Warn("delete persisted thread failed", zap.String("thread", id), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"thread_id": fresh.ID()})
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	th, ok := h.thread(w, r)
	if !ok {
		return
	}
	state := th.Read()
	body := map[string]any{"state": state.Kind().String()}
	if state.Kind() != thread.ConfigEmpty {
		body["config"] = state.AsMap()
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) getMock(w http.ResponseWriter, r *http.Request) {
	th, ok := h.thread(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": th.MockConversation()})
}

func (h *Handler) agentStatus(w http.ResponseWriter, r *http.Request) {
	th, ok := h.thread(w, r)
	if !ok {
		return
	}
	runnable, built := h.builder.Agent(th.ID())
	body := map[string]any{"built": built}
	if built {
		body["name"] = runnable.Name()
	}
	writeJSON(w, http.StatusOK, body)
}

type agentChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (h *Handler) chatWithAgent(w http.ResponseWriter, r *http.Request) {
	th, ok := h.thread(w, r)
	if !ok {
		return
	}
	var req agentChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}

	runnable, built := h.builder.Agent(th.ID())
	if !built {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no agent built on this thread"})
		return
	}

	answer, err := runnable.Invoke(r.Context(), req.SessionID, req.Message)
	if err != nil {
		h.logger.Error("agent chat failed", zap.String("thread", th.ID()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if h.pg != nil {
		for _, m := range []struct{ role, content string }{
			{"user", req.Message},
			{"assistant", answer},
		} {
			if err := h.pg.AppendChatMessage(r.Context(), th.ID(), req.SessionID,
				chatMessage(m.role, m.content)); err != nil {
				h.logger.Warn("persist chat message failed", zap.Error(err))
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": answer})
}

func (h *Handler) gatewayStatus(w http.ResponseWriter, r *http.Request) {
	if h.gw == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "gateway not initialized"})
		return
	}
	writeJSON(w, http.StatusOK, h.gw.StatusAll())
}

func (h *Handler) thread(w http.ResponseWriter, r *http.Request) (*thread.Thread, bool) {
	id := chi.URLParam(r, "id")
	th, ok := h.threads.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "thread not found"})
		return nil, false
	}
	return th, true
}

func (h *Handler) persist(r *http.Request, th *thread.Thread) {
	if h.pg == nil {
		return
	}
	if err := h.pg.SaveThread(r.Context(), th.Snapshot()); err != nil {
		h.logger.Warn("persist thread failed", zap.String("thread", th.ID()), zap.Error(err))
	}
}

func chatMessage(role, content string) provider.Message {
	return provider.Message{Role: role, Content: content}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
