package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	appMiddleware "github.com/pulpit-ai/pulpit/internal/api/middlewares"
	"github.com/pulpit-ai/pulpit/internal/chat"
	"github.com/pulpit-ai/pulpit/internal/core"
	"github.com/pulpit-ai/pulpit/internal/models"
)

// ChatHandler streams answers about the caller's sermon library.
type ChatHandler struct {
	router *chat.Router
}

func NewChatHandler(router *chat.Router) *ChatHandler {
	return &ChatHandler{router: router}
}

type chatRequest struct {
	Message  string               `json:"message"`
	Messages []models.ChatMessage `json:"messages"`
}

// Chat streams the generated answer as plain text chunks, flushed as they
// arrive. Errors surfaced before the first flush map onto status codes;
// after that the stream simply ends.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	userID := appMiddleware.UserID(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	started := false
	onDelta := func(delta string) error {
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := w.Write([]byte(delta)); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	err := h.router.Respond(r.Context(), userID, req.Message, req.Messages, onDelta)
	if err != nil && !started {
		if errors.Is(err, core.ErrQuotaExhausted) {
			writeError(w, http.StatusTooManyRequests, "service temporarily unavailable")
			return
		}
		log.Printf("chat: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to generate response")
		return
	}
	if err != nil {
		// Mid-stream failure; the status line is already gone.
		log.Printf("chat stream aborted: %v", err)
	}
}
