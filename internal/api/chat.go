package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/nutribot/internal/chat"
)

// PostChat runs one conversational turn. A failed backend call still
// returns 200 with the apology message; only rejected input is an error.
func (h *Handler) PostChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	// The turn outlives a dropped connection so the transcript stays whole.
	turn, err := h.Chat.Send(context.WithoutCancel(r.Context()), body.Message)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		Error(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, chat.ErrTurnInFlight):
		Error(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		slog.Error("Chat turn failed", "error", err)
		Error(w, http.StatusInternalServerError, "chat turn failed")
		return
	}

	if turn.Failed {
		slog.Warn("Chat backend unavailable", "error", turn.Err)
	}
	JSON(w, http.StatusOK, turn)
}

// ResetChat clears the conversation and the recommendation set.
func (h *Handler) ResetChat(w http.ResponseWriter, _ *http.Request) {
	h.Chat.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// GetTranscript streams the conversation as NDJSON.
func (h *Handler) GetTranscript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if err := h.Chat.WriteTranscript(w); err != nil {
		slog.Warn("Failed to write transcript", "error", err)
	}
}
