package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/nutribot/internal/voice"
)

func (h *Handler) voiceControl(action func(Voice, context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.Voice == nil || !h.Voice.IsSupported() {
			Error(w, http.StatusNotImplemented, voice.ErrUnsupported.Error())
			return
		}
		if err := action(h.Voice, r.Context()); err != nil {
			if errors.Is(err, voice.ErrUnsupported) {
				Error(w, http.StatusNotImplemented, err.Error())
				return
			}
			slog.Warn("Voice control failed", "error", err)
			Error(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		JSON(w, http.StatusAccepted, VoiceView{
			Supported: true,
			Listening: h.Voice.IsListening(),
			Language:  h.Voice.Language(),
		})
	}
}
