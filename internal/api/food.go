package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/nutribot/internal/backend"
	"github.com/ashureev/nutribot/internal/nutrition"
)

// GetFood returns detail for one food. A backend failure still answers
// 200 with the inline error and, when the current recommendation set
// carries the food, fallback details.
func (h *Handler) GetFood(w http.ResponseWriter, r *http.Request) {
	fdcID, err := strconv.Atoi(chi.URLParam(r, "fdcId"))
	if err != nil || fdcID <= 0 {
		Error(w, http.StatusBadRequest, "fdcId must be a positive integer")
		return
	}

	rec := nutrition.FindByFdcID(h.State.Recommendations(), fdcID)
	JSON(w, http.StatusOK, h.Foods.Details(r.Context(), fdcID, rec))
}

// RecommendBySensors asks the backend for recommendations based on the
// latest reported reading and replaces the current set.
func (h *Handler) RecommendBySensors(w http.ResponseWriter, r *http.Request) {
	if h.Recommender == nil {
		Error(w, http.StatusNotImplemented, "recommendations by sensors are not available")
		return
	}

	res, err := h.Recommender.RecommendFood(r.Context(), h.State.UserID())
	switch {
	case errors.Is(err, backend.ErrNoSensorData):
		Error(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		slog.Warn("Sensor recommendation failed", "error", err)
		Error(w, http.StatusBadGateway, "recommendation backend unavailable")
		return
	}

	if len(res.Recommendations) > 0 {
		h.State.SetRecommendations(res.Recommendations)
	}
	JSON(w, http.StatusOK, res)
}

// GetFoodStats passes the backend catalog summary through.
func (h *Handler) GetFoodStats(w http.ResponseWriter, r *http.Request) {
	if h.Catalog == nil {
		Error(w, http.StatusNotImplemented, "catalog administration is not available")
		return
	}
	stats, err := h.Catalog.FoodStats(r.Context())
	if err != nil {
		slog.Warn("Food stats failed", "error", err)
		Error(w, http.StatusBadGateway, "catalog backend unavailable")
		return
	}
	JSON(w, http.StatusOK, stats)
}

// ReloadFoods asks the backend to reload its catalog.
func (h *Handler) ReloadFoods(w http.ResponseWriter, r *http.Request) {
	if h.Catalog == nil {
		Error(w, http.StatusNotImplemented, "catalog administration is not available")
		return
	}
	if err := h.Catalog.ReloadFoods(r.Context()); err != nil {
		slog.Warn("Food reload failed", "error", err)
		Error(w, http.StatusBadGateway, "catalog backend unavailable")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}
