// Package api provides HTTP handlers for the NutriBot dashboard API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/nutribot/internal/backend"
	"github.com/ashureev/nutribot/internal/chat"
	"github.com/ashureev/nutribot/internal/domain"
	"github.com/ashureev/nutribot/internal/nutrition"
)

const maxBodyBytes = 1 << 20

var errEmptyBody = errors.New("request body is empty")

// StateStore is the session state the handlers read and mutate.
type StateStore interface {
	Snapshot() domain.Snapshot
	UserID() string
	Recommendations() []domain.FoodRecommendation
	SetRecommendations(recs []domain.FoodRecommendation)
	SetPrepTime(minutes int)
}

// Conversation runs chat turns.
type Conversation interface {
	Send(ctx context.Context, text string) (*chat.Turn, error)
	Reset()
	WriteTranscript(w io.Writer) error
}

// Sensors drives telemetry.
type Sensors interface {
	UpdateManual(ctx context.Context, oxygen, heartRate, temperature float64) bool
	SimulateOnce(ctx context.Context) (domain.SensorReading, bool)
	StartAutoSampling(interval time.Duration)
	StopAutoSampling()
	IsSampling() bool
	Status() domain.HealthStatus
	ChartSeries() iter.Seq[domain.ChartPoint]
}

// Voice controls speech capture.
type Voice interface {
	IsSupported() bool
	IsListening() bool
	Language() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Toggle(ctx context.Context) error
}

// Foods resolves food detail with fallback.
type Foods interface {
	Details(ctx context.Context, fdcID int, rec *domain.FoodRecommendation) nutrition.Result
}

// Recommender asks the backend for recommendations from the latest reading.
type Recommender interface {
	RecommendFood(ctx context.Context, userID string) (*backend.SensorRecommendations, error)
}

// Catalog exposes backend catalog administration.
type Catalog interface {
	FoodStats(ctx context.Context) (backend.FoodStats, error)
	ReloadFoods(ctx context.Context) error
}

// Pinger checks the durable store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators behind the handlers. Recommender, Catalog
// and Pinger may be nil.
type Deps struct {
	State           StateStore
	Chat            Conversation
	Sensors         Sensors
	Voice           Voice
	Foods           Foods
	Recommender     Recommender
	Catalog         Catalog
	Store           Pinger
	DefaultInterval time.Duration
}

// Handler serves the dashboard API.
type Handler struct {
	Deps
}

// NewHandler creates a handler over deps.
func NewHandler(deps Deps) *Handler {
	if deps.DefaultInterval <= 0 {
		deps.DefaultInterval = 5 * time.Second
	}
	return &Handler{Deps: deps}
}

// RegisterRoutes registers the dashboard API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/ready", h.Ready)
		r.Get("/state", h.GetState)

		r.Post("/chat", h.PostChat)
		r.Delete("/chat", h.ResetChat)
		r.Get("/chat/transcript", h.GetTranscript)

		r.Post("/sensors", h.PostSensors)
		r.Post("/sensors/simulate", h.SimulateSensors)
		r.Post("/sensors/auto", h.StartAuto)
		r.Delete("/sensors/auto", h.StopAuto)
		r.Get("/sensors/status", h.GetSensorStatus)
		r.Get("/sensors/chart", h.GetChart)

		r.Put("/settings/prep-time", h.PutPrepTime)

		r.Get("/food/{fdcId}", h.GetFood)
		r.Get("/recommendations/sensors", h.RecommendBySensors)

		r.Post("/voice/toggle", h.voiceControl(Voice.Toggle))
		r.Post("/voice/start", h.voiceControl(Voice.Start))
		r.Post("/voice/stop", h.voiceControl(Voice.Stop))

		r.Get("/admin/food-stats", h.GetFoodStats)
		r.Post("/admin/reload-foods", h.ReloadFoods)
	})
}

// VoiceView is the voice section of the state view.
type VoiceView struct {
	Supported bool   `json:"supported"`
	Listening bool   `json:"listening"`
	Language  string `json:"language,omitempty"`
}

// StateView is the snapshot the dashboard renders.
type StateView struct {
	domain.Snapshot
	Status   domain.HealthStatus `json:"status"`
	Sampling bool                `json:"sampling"`
	Voice    VoiceView           `json:"voice"`
}

// View renders snap for the dashboard. It also feeds the realtime hub.
func (h *Handler) View(snap domain.Snapshot) any {
	v := StateView{Snapshot: snap}
	if h.Sensors != nil {
		v.Status = h.Sensors.Status()
		v.Sampling = h.Sensors.IsSampling()
	}
	if h.Voice != nil && h.Voice.IsSupported() {
		v.Voice = VoiceView{Supported: true, Listening: snap.IsListening, Language: h.Voice.Language()}
	}
	return v
}

// Ready reports whether the durable store answers.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]any{"status": "ready", "checks": checks}
	statusCode := http.StatusOK

	if h.Store != nil {
		if err := h.Store.Ping(ctx); err != nil {
			status["status"] = "degraded"
			checks["database"] = "unreachable"
			statusCode = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	JSON(w, statusCode, status)
}

// GetState returns the full state view.
func (h *Handler) GetState(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.View(h.State.Snapshot()))
}

// PutPrepTime sets the prep-time preference.
func (h *Handler) PutPrepTime(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PrepTime int `json:"prep_time"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.PrepTime <= 0 {
		Error(w, http.StatusBadRequest, "prep_time must be a positive number of minutes")
		return
	}
	h.State.SetPrepTime(body.PrepTime)
	JSON(w, http.StatusOK, map[string]int{"prep_time": body.PrepTime})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
