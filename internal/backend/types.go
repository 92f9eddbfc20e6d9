package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ashureev/nutribot/internal/domain"
)

// ErrNoSensorData is returned by RecommendFood when the backend has no
// reading for the user yet.
var ErrNoSensorData = errors.New("no sensor data for user")

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	UserID            string `json:"user_id"`
	Message           string `json:"message"`
	PrepTimeAvailable int    `json:"prep_time_available"`
}

// ChatResponse is the backend's reply to one chat turn.
type ChatResponse struct {
	AgentResponse   string                      `json:"agent_response"`
	Intent          string                      `json:"intent"`
	Recommendations []domain.FoodRecommendation `json:"recommendations,omitempty"`
}

// SensorPayload is the body of POST /sensors.
type SensorPayload struct {
	UserID      string  `json:"user_id"`
	OxygenLevel float64 `json:"oxygen_level"`
	Temperature float64 `json:"temperature"`
	HeartRate   float64 `json:"heart_rate"`
}

// SensorRecommendations is the response of GET /recommend_food/{user_id}.
type SensorRecommendations struct {
	UserID          string                      `json:"user_id"`
	Weather         string                      `json:"weather"`
	State           string                      `json:"state"`
	Recommendations []domain.FoodRecommendation `json:"recommendations"`
	Error           string                      `json:"error,omitempty"`
}

// FoodStats is the free-form catalog summary from /admin/food-stats.
type FoodStats map[string]json.RawMessage

// StatusError reports a non-2xx backend response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Body)
}

// Assistant runs one conversational turn.
type Assistant interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// SensorSink accepts sensor readings.
type SensorSink interface {
	SubmitSensors(ctx context.Context, payload SensorPayload) error
}

// FoodCatalog serves food detail and sensor-based recommendations.
type FoodCatalog interface {
	FoodDetails(ctx context.Context, fdcID int) (*domain.FoodDetails, error)
	RecommendFood(ctx context.Context, userID string) (*SensorRecommendations, error)
}
