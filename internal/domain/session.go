package domain

// PrepTimeOptions lists the prep-time preferences offered to the user, in minutes.
var PrepTimeOptions = []int{15, 30, 45, 60}

const (
	// DefaultPrepTime is used when no preference has been persisted.
	DefaultPrepTime = 30
	// SensorHistoryCapacity bounds the rolling sensor history.
	SensorHistoryCapacity = 30
)

// PersistedState is the projection of session state that survives reloads.
type PersistedState struct {
	UserID        string          `json:"userId"`
	SensorHistory []SensorReading `json:"sensorHistory"`
	PrepTime      int             `json:"prepTime"`
}

// Snapshot is a point-in-time copy of the whole session state.
type Snapshot struct {
	Version         uint64               `json:"version"`
	UserID          string               `json:"user_id"`
	Messages        []ChatMessage        `json:"messages"`
	IsLoading       bool                 `json:"is_loading"`
	SensorData      *SensorReading       `json:"sensor_data"`
	SensorHistory   []SensorReading      `json:"sensor_history"`
	Recommendations []FoodRecommendation `json:"recommendations"`
	PrepTime        int                  `json:"prep_time"`
	IsListening     bool                 `json:"is_listening"`
}

// Persisted returns the durable projection of the snapshot.
func (s Snapshot) Persisted() PersistedState {
	history := make([]SensorReading, len(s.SensorHistory))
	copy(history, s.SensorHistory)
	return PersistedState{
		UserID:        s.UserID,
		SensorHistory: history,
		PrepTime:      s.PrepTime,
	}
}
