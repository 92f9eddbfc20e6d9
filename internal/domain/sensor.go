package domain

import (
	"time"
)

// SensorReading is one biometric/ambient sample.
type SensorReading struct {
	OxygenLevel float64   `json:"oxygen_level"`
	HeartRate   float64   `json:"heart_rate"`
	Temperature float64   `json:"temperature"`
	Timestamp   time.Time `json:"timestamp"`
}

// Health and weather labels derived from the live reading.
const (
	StatusUnknown   = "unknown"
	StateNormal     = "normal"
	StateLowOxygen  = "low_oxygen"
	WeatherHot      = "hot"
	WeatherCold     = "cold"
	OxygenThreshold = 94.0
	WarmThreshold   = 20.0
)

// HealthStatus is the categorical classification of a reading.
type HealthStatus struct {
	State   string `json:"state"`
	Weather string `json:"weather"`
}

// ChartPoint is one sample of the chart series built from sensor history.
type ChartPoint struct {
	Time        string  `json:"time"`
	Oxygen      float64 `json:"oxygen"`
	HeartRate   float64 `json:"heartRate"`
	Temperature float64 `json:"temperature"`
	Index       int     `json:"index"`
}
