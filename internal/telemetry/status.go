package telemetry

import (
	"iter"

	"github.com/ashureev/nutribot/internal/domain"
)

const chartTimeLayout = "15:04"

// DeriveStatus classifies r. Oxygen below 94 % is low_oxygen and
// temperature below 20 °C is cold; a nil reading is unknown on both axes.
func DeriveStatus(r *domain.SensorReading) domain.HealthStatus {
	if r == nil {
		return domain.HealthStatus{State: domain.StatusUnknown, Weather: domain.StatusUnknown}
	}

	st := domain.HealthStatus{State: domain.StateNormal, Weather: domain.WeatherHot}
	if r.OxygenLevel < domain.OxygenThreshold {
		st.State = domain.StateLowOxygen
	}
	if r.Temperature < domain.WarmThreshold {
		st.Weather = domain.WeatherCold
	}
	return st
}

// ChartSeries returns the history as chart points, oldest first. The
// sequence iterates a copy taken at call time and may be ranged repeatedly.
func (m *Manager) ChartSeries() iter.Seq[domain.ChartPoint] {
	return Chart(m.store.SensorHistory())
}

// Chart converts history into chart points.
func Chart(history []domain.SensorReading) iter.Seq[domain.ChartPoint] {
	snapshot := make([]domain.SensorReading, len(history))
	copy(snapshot, history)

	return func(yield func(domain.ChartPoint) bool) {
		for i, r := range snapshot {
			p := domain.ChartPoint{
				Time:        r.Timestamp.Local().Format(chartTimeLayout),
				Oxygen:      r.OxygenLevel,
				HeartRate:   r.HeartRate,
				Temperature: r.Temperature,
				Index:       i,
			}
			if !yield(p) {
				return
			}
		}
	}
}
