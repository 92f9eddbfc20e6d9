package api

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"
)

const minSampleInterval = 100 * time.Millisecond

type manualReading struct {
	OxygenLevel *float64 `json:"oxygen_level"`
	HeartRate   *float64 `json:"heart_rate"`
	Temperature *float64 `json:"temperature"`
}

// PostSensors submits a manually entered reading.
func (h *Handler) PostSensors(w http.ResponseWriter, r *http.Request) {
	var body manualReading
	if err := decodeJSON(w, r, &body); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.OxygenLevel == nil || body.HeartRate == nil || body.Temperature == nil {
		Error(w, http.StatusBadRequest, "oxygen_level, heart_rate and temperature are required")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	if !h.Sensors.UpdateManual(ctx, *body.OxygenLevel, *body.HeartRate, *body.Temperature) {
		Error(w, http.StatusBadGateway, "sensor backend rejected the reading")
		return
	}
	JSON(w, http.StatusOK, h.sensorSummary())
}

// SimulateSensors submits one generated reading.
func (h *Handler) SimulateSensors(w http.ResponseWriter, r *http.Request) {
	reading, ok := h.Sensors.SimulateOnce(context.WithoutCancel(r.Context()))
	if !ok {
		Error(w, http.StatusBadGateway, "sensor backend rejected the reading")
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"reading": reading,
		"status":  h.Sensors.Status(),
	})
}

// StartAuto starts (or restarts) auto-sampling. The body is optional.
func (h *Handler) StartAuto(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IntervalMS int64 `json:"interval_ms"`
	}
	if err := decodeJSON(w, r, &body); err != nil && !errors.Is(err, errEmptyBody) {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	interval := h.DefaultInterval
	if body.IntervalMS != 0 {
		interval = time.Duration(body.IntervalMS) * time.Millisecond
	}
	if interval < minSampleInterval {
		Error(w, http.StatusBadRequest, "interval_ms must be at least 100")
		return
	}

	h.Sensors.StartAutoSampling(interval)
	JSON(w, http.StatusOK, map[string]any{
		"sampling":    true,
		"interval_ms": interval.Milliseconds(),
	})
}

// StopAuto stops auto-sampling. Stopping an idle loop is not an error.
func (h *Handler) StopAuto(w http.ResponseWriter, _ *http.Request) {
	h.Sensors.StopAutoSampling()
	JSON(w, http.StatusOK, map[string]bool{"sampling": false})
}

// GetSensorStatus returns the classification of the live reading.
func (h *Handler) GetSensorStatus(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.sensorSummary())
}

// GetChart returns the chart series of the sensor history.
func (h *Handler) GetChart(w http.ResponseWriter, _ *http.Request) {
	points := slices.Collect(h.Sensors.ChartSeries())
	if points == nil {
		JSON(w, http.StatusOK, []struct{}{})
		return
	}
	JSON(w, http.StatusOK, points)
}

func (h *Handler) sensorSummary() map[string]any {
	snap := h.State.Snapshot()
	return map[string]any{
		"sensor_data": snap.SensorData,
		"status":      h.Sensors.Status(),
		"sampling":    h.Sensors.IsSampling(),
	}
}
