// Package telemetry generates, submits and samples sensor readings.
package telemetry

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ashureev/nutribot/internal/backend"
	"github.com/ashureev/nutribot/internal/domain"
)

const (
	baseOxygen      = 96.0
	baseHeartRate   = 72.0
	baseTemperature = 22.0

	oxygenSpread      = 4.0
	heartRateSpread   = 20.0
	temperatureSpread = 10.0

	// DefaultInterval is the auto-sampling period when none is given.
	DefaultInterval = 5 * time.Second

	defaultSubmitTimeout = 30 * time.Second
)

// Store is the slice of the session container the manager needs.
type Store interface {
	UserID() string
	SensorData() *domain.SensorReading
	SensorHistory() []domain.SensorReading
	SetSensorData(r domain.SensorReading)
}

// Manager submits sensor readings to the backend and records the accepted
// ones in the session store.
//
// Submissions run one at a time, including the backend round trip. A manual
// reading issued while an auto-sampling tick is in flight waits for that
// tick, up to its submit timeout.
type Manager struct {
	sink          backend.SensorSink
	store         Store
	logger        *slog.Logger
	random        func() float64
	now           func() time.Time
	submitTimeout time.Duration

	// submitMu serializes submissions so history order matches issue order.
	submitMu sync.Mutex

	loopMu sync.Mutex
	cancel context.CancelFunc
	loops  sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithRand sets the uniform [0,1) source used by GenerateReading.
func WithRand(fn func() float64) Option {
	return func(m *Manager) { m.random = fn }
}

// WithClock sets the clock used to stamp accepted readings.
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) { m.now = fn }
}

// WithSubmitTimeout bounds each sampled submission.
func WithSubmitTimeout(d time.Duration) Option {
	return func(m *Manager) { m.submitTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a manager submitting to sink and recording into store.
func NewManager(sink backend.SensorSink, store Store, opts ...Option) *Manager {
	m := &Manager{
		sink:          sink,
		store:         store,
		logger:        slog.Default(),
		random:        rand.Float64,
		now:           time.Now,
		submitTimeout: defaultSubmitTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GenerateReading returns a simulated reading around 96 % oxygen, 72 bpm and
// 22 °C. The timestamp is left zero; Submit stamps accepted readings.
func (m *Manager) GenerateReading() domain.SensorReading {
	return domain.SensorReading{
		OxygenLevel: math.Round(baseOxygen + (m.random()-0.5)*oxygenSpread),
		HeartRate:   math.Round(baseHeartRate + (m.random()-0.5)*heartRateSpread),
		Temperature: math.Round((baseTemperature+(m.random()-0.5)*temperatureSpread)*10) / 10,
	}
}

// Submit posts r with the session identity. Only an accepted reading is
// written to the store, as the live value and a history entry. It reports
// whether the backend accepted it.
func (m *Manager) Submit(ctx context.Context, r domain.SensorReading) bool {
	_, ok := m.submit(ctx, r)
	return ok
}

func (m *Manager) submit(ctx context.Context, r domain.SensorReading) (domain.SensorReading, bool) {
	m.submitMu.Lock()
	defer m.submitMu.Unlock()

	userID := m.store.UserID()
	err := m.sink.SubmitSensors(ctx, backend.SensorPayload{
		UserID:      userID,
		OxygenLevel: r.OxygenLevel,
		Temperature: r.Temperature,
		HeartRate:   r.HeartRate,
	})
	if err != nil {
		m.logger.Warn("Sensor submission failed",
			"user_id", userID,
			"error", err,
		)
		return r, false
	}

	if r.Timestamp.IsZero() {
		r.Timestamp = m.now()
	}
	m.store.SetSensorData(r)
	return r, true
}

// UpdateManual submits a reading with explicit values.
func (m *Manager) UpdateManual(ctx context.Context, oxygen, heartRate, temperature float64) bool {
	return m.Submit(ctx, domain.SensorReading{
		OxygenLevel: oxygen,
		HeartRate:   heartRate,
		Temperature: temperature,
	})
}

// SimulateOnce generates and submits one reading.
func (m *Manager) SimulateOnce(ctx context.Context) (domain.SensorReading, bool) {
	return m.submit(ctx, m.GenerateReading())
}

// StartAutoSampling submits a generated reading immediately and then every
// interval until stopped. A running loop is stopped first. Failed ticks are
// logged and do not stop the loop.
func (m *Manager) StartAutoSampling(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.loops.Add(1)
	go m.sample(ctx, interval)

	m.logger.Info("Sensor auto-sampling started", "interval", interval)
}

func (m *Manager) sample(ctx context.Context, interval time.Duration) {
	defer m.loops.Done()

	m.tick()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			m.tick()
		}
	}
}

// tick uses its own deadline so stopping the loop never aborts a request
// already sent.
func (m *Manager) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), m.submitTimeout)
	defer cancel()

	r, ok := m.SimulateOnce(ctx)
	m.logger.Debug("Sensor sample",
		"ok", ok,
		"oxygen_level", r.OxygenLevel,
		"heart_rate", r.HeartRate,
		"temperature", r.Temperature,
	)
}

// StopAutoSampling stops the loop. It is a no-op when not sampling.
func (m *Manager) StopAutoSampling() {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.cancel = nil
	m.logger.Info("Sensor auto-sampling stopped")
}

// IsSampling reports whether auto-sampling is active.
func (m *Manager) IsSampling() bool {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	return m.cancel != nil
}

// Close stops sampling and waits for loop goroutines, including any
// in-flight submission, to finish.
func (m *Manager) Close() {
	m.StopAutoSampling()
	m.loops.Wait()
}

// Status derives the health status of the live reading.
func (m *Manager) Status() domain.HealthStatus {
	return DeriveStatus(m.store.SensorData())
}
