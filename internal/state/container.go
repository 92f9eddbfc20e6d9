// Package state holds the single process-wide session state container.
package state

import (
	"strings"
	"sync"

	"github.com/ashureev/nutribot/internal/domain"
)

// Change is a bit set naming the state categories touched by a mutation.
type Change uint16

const (
	ChangeMessages Change = 1 << iota
	ChangeLoading
	ChangeSensorData
	ChangeSensorHistory
	ChangeRecommendations
	ChangePrepTime
	ChangeListening
)

var changeNames = []struct {
	c    Change
	name string
}{
	{ChangeMessages, "messages"},
	{ChangeLoading, "loading"},
	{ChangeSensorData, "sensor_data"},
	{ChangeSensorHistory, "sensor_history"},
	{ChangeRecommendations, "recommendations"},
	{ChangePrepTime, "prep_time"},
	{ChangeListening, "listening"},
}

// Has returns true if c includes every bit of o.
func (c Change) Has(o Change) bool {
	return c&o == o
}

// Persisted returns true if the change touches the durable projection.
// Identity is never mutated after boot, so only history and prep time count.
func (c Change) Persisted() bool {
	return c&(ChangeSensorHistory|ChangePrepTime) != 0
}

func (c Change) String() string {
	var parts []string
	for _, n := range changeNames {
		if c&n.c != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Listener observes applied mutations. Listeners run on the mutating
// goroutine after the container lock is released, so concurrent mutations
// may be observed out of order; Snapshot.Version orders them. Listeners must
// not block.
type Listener func(change Change, snap domain.Snapshot)

// Container is the single source of truth for session state. All mutators
// are synchronous and atomic with respect to readers.
type Container struct {
	mu              sync.RWMutex
	version         uint64
	userID          string
	messages        []domain.ChatMessage
	isLoading       bool
	sensorData      *domain.SensorReading
	history         *Ring[domain.SensorReading]
	recommendations []domain.FoodRecommendation
	prepTime        int
	isListening     bool

	subsMu  sync.RWMutex
	subs    map[int]Listener
	nextSub int
}

// New creates a container seeded from the persisted projection.
func New(seed domain.PersistedState) *Container {
	c := &Container{
		userID:   seed.UserID,
		history:  NewRing[domain.SensorReading](domain.SensorHistoryCapacity),
		prepTime: seed.PrepTime,
		subs:     make(map[int]Listener),
	}
	for _, r := range seed.SensorHistory {
		c.history.Push(r)
	}
	return c
}

// Subscribe registers fn and returns a function that removes it.
func (c *Container) Subscribe(fn Listener) (unsubscribe func()) {
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs, id)
			c.subsMu.Unlock()
		})
	}
}

func (c *Container) mutate(change Change, apply func()) {
	c.subsMu.RLock()
	listeners := make([]Listener, 0, len(c.subs))
	for _, fn := range c.subs {
		listeners = append(listeners, fn)
	}
	c.subsMu.RUnlock()

	c.mu.Lock()
	apply()
	c.version++
	var snap domain.Snapshot
	if len(listeners) > 0 {
		snap = c.snapshotLocked()
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(change, snap)
	}
}

// Snapshot returns a deep copy of the current state.
func (c *Container) Snapshot() domain.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Container) snapshotLocked() domain.Snapshot {
	snap := domain.Snapshot{
		Version:         c.version,
		UserID:          c.userID,
		Messages:        cloneSlice(c.messages),
		IsLoading:       c.isLoading,
		SensorHistory:   c.history.Items(),
		Recommendations: cloneSlice(c.recommendations),
		PrepTime:        c.prepTime,
		IsListening:     c.isListening,
	}
	if c.sensorData != nil {
		r := *c.sensorData
		snap.SensorData = &r
	}
	return snap
}

// UserID returns the session identity.
func (c *Container) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// PrepTime returns the prep-time preference in minutes.
func (c *Container) PrepTime() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prepTime
}

// IsLoading returns true while a chat request is in flight.
func (c *Container) IsLoading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isLoading
}

// IsListening mirrors the voice capability's active state.
func (c *Container) IsListening() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isListening
}

// SensorData returns the live reading, or nil before the first one.
func (c *Container) SensorData() *domain.SensorReading {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sensorData == nil {
		return nil
	}
	r := *c.sensorData
	return &r
}

// SensorHistory returns the bounded history, oldest first.
func (c *Container) SensorHistory() []domain.SensorReading {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.history.Items()
}

// Messages returns the conversation in append order.
func (c *Container) Messages() []domain.ChatMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneSlice(c.messages)
}

// Recommendations returns the current recommendation set.
func (c *Container) Recommendations() []domain.FoodRecommendation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneSlice(c.recommendations)
}

// AppendMessage appends m to the conversation.
func (c *Container) AppendMessage(m domain.ChatMessage) {
	c.mutate(ChangeMessages, func() {
		c.messages = append(c.messages, m)
	})
}

// ClearMessages empties the conversation.
func (c *Container) ClearMessages() {
	c.mutate(ChangeMessages, func() {
		c.messages = nil
	})
}

// SetLoading sets the chat loading flag.
func (c *Container) SetLoading(loading bool) {
	c.mutate(ChangeLoading, func() {
		c.isLoading = loading
	})
}

// SetSensorData makes r the live reading and appends it to the history.
func (c *Container) SetSensorData(r domain.SensorReading) {
	c.mutate(ChangeSensorData|ChangeSensorHistory, func() {
		live := r
		c.sensorData = &live
		c.history.Push(r)
	})
}

// AppendSensorHistory appends r to the history, evicting the oldest entry
// once capacity is reached.
func (c *Container) AppendSensorHistory(r domain.SensorReading) {
	c.mutate(ChangeSensorHistory, func() {
		c.history.Push(r)
	})
}

// SetRecommendations replaces the recommendation set wholesale.
func (c *Container) SetRecommendations(recs []domain.FoodRecommendation) {
	c.mutate(ChangeRecommendations, func() {
		c.recommendations = cloneSlice(recs)
	})
}

// SetPrepTime sets the prep-time preference.
func (c *Container) SetPrepTime(minutes int) {
	c.mutate(ChangePrepTime, func() {
		c.prepTime = minutes
	})
}

// SetListening sets the voice listening flag.
func (c *Container) SetListening(listening bool) {
	c.mutate(ChangeListening, func() {
		c.isListening = listening
	})
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
