// Package realtime pushes session state to connected dashboards over
// WebSocket and relays speech engine traffic between the browser and the
// voice adapter.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/nutribot/internal/domain"
	"github.com/ashureev/nutribot/internal/state"
	"github.com/ashureev/nutribot/internal/voice"
)

// ErrNoClients is returned when a voice command has nowhere to go.
var ErrNoClients = errors.New("no dashboard connected")

const (
	sendBuffer   = 16
	writeTimeout = 5 * time.Second
)

// Frame types.
const (
	TypeState        = "state"
	TypeVoiceCommand = "voice_command"
	TypeVoiceState   = "voice_state"
	TypePing         = "ping"
	TypePong         = "pong"
)

// StateSource is the container the hub mirrors.
type StateSource interface {
	Snapshot() domain.Snapshot
	Subscribe(fn state.Listener) (unsubscribe func())
}

// VoiceReporter receives speech engine state reported by the browser.
type VoiceReporter interface {
	Report(st voice.State)
}

// ViewFunc renders a snapshot into the payload of a state frame.
type ViewFunc func(snap domain.Snapshot) any

type stateFrame struct {
	Type  string `json:"type"`
	State any    `json:"state"`
}

type commandFrame struct {
	Type string `json:"type"`
	voice.Command
}

type inboundFrame struct {
	Type       string `json:"type"`
	Listening  bool   `json:"listening"`
	Transcript string `json:"transcript"`
}

type client struct {
	id   uint64
	conn *websocket.Conn
	send chan []byte

	// version of the newest state frame queued to this client, guarded by
	// Hub.frameMu.
	version uint64
}

// Hub tracks dashboard connections.
type Hub struct {
	source         StateSource
	reporter       VoiceReporter
	view           ViewFunc
	originPatterns []string
	logger         *slog.Logger

	mu      sync.RWMutex
	clients map[uint64]*client
	nextID  uint64

	// frameMu orders state frames. Listeners run outside the container lock,
	// so two mutations can reach observe in either order.
	frameMu     sync.Mutex
	lastVersion uint64

	unsubscribe func()
	closeOnce   sync.Once
}

// Option configures a Hub.
type Option func(*Hub)

// WithReporter routes voice_state frames to r.
func WithReporter(r VoiceReporter) Option {
	return func(h *Hub) { h.reporter = r }
}

// WithView sets how snapshots are rendered into state frames.
func WithView(fn ViewFunc) Option {
	return func(h *Hub) { h.view = fn }
}

// WithOriginPatterns restricts the origins allowed to connect.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) { h.originPatterns = patterns }
}

// WithLogger sets the hub logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// NewHub creates a hub and subscribes it to source.
func NewHub(source StateSource, opts ...Option) *Hub {
	h := &Hub{
		source:         source,
		view:           func(snap domain.Snapshot) any { return snap },
		originPatterns: []string{"*"},
		logger:         slog.Default(),
		clients:        make(map[uint64]*client),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.unsubscribe = source.Subscribe(h.observe)
	return h
}

// SetReporter installs the voice reporter after construction.
func (h *Hub) SetReporter(r VoiceReporter) {
	h.mu.Lock()
	h.reporter = r
	h.mu.Unlock()
}

// SetView replaces the state frame renderer after construction.
func (h *Hub) SetView(fn ViewFunc) {
	h.mu.Lock()
	h.view = fn
	h.mu.Unlock()
}

// Clients returns the number of connected dashboards.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// observe publishes snap unless a newer snapshot was already published.
func (h *Hub) observe(_ state.Change, snap domain.Snapshot) {
	h.frameMu.Lock()
	defer h.frameMu.Unlock()
	if snap.Version <= h.lastVersion {
		return
	}
	h.lastVersion = snap.Version

	data, err := h.stateFrame(snap)
	if err != nil {
		h.logger.Warn("Failed to encode state frame", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if snap.Version <= c.version {
			continue
		}
		c.version = snap.Version
		enqueue(c, data)
	}
}

func (h *Hub) stateFrame(snap domain.Snapshot) ([]byte, error) {
	h.mu.RLock()
	view := h.view
	h.mu.RUnlock()
	return json.Marshal(stateFrame{Type: TypeState, State: view(snap)})
}

// SendVoiceCommand broadcasts cmd to every connected dashboard.
func (h *Hub) SendVoiceCommand(ctx context.Context, cmd voice.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(commandFrame{Type: TypeVoiceCommand, Command: cmd})
	if err != nil {
		return err
	}
	if h.broadcast(data) == 0 {
		return ErrNoClients
	}
	return nil
}

// broadcast enqueues data on every client and returns how many accepted it.
// A client whose buffer is full loses its oldest pending frame.
func (h *Hub) broadcast(data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		enqueue(c, data)
	}
	return len(h.clients)
}

func enqueue(c *client, data []byte) {
	for {
		select {
		case c.send <- data:
			return
		default:
		}
		select {
		case <-c.send:
		default:
		}
	}
}

func (h *Hub) register(conn *websocket.Conn) *client {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	c := &client{id: h.nextID, conn: conn, send: make(chan []byte, sendBuffer)}
	h.clients[c.id] = c
	h.logger.Info("Dashboard connected", "client_id", c.id, "clients", len(h.clients))
	return c
}

// join registers conn and queues the current state as its first frame.
// Holding frameMu keeps an older in-flight broadcast from landing after it.
func (h *Hub) join(conn *websocket.Conn) (*client, error) {
	h.frameMu.Lock()
	defer h.frameMu.Unlock()

	snap := h.source.Snapshot()
	initial, err := h.stateFrame(snap)
	if err != nil {
		return nil, err
	}
	c := h.register(conn)
	c.version = snap.Version
	enqueue(c, initial)
	return c, nil
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	h.logger.Info("Dashboard disconnected", "client_id", c.id, "clients", len(h.clients))
}

// ServeHTTP upgrades the request and runs the connection until either side
// closes it.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("WebSocket close error", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c, err := h.join(ws)
	if err != nil {
		h.logger.Warn("Failed to encode state frame", "error", err)
		return
	}
	defer h.unregister(c)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		h.writeLoop(ctx, c)
	}()

	h.readLoop(ctx, c)
	cancel()
	wg.Wait()
}

func (h *Hub) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				h.logger.Debug("WebSocket write error", "error", err, "client_id", c.id)
				return
			}
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	for {
		_, message, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				h.logger.Debug("WebSocket closed", "client_id", c.id)
			} else {
				h.logger.Warn("WebSocket read error", "error", err, "client_id", c.id)
			}
			return
		}

		var msg inboundFrame
		if err := json.Unmarshal(message, &msg); err != nil {
			h.logger.Debug("Ignoring malformed frame", "error", err, "client_id", c.id)
			continue
		}

		switch msg.Type {
		case TypePing:
			data, _ := json.Marshal(map[string]string{"type": TypePong})
			enqueue(c, data)
		case TypeVoiceState:
			h.mu.RLock()
			reporter := h.reporter
			h.mu.RUnlock()
			if reporter != nil {
				reporter.Report(voice.State{Listening: msg.Listening, Transcript: msg.Transcript})
			}
		default:
			h.logger.Debug("Ignoring frame", "type", msg.Type, "client_id", c.id)
		}
	}
}

// Close detaches from the state source and disconnects every dashboard.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.unsubscribe()
		h.mu.Lock()
		clients := make([]*client, 0, len(h.clients))
		for _, c := range h.clients {
			clients = append(clients, c)
		}
		h.mu.Unlock()
		for _, c := range clients {
			if err := c.conn.Close(websocket.StatusGoingAway, "server shutting down"); err != nil {
				h.logger.Debug("WebSocket close error", "error", err, "client_id", c.id)
			}
		}
	})
}
