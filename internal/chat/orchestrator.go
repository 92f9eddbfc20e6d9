// Package chat runs conversational turns against the assistant backend and
// records them in the session store.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/nutribot/internal/backend"
	"github.com/ashureev/nutribot/internal/domain"
)

// ApologyText is the agent message appended when a turn fails.
const ApologyText = "Lo siento, hubo un error al procesar tu mensaje. Por favor, intenta de nuevo."

var (
	// ErrEmptyMessage rejects empty or whitespace-only input.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrTurnInFlight rejects input while another turn is being sent.
	ErrTurnInFlight = errors.New("a chat turn is already in flight")
)

// Phase is the per-turn state of the orchestrator.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSending
)

func (p Phase) String() string {
	if p == PhaseSending {
		return "sending"
	}
	return "idle"
}

// Store is the slice of the session container the orchestrator needs.
type Store interface {
	UserID() string
	PrepTime() int
	Messages() []domain.ChatMessage
	AppendMessage(m domain.ChatMessage)
	ClearMessages()
	SetLoading(loading bool)
	SetRecommendations(recs []domain.FoodRecommendation)
}

// Turn is the outcome of one accepted Send.
type Turn struct {
	User   domain.ChatMessage `json:"user"`
	Agent  domain.ChatMessage `json:"agent"`
	Failed bool               `json:"failed"`
	Err    error              `json:"-"`
}

// Orchestrator runs at most one chat turn at a time.
type Orchestrator struct {
	assistant backend.Assistant
	store     Store
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	phase Phase
	seq   uint64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the clock used for message ids and timestamps.
func WithClock(fn func() time.Time) Option {
	return func(o *Orchestrator) { o.now = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an orchestrator.
func New(assistant backend.Assistant, store Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		assistant: assistant,
		store:     store,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Phase returns the current turn phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Send runs one turn. Rejected input returns ErrEmptyMessage or
// ErrTurnInFlight without touching the store. An accepted turn always
// appends exactly one user and one agent message; a backend failure yields
// the apology message and a Turn with Failed set, not an error.
func (o *Orchestrator) Send(ctx context.Context, text string) (*Turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	o.mu.Lock()
	if o.phase == PhaseSending {
		o.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	o.phase = PhaseSending
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.phase = PhaseIdle
		o.mu.Unlock()
	}()

	turn := &Turn{User: o.message(domain.RoleUser, text, "user")}
	o.store.AppendMessage(turn.User)

	o.store.SetLoading(true)
	defer o.store.SetLoading(false)

	userID := o.store.UserID()
	resp, err := o.call(ctx, backend.ChatRequest{
		UserID:            userID,
		Message:           text,
		PrepTimeAvailable: o.store.PrepTime(),
	})
	if err != nil {
		o.logger.Warn("Chat turn failed",
			"user_id", userID,
			"error", err,
		)
		turn.Agent = o.message(domain.RoleAgent, ApologyText, "error")
		turn.Failed = true
		turn.Err = err
		o.store.AppendMessage(turn.Agent)
		return turn, nil
	}

	turn.Agent = o.message(domain.RoleAgent, resp.AgentResponse, "agent")
	turn.Agent.Intent = resp.Intent
	if len(resp.Recommendations) > 0 {
		turn.Agent.Recommendations = resp.Recommendations
	}
	o.store.AppendMessage(turn.Agent)
	if len(resp.Recommendations) > 0 {
		o.store.SetRecommendations(resp.Recommendations)
	}

	o.logger.Info("Chat turn completed",
		"user_id", userID,
		"intent", resp.Intent,
		"recommendations", len(resp.Recommendations),
	)
	return turn, nil
}

// call converts a panicking assistant into an ordinary failure so the turn
// still ends with an agent message.
func (o *Orchestrator) call(ctx context.Context, req backend.ChatRequest) (resp *backend.ChatResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("assistant panic: %v", r)
		}
	}()
	resp, err = o.assistant.Chat(ctx, req)
	if err == nil && resp == nil {
		err = errors.New("assistant returned no response")
	}
	return resp, err
}

func (o *Orchestrator) message(role domain.Role, content, kind string) domain.ChatMessage {
	now := o.now()
	o.mu.Lock()
	o.seq++
	seq := o.seq
	o.mu.Unlock()
	return domain.ChatMessage{
		ID:        "msg_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + strconv.FormatUint(seq, 10) + "_" + kind,
		Role:      role,
		Content:   content,
		Timestamp: now,
	}
}

// Reset clears the conversation and the recommendation set. Identity,
// sensor data and settings are kept.
func (o *Orchestrator) Reset() {
	o.store.ClearMessages()
	o.store.SetRecommendations(nil)
}
