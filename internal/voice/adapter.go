// Package voice wraps an optional speech-to-text capability and hands
// finalized utterances to the conversation orchestrator.
package voice

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/nutribot/internal/chat"
)

// DefaultLanguage is the recognition locale used when none is configured.
const DefaultLanguage = "es-ES"

const handoffTimeout = 60 * time.Second

// ErrUnsupported is returned by every control when no capability is present.
var ErrUnsupported = errors.New("speech recognition is not supported")

// State is what a capability reports about its capture session.
type State struct {
	Listening  bool   `json:"listening"`
	Transcript string `json:"transcript"`
}

// Options configures a capture session.
type Options struct {
	Language   string `json:"language"`
	Continuous bool   `json:"continuous"`
}

// Capability is a host speech-to-text engine.
type Capability interface {
	Start(ctx context.Context, opts Options) error
	Stop(ctx context.Context) error
	ResetTranscript()
	// Subscribe registers fn for state reports and returns a function that
	// removes it.
	Subscribe(fn func(State)) (unsubscribe func())
}

// Submitter receives finalized utterances.
type Submitter interface {
	Send(ctx context.Context, text string) (*chat.Turn, error)
}

// ListeningStore mirrors the capture state.
type ListeningStore interface {
	SetListening(listening bool)
}

// Session is the adapter's view of the capture session.
type Session int

const (
	Stopped Session = iota
	Listening
)

func (s Session) String() string {
	if s == Listening {
		return "listening"
	}
	return "stopped"
}

// Adapter drives a Capability with a start/stop/toggle contract. A nil
// capability makes the adapter permanently unsupported.
type Adapter struct {
	capability Capability
	store      ListeningStore
	submitter  Submitter
	language   string
	logger     *slog.Logger

	mu         sync.Mutex
	session    Session
	transcript string

	unsubscribe func()
	handoffs    sync.WaitGroup
}

// NewAdapter creates an adapter. capability may be nil.
func NewAdapter(capability Capability, store ListeningStore, submitter Submitter, language string, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if language == "" {
		language = DefaultLanguage
	}
	a := &Adapter{
		capability: capability,
		store:      store,
		submitter:  submitter,
		language:   language,
		logger:     logger,
	}
	if capability != nil {
		a.unsubscribe = capability.Subscribe(a.observe)
	}
	return a
}

// IsSupported reports whether a capability is present.
func (a *Adapter) IsSupported() bool {
	return a.capability != nil
}

// Language returns the recognition locale.
func (a *Adapter) Language() string {
	return a.language
}

// IsListening reports whether a capture session is active.
func (a *Adapter) IsListening() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session == Listening
}

// Transcript returns the live transcript of the current session.
func (a *Adapter) Transcript() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transcript
}

// Start clears any pending transcript and starts a single-utterance capture.
func (a *Adapter) Start(ctx context.Context) error {
	if !a.IsSupported() {
		return ErrUnsupported
	}
	a.mu.Lock()
	a.transcript = ""
	a.mu.Unlock()
	a.capability.ResetTranscript()

	return a.capability.Start(ctx, Options{Language: a.language, Continuous: false})
}

// Stop ends the capture session.
func (a *Adapter) Stop(ctx context.Context) error {
	if !a.IsSupported() {
		return ErrUnsupported
	}
	return a.capability.Stop(ctx)
}

// Toggle stops when listening and starts otherwise.
func (a *Adapter) Toggle(ctx context.Context) error {
	if a.IsListening() {
		return a.Stop(ctx)
	}
	return a.Start(ctx)
}

func (a *Adapter) observe(st State) {
	a.mu.Lock()
	prev := a.session
	next := Stopped
	if st.Listening {
		next = Listening
	}
	a.session = next
	a.transcript = st.Transcript

	var finalized string
	if prev == Listening && next == Stopped {
		finalized = strings.TrimSpace(a.transcript)
		a.transcript = ""
	}
	a.mu.Unlock()

	if prev != next && a.store != nil {
		a.store.SetListening(next == Listening)
	}
	if finalized == "" {
		return
	}

	a.capability.ResetTranscript()
	a.handoff(finalized)
}

func (a *Adapter) handoff(text string) {
	if a.submitter == nil {
		return
	}
	a.handoffs.Add(1)
	go func() {
		defer a.handoffs.Done()
		ctx, cancel := context.WithTimeout(context.Background(), handoffTimeout)
		defer cancel()
		if _, err := a.submitter.Send(ctx, text); err != nil {
			a.logger.Warn("Voice transcript rejected", "error", err)
		}
	}()
}

// Close detaches from the capability and waits for pending hand-offs.
func (a *Adapter) Close() {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	a.handoffs.Wait()
}
