package voice

import (
	"context"
	"sync"
)

// Command actions sent to a remote speech engine.
const (
	CommandStart = "start"
	CommandStop  = "stop"
)

// Command instructs a remote speech engine.
type Command struct {
	Command    string `json:"command"`
	Language   string `json:"language,omitempty"`
	Continuous bool   `json:"continuous"`
}

// Commander delivers commands to the remote engine.
type Commander interface {
	SendVoiceCommand(ctx context.Context, cmd Command) error
}

// Remote is a Capability backed by a speech engine in a connected browser.
// Commands go out through a Commander and the browser reports its state
// back through Report.
type Remote struct {
	commander Commander

	mu      sync.Mutex
	state   State
	subs    map[int]func(State)
	nextSub int
}

// NewRemote creates a remote capability.
func NewRemote(commander Commander) *Remote {
	return &Remote{
		commander: commander,
		subs:      make(map[int]func(State)),
	}
}

// Start asks the browser to begin capture.
func (r *Remote) Start(ctx context.Context, opts Options) error {
	return r.commander.SendVoiceCommand(ctx, Command{
		Command:    CommandStart,
		Language:   opts.Language,
		Continuous: opts.Continuous,
	})
}

// Stop asks the browser to end capture.
func (r *Remote) Stop(ctx context.Context) error {
	return r.commander.SendVoiceCommand(ctx, Command{Command: CommandStop})
}

// ResetTranscript drops the last reported transcript.
func (r *Remote) ResetTranscript() {
	r.mu.Lock()
	r.state.Transcript = ""
	r.mu.Unlock()
}

// Subscribe registers fn for state reports.
func (r *Remote) Subscribe(fn func(State)) func() {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
		})
	}
}

// State returns the last reported state.
func (r *Remote) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Report records a state update from the browser and notifies subscribers.
func (r *Remote) Report(st State) {
	r.mu.Lock()
	r.state = st
	subs := make([]func(State), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}
