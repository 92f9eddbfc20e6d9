package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/nutribot/internal/domain"
	"github.com/ashureev/nutribot/internal/state"
	"github.com/ashureev/nutribot/internal/store"
)

const (
	saveTimeout     = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Persister writes the durable projection in the background whenever a
// container mutation touches it. Pending writes are coalesced so only the
// newest projection is saved. Failures are logged and never surfaced.
type Persister struct {
	repo   store.Repository
	logger *slog.Logger

	mu             sync.Mutex
	pending        *domain.PersistedState
	pendingVersion uint64

	writeMu      sync.Mutex
	savedVersion uint64

	notify chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	unsubscribe func()
	closeOnce   sync.Once
}

// NewPersister starts a persister writing to repo.
func NewPersister(repo store.Repository, logger *slog.Logger) *Persister {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Persister{
		repo:   repo,
		logger: logger,
		notify: make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}

	p.wg.Add(1)
	go p.run()

	return p
}

// Attach subscribes the persister to c. Only one container may be attached.
func (p *Persister) Attach(c *state.Container) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
	p.unsubscribe = c.Subscribe(p.Observe)
}

// Observe is a state.Listener that queues the projection of snap.
func (p *Persister) Observe(change state.Change, snap domain.Snapshot) {
	if !change.Persisted() {
		return
	}

	proj := snap.Persisted()
	p.mu.Lock()
	// Listeners may observe concurrent mutations out of order.
	if snap.Version > p.pendingVersion {
		p.pending = &proj
		p.pendingVersion = snap.Version
	}
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
		// A write is already signalled; it will pick up the newest projection.
	}
}

func (p *Persister) run() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.notify:
			p.writePending(p.ctx)
		}
	}
}

func (p *Persister) takePending() (*domain.PersistedState, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, v := p.pending, p.pendingVersion
	p.pending = nil
	return st, v
}

func (p *Persister) writePending(ctx context.Context) {
	st, version := p.takePending()
	if st == nil {
		return
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if version <= p.savedVersion {
		return
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	start := time.Now()
	if err := p.repo.SaveState(saveCtx, st); err != nil {
		p.logger.Warn("Failed to persist session state",
			"user_id", st.UserID,
			"version", version,
			"error", err,
		)
		return
	}
	p.savedVersion = version

	p.logger.Debug("Persisted session state",
		"user_id", st.UserID,
		"version", version,
		"history_len", len(st.SensorHistory),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Flush synchronously writes any pending projection.
func (p *Persister) Flush(ctx context.Context) {
	p.writePending(ctx)
}

// Close detaches from the container, flushes the pending projection and
// stops the background writer.
func (p *Persister) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		if p.unsubscribe != nil {
			p.unsubscribe()
			p.unsubscribe = nil
		}
		p.mu.Unlock()

		p.cancel()

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(shutdownTimeout):
			p.logger.Warn("Persister shutdown timeout")
		}

		p.Flush(context.Background())
		p.logger.Info("Persister stopped")
	})
	return nil
}
