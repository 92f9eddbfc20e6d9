// Package session restores the durable session projection at boot and keeps
// it written back as the state container changes.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/nutribot/internal/domain"
	"github.com/ashureev/nutribot/internal/identity"
	"github.com/ashureev/nutribot/internal/store"
)

// Defaults supplies the values used when the stored projection is absent or
// a field is malformed.
type Defaults struct {
	PrepTime int
}

// Restore loads the persisted projection, falling back field by field to
// defaults. It never fails: storage errors are logged and treated as an
// empty store. A freshly generated identity is written back immediately.
// A nil logger uses slog.Default.
func Restore(ctx context.Context, repo store.Repository, defaults Defaults, logger *slog.Logger) domain.PersistedState {
	if logger == nil {
		logger = slog.Default()
	}
	prepDefault := defaults.PrepTime
	if prepDefault <= 0 {
		prepDefault = domain.DefaultPrepTime
	}

	var stored *domain.PersistedState
	if repo != nil {
		st, err := repo.LoadState(ctx)
		if err != nil {
			logger.Warn("Failed to load persisted session, starting fresh", "error", err)
		} else {
			stored = st
		}
	}

	out := domain.PersistedState{
		PrepTime:      prepDefault,
		SensorHistory: []domain.SensorReading{},
	}
	generated := false

	if stored != nil && identity.IsValidSessionID(stored.UserID) {
		out.UserID = stored.UserID
		if created, ok := identity.CreatedAt(out.UserID); ok {
			logger.Info("Resumed session identity", "user_id", out.UserID, "age", time.Since(created).Round(time.Second))
		}
	} else {
		if stored != nil {
			logger.Warn("Discarding malformed persisted user id", "user_id", stored.UserID)
		}
		out.UserID = identity.NewSessionID()
		generated = true
	}

	if stored != nil {
		if stored.PrepTime > 0 {
			out.PrepTime = stored.PrepTime
		} else {
			logger.Warn("Discarding invalid persisted prep time", "prep_time", stored.PrepTime)
		}
		out.SensorHistory = newest(stored.SensorHistory, domain.SensorHistoryCapacity)
	}

	if generated && repo != nil {
		if err := repo.SaveState(ctx, &out); err != nil {
			logger.Warn("Failed to persist new session identity", "user_id", out.UserID, "error", err)
		} else {
			logger.Info("Created new session identity", "user_id", out.UserID)
		}
	}

	return out
}

func newest(history []domain.SensorReading, capacity int) []domain.SensorReading {
	if len(history) > capacity {
		history = history[len(history)-capacity:]
	}
	out := make([]domain.SensorReading, len(history))
	copy(out, history)
	return out
}
