// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/nutribot/internal/domain"
)

// Repository persists the durable session projection.
type Repository interface {
	// LoadState returns the stored projection, or nil if none was saved yet.
	LoadState(ctx context.Context) (*domain.PersistedState, error)

	// SaveState replaces the stored projection atomically.
	SaveState(ctx context.Context, state *domain.PersistedState) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
