package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/nutribot/internal/domain"
	_ "modernc.org/sqlite"
)

var _ Repository = (*SQLiteStore)(nil)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes SaveState to avoid SQLITE_BUSY between our own writers
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS client_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		user_id TEXT NOT NULL,
		prep_time INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sensor_history (
		seq INTEGER PRIMARY KEY,
		oxygen_level REAL NOT NULL,
		heart_rate REAL NOT NULL,
		temperature REAL NOT NULL,
		recorded_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LoadState retrieves the stored projection. It returns nil, nil when
// nothing has been saved.
func (s *SQLiteStore) LoadState(ctx context.Context) (*domain.PersistedState, error) {
	row := s.db.QueryRowContext(ctx, `SELECT user_id, prep_time FROM client_state WHERE id = 1`)

	var st domain.PersistedState
	err := row.Scan(&st.UserID, &st.PrepTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan client state: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT oxygen_level, heart_rate, temperature, recorded_at
		FROM sensor_history ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query sensor history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	st.SensorHistory = []domain.SensorReading{}
	for rows.Next() {
		var r domain.SensorReading
		var recordedAt int64
		if err := rows.Scan(&r.OxygenLevel, &r.HeartRate, &r.Temperature, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan sensor history row: %w", err)
		}
		r.Timestamp = time.UnixMilli(recordedAt)
		st.SensorHistory = append(st.SensorHistory, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sensor history: %w", err)
	}

	return &st, nil
}

// SaveState replaces the stored projection in one transaction.
// Implements retry logic with exponential backoff to handle SQLITE_BUSY errors.
func (s *SQLiteStore) SaveState(ctx context.Context, state *domain.PersistedState) error {
	if state == nil {
		return errors.New("save state: nil state")
	}
	if err := withRetry(ctx, "save_state", func() error {
		return s.saveStateOnce(ctx, state)
	}); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) saveStateOnce(ctx context.Context, state *domain.PersistedState) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO client_state (id, user_id, prep_time, updated_at)
	VALUES (1, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		user_id = excluded.user_id,
		prep_time = excluded.prep_time,
		updated_at = excluded.updated_at`,
		state.UserID, state.PrepTime, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert client state: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sensor_history`); err != nil {
		return fmt.Errorf("clear sensor history: %w", err)
	}

	if len(state.SensorHistory) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sensor_history (seq, oxygen_level, heart_rate, temperature, recorded_at)
		VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare sensor history insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for i, r := range state.SensorHistory {
			if _, err := stmt.ExecContext(ctx, i, r.OxygenLevel, r.HeartRate, r.Temperature, r.Timestamp.UnixMilli()); err != nil {
				return fmt.Errorf("insert sensor history row: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
