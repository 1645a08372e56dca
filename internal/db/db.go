// Package db provides PostgreSQL storage for per-user scheduling metadata.
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema creates the metadata table if it is missing.
const schema = `CREATE TABLE IF NOT EXISTS user_metadata (
	user_id    TEXT PRIMARY KEY,
	metadata   JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// ErrEmptyUserID is returned when a query is issued without a user ID.
var ErrEmptyUserID = errors.New("user id is required")

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// UserMetadata is one stored metadata document.
type UserMetadata struct {
	UserID    string          `json:"user_id"`
	Metadata  json.RawMessage `json:"metadata"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// EnsureSchema creates the user_metadata table.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create user_metadata table: %w", err)
	}
	return nil
}

// GetUserMetadata returns the stored document for userID, or nil if the user
// has never saved anything.
func (db *DB) GetUserMetadata(ctx context.Context, userID string) (*UserMetadata, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	var m UserMetadata
	err := db.pool.QueryRow(ctx,
		`SELECT user_id, metadata, updated_at FROM user_metadata WHERE user_id = $1`,
		userID,
	).Scan(&m.UserID, &m.Metadata, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get metadata for %s: %w", userID, err)
	}
	return &m, nil
}

// PutUserMetadata replaces the stored document for userID.
func (db *DB) PutUserMetadata(ctx context.Context, userID string, metadata json.RawMessage) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrEmptyUserID
	}
	if !json.Valid(metadata) {
		return fmt.Errorf("metadata for %s is not valid JSON", userID)
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO user_metadata (user_id, metadata, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET metadata = $2, updated_at = NOW()`,
		userID, []byte(metadata),
	)
	if err != nil {
		return fmt.Errorf("failed to save metadata for %s: %w", userID, err)
	}
	return nil
}

// DeleteUserMetadata removes the stored document for userID.
func (db *DB) DeleteUserMetadata(ctx context.Context, userID string) error {
	result, err := db.pool.Exec(ctx, `DELETE FROM user_metadata WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("metadata not found: %s", userID)
	}
	return nil
}
