package metadata

import (
	"context"
	"encoding/json"

	"github.com/jonathan/cab-scheduler/internal/db"
)

// UserMetadataDB is the subset of *db.DB the Postgres store needs.
type UserMetadataDB interface {
	GetUserMetadata(ctx context.Context, userID string) (*db.UserMetadata, error)
	PutUserMetadata(ctx context.Context, userID string, metadata json.RawMessage) error
}

// PostgresStore keeps documents in the user_metadata table.
type PostgresStore struct {
	db UserMetadataDB
}

// NewPostgresStore wraps a database handle.
func NewPostgresStore(database UserMetadataDB) *PostgresStore {
	return &PostgresStore{db: database}
}

// Get returns the stored document, or nil if no row exists.
func (s *PostgresStore) Get(ctx context.Context, userID string) (json.RawMessage, error) {
	userID, err := checkUserID(userID)
	if err != nil {
		return nil, err
	}
	row, err := s.db.GetUserMetadata(ctx, userID)
	if err != nil {
		return nil, err
	}
	if row == nil || isEmptyDocument(row.Metadata) {
		return nil, nil
	}
	return row.Metadata, nil
}

// Put upserts the document.
func (s *PostgresStore) Put(ctx context.Context, userID string, blob json.RawMessage) error {
	userID, err := checkUserID(userID)
	if err != nil {
		return err
	}
	return s.db.PutUserMetadata(ctx, userID, blob)
}
