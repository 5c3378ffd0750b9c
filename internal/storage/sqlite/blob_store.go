package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/pyquest/internal/domain"
)

// BlobStore implements progress blob persistence backed by SQLite.
type BlobStore struct {
	db *DB
}

// NewBlobStore creates a new SQLite-backed blob store.
func NewBlobStore(db *DB) *BlobStore {
	return &BlobStore{db: db}
}

// Put stores a blob (insert or replace).
func (s *BlobStore) Put(ctx context.Context, collection, key string, blob []byte) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs (collection, key, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, key) DO UPDATE SET
			data=excluded.data,
			updated_at=excluded.updated_at`,
		collection, key, blob, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert blob: %w", err)
	}
	return nil
}

// Get retrieves a blob.
func (s *BlobStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM blobs WHERE collection = ? AND key = ?", collection, key,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get blob: %w", err)
	}
	return data, nil
}

// Delete removes a blob.
func (s *BlobStore) Delete(ctx context.Context, collection, key string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM blobs WHERE collection = ? AND key = ?", collection, key)
	if err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Keys lists the keys of a collection in order.
func (s *BlobStore) Keys(ctx context.Context, collection string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key FROM blobs WHERE collection = ? ORDER BY key", collection)
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan blob key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
