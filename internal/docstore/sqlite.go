package docstore

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// KindPresetDocument is the resource_state kind used for preset documents.
const KindPresetDocument = "preset_document"

// SQLite keeps documents in the resource_state table under one kind.
// Every write bumps the row version.
type SQLite struct {
	db   *sql.DB
	kind string
	mu   sync.RWMutex

	watchers watchers
}

// NewSQLite creates a store for documents of kind.
func NewSQLite(db *sql.DB, kind string) *SQLite {
	return &SQLite{db: db, kind: kind}
}

// Get returns the document at key. exists is false when there is none.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, _, err := s.GetVersion(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return data, data != nil, nil
}

// GetVersion returns the document and its version, or nil and 0 if not found.
func (s *SQLite) GetVersion(ctx context.Context, key string) ([]byte, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	var version int64
	err := s.db.QueryRowContext(ctx, `
		SELECT payload, version FROM resource_state
		WHERE kind = ? AND id = ?
	`, s.kind, key).Scan(&payload, &version)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return []byte(payload), version, nil
}

// Put stores data at key and notifies watchers.
func (s *SQLite) Put(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resource_state (kind, id, payload, version, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			payload = excluded.payload,
			version = version + 1,
			updated_at = excluded.updated_at
	`, s.kind, key, string(data), time.Now().UTC().Unix())
	s.mu.Unlock()

	if err != nil {
		return err
	}

	log.Debug().Str("kind", s.kind).Str("id", key).Int("bytes", len(data)).Msg("Document stored")
	s.watchers.notify(key, data, true)
	return nil
}

// Delete removes the document at key and notifies watchers.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM resource_state WHERE kind = ? AND id = ?
	`, s.kind, key)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.watchers.notify(key, nil, false)
	return nil
}

// Watch registers fn for changes to key.
func (s *SQLite) Watch(key string, fn func(data []byte, exists bool)) func() {
	return s.watchers.add(key, fn)
}
