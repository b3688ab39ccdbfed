package downloads

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fasttube/fasttube/internal/database"
)

// SQLStore mirrors the record set into the download_state table. Records are
// stored as one JSON blob per id: the coordinator always rewrites the whole
// set, so there is nothing to query inside the blob.
type SQLStore struct {
	db *database.DB
}

// NewSQLStore creates a store backed by the given database.
func NewSQLStore(db *database.DB) *SQLStore {
	return &SQLStore{db: db}
}

// SaveAll replaces the persisted record set in one transaction.
func (s *SQLStore) SaveAll(ctx context.Context, records map[string]*Record) error {
	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM download_state`); err != nil {
		return fmt.Errorf("clear download state: %w", err)
	}

	now := time.Now().UTC()
	for id, rec := range records {
		blob, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", id, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO download_state (id, record, updated_at) VALUES (?, ?, ?)`,
			id, string(blob), now,
		)
		if err != nil {
			return fmt.Errorf("insert record %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// Load reads the persisted record set. Rows that no longer decode are skipped
// rather than failing the whole restore.
func (s *SQLStore) Load(ctx context.Context) (map[string]*Record, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `SELECT id, record FROM download_state`)
	if err != nil {
		return nil, fmt.Errorf("query download state: %w", err)
	}
	defer rows.Close()

	records := make(map[string]*Record)
	for rows.Next() {
		var id, blob string
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scan download state: %w", err)
		}

		var rec Record
		if err := json.Unmarshal([]byte(blob), &rec); err != nil {
			continue
		}
		records[id] = &rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate download state: %w", err)
	}
	return records, nil
}

var _ Store = (*SQLStore)(nil)
