// Package repositories implements the durable state store for the pipeline.
//
// Two repositories back the two tables: media_items keyed by source URL and
// upload_status keyed by (url, target_id). Every write is a single atomic
// insert-or-update statement so a crash between pipeline steps always
// leaves the store at the last fully committed step. The Store facade adds
// the cross-table operations: combined reads, reconciliation of aggregate
// status, and the retention sweep.
package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Store bundles the two repositories over one database handle.
type Store struct {
	db      *sql.DB
	Media   *MediaRepository
	Uploads *UploadRepository
}

// NewStore creates a Store over an open database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:      db,
		Media:   NewMediaRepository(db),
		Uploads: NewUploadRepository(db),
	}
}

// nullString converts an empty string to SQL NULL so COALESCE-merge
// semantics treat it as "not provided".
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// marshalMetadata serializes the metadata map to its JSON column value, or
// NULL when absent.
func marshalMetadata(meta map[string]any) (any, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(data), nil
}

// unmarshalMetadata parses a JSON metadata column. Corrupt stored metadata
// degrades to an empty map rather than failing the read.
func unmarshalMetadata(raw sql.NullString) map[string]any {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(raw.String), &meta); err != nil {
		return map[string]any{}
	}
	return meta
}

// timePtr converts a nullable column to a *time.Time.
func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
