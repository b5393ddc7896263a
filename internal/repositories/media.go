package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/mbx/internal/models"
	"github.com/desertthunder/mbx/internal/shared"
)

// MediaRepository persists media items keyed by source URL.
type MediaRepository struct {
	db *sql.DB
}

// NewMediaRepository creates a new MediaRepository with the given database connection
func NewMediaRepository(db *sql.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

// MediaItemParams carries the fields of one media item write. Zero values
// mean "not provided" and preserve the stored value; Status is always
// written. An ErrorMessage marks the write as a failed attempt, which
// increments the stored retry count by exactly one.
type MediaItemParams struct {
	Title        string
	LocalPath    string
	SourceID     string
	ErrorMessage string
	Metadata     map[string]any
}

// Upsert inserts or merges a media item in a single atomic statement.
//
// Merge discipline (mirrored in the upload repository): non-null incoming
// fields overwrite, status always overwrites, error_message always
// overwrites (so a successful write clears a stale error), retry_count
// increments iff this write carries an error, and download_timestamp is
// set only when the item transitions to DOWNLOADED.
func (r *MediaRepository) Upsert(url string, status models.MediaStatus, p MediaItemParams) error {
	if url == "" {
		return fmt.Errorf("%w: url is required", shared.ErrInvalidArgument)
	}
	if err := status.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	meta, err := marshalMetadata(p.Metadata)
	if err != nil {
		return err
	}

	now := time.Now()
	var downloadedAt, errorAt any
	if status == models.StatusDownloaded {
		downloadedAt = now
	}
	if p.ErrorMessage != "" {
		errorAt = now
	}
	initialRetries := 0
	if p.ErrorMessage != "" {
		initialRetries = 1
	}

	query := `
		INSERT INTO media_items (
			url, title, local_path, status, source_id,
			download_timestamp, last_attempt_timestamp, error_message,
			retry_count, last_error_timestamp, metadata, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			title = COALESCE(excluded.title, title),
			local_path = COALESCE(excluded.local_path, local_path),
			status = excluded.status,
			source_id = COALESCE(excluded.source_id, source_id),
			download_timestamp = CASE excluded.status
				WHEN 'DOWNLOADED' THEN COALESCE(excluded.download_timestamp, download_timestamp)
				ELSE download_timestamp END,
			last_attempt_timestamp = excluded.last_attempt_timestamp,
			error_message = excluded.error_message,
			retry_count = retry_count + CASE WHEN excluded.error_message IS NOT NULL THEN 1 ELSE 0 END,
			last_error_timestamp = COALESCE(excluded.last_error_timestamp, last_error_timestamp),
			metadata = COALESCE(excluded.metadata, metadata),
			updated_at = excluded.updated_at
	`

	_, err = r.db.Exec(query,
		url,
		nullString(p.Title),
		nullString(p.LocalPath),
		status.String(),
		nullString(p.SourceID),
		downloadedAt,
		now,
		nullString(p.ErrorMessage),
		initialRetries,
		errorAt,
		meta,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert media item %s: %w", url, err)
	}

	return nil
}

// Get retrieves a media item by URL. Returns [shared.ErrItemNotFound] when
// the URL has never been seen.
func (r *MediaRepository) Get(url string) (*models.MediaItem, error) {
	query := `
		SELECT url, title, local_path, status, source_id, error_message,
			retry_count, download_timestamp, last_attempt_timestamp,
			last_error_timestamp, metadata, created_at, updated_at
		FROM media_items
		WHERE url = ?
	`

	item, err := scanMediaItem(r.db.QueryRow(query, url))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", shared.ErrItemNotFound, url)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get media item %s: %w", url, err)
	}

	return item, nil
}

// ListByStatus retrieves all media items with the given status. A
// non-negative maxRetries restricts the result to items at or below that
// retry count.
func (r *MediaRepository) ListByStatus(status models.MediaStatus, maxRetries int) ([]*models.MediaItem, error) {
	query := `
		SELECT url, title, local_path, status, source_id, error_message,
			retry_count, download_timestamp, last_attempt_timestamp,
			last_error_timestamp, metadata, created_at, updated_at
		FROM media_items
		WHERE status = ?
	`
	args := []any{status.String()}

	if maxRetries >= 0 {
		query += " AND retry_count <= ?"
		args = append(args, maxRetries)
	}
	query += " ORDER BY created_at ASC"

	return r.list(query, args)
}

// ListAll retrieves every tracked media item in creation order.
func (r *MediaRepository) ListAll() ([]*models.MediaItem, error) {
	query := `
		SELECT url, title, local_path, status, source_id, error_message,
			retry_count, download_timestamp, last_attempt_timestamp,
			last_error_timestamp, metadata, created_at, updated_at
		FROM media_items
		ORDER BY created_at ASC
	`

	return r.list(query, nil)
}

// ListFailed retrieves all media items in a failure state, optionally
// restricted to a retry ceiling.
func (r *MediaRepository) ListFailed(maxRetries int) ([]*models.MediaItem, error) {
	query := `
		SELECT url, title, local_path, status, source_id, error_message,
			retry_count, download_timestamp, last_attempt_timestamp,
			last_error_timestamp, metadata, created_at, updated_at
		FROM media_items
		WHERE status IN (?, ?)
	`
	args := []any{models.StatusFailedDownload.String(), models.StatusFailedUpload.String()}

	if maxRetries >= 0 {
		query += " AND retry_count <= ?"
		args = append(args, maxRetries)
	}
	query += " ORDER BY created_at ASC"

	return r.list(query, args)
}

// Delete removes a media item and, via the schema's cascade, its upload records.
func (r *MediaRepository) Delete(url string) error {
	result, err := r.db.Exec("DELETE FROM media_items WHERE url = ?", url)
	if err != nil {
		return fmt.Errorf("failed to delete media item %s: %w", url, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrItemNotFound, url)
	}

	return nil
}

// DeleteTerminalOlderThan removes COMPLETED and FAILED_DOWNLOAD items
// created before the cutoff, returning the number removed.
func (r *MediaRepository) DeleteTerminalOlderThan(cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM media_items
		WHERE created_at < ? AND status IN (?, ?)
	`

	result, err := r.db.Exec(query, cutoff,
		models.StatusCompleted.String(), models.StatusFailedDownload.String())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep old media items: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows, nil
}

func (r *MediaRepository) list(query string, args []any) ([]*models.MediaItem, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query media items: %w", err)
	}
	defer rows.Close()

	var items []*models.MediaItem
	for rows.Next() {
		item, err := scanMediaItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return items, nil
}

// scanner abstracts over [sql.Row] and [sql.Rows].
type scanner interface {
	Scan(dest ...any) error
}

func scanMediaItem(row scanner) (*models.MediaItem, error) {
	var (
		url           string
		title         sql.NullString
		localPath     sql.NullString
		status        string
		sourceID      sql.NullString
		errorMessage  sql.NullString
		retryCount    int
		downloadedAt  sql.NullTime
		lastAttemptAt sql.NullTime
		lastErrorAt   sql.NullTime
		metadata      sql.NullString
		createdAt     time.Time
		updatedAt     time.Time
	)

	err := row.Scan(&url, &title, &localPath, &status, &sourceID, &errorMessage,
		&retryCount, &downloadedAt, &lastAttemptAt, &lastErrorAt, &metadata,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	return &models.MediaItem{
		URL:           url,
		Title:         title.String,
		LocalPath:     localPath.String,
		Status:        models.ParseMediaStatus(status),
		SourceID:      sourceID.String,
		ErrorMessage:  errorMessage.String,
		RetryCount:    retryCount,
		Metadata:      unmarshalMetadata(metadata),
		DownloadedAt:  timePtr(downloadedAt),
		LastAttemptAt: timePtr(lastAttemptAt),
		LastErrorAt:   timePtr(lastErrorAt),
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}, nil
}
