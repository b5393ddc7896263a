package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/mbx/internal/models"
	"github.com/desertthunder/mbx/internal/shared"
)

// UploadRepository persists per-destination upload records keyed by
// (url, target_id).
type UploadRepository struct {
	db *sql.DB
}

// NewUploadRepository creates a new UploadRepository with the given database connection
func NewUploadRepository(db *sql.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

// UploadRecordParams carries the optional fields of one upload record write.
type UploadRecordParams struct {
	UploadedID   string
	ErrorMessage string
	Metadata     map[string]any
}

// Upsert inserts or merges an upload record in a single atomic statement.
//
// SUCCESS is terminal per record: once recorded, later writes cannot
// downgrade the status or clear the uploaded id. The retry count increments
// iff this write carries an error message, and upload_timestamp is set only
// on the transition to SUCCESS.
func (r *UploadRepository) Upsert(url, targetID string, status models.UploadStatus, p UploadRecordParams) error {
	if url == "" || targetID == "" {
		return fmt.Errorf("%w: url and target id are required", shared.ErrInvalidArgument)
	}
	if err := status.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	meta, err := marshalMetadata(p.Metadata)
	if err != nil {
		return err
	}

	now := time.Now()
	var uploadedAt, errorAt any
	if status == models.UploadSuccess {
		uploadedAt = now
	}
	if p.ErrorMessage != "" {
		errorAt = now
	}
	increment := 0
	if p.ErrorMessage != "" {
		increment = 1
	}

	query := `
		INSERT INTO upload_status (
			url, target_id, status, uploaded_id, upload_timestamp,
			retry_count, last_error_timestamp, metadata, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url, target_id) DO UPDATE SET
			status = CASE WHEN status = 'SUCCESS' THEN status ELSE excluded.status END,
			uploaded_id = COALESCE(excluded.uploaded_id, uploaded_id),
			upload_timestamp = COALESCE(excluded.upload_timestamp, upload_timestamp),
			retry_count = retry_count + ?,
			last_error_timestamp = COALESCE(excluded.last_error_timestamp, last_error_timestamp),
			metadata = COALESCE(excluded.metadata, metadata),
			updated_at = excluded.updated_at
	`

	_, err = r.db.Exec(query,
		url,
		targetID,
		status.String(),
		nullString(p.UploadedID),
		uploadedAt,
		increment,
		errorAt,
		meta,
		now,
		now,
		increment,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert upload record %s/%s: %w", url, targetID, err)
	}

	return nil
}

// Get retrieves the upload record for one (url, target) pair. Returns
// [shared.ErrItemNotFound] when no attempt has been recorded.
func (r *UploadRepository) Get(url, targetID string) (*models.UploadRecord, error) {
	query := `
		SELECT url, target_id, uploaded_id, status, retry_count,
			upload_timestamp, last_error_timestamp, metadata, created_at, updated_at
		FROM upload_status
		WHERE url = ? AND target_id = ?
	`

	record, err := scanUploadRecord(r.db.QueryRow(query, url, targetID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s/%s", shared.ErrItemNotFound, url, targetID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload record %s/%s: %w", url, targetID, err)
	}

	return record, nil
}

// ListForItem retrieves every upload record for the given URL keyed by
// target id.
func (r *UploadRepository) ListForItem(url string) (map[string]models.UploadRecord, error) {
	query := `
		SELECT url, target_id, uploaded_id, status, retry_count,
			upload_timestamp, last_error_timestamp, metadata, created_at, updated_at
		FROM upload_status
		WHERE url = ?
	`

	rows, err := r.db.Query(query, url)
	if err != nil {
		return nil, fmt.Errorf("failed to query upload records for %s: %w", url, err)
	}
	defer rows.Close()

	records := make(map[string]models.UploadRecord)
	for rows.Next() {
		record, err := scanUploadRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload record: %w", err)
		}
		records[record.TargetID] = *record
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

// ListByStatus retrieves all upload records with the given status across
// items, supporting batch queries over the status index.
func (r *UploadRepository) ListByStatus(status models.UploadStatus) ([]models.UploadRecord, error) {
	query := `
		SELECT url, target_id, uploaded_id, status, retry_count,
			upload_timestamp, last_error_timestamp, metadata, created_at, updated_at
		FROM upload_status
		WHERE status = ?
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(query, status.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query upload records: %w", err)
	}
	defer rows.Close()

	var records []models.UploadRecord
	for rows.Next() {
		record, err := scanUploadRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload record: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

func scanUploadRecord(row scanner) (*models.UploadRecord, error) {
	var (
		url         string
		targetID    string
		uploadedID  sql.NullString
		status      string
		retryCount  int
		uploadedAt  sql.NullTime
		lastErrorAt sql.NullTime
		metadata    sql.NullString
		createdAt   time.Time
		updatedAt   time.Time
	)

	err := row.Scan(&url, &targetID, &uploadedID, &status, &retryCount,
		&uploadedAt, &lastErrorAt, &metadata, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	return &models.UploadRecord{
		URL:         url,
		TargetID:    targetID,
		UploadedID:  uploadedID.String,
		Status:      models.ParseUploadStatus(status),
		RetryCount:  retryCount,
		Metadata:    unmarshalMetadata(metadata),
		UploadedAt:  timePtr(uploadedAt),
		LastErrorAt: timePtr(lastErrorAt),
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}
