package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/docuforge/docuforge/common/db"
	"github.com/docuforge/docuforge/common/models"
)

// HistoryRepository archives finished service operations. The in-process
// history rings stay authoritative for the UI; the archive exists so
// operation lineage survives restarts.
type HistoryRepository struct {
	db *db.DB
}

// NewHistoryRepository creates a new history repository.
func NewHistoryRepository(database *db.DB) *HistoryRepository {
	return &HistoryRepository{db: database}
}

// Record inserts a finished operation.
func (r *HistoryRepository) Record(ctx context.Context, entry models.HistoryEntry) error {
	options, err := json.Marshal(entry.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	result, err := json.Marshal(entry.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	query := `
		INSERT INTO operation_history (id, ts, service, operation, file_ids, options, success, result, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	_, err = r.db.Exec(
		ctx,
		query,
		entry.ID,
		entry.Timestamp,
		entry.Service,
		entry.Operation,
		entry.FileIDs,
		options,
		entry.Success,
		result,
		entry.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to archive operation: %w", err)
	}

	return nil
}

// Recent returns the newest entries across all services.
func (r *HistoryRepository) Recent(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	query := `
		SELECT id, ts, service, operation, file_ids, options, success, result, error
		FROM operation_history
		ORDER BY ts DESC
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var entry models.HistoryEntry
		var options, result []byte
		if err := rows.Scan(
			&entry.ID,
			&entry.Timestamp,
			&entry.Service,
			&entry.Operation,
			&entry.FileIDs,
			&options,
			&entry.Success,
			&result,
			&entry.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		if len(options) > 0 {
			_ = json.Unmarshal(options, &entry.Options)
		}
		if len(result) > 0 {
			_ = json.Unmarshal(result, &entry.Result)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// RecentByService returns the newest entries for one service.
func (r *HistoryRepository) RecentByService(ctx context.Context, service string, limit int) ([]models.HistoryEntry, error) {
	query := `
		SELECT id, ts, service, operation, file_ids, options, success, result, error
		FROM operation_history
		WHERE service = $1
		ORDER BY ts DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, service, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var entry models.HistoryEntry
		var options, result []byte
		if err := rows.Scan(
			&entry.ID,
			&entry.Timestamp,
			&entry.Service,
			&entry.Operation,
			&entry.FileIDs,
			&options,
			&entry.Success,
			&result,
			&entry.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		if len(options) > 0 {
			_ = json.Unmarshal(options, &entry.Options)
		}
		if len(result) > 0 {
			_ = json.Unmarshal(result, &entry.Result)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Prune deletes entries older than the cutoff timestamp (epoch ms) and
// returns the number removed.
func (r *HistoryRepository) Prune(ctx context.Context, cutoff int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM operation_history WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return tag.RowsAffected(), nil
}
