package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// posterRepository implements PosterRepository
type posterRepository struct {
	db *sql.DB
}

// NewPosterRepository creates a new PosterRepository
func NewPosterRepository(db *sql.DB) PosterRepository {
	return &posterRepository{db: db}
}

const posterColumns = `series_id, cache_key, placeholder, placeholder_version, created_at, updated_at`

func scanPoster(row interface{ Scan(...any) error }) (*PosterRecord, error) {
	record := &PosterRecord{}
	var placeholder sql.NullString
	err := row.Scan(
		&record.SeriesID,
		&record.CacheKey,
		&placeholder,
		&record.PlaceholderVersion,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if placeholder.Valid {
		record.Placeholder = &placeholder.String
	}
	return record, nil
}

// GetBySeries retrieves the poster record of a series
func (r *posterRepository) GetBySeries(ctx context.Context, seriesID int64) (*PosterRecord, error) {
	query := `SELECT ` + posterColumns + ` FROM poster_images WHERE series_id = $1`

	record, err := scanPoster(r.db.QueryRowContext(ctx, query, seriesID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: series %d", ErrNotFound, seriesID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get poster of series %d: %w", seriesID, err)
	}
	return record, nil
}

// Upsert inserts or replaces a record and fills in the stored key and timestamps
func (r *posterRepository) Upsert(ctx context.Context, record *PosterRecord) error {
	query := `
		INSERT INTO poster_images (series_id, cache_key, placeholder, placeholder_version)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (series_id) DO UPDATE SET
			placeholder = EXCLUDED.placeholder,
			placeholder_version = EXCLUDED.placeholder_version
		RETURNING cache_key, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		record.SeriesID,
		record.CacheKey,
		record.Placeholder,
		record.PlaceholderVersion,
	).Scan(&record.CacheKey, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrKeyConflict, record.CacheKey)
		}
		return fmt.Errorf("failed to upsert poster of series %d: %w", record.SeriesID, err)
	}
	return nil
}

func (r *posterRepository) ListByPlaceholderVersion(ctx context.Context, version int, afterSeriesID int64, limit int) ([]*PosterRecord, error) {
	query := `SELECT ` + posterColumns + ` FROM poster_images
		WHERE placeholder_version = $1 AND series_id > $2
		ORDER BY series_id
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, version, afterSeriesID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list posters: %w", err)
	}
	defer rows.Close()

	var records []*PosterRecord
	for rows.Next() {
		record, err := scanPoster(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan poster: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

func (r *posterRepository) UpdatePlaceholder(ctx context.Context, seriesID int64, placeholder *string, version int) error {
	query := `UPDATE poster_images SET placeholder = $2, placeholder_version = $3 WHERE series_id = $1`

	res, err := r.db.ExecContext(ctx, query, seriesID, placeholder, version)
	if err != nil {
		return fmt.Errorf("failed to update placeholder of series %d: %w", seriesID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update placeholder of series %d: %w", seriesID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: series %d", ErrNotFound, seriesID)
	}
	return nil
}

// ImportLegacy streams the records through COPY into a temporary table and
// merges them in one statement
func (r *posterRepository) ImportLegacy(ctx context.Context, records []*PosterRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin import: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		CREATE TEMP TABLE poster_import (
			series_id BIGINT,
			cache_key CHAR(20),
			placeholder VARCHAR(80),
			placeholder_version SMALLINT
		) ON COMMIT DROP`)
	if err != nil {
		return 0, fmt.Errorf("failed to create import table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("poster_import",
		"series_id", "cache_key", "placeholder", "placeholder_version"))
	if err != nil {
		return 0, fmt.Errorf("failed to start copy: %w", err)
	}

	for _, record := range records {
		if _, err := stmt.ExecContext(ctx, record.SeriesID, record.CacheKey, record.Placeholder, record.PlaceholderVersion); err != nil {
			_ = stmt.Close()
			return 0, fmt.Errorf("failed to copy series %d: %w", record.SeriesID, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return 0, fmt.Errorf("failed to flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return 0, fmt.Errorf("failed to close copy: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO poster_images (series_id, cache_key, placeholder, placeholder_version)
		SELECT series_id, cache_key, placeholder, placeholder_version FROM poster_import
		ON CONFLICT DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to merge import: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to merge import: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit import: %w", err)
	}
	return inserted, nil
}

func (r *posterRepository) CountByPlaceholderVersion(ctx context.Context, version int) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM poster_images WHERE placeholder_version = $1`, version).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count posters: %w", err)
	}
	return n, nil
}
