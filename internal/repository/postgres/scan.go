package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cvtailor/cvtailor/internal/domain"
)

// ScanRepository implements domain.ScanRepository with PostgreSQL
type ScanRepository struct {
	db *DB
}

var _ domain.ScanRepository = (*ScanRepository)(nil)

// NewScanRepository creates a new scan repository
func NewScanRepository(db *sqlx.DB) *ScanRepository {
	return &ScanRepository{db: &DB{DB: db}}
}

// Default and maximum page size of List
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// scanRow represents the database row structure
type scanRow struct {
	ID          uuid.UUID `db:"id"`
	URL         string    `db:"url"`
	Host        string    `db:"host"`
	Adapter     string    `db:"adapter"`
	Outcome     string    `db:"outcome"`
	FormCount   int       `db:"form_count"`
	FieldCount  int       `db:"field_count"`
	Failures    int       `db:"failures"`
	SnapshotKey string    `db:"snapshot_key"`
	DurationMs  int64     `db:"duration_ms"`
	ScannedAt   time.Time `db:"scanned_at"`
}

func (r *scanRow) toDomain() *domain.ScanRecord {
	return &domain.ScanRecord{
		ID:          r.ID,
		URL:         r.URL,
		Host:        r.Host,
		Adapter:     r.Adapter,
		Outcome:     r.Outcome,
		FormCount:   r.FormCount,
		FieldCount:  r.FieldCount,
		Failures:    r.Failures,
		SnapshotKey: r.SnapshotKey,
		DurationMs:  r.DurationMs,
		ScannedAt:   r.ScannedAt,
	}
}

const scanColumns = `id, url, host, adapter, outcome, form_count, field_count, failures, snapshot_key, duration_ms, scanned_at`

// Save inserts a scan record together with its form summaries
func (r *ScanRepository) Save(ctx context.Context, record *domain.ScanRecord) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO scans (` + scanColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`
		_, err := tx.ExecContext(ctx, query,
			record.ID,
			record.URL,
			record.Host,
			record.Adapter,
			record.Outcome,
			record.FormCount,
			record.FieldCount,
			record.Failures,
			record.SnapshotKey,
			record.DurationMs,
			record.ScannedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ValidationError("id", "scan already recorded: "+record.ID.String())
			}
			return err
		}

		for i, f := range record.Forms {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO scan_forms (scan_id, position, form_id, field_count) VALUES ($1, $2, $3, $4)`,
				record.ID, i, f.FormID, f.FieldCount,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByID retrieves a scan record and its forms
func (r *ScanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ScanRecord, error) {
	query := `SELECT ` + scanColumns + ` FROM scans WHERE id = $1`

	var row scanRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundError("scan", id)
		}
		return nil, err
	}

	record := row.toDomain()

	var forms []struct {
		FormID     string `db:"form_id"`
		FieldCount int    `db:"field_count"`
	}
	formsQuery := `SELECT form_id, field_count FROM scan_forms WHERE scan_id = $1 ORDER BY position`
	if err := r.db.SelectContext(ctx, &forms, formsQuery, id); err != nil {
		return nil, err
	}
	for _, f := range forms {
		record.Forms = append(record.Forms, domain.FormSummary{FormID: f.FormID, FieldCount: f.FieldCount})
	}

	return record, nil
}

// List returns the most recent scans, newest first. Form summaries are not loaded.
func (r *ScanRepository) List(ctx context.Context, filter domain.ScanFilter) ([]*domain.ScanRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	query := `
		SELECT ` + scanColumns + `
		FROM scans
		WHERE ($1::text = '' OR host = $1)
		  AND ($2::text = '' OR outcome = $2)
		ORDER BY scanned_at DESC
		LIMIT $3
	`

	var rows []scanRow
	if err := r.db.SelectContext(ctx, &rows, query, filter.Host, filter.Outcome, limit); err != nil {
		return nil, err
	}

	records := make([]*domain.ScanRecord, len(rows))
	for i := range rows {
		records[i] = rows[i].toDomain()
	}
	return records, nil
}

// CountByOutcome returns the number of scans per outcome since a point in time
func (r *ScanRepository) CountByOutcome(ctx context.Context, since time.Time) (map[string]int, error) {
	query := `SELECT outcome, COUNT(*) AS n FROM scans WHERE scanned_at >= $1 GROUP BY outcome`

	var rows []struct {
		Outcome string `db:"outcome"`
		N       int    `db:"n"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Outcome] = row.N
	}
	return counts, nil
}
