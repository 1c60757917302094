package threatintel

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/4ndersonLin/scamledger/internal/idgen"
	"github.com/4ndersonLin/scamledger/internal/validation"
)

// PostgresStore persists threat-intel records and sync state in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed threat-intel store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `id, source, chain, address, external_id, category,
	description, confidence, aggregate_id, fetched_at`

// ImportBatch inserts one batch inside a transaction. ON CONFLICT DO
// NOTHING on the natural key makes the statement safe to redo; re-imported
// duplicates are not counted.
func (s *PostgresStore) ImportBatch(ctx context.Context, records []*Record) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	inserted := 0
	for _, r := range records {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO threat_intel (`+recordColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, $9)
			ON CONFLICT (source, chain, address, external_id) DO NOTHING
		`, idgen.WithPrefix("ti_"), r.Source, r.Chain, r.Address, r.ExternalID,
			r.Category, r.Description, r.Confidence, now)
		if err != nil {
			return 0, fmt.Errorf("failed to insert threat intel record: %w", err)
		}
		rows, _ := result.RowsAffected()
		inserted += int(rows)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit import: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) Unlinked(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM threat_intel WHERE aggregate_id IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list unlinked records: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanRecords(rows)
}

func (s *PostgresStore) SetAggregateID(ctx context.Context, recordID, aggregateID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE threat_intel SET aggregate_id = $2 WHERE id = $1
	`, recordID, aggregateID)
	if err != nil {
		return fmt.Errorf("failed to link record: %w", err)
	}
	return nil
}

func (s *PostgresStore) SignalsFor(ctx context.Context, aggregateID string) (int, bool, error) {
	var count, sanctions int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE confidence = $2 AND category = ANY($3))
		FROM threat_intel WHERE aggregate_id = $1
	`, aggregateID, ConfidenceConfirmed, pq.Array(sanctionCategories)).Scan(&count, &sanctions)
	if err != nil {
		return 0, false, fmt.Errorf("failed to load intel signals: %w", err)
	}
	return count, sanctions > 0, nil
}

func (s *PostgresStore) GetByAddress(ctx context.Context, chain validation.Chain, addr string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM threat_intel
		WHERE chain = $1 AND address = $2
		ORDER BY fetched_at DESC
	`, chain, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to get records by address: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanRecords(rows)
}

func (s *PostgresStore) GetSyncState(ctx context.Context, source string) (*SyncState, error) {
	var state SyncState
	var lastSync sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT source, last_sync_at, last_cursor, last_etag, records_imported, last_error, updated_at
		FROM threat_intel_sync_state WHERE source = $1
	`, source).Scan(&state.Source, &lastSync, &state.LastCursor, &state.LastETag,
		&state.RecordsImported, &state.LastError, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}
	if lastSync.Valid {
		state.LastSyncAt = &lastSync.Time
	}
	return &state, nil
}

func (s *PostgresStore) RecordSyncResult(ctx context.Context, source string, etag *string, imported int, runErr error) error {
	var errMsg *string
	if runErr != nil {
		msg := runErr.Error()
		errMsg = &msg
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threat_intel_sync_state (source, last_sync_at, last_etag, records_imported, last_error, updated_at)
		VALUES ($1, NOW(), $2, $3, $4, NOW())
		ON CONFLICT (source) DO UPDATE SET
			last_sync_at     = NOW(),
			last_etag        = COALESCE($2, threat_intel_sync_state.last_etag),
			records_imported = threat_intel_sync_state.records_imported + $3,
			last_error       = $4,
			updated_at       = NOW()
	`, source, etag, imported, errMsg)
	if err != nil {
		return fmt.Errorf("failed to record sync result: %w", err)
	}
	return nil
}

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	var result []*Record
	for rows.Next() {
		var r Record
		err := rows.Scan(&r.ID, &r.Source, &r.Chain, &r.Address, &r.ExternalID,
			&r.Category, &r.Description, &r.Confidence, &r.AggregateID, &r.FetchedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}
