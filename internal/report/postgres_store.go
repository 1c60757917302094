package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/4ndersonLin/scamledger/internal/validation"
)

// PostgresStore persists reports in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed report store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const reportColumns = `id, aggregate_id, chain, address, scam_type, description,
	loss_amount, loss_currency, evidence_url, tx_hash, fingerprint, user_agent,
	source, api_key_id, created_at`

func (s *PostgresStore) Insert(ctx context.Context, r *Report) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (`+reportColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		r.ID, r.AggregateID, r.Chain, r.Address, r.ScamType, r.Description,
		r.LossAmount, r.LossCurrency, r.EvidenceURL, r.TxHash, r.Fingerprint,
		r.UserAgent, r.Source, r.APIKeyID, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

func (s *PostgresStore) HasRecentByFingerprint(ctx context.Context, fingerprints []string, chain validation.Chain, addr string, since time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reports
			WHERE fingerprint = ANY($1) AND chain = $2 AND address = $3 AND created_at >= $4
		)
	`, pq.Array(fingerprints), chain, addr, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) CountRecentByAggregate(ctx context.Context, aggregateID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reports WHERE aggregate_id = $1 AND created_at >= $2
	`, aggregateID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent reports: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListByAggregate(ctx context.Context, aggregateID string) ([]*Report, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reportColumns+` FROM reports
		WHERE aggregate_id = $1 ORDER BY created_at DESC
	`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanReports(rows)
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*Report, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reportColumns+` FROM reports ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent reports: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanReports(rows)
}

func (s *PostgresStore) CountAll(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count reports: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reports WHERE created_at >= $1
	`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count reports since: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountByDay(ctx context.Context, days int) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		FROM reports
		WHERE created_at >= NOW() - make_interval(days => $1)
		GROUP BY day ORDER BY day ASC
	`, days)
	if err != nil {
		return nil, fmt.Errorf("failed to bucket reports by day: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanCounts(rows)
}

func (s *PostgresStore) CountByChain(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chain, COUNT(*) FROM reports GROUP BY chain
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count reports by chain: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanCounts(rows)
}

func (s *PostgresStore) CountByScamType(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scam_type, COUNT(*) FROM reports GROUP BY scam_type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count reports by scam type: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanCounts(rows)
}

func scanReports(rows *sql.Rows) ([]*Report, error) {
	var result []*Report
	for rows.Next() {
		var r Report
		err := rows.Scan(&r.ID, &r.AggregateID, &r.Chain, &r.Address, &r.ScamType,
			&r.Description, &r.LossAmount, &r.LossCurrency, &r.EvidenceURL, &r.TxHash,
			&r.Fingerprint, &r.UserAgent, &r.Source, &r.APIKeyID, &r.CreatedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}

func scanCounts(rows *sql.Rows) (map[string]int, error) {
	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		counts[key] = count
	}
	return counts, rows.Err()
}
