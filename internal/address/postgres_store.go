package address

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/4ndersonLin/scamledger/internal/idgen"
	"github.com/4ndersonLin/scamledger/internal/risk"
	"github.com/4ndersonLin/scamledger/internal/validation"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed aggregate store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const aggregateColumns = `id, chain, address, report_count, total_lost_usd, risk_score,
	has_threat_intel, first_reported_at, last_reported_at, updated_at`

// ApplyReport upserts the aggregate and bumps its counters in one atomic
// statement. Concurrent submissions for the same address serialize on the
// row; neither increment is lost.
func (s *PostgresStore) ApplyReport(ctx context.Context, chain validation.Chain, addr string, lossUSD float64, now time.Time) (*Aggregate, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO addresses (id, chain, address, report_count, total_lost_usd, risk_score,
			has_threat_intel, first_reported_at, last_reported_at, updated_at)
		VALUES ($1, $2, $3, 1, $4, 0, FALSE, $5, $5, $5)
		ON CONFLICT (chain, address) DO UPDATE SET
			report_count      = addresses.report_count + 1,
			total_lost_usd    = addresses.total_lost_usd + $4,
			first_reported_at = COALESCE(addresses.first_reported_at, $5),
			last_reported_at  = $5,
			updated_at        = $5
		RETURNING `+aggregateColumns,
		idgen.WithPrefix("addr_"), chain, addr, lossUSD, now)

	agg, err := scanAggregate(row)
	if err != nil {
		return nil, fmt.Errorf("failed to apply report to aggregate: %w", err)
	}
	return agg, nil
}

func (s *PostgresStore) EnsureForIntel(ctx context.Context, chain validation.Chain, addr string, now time.Time) (*Aggregate, error) {
	// DO UPDATE instead of DO NOTHING so RETURNING always yields the row.
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO addresses (id, chain, address, report_count, total_lost_usd, risk_score,
			has_threat_intel, first_reported_at, last_reported_at, updated_at)
		VALUES ($1, $2, $3, 0, 0, 0, FALSE, NULL, NULL, $4)
		ON CONFLICT (chain, address) DO UPDATE SET chain = addresses.chain
		RETURNING `+aggregateColumns,
		idgen.WithPrefix("addr_"), chain, addr, now)

	agg, err := scanAggregate(row)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure aggregate: %w", err)
	}
	return agg, nil
}

func (s *PostgresStore) Get(ctx context.Context, chain validation.Chain, addr string) (*Aggregate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+aggregateColumns+` FROM addresses WHERE chain = $1 AND address = $2
	`, chain, addr)

	agg, err := scanAggregate(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get aggregate: %w", err)
	}
	return agg, nil
}

func (s *PostgresStore) MarkThreatIntel(ctx context.Context, id string, now time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE addresses SET has_threat_intel = TRUE, updated_at = $2
		WHERE id = $1 AND has_threat_intel = FALSE
	`, id, now)
	if err != nil {
		return fmt.Errorf("failed to mark threat intel: %w", err)
	}
	// Zero rows means already flagged or absent; the flag is monotonic so
	// already-flagged is not an error.
	_ = result
	return nil
}

func (s *PostgresStore) UpdateRiskScore(ctx context.Context, id string, score int, now time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE addresses SET risk_score = $2, updated_at = $3 WHERE id = $1
	`, id, score, now)
	if err != nil {
		return fmt.Errorf("failed to update risk score: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListFlagged(ctx context.Context) ([]*Aggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+aggregateColumns+` FROM addresses WHERE has_threat_intel = TRUE
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list flagged aggregates: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanAggregates(rows)
}

func (s *PostgresStore) ListHighRisk(ctx context.Context, limit int) ([]*Aggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+aggregateColumns+` FROM addresses
		WHERE risk_score > 0
		ORDER BY risk_score DESC, report_count DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list high-risk aggregates: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanAggregates(rows)
}

func (s *PostgresStore) CountHighRisk(ctx context.Context, minScore int) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM addresses WHERE risk_score >= $1
	`, minScore).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count high-risk aggregates: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) SumTotalLost(ctx context.Context) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_lost_usd), 0) FROM addresses
	`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum losses: %w", err)
	}
	return total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAggregate(row rowScanner) (*Aggregate, error) {
	var agg Aggregate
	var first, last sql.NullTime
	err := row.Scan(&agg.ID, &agg.Chain, &agg.Address, &agg.ReportCount, &agg.TotalLostUSD,
		&agg.RiskScore, &agg.HasThreatIntel, &first, &last, &agg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if first.Valid {
		agg.FirstReportedAt = &first.Time
	}
	if last.Valid {
		agg.LastReportedAt = &last.Time
	}
	agg.RiskLevel = risk.LevelFor(agg.RiskScore)
	return &agg, nil
}

func scanAggregates(rows *sql.Rows) ([]*Aggregate, error) {
	var result []*Aggregate
	for rows.Next() {
		agg, err := scanAggregate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, agg)
	}
	return result, rows.Err()
}
