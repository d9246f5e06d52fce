package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/raysh454/flipradar/internal/interfaces"
	"github.com/raysh454/flipradar/internal/logging"
	"github.com/raysh454/flipradar/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS opportunities (
    id                 TEXT PRIMARY KEY,
    product_title      TEXT NOT NULL,
    source_marketplace TEXT NOT NULL DEFAULT '',
    target_marketplace TEXT NOT NULL DEFAULT '',
    category           TEXT NOT NULL,
    source_url         TEXT NOT NULL DEFAULT '',
    source_price       DOUBLE PRECISION NOT NULL,
    target_price       DOUBLE PRECISION NOT NULL,
    fees               DOUBLE PRECISION NOT NULL DEFAULT 0,
    estimated_profit   DOUBLE PRECISION NOT NULL,
    profit_margin      DOUBLE PRECISION NOT NULL,
    ai_decision        TEXT NOT NULL,
    ai_confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
    discovered_at      TIMESTAMPTZ NOT NULL,
    category_key       TEXT NOT NULL DEFAULT ''
);
ALTER TABLE opportunities ADD COLUMN IF NOT EXISTS category_key TEXT NOT NULL DEFAULT '';
UPDATE opportunities SET category_key = lower(category) WHERE category_key = '';
CREATE INDEX IF NOT EXISTS idx_opportunities_rank
    ON opportunities (estimated_profit DESC, discovered_at DESC, id);
CREATE INDEX IF NOT EXISTS idx_opportunities_category_key
    ON opportunities (category_key);
CREATE INDEX IF NOT EXISTS idx_opportunities_discovered
    ON opportunities (discovered_at);
CREATE TABLE IF NOT EXISTS purchases (
    opportunity_id TEXT PRIMARY KEY REFERENCES opportunities(id),
    approved_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_purchases_approved
    ON purchases (approved_at);
`

// PostgresStore implements interfaces.OpportunityStore on a pgx pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

var _ interfaces.OpportunityStore = (*PostgresStore)(nil)

// NewPostgresPool creates and verifies a pgxpool connection pool.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w: %w", model.ErrUpstreamUnavailable, err)
	}
	return pool, nil
}

// NewPostgresStore applies the schema and returns a store owning pool.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, logger logging.Logger) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	return &PostgresStore{pool: pool, logger: logger}, nil
}

func (s *PostgresStore) Add(ctx context.Context, o model.Opportunity) error {
	if o.ID == "" {
		return fmt.Errorf("%w: opportunity id is required", model.ErrInvalidArgument)
	}
	const q = `
INSERT INTO opportunities (` + opportunityColumns + `, category_key)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (id) DO NOTHING;
`
	tag, err := s.pool.Exec(ctx, q,
		o.ID, o.ProductTitle, o.SourceMarketplace, o.TargetMarketplace, o.Category, o.SourceURL,
		o.SourcePrice, o.TargetPrice, o.Fees, o.EstimatedProfit, o.ProfitMargin,
		string(o.AIDecision), o.AIConfidence, o.DiscoveredAt, model.CategoryKey(o.Category),
	)
	if err != nil {
		return fmt.Errorf("postgres insert opportunity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("opportunity %s: %w", o.ID, model.ErrAlreadyExists)
	}
	s.logger.Debug("stored opportunity", logging.F("id", o.ID), logging.F("backend", "postgres"))
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (model.Opportunity, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+opportunityColumns+` FROM opportunities WHERE id = $1`, id)
	o, err := scanPgOpportunity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Opportunity{}, fmt.Errorf("opportunity %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.Opportunity{}, fmt.Errorf("postgres get opportunity: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) List(ctx context.Context, f model.Filter) ([]model.Opportunity, error) {
	f, err := f.Normalize()
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if f.Category != "" {
		args = append(args, model.CategoryKey(f.Category))
		where = append(where, fmt.Sprintf("category_key = $%d", len(args)))
	}
	if f.MinProfit != nil {
		args = append(args, *f.MinProfit)
		where = append(where, fmt.Sprintf("estimated_profit >= $%d", len(args)))
	}
	q := `SELECT ` + opportunityColumns + ` FROM opportunities`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit)
	q += fmt.Sprintf(" ORDER BY estimated_profit DESC, discovered_at DESC, id ASC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres list opportunities: %w", err)
	}
	defer rows.Close()

	out := make([]model.Opportunity, 0)
	for rows.Next() {
		o, err := scanPgOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres scan opportunity: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres list opportunities: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) RecordPurchase(ctx context.Context, opportunityID string, p model.Purchase) (model.Purchase, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Purchase{}, fmt.Errorf("postgres begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists int
	err = tx.QueryRow(ctx, `SELECT 1 FROM opportunities WHERE id = $1`, opportunityID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Purchase{}, fmt.Errorf("opportunity %s: %w", opportunityID, model.ErrNotFound)
	}
	if err != nil {
		return model.Purchase{}, fmt.Errorf("postgres lookup opportunity: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO purchases (opportunity_id, approved_at) VALUES ($1, $2) ON CONFLICT (opportunity_id) DO NOTHING`,
		opportunityID, p.ApprovedAt,
	); err != nil {
		return model.Purchase{}, fmt.Errorf("postgres insert purchase: %w", err)
	}

	out := model.Purchase{OpportunityID: opportunityID}
	if err := tx.QueryRow(ctx,
		`SELECT approved_at FROM purchases WHERE opportunity_id = $1`, opportunityID,
	).Scan(&out.ApprovedAt); err != nil {
		return model.Purchase{}, fmt.Errorf("postgres read purchase: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Purchase{}, fmt.Errorf("postgres commit: %w", err)
	}
	out.ApprovedAt = out.ApprovedAt.UTC()
	return out, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (model.Stats, error) {
	const q = `
SELECT
  (SELECT COUNT(*) FROM opportunities),
  (SELECT COALESCE(AVG(profit_margin), 0) FROM opportunities),
  (SELECT COUNT(*) FROM purchases),
  (SELECT COALESCE(SUM(o.estimated_profit), 0) FROM purchases p JOIN opportunities o ON o.id = p.opportunity_id);
`
	var (
		st           model.Stats
		opps, bought int64
	)
	if err := s.pool.QueryRow(ctx, q).Scan(&opps, &st.AvgMargin, &bought, &st.TotalProfit); err != nil {
		return model.Stats{}, fmt.Errorf("postgres stats: %w", err)
	}
	st.TotalOpportunities = int(opps)
	st.TotalPurchases = int(bought)
	return st, nil
}

func (s *PostgresStore) DailyStats(ctx context.Context, day time.Time) (model.DailyStats, error) {
	start, end := model.DayBounds(day)
	const q = `
SELECT
  (SELECT COUNT(*) FROM opportunities WHERE discovered_at >= $1 AND discovered_at < $2),
  (SELECT COALESCE(AVG(profit_margin), 0) FROM opportunities WHERE discovered_at >= $1 AND discovered_at < $2),
  (SELECT COUNT(*) FROM purchases WHERE approved_at >= $1 AND approved_at < $2),
  (SELECT COALESCE(SUM(o.estimated_profit), 0) FROM purchases p JOIN opportunities o ON o.id = p.opportunity_id
     WHERE p.approved_at >= $1 AND p.approved_at < $2);
`
	var (
		st           = model.DailyStats{Date: start.Format(model.DateLayout)}
		opps, bought int64
	)
	if err := s.pool.QueryRow(ctx, q, start, end).Scan(&opps, &st.AvgMargin, &bought, &st.TotalProfit); err != nil {
		return model.DailyStats{}, fmt.Errorf("postgres daily stats: %w", err)
	}
	st.OpportunitiesFound = int(opps)
	st.PurchasesCompleted = int(bought)
	return st, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPgOpportunity(r pgx.Row) (model.Opportunity, error) {
	var (
		o        model.Opportunity
		decision string
	)
	if err := r.Scan(
		&o.ID, &o.ProductTitle, &o.SourceMarketplace, &o.TargetMarketplace, &o.Category, &o.SourceURL,
		&o.SourcePrice, &o.TargetPrice, &o.Fees, &o.EstimatedProfit, &o.ProfitMargin,
		&decision, &o.AIConfidence, &o.DiscoveredAt,
	); err != nil {
		return model.Opportunity{}, err
	}
	o.AIDecision = model.Decision(decision)
	o.DiscoveredAt = o.DiscoveredAt.UTC()
	return o, nil
}
