package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/raysh454/flipradar/internal/interfaces"
	"github.com/raysh454/flipradar/internal/logging"
	"github.com/raysh454/flipradar/internal/model"

	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed schema.sql
var schemaFS embed.FS

const opportunityColumns = `id, product_title, source_marketplace, target_marketplace, category, source_url,
	source_price, target_price, fees, estimated_profit, profit_margin, ai_decision, ai_confidence, discovered_at`

// SQLiteStore persists opportunities in a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger logging.Logger
}

var _ interfaces.OpportunityStore = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(path string, logger logging.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", model.ErrInvalidArgument)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// One connection serialises writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring sqlite: %w", err)
	}
	s, err := NewSQLiteStore(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore runs the embedded schema against db.
func NewSQLiteStore(db *sql.DB, logger logging.Logger) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if logger == nil {
		logger = logging.Nop()
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if err := migrateCategoryKey(db); err != nil {
		return nil, err
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Add(ctx context.Context, o model.Opportunity) error {
	if o.ID == "" {
		return fmt.Errorf("%w: opportunity id is required", model.ErrInvalidArgument)
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO opportunities (`+opportunityColumns+`, category_key)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO NOTHING`,
		o.ID, o.ProductTitle, o.SourceMarketplace, o.TargetMarketplace, o.Category, o.SourceURL,
		o.SourcePrice, o.TargetPrice, o.Fees, o.EstimatedProfit, o.ProfitMargin,
		string(o.AIDecision), o.AIConfidence, o.DiscoveredAt.UnixNano(), model.CategoryKey(o.Category),
	)
	if err != nil {
		return fmt.Errorf("sqlite insert opportunity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite insert opportunity: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("opportunity %s: %w", o.ID, model.ErrAlreadyExists)
	}
	s.logger.Debug("stored opportunity", logging.F("id", o.ID), logging.F("backend", "sqlite"))
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (model.Opportunity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+opportunityColumns+` FROM opportunities WHERE id = ?`, id)
	o, err := scanOpportunity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Opportunity{}, fmt.Errorf("opportunity %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.Opportunity{}, fmt.Errorf("sqlite get opportunity: %w", err)
	}
	return o, nil
}

func (s *SQLiteStore) List(ctx context.Context, f model.Filter) ([]model.Opportunity, error) {
	f, err := f.Normalize()
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if f.Category != "" {
		where = append(where, "category_key = ?")
		args = append(args, model.CategoryKey(f.Category))
	}
	if f.MinProfit != nil {
		where = append(where, "estimated_profit >= ?")
		args = append(args, *f.MinProfit)
	}

	q := `SELECT ` + opportunityColumns + ` FROM opportunities`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY estimated_profit DESC, discovered_at DESC, id ASC LIMIT ?"
	args = append(args, f.Limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite list opportunities: %w", err)
	}
	defer rows.Close()

	out := make([]model.Opportunity, 0)
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan opportunity: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite list opportunities: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) RecordPurchase(ctx context.Context, opportunityID string, p model.Purchase) (model.Purchase, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Purchase{}, fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM opportunities WHERE id = ?`, opportunityID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Purchase{}, fmt.Errorf("opportunity %s: %w", opportunityID, model.ErrNotFound)
	}
	if err != nil {
		return model.Purchase{}, fmt.Errorf("sqlite lookup opportunity: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO purchases (opportunity_id, approved_at) VALUES (?, ?) ON CONFLICT(opportunity_id) DO NOTHING`,
		opportunityID, p.ApprovedAt.UnixNano(),
	); err != nil {
		return model.Purchase{}, fmt.Errorf("sqlite insert purchase: %w", err)
	}

	var approved int64
	if err := tx.QueryRowContext(ctx,
		`SELECT approved_at FROM purchases WHERE opportunity_id = ?`, opportunityID,
	).Scan(&approved); err != nil {
		return model.Purchase{}, fmt.Errorf("sqlite read purchase: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Purchase{}, fmt.Errorf("sqlite commit: %w", err)
	}
	return model.Purchase{OpportunityID: opportunityID, ApprovedAt: time.Unix(0, approved).UTC()}, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (model.Stats, error) {
	var st model.Stats
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(profit_margin), 0) FROM opportunities`,
	).Scan(&st.TotalOpportunities, &st.AvgMargin); err != nil {
		return model.Stats{}, fmt.Errorf("sqlite stats: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(o.estimated_profit), 0)
FROM purchases p JOIN opportunities o ON o.id = p.opportunity_id`,
	).Scan(&st.TotalPurchases, &st.TotalProfit); err != nil {
		return model.Stats{}, fmt.Errorf("sqlite purchase stats: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) DailyStats(ctx context.Context, day time.Time) (model.DailyStats, error) {
	start, end := model.DayBounds(day)
	st := model.DailyStats{Date: start.Format(model.DateLayout)}
	if err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(AVG(profit_margin), 0) FROM opportunities
WHERE discovered_at >= ? AND discovered_at < ?`,
		start.UnixNano(), end.UnixNano(),
	).Scan(&st.OpportunitiesFound, &st.AvgMargin); err != nil {
		return model.DailyStats{}, fmt.Errorf("sqlite daily stats: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(o.estimated_profit), 0)
FROM purchases p JOIN opportunities o ON o.id = p.opportunity_id
WHERE p.approved_at >= ? AND p.approved_at < ?`,
		start.UnixNano(), end.UnixNano(),
	).Scan(&st.PurchasesCompleted, &st.TotalProfit); err != nil {
		return model.DailyStats{}, fmt.Errorf("sqlite daily purchase stats: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migrateCategoryKey adds and backfills category_key on databases created
// before the column existed. It is a no-op on new or already migrated files.
func migrateCategoryKey(db *sql.DB) error {
	var tables int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'opportunities'`).Scan(&tables); err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}
	if tables == 0 {
		return nil
	}
	var cols int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('opportunities') WHERE name = 'category_key'`).Scan(&cols); err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}
	if cols > 0 {
		return nil
	}
	if _, err := db.Exec(`ALTER TABLE opportunities ADD COLUMN category_key TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("add category_key: %w", err)
	}

	rows, err := db.Query(`SELECT id, category FROM opportunities`)
	if err != nil {
		return fmt.Errorf("backfill category_key: %w", err)
	}
	keys := make(map[string]string)
	for rows.Next() {
		var id, category string
		if err := rows.Scan(&id, &category); err != nil {
			rows.Close()
			return fmt.Errorf("backfill category_key: %w", err)
		}
		keys[id] = model.CategoryKey(category)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("backfill category_key: %w", err)
	}
	for id, key := range keys {
		if _, err := db.Exec(`UPDATE opportunities SET category_key = ? WHERE id = ?`, key, id); err != nil {
			return fmt.Errorf("backfill category_key: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOpportunity(r rowScanner) (model.Opportunity, error) {
	var (
		o          model.Opportunity
		decision   string
		discovered int64
	)
	if err := r.Scan(
		&o.ID, &o.ProductTitle, &o.SourceMarketplace, &o.TargetMarketplace, &o.Category, &o.SourceURL,
		&o.SourcePrice, &o.TargetPrice, &o.Fees, &o.EstimatedProfit, &o.ProfitMargin,
		&decision, &o.AIConfidence, &discovered,
	); err != nil {
		return model.Opportunity{}, err
	}
	o.AIDecision = model.Decision(decision)
	o.DiscoveredAt = time.Unix(0, discovered).UTC()
	return o, nil
}
