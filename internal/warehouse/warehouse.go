package warehouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"joaogchv/promocollector/internal/normalizer"
	"joaogchv/promocollector/logger"
	errs "joaogchv/promocollector/pkg/errors"
)

// querier is the slice of pgxpool.Pool the warehouse needs. Narrowed to an
// interface so tests can run against an in-memory fake.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

var promotionColumns = []string{
	"marketplace", "item_id", "url", "title", "price", "original_price",
	"discount_percent", "seller", "image_url", "source", "dedupe_key",
	"execution_id", "collected_at",
}

// Warehouse owns the durable promotions table's write path
type Warehouse struct {
	db  querier
	log *logger.Logger
}

// NewPool opens the shared pgx connection pool
func NewPool(ctx context.Context, dsn string, maxConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PG_DSN: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return pool, nil
}

// New creates a warehouse on top of an open pool
func New(db querier) *Warehouse {
	return &Warehouse{
		db:  db,
		log: logger.ForWarehouse(),
	}
}

// stagingTableName derives the per-execution staging table name. Only
// [a-z0-9_] survives, so an execution ID can never smuggle SQL into DDL.
func stagingTableName(executionID string) string {
	var b strings.Builder
	b.WriteString("promotions_staging_")
	for _, r := range strings.ToLower(executionID) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-':
			b.WriteRune('_')
		}
	}
	return b.String()
}

// Reconcile loads the batch into a staging table scoped to the execution and
// performs a single conditional insert into promotions: rows whose dedupe
// key already exists are left untouched. Returns the inserted and
// already-present counts. The staging table is dropped on every exit path.
func (w *Warehouse) Reconcile(ctx context.Context, batch []normalizer.Promotion, executionID string) (int, int, error) {
	if len(batch) == 0 {
		return 0, 0, nil
	}

	staging := stagingTableName(executionID)

	// Overwrite any prior staging contents for this execution
	if _, err := w.db.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, staging)); err != nil {
		return 0, 0, errs.NewReconciliation("failed to reset staging table", err)
	}

	createSQL := fmt.Sprintf(`
		CREATE UNLOGGED TABLE %s (
			marketplace      TEXT NOT NULL,
			item_id          TEXT NOT NULL,
			url              TEXT NOT NULL,
			title            TEXT NOT NULL,
			price            NUMERIC(12,2) NOT NULL,
			original_price   NUMERIC(12,2),
			discount_percent DOUBLE PRECISION,
			seller           TEXT,
			image_url        TEXT,
			source           TEXT,
			dedupe_key       TEXT NOT NULL,
			execution_id     TEXT NOT NULL,
			collected_at     TIMESTAMPTZ NOT NULL
		)`, staging)
	if _, err := w.db.Exec(ctx, createSQL); err != nil {
		return 0, 0, errs.NewReconciliation("failed to create staging table", err)
	}

	defer func() {
		// Best-effort cleanup; a leftover staging table must not outlive the run
		if _, err := w.db.Exec(context.WithoutCancel(ctx), fmt.Sprintf(`DROP TABLE IF EXISTS %s`, staging)); err != nil {
			w.log.Error().Err(err).Str("staging", staging).Msg("Failed to drop staging table")
		}
	}()

	_, err := w.db.CopyFrom(ctx, pgx.Identifier{staging}, promotionColumns,
		pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
			p := batch[i]
			return []any{
				p.Marketplace, p.ItemID, p.URL, p.Title, p.Price, p.OriginalPrice,
				p.DiscountPercent, p.Seller, p.ImageURL, p.Source, p.DedupeKey,
				p.ExecutionID, p.CollectedAt,
			}, nil
		}))
	if err != nil {
		return 0, 0, errs.NewReconciliation("failed to load staging table", err)
	}

	// Single set-based conditional insert; first write wins, existing keys
	// are never updated. DISTINCT ON collapses intra-batch duplicates.
	mergeSQL := fmt.Sprintf(`
		INSERT INTO promotions
			(marketplace, item_id, url, title, price, original_price,
			 discount_percent, seller, image_url, source, dedupe_key,
			 execution_id, collected_at, inserted_at)
		SELECT DISTINCT ON (s.dedupe_key)
			s.marketplace, s.item_id, s.url, s.title, s.price, s.original_price,
			s.discount_percent, s.seller, s.image_url, s.source, s.dedupe_key,
			s.execution_id, s.collected_at, NOW()
		FROM %s s
		WHERE NOT EXISTS (
			SELECT 1 FROM promotions p WHERE p.dedupe_key = s.dedupe_key
		)
		ORDER BY s.dedupe_key`, staging)
	tag, err := w.db.Exec(ctx, mergeSQL)
	if err != nil {
		return 0, 0, errs.NewReconciliation("conditional insert failed", err)
	}

	inserted := int(tag.RowsAffected())
	duplicates := len(batch) - inserted

	w.log.Info().
		Str("execution_id", executionID).
		Int("inserted", inserted).
		Int("duplicates", duplicates).
		Msg("Reconciled batch")

	return inserted, duplicates, nil
}

// ExecutionLog is one immutable outcome row per pipeline run
type ExecutionLog struct {
	ExecutionID       string
	StartTime         time.Time
	EndTime           time.Time
	ItemsCollected    int
	ItemsInserted     int
	ItemsDeduplicated int
	Status            string
	ErrorMessage      string
}

// LogOutcome appends the run's outcome row. Callers report a failure here
// without letting it override the run result it describes.
func (w *Warehouse) LogOutcome(ctx context.Context, entry ExecutionLog) error {
	var errorMessage *string
	if entry.ErrorMessage != "" {
		errorMessage = &entry.ErrorMessage
	}

	_, err := w.db.Exec(ctx, `
		INSERT INTO execution_logs
			(execution_id, start_time, end_time, items_collected,
			 items_inserted, items_deduplicated, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ExecutionID, entry.StartTime, entry.EndTime, entry.ItemsCollected,
		entry.ItemsInserted, entry.ItemsDeduplicated, entry.Status, errorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to write execution log: %w", err)
	}
	return nil
}

// Stats aggregates the durable table over a trailing window
type Stats struct {
	Executions         int            `json:"executions"`
	TotalItems         int            `json:"total_items"`
	UniqueItems        int            `json:"unique_items"`
	BySource           map[string]int `json:"by_source"`
	AvgDiscountPercent float64        `json:"avg_discount_percent"`
}

// QueryStats returns aggregate counts over the trailing window
func (w *Warehouse) QueryStats(ctx context.Context, window time.Duration) (Stats, error) {
	row := w.db.QueryRow(ctx, `
		SELECT
			COUNT(DISTINCT execution_id),
			COUNT(*),
			COUNT(DISTINCT item_id),
			COALESCE(SUM(CASE WHEN source = 'daily_offers' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN source = 'technology' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN source = 'electronics' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(discount_percent), 0)
		FROM promotions
		WHERE collected_at >= NOW() - $1::interval`,
		fmt.Sprintf("%d seconds", int(window.Seconds())),
	)

	var stats Stats
	var dailyOffers, technology, electronics int
	if err := row.Scan(&stats.Executions, &stats.TotalItems, &stats.UniqueItems,
		&dailyOffers, &technology, &electronics, &stats.AvgDiscountPercent); err != nil {
		return Stats{}, fmt.Errorf("failed to query stats: %w", err)
	}

	stats.BySource = map[string]int{
		"daily_offers": dailyOffers,
		"technology":   technology,
		"electronics":  electronics,
	}
	return stats, nil
}
