package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/cascade-rentals/opsdash/internal/db"
	"github.com/cascade-rentals/opsdash/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the fixed-shape store operations.
var preparedStatements = map[string]string{
	"insert_suggestion": `INSERT INTO suggestions (id, title, body, author, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"get_suggestion":    `SELECT id, title, body, author, status, created_at, updated_at FROM suggestions WHERE id = $1`,
	"delete_suggestion": `DELETE FROM suggestions WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS pos_transactions (
	id            TEXT PRIMARY KEY,
	location_code TEXT NOT NULL,
	category      TEXT NOT NULL DEFAULT '',
	item_id       TEXT NOT NULL,
	amount_cents  BIGINT NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	ended_at      TIMESTAMPTZ NOT NULL,
	recorded_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS rfid_correlations (
	id            TEXT PRIMARY KEY,
	tag_id        TEXT NOT NULL,
	item_id       TEXT NOT NULL,
	location_code TEXT NOT NULL,
	category      TEXT NOT NULL DEFAULT '',
	event_type    TEXT NOT NULL,
	revenue_cents BIGINT NOT NULL DEFAULT 0,
	observed_at   TIMESTAMPTZ NOT NULL,
	UNIQUE(tag_id, event_type, observed_at)
);

CREATE TABLE IF NOT EXISTS financial_scorecards (
	location_code   TEXT NOT NULL,
	week_start      TIMESTAMPTZ NOT NULL,
	revenue_cents   BIGINT NOT NULL,
	utilization_pct DOUBLE PRECISION NOT NULL,
	entered_by      TEXT NOT NULL DEFAULT '',
	entered_at      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY(location_code, week_start)
);

CREATE TABLE IF NOT EXISTS catalog_items (
	item_id       TEXT PRIMARY KEY,
	location_code TEXT NOT NULL,
	category      TEXT NOT NULL DEFAULT '',
	rfid_tagged   BOOLEAN NOT NULL DEFAULT false,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS suggestions (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	body       TEXT NOT NULL DEFAULT '',
	author     TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'open',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_pos_started_at ON pos_transactions(started_at);
CREATE INDEX IF NOT EXISTS idx_pos_location ON pos_transactions(location_code);
CREATE INDEX IF NOT EXISTS idx_rfid_observed_at ON rfid_correlations(observed_at);
CREATE INDEX IF NOT EXISTS idx_rfid_location ON rfid_correlations(location_code);
CREATE INDEX IF NOT EXISTS idx_scorecards_week ON financial_scorecards(week_start);
CREATE INDEX IF NOT EXISTS idx_catalog_location ON catalog_items(location_code);
CREATE INDEX IF NOT EXISTS idx_suggestions_status ON suggestions(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// pgScope accumulates positional arguments while the query text is built.
type pgScope struct {
	args []any
}

func (p *pgScope) add(v any) string {
	p.args = append(p.args, v)
	return fmt.Sprintf("$%d", len(p.args))
}

func (p *pgScope) locCat(scope model.Scope) string {
	var clause string
	if scope.LocationCode != "" {
		clause += " AND location_code = " + p.add(scope.LocationCode)
	}
	if scope.Category != "" {
		clause += " AND category = " + p.add(scope.Category)
	}
	return clause
}

// Metric aggregates. The scope window is half-open: [Start, End).

func (s *PostgresStore) POSRevenue(ctx context.Context, scope model.Scope) (AggregateRow, error) {
	var p pgScope
	query := `SELECT COALESCE(SUM(amount_cents), 0)::BIGINT, MAX(recorded_at), COUNT(*)
		FROM pos_transactions
		WHERE started_at >= ` + p.add(scope.Start) + ` AND started_at < ` + p.add(scope.End) + p.locCat(scope)

	return s.centsAggregate(ctx, query, p.args, "pos revenue")
}

func (s *PostgresStore) POSUtilization(ctx context.Context, scope model.Scope) (AggregateRow, error) {
	var p pgScope
	query := `SELECT COALESCE(SUM(
			EXTRACT(EPOCH FROM (LEAST(ended_at, ` + p.add(scope.End) + `) - GREATEST(started_at, ` + p.add(scope.Start) + `))) / 86400.0
		), 0)::DOUBLE PRECISION, MAX(recorded_at), COUNT(*)
		FROM pos_transactions
		WHERE started_at < ` + p.add(scope.End) + ` AND ended_at > ` + p.add(scope.Start) + p.locCat(scope)

	var rentedDays float64
	var asOf *time.Time
	var n int64
	if err := s.pool.QueryRow(ctx, query, p.args...).Scan(&rentedDays, &asOf, &n); err != nil {
		return AggregateRow{}, eris.Wrap(err, "postgres: pos utilization")
	}

	catalog, err := s.CatalogCount(ctx, scope)
	if err != nil {
		return AggregateRow{}, err
	}
	return AggregateRow{
		Value:      utilizationPct(rentedDays, catalog, scope),
		AsOf:       deref(asOf),
		SampleSize: n,
	}, nil
}

func (s *PostgresStore) POSInventoryCount(ctx context.Context, scope model.Scope) (AggregateRow, error) {
	var p pgScope
	query := `SELECT COUNT(*), MAX(updated_at) FROM catalog_items WHERE true` + p.locCat(scope)

	var n int64
	var asOf *time.Time
	if err := s.pool.QueryRow(ctx, query, p.args...).Scan(&n, &asOf); err != nil {
		return AggregateRow{}, eris.Wrap(err, "postgres: pos inventory count")
	}
	return AggregateRow{Value: decimal.NewFromInt(n), AsOf: deref(asOf), SampleSize: n}, nil
}

func (s *PostgresStore) FinancialRevenue(ctx context.Context, scope model.Scope) (AggregateRow, error) {
	// Scorecards carry no category dimension.
	if scope.Category != "" {
		return AggregateRow{}, nil
	}
	var p pgScope
	query := `SELECT COALESCE(SUM(revenue_cents), 0)::BIGINT, MAX(entered_at), COUNT(*)
		FROM financial_scorecards
		WHERE week_start >= ` + p.add(scope.Start) + ` AND week_start < ` + p.add(scope.End)
	if scope.LocationCode != "" {
		query += ` AND location_code = ` + p.add(scope.LocationCode)
	}

	return s.centsAggregate(ctx, query, p.args, "financial revenue")
}

func (s *PostgresStore) FinancialUtilization(ctx context.Context, scope model.Scope) (AggregateRow, error) {
	if scope.Category != "" {
		return AggregateRow{}, nil
	}
	var p pgScope
	query := `SELECT COALESCE(AVG(utilization_pct), 0)::DOUBLE PRECISION, MAX(entered_at), COUNT(*)
		FROM financial_scorecards
		WHERE week_start >= ` + p.add(scope.Start) + ` AND week_start < ` + p.add(scope.End)
	if scope.LocationCode != "" {
		query += ` AND location_code = ` + p.add(scope.LocationCode)
	}

	var pct float64
	var asOf *time.Time
	var n int64
	if err := s.pool.QueryRow(ctx, query, p.args...).Scan(&pct, &asOf, &n); err != nil {
		return AggregateRow{}, eris.Wrap(err, "postgres: financial utilization")
	}
	return AggregateRow{Value: decimal.NewFromFloat(pct).Round(2), AsOf: deref(asOf), SampleSize: n}, nil
}

func (s *PostgresStore) RFIDRevenue(ctx context.Context, scope model.Scope) (AggregateRow, error) {
	var p pgScope
	query := `SELECT COALESCE(SUM(revenue_cents), 0)::BIGINT, MAX(observed_at), COUNT(DISTINCT item_id)
		FROM rfid_correlations
		WHERE observed_at >= ` + p.add(scope.Start) + ` AND observed_at < ` + p.add(scope.End) + p.locCat(scope)

	return s.centsAggregate(ctx, query, p.args, "rfid revenue")
}

func (s *PostgresStore) RFIDUtilization(ctx context.Context, scope model.Scope) (AggregateRow, error) {
	var p pgScope
	query := `SELECT COUNT(DISTINCT item_id) FILTER (WHERE event_type = 'on_rent'),
			COUNT(DISTINCT item_id), MAX(observed_at)
		FROM rfid_correlations
		WHERE observed_at >= ` + p.add(scope.Start) + ` AND observed_at < ` + p.add(scope.End) + p.locCat(scope)

	var onRent, seen int64
	var asOf *time.Time
	if err := s.pool.QueryRow(ctx, query, p.args...).Scan(&onRent, &seen, &asOf); err != nil {
		return AggregateRow{}, eris.Wrap(err, "postgres: rfid utilization")
	}
	return AggregateRow{Value: sharePct(onRent, seen), AsOf: deref(asOf), SampleSize: seen}, nil
}

func (s *PostgresStore) RFIDInventoryCount(ctx context.Context, scope model.Scope) (AggregateRow, error) {
	var p pgScope
	query := `SELECT COUNT(DISTINCT item_id), MAX(observed_at)
		FROM rfid_correlations
		WHERE observed_at >= ` + p.add(scope.Start) + ` AND observed_at < ` + p.add(scope.End) + p.locCat(scope)

	var n int64
	var asOf *time.Time
	if err := s.pool.QueryRow(ctx, query, p.args...).Scan(&n, &asOf); err != nil {
		return AggregateRow{}, eris.Wrap(err, "postgres: rfid inventory count")
	}
	return AggregateRow{Value: decimal.NewFromInt(n), AsOf: deref(asOf), SampleSize: n}, nil
}

func (s *PostgresStore) CatalogCount(ctx context.Context, scope model.Scope) (int64, error) {
	var p pgScope
	query := `SELECT COUNT(*) FROM catalog_items WHERE true` + p.locCat(scope)

	var n int64
	if err := s.pool.QueryRow(ctx, query, p.args...).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: catalog count")
	}
	return n, nil
}

// Ingest

func (s *PostgresStore) InsertPOSTransactions(ctx context.Context, txns []model.POSTransaction) (int64, error) {
	rows := make([][]any, len(txns))
	for i, t := range txns {
		rows[i] = []any{
			t.ID, t.LocationCode, t.Category, t.ItemID, toCents(t.Amount),
			t.StartedAt.UTC(), t.EndedAt.UTC(), t.RecordedAt.UTC(),
		}
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "pos_transactions",
		Columns:      []string{"id", "location_code", "category", "item_id", "amount_cents", "started_at", "ended_at", "recorded_at"},
		ConflictKeys: []string{"id"},
	}, rows)
}

func (s *PostgresStore) InsertRFIDCorrelations(ctx context.Context, events []model.RFIDCorrelation) (int64, error) {
	rows := make([][]any, len(events))
	for i, e := range events {
		rows[i] = []any{
			uuid.New().String(), e.TagID, e.ItemID, e.LocationCode, e.Category,
			e.EventType, toCents(e.RevenueAttributed), e.ObservedAt.UTC(),
		}
	}
	// Reader events are append-only; replayed files are dropped on the
	// (tag_id, event_type, observed_at) key.
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "rfid_correlations",
		Columns:      []string{"id", "tag_id", "item_id", "location_code", "category", "event_type", "revenue_cents", "observed_at"},
		ConflictKeys: []string{"tag_id", "event_type", "observed_at"},
		InsertOnly:   true,
	}, rows)
}

func (s *PostgresStore) UpsertScorecards(ctx context.Context, cards []model.FinancialScorecard) (int64, error) {
	rows := make([][]any, len(cards))
	for i, c := range cards {
		pct, _ := c.UtilizationPct.Float64()
		rows[i] = []any{
			c.LocationCode, c.WeekStart.UTC(), toCents(c.Revenue), pct, c.EnteredBy, c.EnteredAt.UTC(),
		}
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "financial_scorecards",
		Columns:      []string{"location_code", "week_start", "revenue_cents", "utilization_pct", "entered_by", "entered_at"},
		ConflictKeys: []string{"location_code", "week_start"},
	}, rows)
}

func (s *PostgresStore) UpsertCatalogItems(ctx context.Context, items []model.CatalogItem) (int64, error) {
	rows := make([][]any, len(items))
	for i, it := range items {
		rows[i] = []any{it.ItemID, it.LocationCode, it.Category, it.RFIDTagged, it.UpdatedAt.UTC()}
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "catalog_items",
		Columns:      []string{"item_id", "location_code", "category", "rfid_tagged", "updated_at"},
		ConflictKeys: []string{"item_id"},
	}, rows)
}

// Suggestions

func (s *PostgresStore) CreateSuggestion(ctx context.Context, sg model.Suggestion) (*model.Suggestion, error) {
	if err := sg.Validate(); err != nil {
		return nil, err
	}

	sg.ID = uuid.New().String()
	if sg.Status == "" {
		sg.Status = model.SuggestionOpen
	}
	now := time.Now().UTC()
	sg.CreatedAt = now
	sg.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO suggestions (id, title, body, author, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sg.ID, sg.Title, sg.Body, sg.Author, string(sg.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert suggestion")
	}
	return &sg, nil
}

func (s *PostgresStore) GetSuggestion(ctx context.Context, id string) (*model.Suggestion, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, title, body, author, status, created_at, updated_at FROM suggestions WHERE id = $1`, id)

	var sg model.Suggestion
	err := row.Scan(&sg.ID, &sg.Title, &sg.Body, &sg.Author, &sg.Status, &sg.CreatedAt, &sg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "suggestion %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get suggestion %s", id)
	}
	return &sg, nil
}

func (s *PostgresStore) ListSuggestions(ctx context.Context, filter SuggestionFilter) ([]model.Suggestion, error) {
	var p pgScope
	query := `SELECT id, title, body, author, status, created_at, updated_at FROM suggestions WHERE true`

	if filter.Status != "" {
		query += ` AND status = ` + p.add(string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + p.add(limit)

	if filter.Offset > 0 {
		query += ` OFFSET ` + p.add(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, p.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list suggestions")
	}
	defer rows.Close()

	var out []model.Suggestion
	for rows.Next() {
		var sg model.Suggestion
		if err := rows.Scan(&sg.ID, &sg.Title, &sg.Body, &sg.Author, &sg.Status, &sg.CreatedAt, &sg.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan suggestion")
		}
		out = append(out, sg)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list suggestions iterate")
}

func (s *PostgresStore) UpdateSuggestion(ctx context.Context, id string, status model.SuggestionStatus, body string) (*model.Suggestion, error) {
	var p pgScope
	query := `UPDATE suggestions SET status = ` + p.add(string(status)) + `, updated_at = ` + p.add(time.Now().UTC())
	if body != "" {
		query += `, body = ` + p.add(body)
	}
	query += ` WHERE id = ` + p.add(id)

	tag, err := s.pool.Exec(ctx, query, p.args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update suggestion %s", id)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Wrapf(ErrNotFound, "suggestion %s", id)
	}
	return s.GetSuggestion(ctx, id)
}

func (s *PostgresStore) DeleteSuggestion(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM suggestions WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete suggestion %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "suggestion %s", id)
	}
	return nil
}

// helpers

// centsAggregate runs an aggregate query whose first column is a cents
// total, converting it back to a decimal value.
func (s *PostgresStore) centsAggregate(ctx context.Context, query string, args []any, what string) (AggregateRow, error) {
	var cents, n int64
	var asOf *time.Time
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&cents, &asOf, &n); err != nil {
		return AggregateRow{}, eris.Wrapf(err, "postgres: %s", what)
	}
	return AggregateRow{Value: fromCents(cents), AsOf: deref(asOf), SampleSize: n}, nil
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
