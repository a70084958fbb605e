package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/cascade-rentals/opsdash/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS pos_transactions (
	id            TEXT PRIMARY KEY,
	location_code TEXT NOT NULL,
	category      TEXT NOT NULL DEFAULT '',
	item_id       TEXT NOT NULL,
	amount_cents  INTEGER NOT NULL,
	started_at    DATETIME NOT NULL,
	ended_at      DATETIME NOT NULL,
	recorded_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS rfid_correlations (
	id            TEXT PRIMARY KEY,
	tag_id        TEXT NOT NULL,
	item_id       TEXT NOT NULL,
	location_code TEXT NOT NULL,
	category      TEXT NOT NULL DEFAULT '',
	event_type    TEXT NOT NULL,
	revenue_cents INTEGER NOT NULL DEFAULT 0,
	observed_at   DATETIME NOT NULL,
	UNIQUE(tag_id, event_type, observed_at)
);

CREATE TABLE IF NOT EXISTS financial_scorecards (
	location_code   TEXT NOT NULL,
	week_start      DATETIME NOT NULL,
	revenue_cents   INTEGER NOT NULL,
	utilization_pct REAL NOT NULL,
	entered_by      TEXT NOT NULL DEFAULT '',
	entered_at      DATETIME NOT NULL,
	PRIMARY KEY(location_code, week_start)
);

CREATE TABLE IF NOT EXISTS catalog_items (
	item_id       TEXT PRIMARY KEY,
	location_code TEXT NOT NULL,
	category      TEXT NOT NULL DEFAULT '',
	rfid_tagged   INTEGER NOT NULL DEFAULT 0,
	updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS suggestions (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	body       TEXT NOT NULL DEFAULT '',
	author     TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'open',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pos_started_at ON pos_transactions(started_at);
CREATE INDEX IF NOT EXISTS idx_pos_location ON pos_transactions(location_code);
CREATE INDEX IF NOT EXISTS idx_rfid_observed_at ON rfid_correlations(observed_at);
CREATE INDEX IF NOT EXISTS idx_rfid_location ON rfid_correlations(location_code);
CREATE INDEX IF NOT EXISTS idx_scorecards_week ON financial_scorecards(week_start);
CREATE INDEX IF NOT EXISTS idx_catalog_location ON catalog_items(location_code);
CREATE INDEX IF NOT EXISTS idx_suggestions_status ON suggestions(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqliteTimeLayout is a fixed-width UTC format so lexicographic
// comparison and julianday() both work on stored values.
const sqliteTimeLayout = "2006-01-02 15:04:05"

func sqliteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation(sqliteTimeLayout, s.String, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

// locCatFilter appends the optional location and category clauses of a
// scope. The time window is query-specific and written inline.
func locCatFilter(scope model.Scope) (string, []any) {
	var clause string
	var args []any
	if scope.LocationCode != "" {
		clause += " AND location_code = ?"
		args = append(args, scope.LocationCode)
	}
	if scope.Category != "" {
		clause += " AND category = ?"
		args = append(args, scope.Category)
	}
	return clause, args
}

// Metric aggregates. The scope window is half-open: [Start, End).

func (s *SQLiteStore) POSRevenue(ctx context.Context, scope model.Scope) (AggregateRow, error) {
	filter, filterArgs := locCatFilter(scope)
	query := `SELECT COALESCE(SUM(amount_cents), 0), MAX(recorded_at), COUNT(*)
		FROM pos_transactions
		WHERE started_at >= ? AND started_at < ?` + filter
	args := append([]any{sqliteTime(scope.Start), sqliteTime(scope.End)}, filterArgs...)

	var cents, n int64
	var asOf sql.NullString
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&cents, &asOf, &n); err != nil {
		return AggregateRow{}, eris.Wrap(err, "sqlite: pos revenue")
	}
	return AggregateRow{Value: fromCents(cents), AsOf: parseSQLiteTime(asOf), SampleSize: n}, nil
}

func (s *SQLiteStore) POSUtilization(ctx context.Context, scope model.Scope) (AggregateRow, error) {
	filter, filterArgs := locCatFilter(scope)
	query := `SELECT COALESCE(SUM(
			MIN(julianday(ended_at), julianday(?)) - MAX(julianday(started_at), julianday(?))
		), 0), MAX(recorded_at), COUNT(*)
		FROM pos_transactions
		WHERE started_at < ? AND ended_at > ?` + filter
	args := append([]any{
		sqliteTime(scope.End), sqliteTime(scope.Start),
		sqliteTime(scope.End), sqliteTime(scope.Start),
	}, filterArgs...)

	var rentedDays float64
	var asOf sql.NullString
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&rentedDays, &asOf, &n); err != nil {
		return AggregateRow{}, eris.Wrap(err, "sqlite: pos utilization")
	}

	catalog, err := s.CatalogCount(ctx, scope)
	if err != nil {
		return AggregateRow{}, err
	}
	return AggregateRow{
		Value:      utilizationPct(rentedDays, catalog, scope),
		AsOf:       parseSQLiteTime(asOf),
		SampleSize: n,
	}, nil
}

func (s *SQLiteStore) POSInventoryCount(ctx context.Context, scope model.Scope) (AggregateRow, error) {
	filter, args := locCatFilter(scope)
	query := `SELECT COUNT(*), MAX(updated_at) FROM catalog_items WHERE 1=1` + filter

	var n int64
	var asOf sql.NullString
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n, &asOf); err != nil {
		return AggregateRow{}, eris.Wrap(err, "sqlite: pos inventory count")
	}
	return AggregateRow{Value: decimal.NewFromInt(n), AsOf: parseSQLiteTime(asOf), SampleSize: n}, nil
}

func (s *SQLiteStore) FinancialRevenue(ctx context.Context, scope model.Scope) (AggregateRow, error) {
	// Scorecards carry no category dimension.
	if scope.Category != "" {
		return AggregateRow{}, nil
	}
	query := `SELECT COALESCE(SUM(revenue_cents), 0), MAX(entered_at), COUNT(*)
		FROM financial_scorecards
		WHERE week_start >= ? AND week_start < ?`
	args := []any{sqliteTime(scope.Start), sqliteTime(scope.End)}
	if scope.LocationCode != "" {
		query += ` AND location_code = ?`
		args = append(args, scope.LocationCode)
	}

	var cents, n int64
	var asOf sql.NullString
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&cents, &asOf, &n); err != nil {
		return AggregateRow{}, eris.Wrap(err, "sqlite: financial revenue")
	}
	return AggregateRow{Value: fromCents(cents), AsOf: parseSQLiteTime(asOf), SampleSize: n}, nil
}

func (s *SQLiteStore) FinancialUtilization(ctx context.Context, scope model.Scope) (AggregateRow, error) {
	if scope.Category != "" {
		return AggregateRow{}, nil
	}
	query := `SELECT COALESCE(AVG(utilization_pct), 0), MAX(entered_at), COUNT(*)
		FROM financial_scorecards
		WHERE week_start >= ? AND week_start < ?`
	args := []any{sqliteTime(scope.Start), sqliteTime(scope.End)}
	if scope.LocationCode != "" {
		query += ` AND location_code = ?`
		args = append(args, scope.LocationCode)
	}

	var pct float64
	var asOf sql.NullString
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&pct, &asOf, &n); err != nil {
		return AggregateRow{}, eris.Wrap(err, "sqlite: financial utilization")
	}
	return AggregateRow{Value: decimal.NewFromFloat(pct).Round(2), AsOf: parseSQLiteTime(asOf), SampleSize: n}, nil
}

func (s *SQLiteStore) RFIDRevenue(ctx context.Context, scope model.Scope) (AggregateRow, error) {
	filter, filterArgs := locCatFilter(scope)
	query := `SELECT COALESCE(SUM(revenue_cents), 0), MAX(observed_at), COUNT(DISTINCT item_id)
		FROM rfid_correlations
		WHERE observed_at >= ? AND observed_at < ?` + filter
	args := append([]any{sqliteTime(scope.Start), sqliteTime(scope.End)}, filterArgs...)

	var cents, n int64
	var asOf sql.NullString
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&cents, &asOf, &n); err != nil {
		return AggregateRow{}, eris.Wrap(err, "sqlite: rfid revenue")
	}
	return AggregateRow{Value: fromCents(cents), AsOf: parseSQLiteTime(asOf), SampleSize: n}, nil
}

func (s *SQLiteStore) RFIDUtilization(ctx context.Context, scope model.Scope) (AggregateRow, error) {
	filter, filterArgs := locCatFilter(scope)
	query := `SELECT COUNT(DISTINCT CASE WHEN event_type = 'on_rent' THEN item_id END),
			COUNT(DISTINCT item_id), MAX(observed_at)
		FROM rfid_correlations
		WHERE observed_at >= ? AND observed_at < ?` + filter
	args := append([]any{sqliteTime(scope.Start), sqliteTime(scope.End)}, filterArgs...)

	var onRent, seen int64
	var asOf sql.NullString
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&onRent, &seen, &asOf); err != nil {
		return AggregateRow{}, eris.Wrap(err, "sqlite: rfid utilization")
	}
	return AggregateRow{Value: sharePct(onRent, seen), AsOf: parseSQLiteTime(asOf), SampleSize: seen}, nil
}

func (s *SQLiteStore) RFIDInventoryCount(ctx context.Context, scope model.Scope) (AggregateRow, error) {
	filter, filterArgs := locCatFilter(scope)
	query := `SELECT COUNT(DISTINCT item_id), MAX(observed_at)
		FROM rfid_correlations
		WHERE observed_at >= ? AND observed_at < ?` + filter
	args := append([]any{sqliteTime(scope.Start), sqliteTime(scope.End)}, filterArgs...)

	var n int64
	var asOf sql.NullString
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n, &asOf); err != nil {
		return AggregateRow{}, eris.Wrap(err, "sqlite: rfid inventory count")
	}
	return AggregateRow{Value: decimal.NewFromInt(n), AsOf: parseSQLiteTime(asOf), SampleSize: n}, nil
}

func (s *SQLiteStore) CatalogCount(ctx context.Context, scope model.Scope) (int64, error) {
	filter, args := locCatFilter(scope)
	query := `SELECT COUNT(*) FROM catalog_items WHERE 1=1` + filter

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: catalog count")
	}
	return n, nil
}

// Ingest

func (s *SQLiteStore) InsertPOSTransactions(ctx context.Context, txns []model.POSTransaction) (int64, error) {
	const query = `INSERT INTO pos_transactions
		(id, location_code, category, item_id, amount_cents, started_at, ended_at, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			location_code = excluded.location_code,
			category      = excluded.category,
			item_id       = excluded.item_id,
			amount_cents  = excluded.amount_cents,
			started_at    = excluded.started_at,
			ended_at      = excluded.ended_at,
			recorded_at   = excluded.recorded_at`

	return s.batchExec(ctx, query, len(txns), "pos transactions", func(i int) []any {
		t := txns[i]
		return []any{
			t.ID, t.LocationCode, t.Category, t.ItemID, toCents(t.Amount),
			sqliteTime(t.StartedAt), sqliteTime(t.EndedAt), sqliteTime(t.RecordedAt),
		}
	})
}

func (s *SQLiteStore) InsertRFIDCorrelations(ctx context.Context, events []model.RFIDCorrelation) (int64, error) {
	const query = `INSERT OR IGNORE INTO rfid_correlations
		(id, tag_id, item_id, location_code, category, event_type, revenue_cents, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	return s.batchExec(ctx, query, len(events), "rfid correlations", func(i int) []any {
		e := events[i]
		return []any{
			uuid.New().String(), e.TagID, e.ItemID, e.LocationCode, e.Category,
			e.EventType, toCents(e.RevenueAttributed), sqliteTime(e.ObservedAt),
		}
	})
}

func (s *SQLiteStore) UpsertScorecards(ctx context.Context, cards []model.FinancialScorecard) (int64, error) {
	const query = `INSERT INTO financial_scorecards
		(location_code, week_start, revenue_cents, utilization_pct, entered_by, entered_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(location_code, week_start) DO UPDATE SET
			revenue_cents   = excluded.revenue_cents,
			utilization_pct = excluded.utilization_pct,
			entered_by      = excluded.entered_by,
			entered_at      = excluded.entered_at`

	return s.batchExec(ctx, query, len(cards), "scorecards", func(i int) []any {
		c := cards[i]
		pct, _ := c.UtilizationPct.Float64()
		return []any{
			c.LocationCode, sqliteTime(c.WeekStart), toCents(c.Revenue),
			pct, c.EnteredBy, sqliteTime(c.EnteredAt),
		}
	})
}

func (s *SQLiteStore) UpsertCatalogItems(ctx context.Context, items []model.CatalogItem) (int64, error) {
	const query = `INSERT INTO catalog_items
		(item_id, location_code, category, rfid_tagged, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			location_code = excluded.location_code,
			category      = excluded.category,
			rfid_tagged   = excluded.rfid_tagged,
			updated_at    = excluded.updated_at`

	return s.batchExec(ctx, query, len(items), "catalog items", func(i int) []any {
		it := items[i]
		tagged := 0
		if it.RFIDTagged {
			tagged = 1
		}
		return []any{it.ItemID, it.LocationCode, it.Category, tagged, sqliteTime(it.UpdatedAt)}
	})
}

// batchExec runs one prepared statement over n rows inside a single
// transaction and reports how many rows were written.
func (s *SQLiteStore) batchExec(ctx context.Context, query string, n int, what string, row func(i int) []any) (int64, error) {
	if n == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: begin tx for %s", what)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: prepare %s insert", what)
	}
	defer stmt.Close()

	var written int64
	for i := 0; i < n; i++ {
		res, err := stmt.ExecContext(ctx, row(i)...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert %s row %d", what, i)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: %s rows affected", what)
		}
		written += affected
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrapf(err, "sqlite: commit %s", what)
	}
	return written, nil
}

// Suggestions

func (s *SQLiteStore) CreateSuggestion(ctx context.Context, sg model.Suggestion) (*model.Suggestion, error) {
	if err := sg.Validate(); err != nil {
		return nil, err
	}

	sg.ID = uuid.New().String()
	if sg.Status == "" {
		sg.Status = model.SuggestionOpen
	}
	now := time.Now().UTC().Truncate(time.Second)
	sg.CreatedAt = now
	sg.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO suggestions (id, title, body, author, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sg.ID, sg.Title, sg.Body, sg.Author, string(sg.Status), sqliteTime(now), sqliteTime(now),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert suggestion")
	}
	return &sg, nil
}

func (s *SQLiteStore) GetSuggestion(ctx context.Context, id string) (*model.Suggestion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, body, author, status, created_at, updated_at FROM suggestions WHERE id = ?`, id)
	return scanSuggestion(row, id)
}

func (s *SQLiteStore) ListSuggestions(ctx context.Context, filter SuggestionFilter) ([]model.Suggestion, error) {
	query := `SELECT id, title, body, author, status, created_at, updated_at FROM suggestions WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list suggestions")
	}
	defer rows.Close()

	var out []model.Suggestion
	for rows.Next() {
		sg, err := scanSuggestion(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, *sg)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list suggestions iterate")
}

func (s *SQLiteStore) UpdateSuggestion(ctx context.Context, id string, status model.SuggestionStatus, body string) (*model.Suggestion, error) {
	now := time.Now().UTC().Truncate(time.Second)

	query := `UPDATE suggestions SET status = ?, updated_at = ?`
	args := []any{string(status), sqliteTime(now)}
	if body != "" {
		query += `, body = ?`
		args = append(args, body)
	}
	query += ` WHERE id = ?`
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update suggestion %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return nil, eris.Wrapf(ErrNotFound, "suggestion %s", id)
	}
	return s.GetSuggestion(ctx, id)
}

func (s *SQLiteStore) DeleteSuggestion(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM suggestions WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete suggestion %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "suggestion %s", id)
	}
	return nil
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanSuggestion(row scannable, id string) (*model.Suggestion, error) {
	var sg model.Suggestion
	var createdAt, updatedAt sql.NullString

	err := row.Scan(&sg.ID, &sg.Title, &sg.Body, &sg.Author, &sg.Status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "suggestion %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan suggestion")
	}

	sg.CreatedAt = parseSQLiteTime(createdAt)
	sg.UpdatedAt = parseSQLiteTime(updatedAt)
	return &sg, nil
}
