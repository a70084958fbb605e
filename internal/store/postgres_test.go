package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascade-rentals/opsdash/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_POSRevenue(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	scope := julyScope()
	asOf := july(12)

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount_cents\), 0\)::BIGINT, MAX\(recorded_at\), COUNT\(\*\)`).
		WithArgs(scope.Start, scope.End, "PDX").
		WillReturnRows(pgxmock.NewRows([]string{"sum", "max", "count"}).AddRow(int64(15000), &asOf, int64(2)))

	row, err := s.POSRevenue(context.Background(), scope)
	require.NoError(t, err)
	assert.True(t, row.Value.Equal(dec("150.00")), "value = %s", row.Value)
	assert.Equal(t, asOf, row.AsOf)
	assert.Equal(t, int64(2), row.SampleSize)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_POSRevenue_EmptyWindow(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	scope := julyScope()

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount_cents\), 0\)::BIGINT`).
		WithArgs(scope.Start, scope.End, "PDX").
		WillReturnRows(pgxmock.NewRows([]string{"sum", "max", "count"}).AddRow(int64(0), (*time.Time)(nil), int64(0)))

	row, err := s.POSRevenue(context.Background(), scope)
	require.NoError(t, err)
	assert.True(t, row.Value.IsZero())
	assert.True(t, row.AsOf.IsZero())
	assert.Equal(t, int64(0), row.SampleSize)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinancialRevenue_CategoryScopeShortCircuits(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	scope := julyScope()
	scope.Category = "excavator"

	// No query expected: scorecards have no category dimension.
	row, err := s.FinancialRevenue(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, int64(0), row.SampleSize)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RFIDUtilization(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	scope := julyScope()
	asOf := july(10)

	mock.ExpectQuery(`SELECT COUNT\(DISTINCT item_id\) FILTER`).
		WithArgs(scope.Start, scope.End, "PDX").
		WillReturnRows(pgxmock.NewRows([]string{"on_rent", "seen", "max"}).AddRow(int64(1), int64(2), &asOf))

	row, err := s.RFIDUtilization(context.Background(), scope)
	require.NoError(t, err)
	assert.True(t, row.Value.Equal(dec("50")), "value = %s", row.Value)
	assert.Equal(t, int64(2), row.SampleSize)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CatalogCount(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	scope := julyScope()
	scope.Category = "excavator"

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM catalog_items`).
		WithArgs("PDX", "excavator").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))

	n, err := s.CatalogCount(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertCatalogItems(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_catalog_items"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_catalog_items"},
		[]string{"item_id", "location_code", "category", "rfid_tagged", "updated_at"}).
		WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "catalog_items"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.UpsertCatalogItems(context.Background(), []model.CatalogItem{
		{ItemID: "EX-1", LocationCode: "PDX", Category: "excavator", RFIDTagged: true, UpdatedAt: july(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertEmptyBatches(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	n, err := s.InsertPOSTransactions(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = s.InsertRFIDCorrelations(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSuggestion_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, title, body, author, status, created_at, updated_at FROM suggestions`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSuggestion(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteSuggestion_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM suggestions WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.DeleteSuggestion(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateSuggestion(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO suggestions`).
		WithArgs(pgxmock.AnyArg(), "Add SEA yard", "", "ops", "open", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	created, err := s.CreateSuggestion(context.Background(), model.Suggestion{Title: "Add SEA yard", Author: "ops"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.SuggestionOpen, created.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
