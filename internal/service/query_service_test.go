package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nl2sql-tool/internal/middleware"
	"nl2sql-tool/internal/model"
	"nl2sql-tool/internal/utils"
)

func TestQueryExecutor_RowCountNeverExceedsLimit(t *testing.T) {
	sqlDB, _ := openSampleDB(t)
	exec := NewQueryExecutor(sqlDB, model.DatabaseTypeSQLite, ExecutorOptions{}, nil, zerolog.Nop())

	tests := []struct {
		limit     int
		want      int
		truncated bool
	}{
		{limit: 1, want: 1, truncated: true},
		{limit: 3, want: 3, truncated: true},
		{limit: 4, want: 4, truncated: false},
		{limit: 50, want: 4, truncated: false},
		{limit: 0, want: 4, truncated: false},
	}

	for _, tt := range tests {
		result, err := exec.Execute(context.Background(), "SELECT * FROM customers;", tt.limit)
		require.NoError(t, err)
		assert.Equal(t, tt.want, result.RowCount, "limit %d", tt.limit)
		assert.Len(t, result.Rows, tt.want)
		assert.Equal(t, tt.truncated, result.Truncated, "limit %d", tt.limit)
		assert.GreaterOrEqual(t, result.ExecutionTime, 0.0)
	}
}

func TestQueryExecutor_Values(t *testing.T) {
	sqlDB, _ := openSampleDB(t)
	exec := NewQueryExecutor(sqlDB, model.DatabaseTypeSQLite, ExecutorOptions{}, nil, zerolog.Nop())

	result, err := exec.Execute(context.Background(),
		"SELECT c.id, c.name, c.created_at, o.total, NULL AS nothing FROM customers c JOIN orders o ON o.customer_id = c.id WHERE c.id = 1", 10)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	row := result.Rows[0]
	assert.Equal(t, []string{"id", "name", "created_at", "total", "nothing"}, result.Columns)
	assert.EqualValues(t, 1, row["id"])
	assert.Equal(t, "John Smith", row["name"])
	assert.Equal(t, "2024-01-15 10:30:00", row["created_at"])
	assert.InDelta(t, 99.5, row["total"], 1e-9)
	assert.Nil(t, row["nothing"])
}

func TestQueryExecutor_EmptyResult(t *testing.T) {
	sqlDB, _ := openSampleDB(t)
	exec := NewQueryExecutor(sqlDB, model.DatabaseTypeSQLite, ExecutorOptions{}, nil, zerolog.Nop())

	result, err := exec.Execute(context.Background(), "SELECT * FROM customers WHERE state = 'TX'", 10)
	require.NoError(t, err)
	assert.Equal(t, 0, result.RowCount)
	assert.NotNil(t, result.Rows)
	assert.False(t, result.Truncated)
}

func TestQueryExecutor_WritesAreRolledBack(t *testing.T) {
	sqlDB, _ := openSampleDB(t)
	exec := NewQueryExecutor(sqlDB, model.DatabaseTypeSQLite, ExecutorOptions{}, nil, zerolog.Nop())

	_, err := exec.Execute(context.Background(), "DELETE FROM orders RETURNING id", 10)
	require.NoError(t, err)

	var n int
	require.NoError(t, sqlDB.QueryRow("SELECT COUNT(*) FROM orders").Scan(&n))
	assert.Equal(t, 3, n)
}

func TestQueryExecutor_DriverError(t *testing.T) {
	sqlDB, _ := openSampleDB(t)
	reg := prometheus.NewRegistry()
	metrics := middleware.NewMetrics(reg)
	exec := NewQueryExecutor(sqlDB, model.DatabaseTypeSQLite, ExecutorOptions{}, metrics, zerolog.Nop())

	_, err := exec.Execute(context.Background(), "SELECT * FROM nope", 10)
	require.Error(t, err)
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeQueryFailed))
	assert.Contains(t, utils.AsAppError(err).Details, "nope")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.QueryTotal.WithLabelValues("sqlite", "error")))
}

func TestQueryExecutor_ReadOnlyTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM items").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2).AddRow(3))
	mock.ExpectRollback()

	exec := NewQueryExecutor(db, model.DatabaseTypePostgreSQL, ExecutorOptions{MaxLimit: 2}, nil, zerolog.Nop())
	result, err := exec.Execute(context.Background(), "SELECT id FROM items", 500)
	require.NoError(t, err)

	assert.Equal(t, 2, result.RowCount)
	assert.True(t, result.Truncated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryExecutor_BeginFailureIsConnectionError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	exec := NewQueryExecutor(db, model.DatabaseTypeMySQL, ExecutorOptions{}, nil, zerolog.Nop())
	_, err = exec.Execute(context.Background(), "SELECT 1", 10)
	require.Error(t, err)
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeConnectionFailed))
}

func TestQueryExecutor_Timeout(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT slow").
		WillDelayFor(time.Second).
		WillReturnRows(sqlmock.NewRows([]string{"x"}).AddRow(1))
	mock.ExpectRollback()

	metrics := middleware.NewMetrics(prometheus.NewRegistry())
	exec := NewQueryExecutor(db, model.DatabaseTypePostgreSQL, ExecutorOptions{Timeout: 20 * time.Millisecond}, metrics, zerolog.Nop())
	_, err = exec.Execute(context.Background(), "SELECT slow", 10)
	require.Error(t, err)
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeQueryTimeout))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.QueryTotal.WithLabelValues("postgresql", "timeout")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.QueryTotal.WithLabelValues("postgresql", "error")))
}
