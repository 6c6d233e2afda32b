package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"nl2sql-tool/internal/middleware"
	"nl2sql-tool/internal/model"
	"nl2sql-tool/internal/utils"
)

// QueryExecutor runs one read statement and returns at most limit rows.
type QueryExecutor interface {
	Execute(ctx context.Context, sql string, limit int) (*model.ExecutionResult, error)
}

type ExecutorOptions struct {
	Timeout  time.Duration
	MaxLimit int
}

type queryExecutor struct {
	db         *sql.DB
	dbType     model.DatabaseType
	timeout    time.Duration
	maxLimit   int
	typeMapper *utils.DataTypeMapper
	metrics    *middleware.Metrics
	log        zerolog.Logger
}

// NewQueryExecutor creates an executor over the shared pool. metrics may be nil.
func NewQueryExecutor(db *sql.DB, dbType model.DatabaseType, opts ExecutorOptions, metrics *middleware.Metrics, log zerolog.Logger) QueryExecutor {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxLimit <= 0 || opts.MaxLimit > model.MaxResultLimit {
		opts.MaxLimit = model.MaxResultLimit
	}
	return &queryExecutor{
		db:         db,
		dbType:     dbType,
		timeout:    opts.Timeout,
		maxLimit:   opts.MaxLimit,
		typeMapper: utils.NewDataTypeMapper(),
		metrics:    metrics,
		log:        log.With().Str("component", "executor").Logger(),
	}
}

// Execute runs statement inside a transaction that is always rolled back. Rows
// past limit are not read; Truncated reports that more existed.
func (qe *queryExecutor) Execute(ctx context.Context, statement string, limit int) (*model.ExecutionResult, error) {
	limit = qe.clampLimit(limit)
	statement = strings.TrimRight(strings.TrimSpace(statement), "; \t\n")

	queryCtx, cancel := context.WithTimeout(ctx, qe.timeout)
	defer cancel()

	startTime := time.Now()
	result, err := qe.execute(queryCtx, statement, limit)
	elapsed := time.Since(startTime)

	if err != nil {
		classified := qe.classify(queryCtx, err)
		status := "error"
		if utils.IsErrorType(classified, utils.ErrCodeQueryTimeout) {
			status = "timeout"
		}
		qe.metrics.RecordQuery(string(qe.dbType), status, elapsed, 0)
		qe.log.Warn().Err(err).Dur("elapsed", elapsed).Str("status", status).Msg("query failed")
		return nil, classified
	}

	result.ExecutionTime = elapsed.Seconds()
	result.ExecutedAt = startTime
	qe.metrics.RecordQuery(string(qe.dbType), "success", elapsed, result.RowCount)
	qe.log.Debug().
		Int("rows", result.RowCount).
		Bool("truncated", result.Truncated).
		Dur("elapsed", elapsed).
		Msg("query executed")
	return result, nil
}

func (qe *queryExecutor) clampLimit(limit int) int {
	if limit <= 0 {
		return model.DefaultResultLimit
	}
	if limit > qe.maxLimit {
		return qe.maxLimit
	}
	return limit
}

func (qe *queryExecutor) execute(ctx context.Context, statement string, limit int) (*model.ExecutionResult, error) {
	tx, err := qe.db.BeginTx(ctx, qe.txOptions())
	if err != nil {
		return nil, &beginError{err}
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, statement)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	columns := make([]string, len(columnTypes))
	targetTypes := make([]model.StandardizedType, len(columnTypes))
	for i, col := range columnTypes {
		columns[i] = col.Name()
		targetTypes[i] = qe.typeMapper.MapToStandardType(qe.dbType, col.DatabaseTypeName())
	}

	result := &model.ExecutionResult{
		Columns: columns,
		Rows:    make([]map[string]any, 0),
	}
	for rows.Next() {
		if len(result.Rows) == limit {
			result.Truncated = true
			break
		}

		values, err := scanRow(rows, len(columns))
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, name := range columns {
			row[name] = qe.typeMapper.StandardizeValue(values[i], targetTypes[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

// SQLite has no read-only transactions; the rollback still discards writes.
func (qe *queryExecutor) txOptions() *sql.TxOptions {
	switch qe.dbType {
	case model.DatabaseTypePostgreSQL, model.DatabaseTypeMySQL:
		return &sql.TxOptions{ReadOnly: true}
	default:
		return nil
	}
}

type beginError struct{ err error }

func (e *beginError) Error() string { return e.err.Error() }
func (e *beginError) Unwrap() error { return e.err }

func (qe *queryExecutor) classify(ctx context.Context, err error) error {
	var be *beginError
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return utils.NewErrorBuilder(utils.ErrCodeQueryTimeout).
			WithDetails(fmt.Sprintf("query exceeded %s", qe.timeout)).
			WithCause(err).
			Build()
	case errors.As(err, &be):
		return utils.NewConnectionError(be.err)
	default:
		return utils.NewQueryError(err)
	}
}

func scanRow(rows *sql.Rows, columnCount int) ([]interface{}, error) {
	row := make([]interface{}, columnCount)
	rowPointers := make([]interface{}, columnCount)
	for i := range row {
		rowPointers[i] = &row[i]
	}

	if err := rows.Scan(rowPointers...); err != nil {
		return nil, err
	}
	return row, nil
}
