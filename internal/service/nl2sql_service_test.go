package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nl2sql-tool/internal/model"
	"nl2sql-tool/internal/utils"
)

func TestQuery_CustomersFromNewYork(t *testing.T) {
	f := newFixture(t, &stubModel{
		sql:         "```sql\nSELECT * FROM customers WHERE state = 'NY';\n```",
		explanation: "Lists every customer located in New York.",
		reachable:   true,
	})

	resp, err := f.svc.Query(context.Background(), &model.QueryRequest{Question: "Show me all customers from New York"})
	require.NoError(t, err)

	assert.Equal(t, "Show me all customers from New York", resp.Question)
	assert.Contains(t, resp.SQLQuery, "customers")
	assert.Contains(t, resp.SQLQuery, "state")
	assert.Equal(t, 2, resp.RowCount)
	require.Len(t, resp.Results, 2)
	for _, row := range resp.Results {
		assert.Equal(t, "NY", row["state"])
	}
	assert.GreaterOrEqual(t, resp.ExecutionTime, 0.0)
	require.NotNil(t, resp.Explanation)
	assert.Equal(t, "Lists every customer located in New York.", *resp.Explanation)
	require.NotNil(t, resp.Confidence)
	assert.GreaterOrEqual(t, *resp.Confidence, 0.8)
	assert.Nil(t, resp.Note)

	// generation prompt embeds the live schema
	assert.Contains(t, f.model.prompts[0], "Table: customers")
	assert.Contains(t, f.model.prompts[0], "Show me all customers from New York")
}

func TestQuery_BlankLineBetweenClauses(t *testing.T) {
	f := newFixture(t, &stubModel{sql: "SELECT name\n\nFROM customers WHERE state = 'NY'", reachable: true})

	resp, err := f.svc.Query(context.Background(), &model.QueryRequest{Question: "names of New York customers"})
	require.NoError(t, err)

	assert.Equal(t, "SELECT name\nFROM customers\nWHERE state = 'NY'", resp.SQLQuery)
	assert.Equal(t, 2, resp.RowCount)
	assert.Nil(t, resp.Note)
	require.NotNil(t, resp.Confidence)
	assert.GreaterOrEqual(t, *resp.Confidence, 0.8)
}

func TestQuery_RespectsLimit(t *testing.T) {
	f := newFixture(t, &stubModel{sql: "SELECT * FROM customers", reachable: true})

	resp, err := f.svc.Query(context.Background(), &model.QueryRequest{Question: "all customers", Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.RowCount)
	assert.Len(t, resp.Results, 3)
	assert.True(t, resp.Truncated)
}

func TestQuery_UnsafeStatementIsNotExecuted(t *testing.T) {
	f := newFixture(t, &stubModel{sql: "DELETE FROM customers WHERE state = 'NY'", reachable: true})

	resp, err := f.svc.Query(context.Background(), &model.QueryRequest{Question: "remove New York customers"})
	require.NoError(t, err)

	assert.Equal(t, 0, f.executor.calls)
	assert.Contains(t, resp.SQLQuery, "DELETE")
	assert.Equal(t, 0, resp.RowCount)
	assert.Empty(t, resp.Results)
	require.NotNil(t, resp.Note)
	assert.Contains(t, *resp.Note, "not executed")

	var n int
	require.NoError(t, f.sqlDB.QueryRow("SELECT COUNT(*) FROM customers").Scan(&n))
	assert.Equal(t, 4, n)
}

func TestQuery_ExecutionError(t *testing.T) {
	f := newFixture(t, &stubModel{sql: "SELECT missing_column FROM customers", reachable: true})

	_, err := f.svc.Query(context.Background(), &model.QueryRequest{Question: "broken"})
	require.Error(t, err)
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeQueryFailed))
	assert.Equal(t, 500, utils.GetErrorStatus(err))
	assert.Contains(t, utils.AsAppError(err).Details, "missing_column")
}

func TestGenerate_EmptyQuestionMakesNoModelCall(t *testing.T) {
	f := newFixture(t, &stubModel{sql: "SELECT 1", reachable: true})

	for _, q := range []string{"", "   "} {
		_, err := f.svc.Generate(context.Background(), &model.NL2SQLRequest{Question: q})
		require.Error(t, err)
		assert.True(t, utils.IsErrorType(err, utils.ErrCodeValidationFailed))
	}
	assert.Equal(t, 0, f.model.calls())
}

func TestGenerate_NeverExecutes(t *testing.T) {
	f := newFixture(t, &stubModel{sql: "SELECT name FROM customers", reachable: true})

	resp, err := f.svc.Generate(context.Background(), &model.NL2SQLRequest{Question: "customer names"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT name\nFROM customers", resp.SQLQuery)
	assert.True(t, resp.Safe)
	assert.Equal(t, "Simple", resp.Complexity)
	assert.Equal(t, 0, f.executor.calls)
}

func TestGenerate_NoSQLInOutput(t *testing.T) {
	for _, raw := range []string{"Sorry, I cannot help with that.", "DROP TABLE customers"} {
		f := newFixture(t, &stubModel{sql: raw, reachable: true})

		_, err := f.svc.Generate(context.Background(), &model.NL2SQLRequest{Question: "what is love"})
		require.Error(t, err)
		assert.True(t, utils.IsErrorType(err, utils.ErrCodeExtractionFailed))
		assert.Equal(t, 422, utils.GetErrorStatus(err))
	}
}

func TestGenerate_SchemaOverride(t *testing.T) {
	f := newFixture(t, &stubModel{sql: "SELECT * FROM invoices", reachable: true})

	override := "Table: invoices\nColumns:\n  - id (INTEGER)\n"
	resp, err := f.svc.Generate(context.Background(), &model.NL2SQLRequest{Question: "all invoices", SchemaContext: override})
	require.NoError(t, err)

	assert.Contains(t, f.model.prompts[0], "Table: invoices")
	assert.NotContains(t, f.model.prompts[0], "Table: customers")
	require.NotNil(t, resp.Confidence)
	assert.GreaterOrEqual(t, *resp.Confidence, 0.8)
}

func TestGenerate_ExplanationFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, &stubModel{
		sql:        "SELECT * FROM orders",
		explainErr: errors.New("timeout"),
		reachable:  true,
	})

	resp, err := f.svc.Generate(context.Background(), &model.NL2SQLRequest{Question: "orders"})
	require.NoError(t, err)
	assert.Nil(t, resp.Explanation)
}

func TestModelDown(t *testing.T) {
	f := newFixture(t, &stubModel{err: errModelDown, reachable: false})

	_, err := f.svc.Generate(context.Background(), &model.NL2SQLRequest{Question: "customers"})
	require.Error(t, err)
	assert.Equal(t, 503, utils.GetErrorStatus(err))

	health := f.svc.Health(context.Background())
	assert.False(t, health.OllamaConnected)
	assert.True(t, health.DatabaseConnected)
	assert.Equal(t, "unhealthy", health.Status)
	assert.False(t, health.Timestamp.IsZero())

	schema, err := f.svc.Schema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, schema.TotalTables)

	_, err = f.svc.Models(context.Background())
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeServiceUnavailable))
}

func TestHealth_AllUp(t *testing.T) {
	f := newFixture(t, &stubModel{reachable: true})

	health := f.svc.Health(context.Background())
	assert.Equal(t, "healthy", health.Status)
	assert.True(t, health.DatabaseConnected)
	assert.True(t, health.OllamaConnected)
}

func TestHealth_DatabaseDown(t *testing.T) {
	f := newFixture(t, &stubModel{reachable: true})
	require.NoError(t, f.sqlDB.Close())

	health := f.svc.Health(context.Background())
	assert.False(t, health.DatabaseConnected)
	assert.True(t, health.OllamaConnected)

	_, err := f.svc.Schema(context.Background())
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeConnectionFailed))
}

func TestModels(t *testing.T) {
	f := newFixture(t, &stubModel{reachable: true})

	resp, err := f.svc.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama2:latest", "sqlcoder:7b"}, resp.Models)
	assert.Equal(t, "llama2", resp.Current)
}

func TestExecuteSQL(t *testing.T) {
	f := newFixture(t, &stubModel{reachable: true})

	resp, err := f.svc.ExecuteSQL(context.Background(), "SELECT name, city FROM customers ORDER BY id", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.RowCount)
	assert.True(t, resp.Truncated)
	assert.Equal(t, "John Smith", resp.Results[0]["name"])
	assert.Contains(t, resp.Summary, "Retrieved 2 rows with 2 columns")
	assert.Equal(t, 0, f.model.calls())
}

func TestExecuteSQL_RejectsDestructive(t *testing.T) {
	f := newFixture(t, &stubModel{reachable: true})

	for _, stmt := range []string{"DROP TABLE customers", "DELETE FROM customers", "SELECT 1; DROP TABLE customers"} {
		_, err := f.svc.ExecuteSQL(context.Background(), stmt, 10)
		require.Error(t, err, stmt)
		assert.Equal(t, 422, utils.GetErrorStatus(err), stmt)
	}
	assert.Equal(t, 0, f.executor.calls)

	var n int
	require.NoError(t, f.sqlDB.QueryRow("SELECT COUNT(*) FROM customers").Scan(&n))
	assert.Equal(t, 4, n)
}

func TestResultSummary(t *testing.T) {
	assert.Equal(t, "Query executed successfully in 0.012s but returned no results.",
		ResultSummary(&model.ExecutionResult{ExecutionTime: 0.0123}))
	assert.Equal(t, "Retrieved 1 row with 1 column in 0.500 seconds.",
		ResultSummary(&model.ExecutionResult{RowCount: 1, Columns: []string{"a"}, ExecutionTime: 0.5}))
	assert.Equal(t, "Retrieved 3 rows with 2 columns in 1.000 seconds. Results were limited to 3 rows.",
		ResultSummary(&model.ExecutionResult{RowCount: 3, Columns: []string{"a", "b"}, ExecutionTime: 1, Truncated: true}))
}
