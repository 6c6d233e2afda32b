package service

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"nl2sql-tool/internal/database"
	"nl2sql-tool/internal/database/metadata"
	"nl2sql-tool/internal/model"
	"nl2sql-tool/internal/security"
	"nl2sql-tool/internal/utils"
)

const sampleDDL = `
CREATE TABLE customers (
	id INTEGER PRIMARY KEY,
	name VARCHAR(100) NOT NULL,
	email VARCHAR(100),
	city VARCHAR(50),
	state VARCHAR(2),
	created_at DATETIME
);
CREATE TABLE orders (
	id INTEGER PRIMARY KEY,
	customer_id INTEGER NOT NULL,
	total DECIMAL(10,2),
	status VARCHAR(20)
);
INSERT INTO customers (id, name, email, city, state, created_at) VALUES
	(1, 'John Smith', 'john@example.com', 'New York', 'NY', '2024-01-15 10:30:00'),
	(2, 'Jane Doe', 'jane@example.com', 'Los Angeles', 'CA', '2024-01-16 11:00:00'),
	(3, 'Bob Stone', 'bob@example.com', 'Chicago', 'IL', '2024-01-17 09:15:00'),
	(4, 'Ann Lee', 'ann@example.com', 'New York', 'NY', '2024-01-18 14:45:00');
INSERT INTO orders (id, customer_id, total, status) VALUES
	(1, 1, 99.50, 'shipped'),
	(2, 4, 10.00, 'pending'),
	(3, 2, 250.00, 'shipped');
`

func openSampleDB(t *testing.T) (*sql.DB, *gorm.DB) {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", t.TempDir()+"/sample.db")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	_, err = sqlDB.Exec(sampleDDL)
	require.NoError(t, err)

	gormDB, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return sqlDB, gormDB
}

// stubModel answers generation prompts with sql and explanation prompts with
// explanation. A non-nil err fails every call.
type stubModel struct {
	mu          sync.Mutex
	sql         string
	explanation string
	err         error
	explainErr  error
	reachable   bool
	prompts     []string
}

func (m *stubModel) Complete(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)

	if m.err != nil {
		return "", m.err
	}
	if strings.HasPrefix(prompt, "Explain this SQL") {
		if m.explainErr != nil {
			return "", m.explainErr
		}
		return m.explanation, nil
	}
	return m.sql, nil
}

func (m *stubModel) IsReachable(context.Context) bool { return m.reachable }

func (m *stubModel) ListModels(context.Context) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []string{"llama2:latest", "sqlcoder:7b"}, nil
}

func (m *stubModel) Model() string { return "llama2" }

func (m *stubModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

type spyExecutor struct {
	next  QueryExecutor
	calls int
}

func (s *spyExecutor) Execute(ctx context.Context, sql string, limit int) (*model.ExecutionResult, error) {
	s.calls++
	return s.next.Execute(ctx, sql, limit)
}

type fixture struct {
	svc      *NL2SQLService
	model    *stubModel
	executor *spyExecutor
	sqlDB    *sql.DB
}

func newFixture(t *testing.T, m *stubModel) *fixture {
	t.Helper()

	sqlDB, gormDB := openSampleDB(t)
	log := zerolog.Nop()
	spy := &spyExecutor{next: NewQueryExecutor(sqlDB, model.DatabaseTypeSQLite, ExecutorOptions{}, nil, log)}

	svc := NewNL2SQLService(Dependencies{
		Schema:    metadata.NewIntrospector(gormDB, model.DatabaseTypeSQLite, 3, log),
		Model:     m,
		Executor:  spy,
		Probe:     database.NewHealthChecker(sqlDB, 0),
		Validator: security.NewSQLValidator(0),
		Explain:   true,
		Logger:    log,
	})
	return &fixture{svc: svc, model: m, executor: spy, sqlDB: sqlDB}
}

var errModelDown = utils.NewServiceUnavailableError("language model service is unreachable", nil)
