package controller

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"nl2sql-tool/internal/database"
	"nl2sql-tool/internal/database/metadata"
	"nl2sql-tool/internal/middleware"
	"nl2sql-tool/internal/model"
	"nl2sql-tool/internal/security"
	"nl2sql-tool/internal/service"
	"nl2sql-tool/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const fixtureDDL = `
CREATE TABLE customers (
	id INTEGER PRIMARY KEY,
	name VARCHAR(100) NOT NULL,
	city VARCHAR(50),
	state VARCHAR(2)
);
INSERT INTO customers (id, name, city, state) VALUES
	(1, 'John Smith', 'New York', 'NY'),
	(2, 'Jane Doe', 'Los Angeles', 'CA'),
	(3, 'Ann Lee', 'New York', 'NY');
`

type fakeModel struct {
	mu    sync.Mutex
	sql   string
	down  bool
	calls int
}

func (m *fakeModel) Complete(context.Context, string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.down {
		return "", utils.NewServiceUnavailableError("language model service is unreachable", nil)
	}
	return m.sql, nil
}

func (m *fakeModel) IsReachable(context.Context) bool { return !m.down }

func (m *fakeModel) ListModels(context.Context) ([]string, error) {
	if m.down {
		return nil, utils.NewServiceUnavailableError("language model service is unreachable", nil)
	}
	return []string{"llama2:latest"}, nil
}

func (m *fakeModel) Model() string { return "llama2" }

func (m *fakeModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type testServer struct {
	router *gin.Engine
	model  *fakeModel
	sqlDB  *sql.DB
	reg    *prometheus.Registry
}

func newTestServer(t *testing.T, m *fakeModel, opts ...func(*RouterOptions)) *testServer {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", t.TempDir()+"/api.db")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	_, err = sqlDB.Exec(fixtureDDL)
	require.NoError(t, err)

	gormDB, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	log := zerolog.Nop()
	reg := prometheus.NewRegistry()
	metrics := middleware.NewMetrics(reg)
	svc := service.NewNL2SQLService(service.Dependencies{
		Schema:   metadata.NewIntrospector(gormDB, model.DatabaseTypeSQLite, 2, log),
		Model:    m,
		Executor: service.NewQueryExecutor(sqlDB, model.DatabaseTypeSQLite, service.ExecutorOptions{}, metrics, log),
		Probe:    database.NewHealthChecker(sqlDB, time.Second),
		Metrics:  metrics,
		Logger:   log,
	})

	routerOpts := RouterOptions{
		Service:  svc,
		Logger:   log,
		Metrics:  metrics,
		Gatherer: reg,
	}
	for _, opt := range opts {
		opt(&routerOpts)
	}

	router := gin.New()
	SetupRouter(router, routerOpts)
	return &testServer{router: router, model: m, sqlDB: sqlDB, reg: reg}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["correlationId"])
	errInfo, ok := body["error"].(map[string]interface{})
	require.True(t, ok, w.Body.String())
	return errInfo["code"].(string)
}

func customerCount(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM customers").Scan(&n))
	return n
}

func TestNL2SQL_EmptyQuestion(t *testing.T) {
	s := newTestServer(t, &fakeModel{sql: "SELECT 1"})

	for _, body := range []string{`{"question": ""}`, `{"question": "   "}`, `{}`} {
		w := s.do(http.MethodPost, "/nl2sql", body)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, body)
		assert.Equal(t, utils.ErrCodeValidationFailed, errorCode(t, w))
	}
	assert.Equal(t, 0, s.model.callCount())
}

func TestNL2SQL_MalformedBody(t *testing.T) {
	s := newTestServer(t, &fakeModel{sql: "SELECT 1"})

	w := s.do(http.MethodPost, "/nl2sql", `{"question":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, utils.ErrCodeInvalidRequest, errorCode(t, w))
}

func TestNL2SQL_Success(t *testing.T) {
	s := newTestServer(t, &fakeModel{sql: "SELECT * FROM customers WHERE state = 'NY'"})

	w := s.do(http.MethodPost, "/api/v1/nl2sql", `{"question": "customers from New York"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, "customers from New York", body["question"])
	assert.Contains(t, body["sql_query"], "WHERE state = 'NY'")
	assert.Equal(t, true, body["safe"])
	assert.GreaterOrEqual(t, body["confidence"].(float64), 0.8)
	assert.NotContains(t, body, "explanation")
	assert.Equal(t, 3, customerCount(t, s.sqlDB))
}

func TestQuery_NewYorkCustomers(t *testing.T) {
	s := newTestServer(t, &fakeModel{sql: "```sql\nSELECT name FROM customers WHERE state = 'NY' ORDER BY id;\n```"})

	w := s.do(http.MethodPost, "/query", `{"question": "customers from New York", "limit": 10}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.EqualValues(t, 2, body["row_count"])
	assert.Equal(t, false, body["truncated"])
	results := body["results"].([]interface{})
	require.Len(t, results, 2)
	assert.Equal(t, "John Smith", results[0].(map[string]interface{})["name"])
}

func TestQuery_LimitOutOfRange(t *testing.T) {
	s := newTestServer(t, &fakeModel{sql: "SELECT 1"})

	w := s.do(http.MethodPost, "/query", `{"question": "anything", "limit": 20000}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 0, s.model.callCount())
}

func TestQuery_UnsafeStatementIsNotExecuted(t *testing.T) {
	s := newTestServer(t, &fakeModel{sql: "DELETE FROM customers"})

	w := s.do(http.MethodPost, "/query", `{"question": "remove everyone"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.EqualValues(t, 0, body["row_count"])
	assert.Contains(t, body["note"], "not executed")
	assert.Equal(t, 3, customerCount(t, s.sqlDB))
}

func TestModelDown(t *testing.T) {
	s := newTestServer(t, &fakeModel{down: true})

	w := s.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	health := decode(t, w)
	assert.Equal(t, false, health["ollama_connected"])
	assert.Equal(t, true, health["database_connected"])
	assert.Equal(t, "unhealthy", health["status"])

	w = s.do(http.MethodPost, "/nl2sql", `{"question": "how many customers"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, utils.ErrCodeServiceUnavailable, errorCode(t, w))

	w = s.do(http.MethodGet, "/schema", "")
	require.Equal(t, http.StatusOK, w.Code)
	schema := decode(t, w)
	assert.EqualValues(t, 1, schema["total_tables"])

	w = s.do(http.MethodGet, "/models", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSchema_DatabaseUnreachable(t *testing.T) {
	s := newTestServer(t, &fakeModel{})
	require.NoError(t, s.sqlDB.Close())

	w := s.do(http.MethodGet, "/schema", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, utils.ErrCodeConnectionFailed, errorCode(t, w))

	w = s.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["database_connected"])
}

func TestExecuteSQL(t *testing.T) {
	s := newTestServer(t, &fakeModel{})

	q := url.Values{"sql_query": {"SELECT name, city FROM customers ORDER BY id"}, "limit": {"2"}}
	w := s.do(http.MethodPost, "/execute-sql?"+q.Encode(), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]interface{})
	assert.EqualValues(t, 2, data["row_count"])
	assert.Equal(t, true, data["truncated"])
	assert.Contains(t, data["summary"], "Retrieved 2 rows with 2 columns")
	assert.Equal(t, 0, s.model.callCount())
}

func TestExecuteSQL_DropIsRejected(t *testing.T) {
	s := newTestServer(t, &fakeModel{})

	q := url.Values{"sql_query": {"DROP TABLE customers"}}
	w := s.do(http.MethodPost, "/execute-sql?"+q.Encode(), "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, utils.ErrCodeUnsafeSQL, errorCode(t, w))
	assert.Equal(t, 3, customerCount(t, s.sqlDB))
}

func TestExecuteSQL_Errors(t *testing.T) {
	s := newTestServer(t, &fakeModel{})

	w := s.do(http.MethodPost, "/execute-sql", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	q := url.Values{"sql_query": {"SELECT missing_column FROM customers"}}
	w = s.do(http.MethodPost, "/execute-sql?"+q.Encode(), "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, utils.ErrCodeQueryFailed, errorCode(t, w))
}

func TestModels(t *testing.T) {
	s := newTestServer(t, &fakeModel{})

	w := s.do(http.MethodGet, "/api/v1/models", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, []interface{}{"llama2:latest"}, data["models"])
	assert.Equal(t, "llama2", data["current"])
}

func TestAuthRequiredOnGenerationRoutes(t *testing.T) {
	jwtManager := security.NewJWTManager("test-secret", time.Hour)
	s := newTestServer(t, &fakeModel{sql: "SELECT name FROM customers"}, func(o *RouterOptions) {
		o.Auth = security.NewAuthMiddleware(jwtManager)
	})

	w := s.do(http.MethodPost, "/nl2sql", `{"question": "names"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	token, err := jwtManager.GenerateToken("analyst")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/nl2sql", strings.NewReader(`{"question": "names"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeModel{})

	s.do(http.MethodGet, "/health", "")
	w := s.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "nl2sql_http_requests_total")
	assert.Contains(t, w.Body.String(), `nl2sql_component_up{component="database"} 1`)
}

func TestCorrelationIDEchoed(t *testing.T) {
	s := newTestServer(t, &fakeModel{})

	req := httptest.NewRequest(http.MethodPost, "/nl2sql", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.CorrelationIDHeader, "req-42")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(middleware.CorrelationIDHeader))
	assert.Equal(t, "req-42", decode(t, w)["correlationId"])
}
