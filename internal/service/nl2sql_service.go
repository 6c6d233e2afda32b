package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nl2sql-tool/internal/database"
	"nl2sql-tool/internal/database/metadata"
	"nl2sql-tool/internal/llm"
	"nl2sql-tool/internal/middleware"
	"nl2sql-tool/internal/model"
	"nl2sql-tool/internal/security"
	"nl2sql-tool/internal/utils"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// SchemaProvider is satisfied by *metadata.Introspector.
type SchemaProvider interface {
	DescribeSchema(ctx context.Context) (*model.DatabaseSchema, error)
}

// DatabaseProbe is satisfied by *database.HealthChecker.
type DatabaseProbe interface {
	Check(ctx context.Context) *database.HealthCheckResult
	Stats() sql.DBStats
}

type Dependencies struct {
	Schema    SchemaProvider
	Model     llm.CompletionClient
	Executor  QueryExecutor
	Probe     DatabaseProbe
	Validator *security.SQLValidator
	Metrics   *middleware.Metrics
	Explain   bool
	Logger    zerolog.Logger
}

// NL2SQLService sequences introspection, prompting, generation, extraction and
// execution. It holds no per-request state.
type NL2SQLService struct {
	schema    SchemaProvider
	model     llm.CompletionClient
	executor  QueryExecutor
	probe     DatabaseProbe
	validator *security.SQLValidator
	extractor *security.SQLExtractor
	metrics   *middleware.Metrics
	explain   bool
	log       zerolog.Logger
}

func NewNL2SQLService(deps Dependencies) *NL2SQLService {
	validator := deps.Validator
	if validator == nil {
		validator = security.NewSQLValidator(0)
	}
	return &NL2SQLService{
		schema:    deps.Schema,
		model:     deps.Model,
		executor:  deps.Executor,
		probe:     deps.Probe,
		validator: validator,
		extractor: security.NewSQLExtractor(validator),
		metrics:   deps.Metrics,
		explain:   deps.Explain,
		log:       deps.Logger.With().Str("component", "nl2sql").Logger(),
	}
}

type generation struct {
	question    string
	extraction  *security.Extraction
	explanation *string
}

// Generate translates a question into SQL without executing it.
func (s *NL2SQLService) Generate(ctx context.Context, req *model.NL2SQLRequest) (*model.NL2SQLResponse, error) {
	gen, err := s.generate(ctx, req.Question, req.SchemaContext)
	if err != nil {
		return nil, err
	}

	confidence := gen.extraction.Confidence
	return &model.NL2SQLResponse{
		Question:    gen.question,
		SQLQuery:    security.FormatSQL(gen.extraction.SQL),
		Explanation: gen.explanation,
		Confidence:  &confidence,
		Safe:        gen.extraction.Safe,
		Complexity:  s.validator.ComplexityLabel(gen.extraction.SQL),
	}, nil
}

// Query translates a question and executes the result when it passes the
// read-only policy. A refused statement is still a successful response, with
// no rows and a note saying why.
func (s *NL2SQLService) Query(ctx context.Context, req *model.QueryRequest) (*model.QueryResponse, error) {
	req.ApplyDefaults()

	gen, err := s.generate(ctx, req.Question, req.SchemaContext)
	if err != nil {
		return nil, err
	}

	confidence := gen.extraction.Confidence
	resp := &model.QueryResponse{
		Question:    gen.question,
		SQLQuery:    security.FormatSQL(gen.extraction.SQL),
		Results:     make([]map[string]any, 0),
		Explanation: gen.explanation,
		Confidence:  &confidence,
	}

	if err := s.validator.CheckExecutable(gen.extraction.SQL); err != nil {
		s.metrics.RecordWithheld()
		note := withheldNote(err)
		resp.Note = &note
		s.log.Info().
			Str("statement_type", gen.extraction.StatementType).
			Str("reason", note).
			Msg("execution withheld")
		return resp, nil
	}

	result, err := s.executor.Execute(ctx, gen.extraction.SQL, req.Limit)
	if err != nil {
		return nil, err
	}

	resp.Results = result.Rows
	resp.RowCount = result.RowCount
	resp.ExecutionTime = result.ExecutionTime
	resp.Truncated = result.Truncated
	return resp, nil
}

// ExecuteSQL runs caller-supplied SQL. The read-only policy is enforced here,
// not left to the client.
func (s *NL2SQLService) ExecuteSQL(ctx context.Context, sqlQuery string, limit int) (*model.SQLExecutionResponse, error) {
	if err := s.validator.CheckExecutable(sqlQuery); err != nil {
		return nil, err
	}

	result, err := s.executor.Execute(ctx, sqlQuery, limit)
	if err != nil {
		return nil, err
	}

	return &model.SQLExecutionResponse{
		SQLQuery:      strings.TrimSpace(sqlQuery),
		Results:       result.Rows,
		RowCount:      result.RowCount,
		ExecutionTime: result.ExecutionTime,
		Truncated:     result.Truncated,
		Summary:       ResultSummary(result),
		Complexity:    s.validator.ComplexityLabel(sqlQuery),
	}, nil
}

// Schema returns the live schema.
func (s *NL2SQLService) Schema(ctx context.Context) (*model.DatabaseSchema, error) {
	return s.schema.DescribeSchema(ctx)
}

// Health probes the database and the model independently. It never fails.
func (s *NL2SQLService) Health(ctx context.Context) *model.HealthResponse {
	var (
		wg       sync.WaitGroup
		dbUp     bool
		ollamaUp bool
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		if s.probe != nil {
			dbUp = s.probe.Check(ctx).Healthy()
		}
	}()
	go func() {
		defer wg.Done()
		ollamaUp = s.model.IsReachable(ctx)
	}()
	wg.Wait()

	s.metrics.SetComponentUp("database", dbUp)
	s.metrics.SetComponentUp("ollama", ollamaUp)
	if s.probe != nil {
		s.metrics.UpdateConnectionPool(s.probe.Stats())
	}

	status := statusHealthy
	if !dbUp || !ollamaUp {
		status = statusUnhealthy
	}
	return &model.HealthResponse{
		Status:            status,
		DatabaseConnected: dbUp,
		OllamaConnected:   ollamaUp,
		Timestamp:         time.Now().UTC(),
	}
}

// Models lists the models installed on the model server.
func (s *NL2SQLService) Models(ctx context.Context) (*model.ModelsResponse, error) {
	models, err := s.model.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	return &model.ModelsResponse{Models: models, Current: s.model.Model()}, nil
}

func (s *NL2SQLService) generate(ctx context.Context, question, schemaOverride string) (*generation, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, utils.NewValidationError("question must not be empty", "")
	}

	schemaText, knownTables, err := s.schemaContext(ctx, schemaOverride)
	if err != nil {
		return nil, err
	}

	prompt, err := llm.BuildPrompt(question, schemaText)
	if err != nil {
		return nil, err
	}

	raw, err := s.complete(ctx, "generate", prompt)
	if err != nil {
		return nil, err
	}

	extraction, err := s.extractor.Extract(raw, knownTables)
	if err != nil {
		s.log.Warn().Str("raw", utils.Truncate(raw, 200)).Msg("no SQL in model output")
		return nil, err
	}
	s.metrics.ObserveConfidence(extraction.Confidence)

	s.log.Info().
		Str("statement_type", extraction.StatementType).
		Float64("confidence", extraction.Confidence).
		Bool("safe", extraction.Safe).
		Msg("SQL generated")

	return &generation{
		question:    question,
		extraction:  extraction,
		explanation: s.explainSQL(ctx, question, extraction.SQL),
	}, nil
}

// schemaContext returns the prompt schema text and the table names it
// mentions. An override string skips introspection.
func (s *NL2SQLService) schemaContext(ctx context.Context, override string) (string, []string, error) {
	if strings.TrimSpace(override) != "" {
		return override, metadata.TablesFromContext(override), nil
	}

	schema, err := s.schema.DescribeSchema(ctx)
	if err != nil {
		return "", nil, err
	}
	return metadata.SchemaContext(schema), schema.TableNames(), nil
}

// explainSQL is best effort: a failure only drops the explanation.
func (s *NL2SQLService) explainSQL(ctx context.Context, question, sqlQuery string) *string {
	if !s.explain {
		return nil
	}

	prompt, err := llm.BuildExplanationPrompt(question, sqlQuery)
	if err != nil {
		return nil
	}
	text, err := s.complete(ctx, "explain", prompt)
	if err != nil {
		s.log.Warn().Err(err).Msg("explanation unavailable")
		return nil
	}
	if text = strings.TrimSpace(text); text == "" {
		return nil
	}
	return &text
}

func (s *NL2SQLService) complete(ctx context.Context, operation, prompt string) (string, error) {
	start := time.Now()
	text, err := s.model.Complete(ctx, prompt)

	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordModelCall(operation, status, time.Since(start))
	return text, err
}

func withheldNote(err error) string {
	appErr := utils.AsAppError(err)
	reason := appErr.Message
	if appErr.Details != "" {
		reason = appErr.Details
	}
	return fmt.Sprintf("SQL was generated but not executed: %s", reason)
}

// ResultSummary describes an execution in one sentence.
func ResultSummary(result *model.ExecutionResult) string {
	if result.RowCount == 0 {
		return fmt.Sprintf("Query executed successfully in %.3fs but returned no results.", result.ExecutionTime)
	}

	summary := fmt.Sprintf("Retrieved %d %s with %d %s in %.3f seconds.",
		result.RowCount, plural(result.RowCount, "row"),
		len(result.Columns), plural(len(result.Columns), "column"),
		result.ExecutionTime)
	if result.Truncated {
		summary += fmt.Sprintf(" Results were limited to %d rows.", result.RowCount)
	}
	return summary
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
