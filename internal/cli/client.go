package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"nl2sql-tool/internal/model"
	"nl2sql-tool/pkg/response"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s (HTTP %d): %s", e.Code, e.Status, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

// Client talks to a running nl2sql server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// QueryResult mirrors model.QueryResponse but keeps rows raw so column order
// survives decoding.
type QueryResult struct {
	Question      string            `json:"question"`
	SQLQuery      string            `json:"sql_query"`
	Results       []json.RawMessage `json:"results"`
	RowCount      int               `json:"row_count"`
	ExecutionTime float64           `json:"execution_time"`
	Explanation   *string           `json:"explanation,omitempty"`
	Confidence    *float64          `json:"confidence,omitempty"`
	Truncated     bool              `json:"truncated"`
	Note          *string           `json:"note,omitempty"`
	Summary       string            `json:"summary,omitempty"`
}

func (c *Client) Health(ctx context.Context) (*model.HealthResponse, error) {
	var out model.HealthResponse
	return &out, c.do(ctx, http.MethodGet, "/health", nil, &out)
}

func (c *Client) Schema(ctx context.Context) (*model.DatabaseSchema, error) {
	var out model.DatabaseSchema
	return &out, c.do(ctx, http.MethodGet, "/schema", nil, &out)
}

func (c *Client) Ask(ctx context.Context, question, schemaContext string) (*model.NL2SQLResponse, error) {
	var out model.NL2SQLResponse
	req := model.NL2SQLRequest{Question: question, SchemaContext: schemaContext}
	return &out, c.do(ctx, http.MethodPost, "/nl2sql", req, &out)
}

func (c *Client) Query(ctx context.Context, question string, limit int) (*QueryResult, error) {
	var out QueryResult
	req := model.QueryRequest{Question: question, Limit: limit}
	return &out, c.do(ctx, http.MethodPost, "/query", req, &out)
}

func (c *Client) ExecuteSQL(ctx context.Context, sqlQuery string, limit int) (*QueryResult, error) {
	params := url.Values{"sql_query": {sqlQuery}}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var out QueryResult
	return &out, c.do(ctx, http.MethodPost, "/execute-sql?"+params.Encode(), nil, &out)
}

func (c *Client) Models(ctx context.Context) (*model.ModelsResponse, error) {
	var out model.ModelsResponse
	return &out, c.do(ctx, http.MethodGet, "/models", nil, &out)
}

// do sends one request. Bodies in the standard envelope are unwrapped into out.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var envelope struct {
		Success *bool               `json:"success"`
		Data    json.RawMessage     `json:"data"`
		Error   *response.ErrorInfo `json:"error"`
	}
	_ = json.Unmarshal(raw, &envelope)

	if resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{Status: resp.StatusCode, Code: "HTTP_ERROR", Message: strings.TrimSpace(string(raw))}
		if envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.Details = envelope.Error.Details
		}
		return apiErr
	}

	if envelope.Success != nil && len(envelope.Data) > 0 {
		raw = envelope.Data
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
