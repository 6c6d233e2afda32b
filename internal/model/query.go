package model

import (
	"time"
)

const (
	DefaultResultLimit = 100
	MaxResultLimit     = 10000
)

// NL2SQLRequest asks for a SQL translation of a question without running it.
type NL2SQLRequest struct {
	Question      string `json:"question" validate:"required"`
	SchemaContext string `json:"schema_context,omitempty"`
}

// QueryRequest asks for a translation that is then executed.
type QueryRequest struct {
	Question      string `json:"question" validate:"required"`
	SchemaContext string `json:"schema_context,omitempty"`
	Limit         int    `json:"limit" validate:"omitempty,min=1,max=10000"`
}

// ExecuteSQLRequest is bound from the /execute-sql query string.
type ExecuteSQLRequest struct {
	SQLQuery string `form:"sql_query" validate:"required"`
	Limit    int    `form:"limit" validate:"omitempty,min=1,max=10000"`
}

// NL2SQLResponse is the result of a translation.
type NL2SQLResponse struct {
	Question    string   `json:"question"`
	SQLQuery    string   `json:"sql_query"`
	Explanation *string  `json:"explanation,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
	Safe        bool     `json:"safe"`
	Complexity  string   `json:"complexity,omitempty"`
}

// QueryResponse is the result of a translation plus its execution.
type QueryResponse struct {
	Question      string           `json:"question"`
	SQLQuery      string           `json:"sql_query"`
	Results       []map[string]any `json:"results"`
	RowCount      int              `json:"row_count"`
	ExecutionTime float64          `json:"execution_time"`
	Explanation   *string          `json:"explanation,omitempty"`
	Confidence    *float64         `json:"confidence,omitempty"`
	Truncated     bool             `json:"truncated"`
	Note          *string          `json:"note,omitempty"`
}

// SQLExecutionResponse is the data payload of /execute-sql.
type SQLExecutionResponse struct {
	SQLQuery      string           `json:"sql_query"`
	Results       []map[string]any `json:"results"`
	RowCount      int              `json:"row_count"`
	ExecutionTime float64          `json:"execution_time"`
	Truncated     bool             `json:"truncated"`
	Summary       string           `json:"summary"`
	Complexity    string           `json:"complexity,omitempty"`
}

// ExecutionResult is what the executor hands back for one statement.
type ExecutionResult struct {
	Columns       []string
	Rows          []map[string]any
	RowCount      int
	ExecutionTime float64
	Truncated     bool
	ExecutedAt    time.Time
}

// HealthResponse reports the reachability of both collaborators.
type HealthResponse struct {
	Status            string    `json:"status"`
	DatabaseConnected bool      `json:"database_connected"`
	OllamaConnected   bool      `json:"ollama_connected"`
	Timestamp         time.Time `json:"timestamp"`
}

// ModelsResponse lists the models installed on the model server.
type ModelsResponse struct {
	Models  []string `json:"models"`
	Current string   `json:"current"`
}

// StandardizedType represents standardized data types across databases
type StandardizedType string

const (
	TypeInteger   StandardizedType = "integer"
	TypeBigInt    StandardizedType = "bigint"
	TypeFloat     StandardizedType = "float"
	TypeDouble    StandardizedType = "double"
	TypeDecimal   StandardizedType = "decimal"
	TypeString    StandardizedType = "string"
	TypeText      StandardizedType = "text"
	TypeBoolean   StandardizedType = "boolean"
	TypeDate      StandardizedType = "date"
	TypeTime      StandardizedType = "time"
	TypeDateTime  StandardizedType = "datetime"
	TypeTimestamp StandardizedType = "timestamp"
	TypeBinary    StandardizedType = "binary"
	TypeJSON      StandardizedType = "json"
	TypeUUID      StandardizedType = "uuid"
	TypeUnknown   StandardizedType = "unknown"
)

// ApplyDefaults applies default values to the QueryRequest
func (qr *QueryRequest) ApplyDefaults() {
	if qr.Limit == 0 {
		qr.Limit = DefaultResultLimit
	}
}

// ApplyDefaults applies default values to the ExecuteSQLRequest
func (er *ExecuteSQLRequest) ApplyDefaults() {
	if er.Limit == 0 {
		er.Limit = DefaultResultLimit
	}
}
