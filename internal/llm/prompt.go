package llm

import (
	"bytes"
	"strings"
	"text/template"

	"nl2sql-tool/internal/utils"
)

var sqlPromptTemplate = template.Must(template.New("sql").Parse(`You are a SQL expert. Given the database schema and a natural language question, generate a precise SQL query.

{{.Schema}}

Rules:
1. Output exactly one SQL statement and nothing else: no explanations, no markdown
2. Use proper SQL syntax for the given schema
3. Include appropriate WHERE clauses, JOINs, and aggregate functions as needed
4. Use table and column names exactly as shown in the schema
5. For date queries, use appropriate date functions
6. Limit results to reasonable numbers (use LIMIT)
7. Do not include semicolon at the end

Question: {{.Question}}

SQL Query:`))

var explanationPromptTemplate = template.Must(template.New("explain").Parse(`Explain this SQL query in simple terms.

Original Question: {{.Question}}
SQL Query: {{.SQL}}

Provide a brief, clear explanation of what this query does:`))

// BuildPrompt assembles the generation prompt. It is a pure function of its
// inputs and rejects blank questions.
func BuildPrompt(question, schemaContext string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", utils.NewValidationError("question must not be empty", "")
	}

	schema := strings.TrimSpace(schemaContext)
	if !strings.HasPrefix(schema, "Database Schema:") {
		schema = "Database Schema:\n" + schema
	}

	var buf bytes.Buffer
	err := sqlPromptTemplate.Execute(&buf, struct {
		Schema   string
		Question string
	}{schema, question})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildExplanationPrompt asks the model to describe sql for a non-expert.
func BuildExplanationPrompt(question, sql string) (string, error) {
	var buf bytes.Buffer
	err := explanationPromptTemplate.Execute(&buf, struct {
		Question string
		SQL      string
	}{question, sql})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
