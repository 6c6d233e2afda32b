package metadata

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"nl2sql-tool/internal/model"
)

// contextSampleRows is how many sample rows per table go into the prompt.
const contextSampleRows = 2

// SchemaContext renders the schema as the plain text block that is embedded
// in the generation prompt. Output is deterministic for a given schema.
func SchemaContext(schema *model.DatabaseSchema) string {
	var b strings.Builder
	b.WriteString("Database Schema:\n\n")
	if schema == nil {
		return b.String()
	}

	for _, table := range schema.Tables {
		fmt.Fprintf(&b, "Table: %s\n", table.TableName)
		b.WriteString("Columns:\n")
		for _, col := range table.Columns {
			fmt.Fprintf(&b, "  - %s (%s)", col.Name, col.Type)
			if col.PrimaryKey {
				b.WriteString(" [PRIMARY KEY]")
			}
			if !col.Nullable {
				b.WriteString(" [NOT NULL]")
			}
			b.WriteString("\n")
		}

		if len(table.SampleData) > 0 {
			b.WriteString("\nSample Data:\n")
			for i, row := range table.SampleData {
				if i >= contextSampleRows {
					break
				}
				encoded, err := json.Marshal(row)
				if err != nil {
					continue
				}
				fmt.Fprintf(&b, "  Row %d: %s\n", i+1, encoded)
			}
		}
		b.WriteString("\n")
	}

	return b.String()
}

// TablesFromContext recovers table names from "Table: <name>" lines of a
// caller supplied schema context.
func TablesFromContext(schemaContext string) []string {
	var tables []string
	scanner := bufio.NewScanner(strings.NewReader(schemaContext))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		name, ok := strings.CutPrefix(line, "Table:")
		if !ok {
			continue
		}
		if name = strings.TrimSpace(name); name != "" {
			tables = append(tables, name)
		}
	}
	return tables
}
