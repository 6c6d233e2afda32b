package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// renderRows prints rows as a table followed by a row count. Column order is
// taken from the first row as sent by the server.
func renderRows(w io.Writer, rows []json.RawMessage) error {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	cols, err := orderedKeys(rows[0])
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	headerRow := make(table.Row, len(cols))
	for i, col := range cols {
		headerRow[i] = col
	}
	t.AppendHeader(headerRow)

	for _, raw := range rows {
		var values map[string]interface{}
		if err := json.Unmarshal(raw, &values); err != nil {
			return fmt.Errorf("failed to decode row: %w", err)
		}
		row := make(table.Row, len(cols))
		for i, col := range cols {
			row[i] = formatValue(values[col])
		}
		t.AppendRow(row)
	}

	t.Render()
	_, _ = fmt.Fprintf(w, "(%d %s)\n", len(rows), pluralRows(len(rows)))
	return nil
}

func renderJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// orderedKeys lists the top-level keys of a JSON object in document order.
func orderedKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("row is not a JSON object")
	}

	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		keys = append(keys, tok.(string))

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case string:
		return val
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

func pluralRows(n int) string {
	if n == 1 {
		return "row"
	}
	return "rows"
}

func indent(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
