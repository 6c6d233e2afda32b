package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"nl2sql-tool/internal/security"
)

func newHealthCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show database and model reachability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			health, err := opts.client().Health(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOutput() {
				return renderJSON(out, health)
			}

			t := table.NewWriter()
			t.SetOutputMirror(out)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Component", "Status"})
			t.AppendRow(table.Row{"service", health.Status})
			t.AppendRow(table.Row{"database", connected(health.DatabaseConnected)})
			t.AppendRow(table.Row{"ollama", connected(health.OllamaConnected)})
			t.Render()
			return nil
		},
	}
}

func newSchemaCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Describe the tables the server can query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := opts.client().Schema(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOutput() {
				return renderJSON(out, schema)
			}

			for _, tbl := range schema.Tables {
				_, _ = fmt.Fprintf(out, "%s\n", tbl.TableName)
				t := table.NewWriter()
				t.SetOutputMirror(out)
				t.SetStyle(table.StyleLight)
				t.AppendHeader(table.Row{"Column", "Type", "Nullable", "Primary Key"})
				for _, col := range tbl.Columns {
					t.AppendRow(table.Row{col.Name, col.Type, col.Nullable, col.PrimaryKey})
				}
				t.Render()
			}
			_, _ = fmt.Fprintf(out, "(%d tables)\n", schema.TotalTables)
			return nil
		},
	}
}

func newAskCommand(opts *options) *cobra.Command {
	var schemaFile string

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Translate a question into SQL without running it",
		Example: `  nl2sqlctl ask "How many customers are from New York?"
  nl2sqlctl ask --schema-file schema.txt "total sales by month"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var schemaContext string
			if schemaFile != "" {
				b, err := os.ReadFile(schemaFile)
				if err != nil {
					return fmt.Errorf("failed to read schema file: %w", err)
				}
				schemaContext = string(b)
			}

			result, err := opts.client().Ask(cmd.Context(), strings.Join(args, " "), schemaContext)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOutput() {
				return renderJSON(out, result)
			}

			_, _ = fmt.Fprintf(out, "SQL:\n%s\n", indent(result.SQLQuery, "  "))
			if result.Confidence != nil {
				_, _ = fmt.Fprintf(out, "Confidence: %.2f\n", *result.Confidence)
			}
			if result.Complexity != "" {
				_, _ = fmt.Fprintf(out, "Complexity: %s\n", result.Complexity)
			}
			if !result.Safe {
				_, _ = fmt.Fprintln(out, "Warning: this statement would not be executed by the server")
			}
			if result.Explanation != nil {
				_, _ = fmt.Fprintf(out, "Explanation: %s\n", *result.Explanation)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&schemaFile, "schema-file", "", "Send this file as the schema context instead of the live schema")
	return cmd
}

func newQueryCommand(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "query <question>",
		Short:   "Translate a question into SQL and run it",
		Example: `  nl2sqlctl query --limit 10 "Show me the top 5 products by price"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := opts.client().Query(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOutput() {
				return renderJSON(out, result)
			}

			_, _ = fmt.Fprintf(out, "SQL:\n%s\n\n", indent(result.SQLQuery, "  "))
			if result.Note != nil {
				_, _ = fmt.Fprintln(out, *result.Note)
				return nil
			}
			if err := renderRows(out, result.Results); err != nil {
				return err
			}
			printExecutionFooter(cmd, result)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum rows to return (server default 100)")
	return cmd
}

func newExecCommand(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "exec <sql>",
		Short:   "Run a SELECT statement directly",
		Example: `  nl2sqlctl exec "SELECT name, city FROM customers WHERE state = 'NY'"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := opts.client().ExecuteSQL(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOutput() {
				return renderJSON(out, result)
			}

			if err := renderRows(out, result.Results); err != nil {
				return err
			}
			if result.Summary != "" {
				_, _ = fmt.Fprintln(out, result.Summary)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum rows to return (server default 100)")
	return cmd
}

func newModelsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models installed on the Ollama server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			models, err := opts.client().Models(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOutput() {
				return renderJSON(out, models)
			}

			t := table.NewWriter()
			t.SetOutputMirror(out)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Model", "In Use"})
			for _, name := range models.Models {
				inUse := ""
				if name == models.Current || strings.TrimSuffix(name, ":latest") == models.Current {
					inUse = "*"
				}
				t.AppendRow(table.Row{name, inUse})
			}
			t.Render()
			return nil
		},
	}
}

func newTokenCommand() *cobra.Command {
	var (
		secret  string
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a server started with AUTH_ENABLED",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				return fmt.Errorf("--secret or AUTH_JWT_SECRET is required")
			}
			token, err := security.NewJWTManager(secret, ttl).GenerateToken(subject)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", os.Getenv("AUTH_JWT_SECRET"), "Signing secret shared with the server")
	cmd.Flags().StringVar(&subject, "subject", "nl2sqlctl", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func printExecutionFooter(cmd *cobra.Command, result *QueryResult) {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Executed in %.3fs", result.ExecutionTime)
	if result.Truncated {
		_, _ = fmt.Fprint(out, " (results truncated)")
	}
	_, _ = fmt.Fprintln(out)
	if result.Explanation != nil {
		_, _ = fmt.Fprintf(out, "Explanation: %s\n", *result.Explanation)
	}
}

func connected(ok bool) string {
	if ok {
		return "connected"
	}
	return "unreachable"
}
