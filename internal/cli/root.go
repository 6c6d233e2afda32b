// Package cli implements nl2sqlctl, a command-line client for the nl2sql server.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// Version information (set at build time).
var Version = "0.1.0"

type options struct {
	server  string
	token   string
	output  string
	timeout time.Duration
}

func (o *options) client() *Client {
	return NewClient(o.server, o.token, o.timeout)
}

func (o *options) jsonOutput() bool {
	return o.output == "json"
}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "nl2sqlctl",
		Short: "Ask a database questions in plain language",
		Long: `nl2sqlctl talks to a running nl2sql server. It can translate questions
into SQL, run them, run hand-written SELECT statements and inspect the schema
and model server the service is connected to.`,
		Version: Version,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			switch opts.output {
			case "table", "json":
				return nil
			default:
				return fmt.Errorf("unknown output format %q (table|json)", opts.output)
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.server, "server", "s", envOr("NL2SQL_SERVER", "http://localhost:8000"), "Server base URL")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("NL2SQL_TOKEN"), "Bearer token for servers with auth enabled")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "Output format (table|json)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Request timeout")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"table", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newHealthCommand(opts))
	rootCmd.AddCommand(newSchemaCommand(opts))
	rootCmd.AddCommand(newAskCommand(opts))
	rootCmd.AddCommand(newQueryCommand(opts))
	rootCmd.AddCommand(newExecCommand(opts))
	rootCmd.AddCommand(newModelsCommand(opts))
	rootCmd.AddCommand(newTokenCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
