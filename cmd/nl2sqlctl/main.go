package main

import (
	"os"

	"nl2sql-tool/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
