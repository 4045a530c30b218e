// jiraexport exports Jira issues, users and projects to CSV files.
package main

import (
	"os"

	"github.com/fatih/color"

	"github.com/jiraexport/jiraexport-go/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		_, _ = errorColor.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
