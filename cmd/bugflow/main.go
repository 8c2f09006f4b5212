// Package main provides the entry point for the bugflow CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/bugflow/cmd/bugflow/commands"
	"github.com/Sumatoshi-tech/bugflow/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bugflow",
		Short: "Bugflow - defect workflow stage history",
		Long: `Bugflow replays defect tracker histories into daily counts of
defects per workflow stage.

Commands:
  run       Build the stage series of record files
  mcp       Serve the pipeline over the Model Context Protocol`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewMCPCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
