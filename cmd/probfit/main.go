package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "probfit",
		Short: "probfit - goodness-of-fit evaluation for statistical models",
		Long: `probfit evaluates a scalar goodness-of-fit statistic for a model
against a dataset. Composite models are decomposed per category and the
evaluation can be split across parallel workers.`,
	}

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (error, warn, info, debug)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newEvalCmd(),
		newPartitionsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the probfit version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}
