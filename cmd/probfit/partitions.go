package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPartitionsCmd() *cobra.Command {
	var events, sets int

	cmd := &cobra.Command{
		Use:   "partitions",
		Short: "Show how a dataset of N events is carved into worker partitions",
		Long: `Prints the [first,last) event range each worker receives when a dataset
of --events entries is split across --sets partitions. The boundaries are
first = N*i/sets and last = N*(i+1)/sets with truncating integer division,
so together the partitions cover every event exactly once.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if events < 0 {
				return fmt.Errorf("--events must be non-negative, got %d", events)
			}
			if sets < 1 {
				return fmt.Errorf("--sets must be at least 1, got %d", sets)
			}
			for i := 0; i < sets; i++ {
				first := events * i / sets
				last := events * (i + 1) / sets
				fmt.Printf("partition %d/%d: [%d, %d)  %d events\n", i, sets, first, last, last-first)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&events, "events", 0, "Number of events in the dataset")
	cmd.Flags().IntVar(&sets, "sets", 1, "Number of partitions to split into")
	cmd.MarkFlagRequired("events")
	return cmd
}
