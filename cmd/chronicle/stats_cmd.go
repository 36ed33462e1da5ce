package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd(params *rootParams) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openChronicle(cmd.Context(), params)
			if err != nil {
				return err
			}
			defer c.Close()

			stats, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("Total memories: %d\n", stats.Total)
			fmt.Printf("Indexed: %d\n", stats.Indexed)

			if len(stats.BySource) > 0 {
				fmt.Println("\nSources:")
				for source, n := range stats.BySource {
					fmt.Printf("  %s: %d\n", source, n)
				}
			}
			if len(stats.ByTag) > 0 {
				fmt.Println("\nTags:")
				for tag, n := range stats.ByTag {
					fmt.Printf("  %s: %d\n", tag, n)
				}
			}
			return nil
		},
	}
}
