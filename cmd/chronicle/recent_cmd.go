package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newRecentCmd(params *rootParams) *cobra.Command {
	kvargs := &struct {
		limit int
	}{}
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the latest memories",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openChronicle(cmd.Context(), params)
			if err != nil {
				return err
			}
			defer c.Close()

			records, err := c.Recent(cmd.Context(), kvargs.limit)
			if err != nil {
				return err
			}

			fmt.Printf("Recent context (%d memories):\n\n", len(records))
			for _, record := range records {
				fmt.Printf("[%s] %s\n", record.CreatedAt.Format(time.RFC3339), truncate(record.Content, 100))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&kvargs.limit, "limit", 10, "number of memories")

	return cmd
}

// truncate caps s at n runes so a cut never splits a multi-byte character.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
