package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/habiliai/chronicle/memory"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newSearchCmd(params *rootParams) *cobra.Command {
	kvargs := &struct {
		tags  []string
		limit int
		since string
		until string
	}{}
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search memories by keyword and semantic similarity",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := &memory.SearchOptions{
				Tags:  kvargs.tags,
				Limit: kvargs.limit,
			}

			var err error
			if opts.Since, err = parseTimeFlag(kvargs.since); err != nil {
				return err
			}
			if opts.Until, err = parseTimeFlag(kvargs.until); err != nil {
				return err
			}

			c, err := openChronicle(cmd.Context(), params)
			if err != nil {
				return err
			}
			defer c.Close()

			results, err := c.Search(cmd.Context(), strings.Join(args, " "), opts)
			if err != nil {
				return err
			}

			if len(results) == 0 {
				fmt.Println("No memories found.")
				return nil
			}

			fmt.Printf("Found %d memories:\n\n", len(results))
			for _, result := range results {
				record := result.Record
				fmt.Printf("[%s] (%s) score=%.3f\n", record.CreatedAt.Format(time.RFC3339), record.Source, result.Score)
				fmt.Printf("  %s\n", record.Content)
				if len(record.Tags) > 0 {
					fmt.Printf("  Tags: %s\n", strings.Join(record.Tags, ", "))
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&kvargs.tags, "tags", nil, "require all of these tags")
	cmd.Flags().IntVar(&kvargs.limit, "limit", 10, "maximum results")
	cmd.Flags().StringVar(&kvargs.since, "since", "", "lower time bound (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&kvargs.until, "until", "", "upper time bound, exclusive (RFC3339 or YYYY-MM-DD)")

	return cmd
}

func parseTimeFlag(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, errors.Errorf("invalid time %q, want RFC3339 or YYYY-MM-DD", value)
}
