package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexCmd(params *rootParams) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Run one incremental embedding pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openChronicle(cmd.Context(), params)
			if err != nil {
				return err
			}
			defer c.Close()

			n, err := c.Index(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("Indexed %d new memories\n", n)
			return nil
		},
	}
}

func newRebuildCmd(params *rootParams) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Drop and recompute the whole embedding index",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openChronicle(cmd.Context(), params)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.RebuildIndex(cmd.Context()); err != nil {
				return err
			}

			fmt.Println("Embedding index rebuilt")
			return nil
		},
	}
}
