package main

import (
	"fmt"
	"strings"

	"github.com/habiliai/chronicle/errors"
	"github.com/spf13/cobra"
)

func newAddCmd(params *rootParams) *cobra.Command {
	kvargs := &struct {
		tags   []string
		source string
	}{}
	cmd := &cobra.Command{
		Use:   "add <content>",
		Short: "Add a memory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openChronicle(cmd.Context(), params)
			if err != nil {
				return err
			}
			defer c.Close()

			id, err := c.Remember(cmd.Context(), strings.Join(args, " "), kvargs.tags, kvargs.source, nil)
			if err != nil {
				return err
			}

			// The process exits right away, so the nudged background indexer
			// never gets to run; embed inline while the handle is open.
			if _, err := c.Index(cmd.Context()); err != nil && !errors.Is(err, errors.ErrEmbeddingUnavailable) {
				return err
			}

			fmt.Printf("Memory added: %d\n", id)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&kvargs.tags, "tags", nil, "tags to attach")
	cmd.Flags().StringVar(&kvargs.source, "source", "cli", "provenance of the memory")

	return cmd
}
