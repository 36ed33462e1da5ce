package main

import (
	"context"

	"github.com/habiliai/chronicle"
	"github.com/habiliai/chronicle/config"
	"github.com/spf13/cobra"
)

type rootParams struct {
	dbPath   string
	logLevel string
}

func newCmd() *cobra.Command {
	params := &rootParams{}
	cmd := &cobra.Command{
		Use:           "chronicle",
		Short:         "Chronicle - personal memory store",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&params.dbPath, "db", "", "path to the memory database (default ~/.chronicle/memory.db)")
	cmd.PersistentFlags().StringVar(&params.logLevel, "log-level", "info", "log level (debug|info|warn|error)")

	cmd.AddCommand(
		newAddCmd(params),
		newSearchCmd(params),
		newRecentCmd(params),
		newStatsCmd(params),
		newIndexCmd(params),
		newRebuildCmd(params),
		newWatchCmd(params),
	)

	return cmd
}

func openChronicle(ctx context.Context, params *rootParams) (*chronicle.Chronicle, error) {
	storeConf := config.NewStoreConfig()
	if params.dbPath != "" {
		storeConf.SqlitePath = params.dbPath
	}

	logConf := config.NewLogConfig()
	logConf.LogLevel = params.logLevel

	return chronicle.New(ctx,
		chronicle.WithStoreConfig(storeConf),
		chronicle.WithLogConfig(logConf),
	)
}
