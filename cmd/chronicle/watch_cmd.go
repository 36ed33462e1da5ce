package main

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/goccy/go-yaml"
	"github.com/habiliai/chronicle/config"
	"github.com/habiliai/chronicle/internal/mylog"
	"github.com/habiliai/chronicle/watcher"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newWatchCmd(params *rootParams) *cobra.Command {
	kvargs := &struct {
		configFile string
		shell      bool
		backfill   bool
		dirs       []string
	}{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run producer watchers until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			conf := config.NewWatcherConfig()
			if kvargs.configFile != "" {
				raw, err := os.ReadFile(kvargs.configFile)
				if err != nil {
					return errors.Wrapf(err, "failed to read watch config %s", kvargs.configFile)
				}
				if err := yaml.Unmarshal(raw, conf); err != nil {
					return errors.Wrapf(err, "failed to parse watch config %s", kvargs.configFile)
				}
			}
			if kvargs.shell && conf.Shell == nil {
				conf.Shell = &config.ShellWatcherConfig{Backfill: kvargs.backfill}
			}
			for _, dir := range kvargs.dirs {
				conf.Dirs = append(conf.Dirs, config.DirWatcherConfig{Path: dir})
			}

			c, err := openChronicle(ctx, params)
			if err != nil {
				return err
			}
			defer c.Close()

			c.StartIndexing(ctx)
			gateway := c.Service()

			logger := mylog.NewLogger(params.logLevel, "default")

			var watchers []watcher.Watcher
			if conf.Shell != nil {
				shell := watcher.NewShellWatcher(gateway, logger, conf.Shell, conf.PollInterval)
				if conf.Shell.Backfill {
					if _, err := shell.Backfill(ctx); err != nil {
						logger.Warn("history backfill failed", "error", err)
					}
				}
				watchers = append(watchers, shell)
			}
			for i := range conf.Dirs {
				watchers = append(watchers, watcher.NewFileWatcher(gateway, logger, &conf.Dirs[i], conf.PollInterval))
			}
			if len(watchers) == 0 {
				return errors.New("nothing to watch; pass --shell, --dir or --config")
			}

			var wg sync.WaitGroup
			for _, w := range watchers {
				wg.Add(1)
				go func(w watcher.Watcher) {
					defer wg.Done()
					logger.Info("watching", "source", w.Name())
					if err := w.Run(ctx); err != nil && ctx.Err() == nil {
						logger.Warn("watcher stopped", "source", w.Name(), "error", err)
					}
				}(w)
			}

			wg.Wait()
			return nil
		},
	}

	cmd.Flags().StringVar(&kvargs.configFile, "config", "", "YAML watch profile")
	cmd.Flags().BoolVar(&kvargs.shell, "shell", false, "tail the shell history file")
	cmd.Flags().BoolVar(&kvargs.backfill, "backfill", false, "import existing shell history before tailing")
	cmd.Flags().StringSliceVar(&kvargs.dirs, "dir", nil, "directory to watch (repeatable)")

	return cmd
}
