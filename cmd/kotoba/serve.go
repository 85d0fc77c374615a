package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/bdobrica/Kotoba/common/version"
	"github.com/bdobrica/Kotoba/internal/kotoba/app"
	"github.com/bdobrica/Kotoba/internal/kotoba/config"
	"github.com/bdobrica/Kotoba/internal/kotoba/observability"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the platform webhooks and run scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, v, err := flags.load()
			if err != nil {
				return err
			}
			observability.Setup(cfg.Log.Level, cfg.Log.Format)
			slog.Info("kotoba: starting", "version", version.Version, "commit", version.GitCommit)
			slog.Debug("kotoba: effective configuration", "settings", config.Summary(v))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, app.Options{Loader: flags.loader})
			if err != nil {
				return err
			}
			defer a.Close()

			if flags.configPath != "" {
				v.OnConfigChange(func(e fsnotify.Event) {
					next, err := config.FromViper(v)
					if err != nil {
						slog.Error("kotoba: config file change rejected", "file", e.Name, "err", err)
						return
					}
					if err := a.UpdateEnv(next); err != nil {
						slog.Error("kotoba: config file change not applied", "file", e.Name, "err", err)
					}
				})
				v.WatchConfig()
			}

			return a.Run(ctx)
		},
	}
}
