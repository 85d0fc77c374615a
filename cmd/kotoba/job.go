package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/adhocore/gronx"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bdobrica/Kotoba/common/trace"
	"github.com/bdobrica/Kotoba/internal/kotoba/app"
	"github.com/bdobrica/Kotoba/internal/kotoba/observability"
	"github.com/bdobrica/Kotoba/internal/kotoba/scheduler"
)

func newJobCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect and trigger scheduled jobs",
	}
	cmd.AddCommand(newJobFireCmd(flags))
	cmd.AddCommand(newJobListCmd(flags))
	return cmd
}

func newJobFireCmd(flags *rootFlags) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "fire <cron expression>",
		Short: "Run the jobs scheduled on an expression, as an external cron would",
		Example: `  kotoba job fire "0 */6 * * *"
  kotoba job fire "0 3/6 * * *" --at 2026-03-01T03:00:00Z`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := flags.load()
			if err != nil {
				return err
			}
			observability.Setup(cfg.Log.Level, cfg.Log.Format)

			ev := scheduler.Event{Cron: args[0]}
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				ev.ScheduledTime = t.UnixMilli()
			}

			ctx := trace.Ensure(cmd.Context())
			a, err := app.New(ctx, cfg, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.HandleScheduled(ctx, ev); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok", trace.FromContext(ctx))
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "scheduled time (RFC 3339); defaults to now")
	return cmd
}

func newJobListCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the scheduled jobs and their next run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := flags.load()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "JOB\tEXPRESSION\tNEXT RUN")
			for _, job := range scheduler.DefaultJobs(cfg) {
				next := "invalid expression"
				if t, err := gronx.NextTick(job.Cron, false); err == nil {
					next = fmt.Sprintf("%s (%s)", t.UTC().Format(time.RFC3339), humanize.Time(t))
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", job.Name, job.Cron, next)
			}
			if !cfg.Schedule.Enabled {
				fmt.Fprintln(w, "\nin-process runner disabled; trigger with POST /scheduled or `kotoba job fire`")
			}
			return w.Flush()
		},
	}
}
