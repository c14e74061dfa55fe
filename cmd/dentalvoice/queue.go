package main

import (
	"fmt"
	"time"

	"dentalvoice/internal/models"
	"dentalvoice/internal/repository"

	"github.com/spf13/cobra"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and retry recordings waiting for delivery",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var (
		abandoned bool
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued recordings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			backends, err := repository.OpenBackends(cmd.Context(), *cfg, logger)
			if err != nil {
				return err
			}
			defer backends.Close()

			key := cfg.Store.Key
			if abandoned {
				key = repository.AbandonedKey(key)
			}
			store, err := backends.Store(key)
			if err != nil {
				return err
			}
			list, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}

			summaries := make([]models.PendingSummary, 0, len(list))
			for _, item := range list {
				summaries = append(summaries, item.Summary())
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), summaries)
			}
			if len(summaries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Captured", "Duration", "Attempts", "Last Attempt", "Size", "Last Error"},
				buildQueueRows(summaries),
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&abandoned, "abandoned", false, "List recordings that were given up on")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Try to deliver every queued recording now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			p, err := openPipeline(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer p.Close()

			report, err := p.session.RetryNow(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if report.Skipped {
				fmt.Fprintln(out, "A retry is already running")
				return nil
			}
			fmt.Fprintf(out, "Delivered %d of %d, %d still queued\n", len(report.Delivered), report.Attempted, report.Remaining)
			if report.Corrupt > 0 {
				fmt.Fprintf(out, "%d recording(s) could not be decoded\n", report.Corrupt)
			}
			if len(report.Abandoned) > 0 {
				fmt.Fprintf(out, "%d recording(s) abandoned\n", len(report.Abandoned))
			}
			return nil
		},
	}
}

func buildQueueRows(items []models.PendingSummary) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.ID,
			formatTime(item.CapturedAt),
			(time.Duration(item.DurationSeconds) * time.Second).String(),
			fmt.Sprint(item.Attempts),
			formatTime(item.LastAttemptAt),
			fmt.Sprintf("%d B", item.PayloadBytes),
			truncate(item.LastError, 48),
		})
	}
	return rows
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
