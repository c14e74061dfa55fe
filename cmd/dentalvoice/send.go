package main

import (
	"fmt"
	"time"

	"dentalvoice/internal/capture"
	"dentalvoice/internal/worker"

	"github.com/spf13/cobra"
)

func newSendCommand(ctx *commandContext) *cobra.Command {
	var (
		duration time.Duration
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "send <file>",
		Short: "Deliver a recorded file, queueing it when the relay is unreachable",
		Args:  cobra.ExactArgs(1),
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

			rec, err := capture.FromFile(args[0], duration)
			if err != nil {
				p.session.CaptureFailed(err)
				return err
			}

			delivery := p.session.Submit(cmd.Context(), rec)
			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), delivery); err != nil {
					return err
				}
			} else {
				printDelivery(cmd, delivery)
			}
			if delivery.Outcome == worker.OutcomeRejected {
				return fmt.Errorf("recording rejected: %s", delivery.Message)
			}
			return nil
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Recording length, e.g. 42s")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the delivery as JSON")
	return cmd
}

func printDelivery(cmd *cobra.Command, d worker.Delivery) {
	out := cmd.OutOrStdout()
	switch d.Outcome {
	case worker.OutcomeDelivered:
		fmt.Fprintf(out, "delivered %s after %d attempt(s)\n", d.RecordingID, d.Attempts)
		if d.Result != nil && d.Result.Transcript != "" {
			fmt.Fprintf(out, "transcript: %s\n", d.Result.Transcript)
		}
		if d.Result != nil && len(d.Result.Findings) > 0 {
			rows := make([][]string, 0, len(d.Result.Findings))
			for _, f := range d.Result.Findings {
				conf := ""
				if f.Confidence != nil {
					conf = fmt.Sprintf("%.2f", *f.Confidence)
				}
				rows = append(rows, []string{fmt.Sprint(f.ToothNumber), f.Condition, conf, f.Notes})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Tooth", "Condition", "Confidence", "Notes"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft},
			))
		}
	case worker.OutcomeQueued:
		fmt.Fprintf(out, "queued %s after %d attempt(s): %s\n", d.RecordingID, d.Attempts, d.Message)
	default:
		fmt.Fprintf(out, "rejected: %s\n", d.Message)
	}
}
