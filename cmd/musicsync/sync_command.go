package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"musicsync/internal/config"
	"musicsync/internal/pipeline"
	"musicsync/internal/preflight"
	"musicsync/internal/services"
	"musicsync/internal/session"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var flags syncFlags

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Copy new and changed files to the target and remove deleted ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCfg := *cfg
			if source := strings.TrimSpace(flags.source); source != "" {
				expanded, err := config.ExpandPath(source)
				if err != nil {
					return fmt.Errorf("resolve source directory: %w", err)
				}
				runCfg.Paths.SourceDir = expanded
			}

			logger, closer, err := ctx.logger()
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer closer.Close()

			if failed := preflight.Failed(preflight.RunAll(cmd.Context(), &runCfg)); len(failed) > 0 {
				return preflightError(failed)
			}

			out := cmd.OutOrStdout()
			ui := newTerminalUI(cmd.InOrStdin(), out, flags.yes)
			controller, cleanup, err := composeSession(cmd.Context(), &runCfg, flags, ui, logger)
			defer cleanup()
			if err != nil {
				printHint(cmd.ErrOrStderr(), err)
				return err
			}

			report, err := controller.Run(cmd.Context())
			printReport(out, report, err)
			if err != nil {
				printHint(cmd.ErrOrStderr(), err)
			}
			return err
		},
	}

	cmd.Flags().BoolVarP(&flags.yes, "yes", "y", false, "Apply the plan without asking")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Show the plan without touching the target")
	cmd.Flags().BoolVar(&flags.waitDevice, "wait-device", false, "Wait for a removable device to be plugged in")
	cmd.Flags().StringVar(&flags.source, "source", "", "Override the configured source directory")
	return cmd
}

func preflightError(failed []preflight.Result) error {
	parts := make([]string, len(failed))
	for i, r := range failed {
		parts[i] = fmt.Sprintf("%s: %s", r.Name, r.Detail)
	}
	return fmt.Errorf("preflight failed (%s); run `musicsync check` for details", strings.Join(parts, "; "))
}

func printHint(w io.Writer, err error) {
	switch {
	case errors.Is(err, context.Canceled):
	case errors.Is(err, session.ErrLocked):
		fmt.Fprintln(w, "Hint: wait for the other run to finish")
	default:
		fmt.Fprintln(w, "Hint:", services.Hint(err))
	}
}

func printReport(w io.Writer, report session.Report, runErr error) {
	switch {
	case report.Executed:
		res := report.Result
		fmt.Fprintf(w, "Copied %d files (%d transcoded), deleted %d, uploaded %s in %s.\n",
			res.Copied, res.Transcoded, res.Deleted,
			humanize.Bytes(uint64(res.BytesUploaded)),
			report.Elapsed.Round(100*time.Millisecond))
		if len(res.Failures) > 0 {
			fmt.Fprintln(w, renderFailures(res.Failures))
		}
	case runErr != nil:
	case report.DryRun:
		fmt.Fprintf(w, "Dry run: %s. Nothing was changed.\n", report.Summary)
	case len(report.Operations) == 0:
		fmt.Fprintln(w, "Target is up to date.")
	case report.Decision == session.DecisionAbort:
		fmt.Fprintln(w, "Aborted; no changes were applied.")
	}
	if report.Uploaded {
		fmt.Fprintln(w, mutedStyle.Render("Catalog saved to target."))
	}
}

func renderFailures(failures []pipeline.Failure) string {
	rows := make([][]string, len(failures))
	for i, f := range failures {
		rows[i] = []string{f.Operation.Label(), f.Operation.TargetPath(), services.Classify(f.Err), f.Err.Error()}
	}
	return renderTable([]string{"Operation", "Target", "Kind", "Error"}, rows, nil)
}
