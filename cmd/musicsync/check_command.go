package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"musicsync/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report dependency and path readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			lines := renderSectionHeader("Configuration")
			location := ctx.configPath
			if !ctx.configSeen {
				location += " (not found; defaults in use)"
			}
			lines = append(lines,
				renderStatusLine("Config", statusInfo, location),
				renderStatusLine("Workers", statusInfo, fmt.Sprintf("%d", cfg.Workers())),
				renderStatusLine("Isolate failures", statusInfo, yesNo(cfg.Execution.IsolateFailures)),
				"",
			)

			lines = append(lines, renderSectionHeader("Dependencies")...)
			for _, status := range preflight.CheckSystemDeps(cfg) {
				switch {
				case status.Available:
					lines = append(lines, renderStatusLine(status.Name, statusOK, status.Command))
				case status.Optional:
					lines = append(lines, renderStatusLine(status.Name, statusWarn, status.Detail))
				default:
					lines = append(lines, renderStatusLine(status.Name, statusError, status.Detail))
				}
			}
			lines = append(lines, "")

			lines = append(lines, renderSectionHeader("Paths")...)
			results := preflight.RunAll(cmd.Context(), cfg)
			depNames := map[string]bool{}
			for _, status := range preflight.CheckSystemDeps(cfg) {
				depNames[status.Name] = true
			}
			for _, r := range results {
				if depNames[r.Name] {
					continue
				}
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				lines = append(lines, renderStatusLine(r.Name, kind, r.Detail))
			}

			fmt.Fprintln(out, strings.Join(lines, "\n"))
			if failed := preflight.Failed(results); len(failed) > 0 {
				return errors.New("one or more checks failed")
			}
			return nil
		},
	}
}
