package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"musicsync/internal/catalog"
	"musicsync/internal/config"
	"musicsync/internal/logging"
	"musicsync/internal/session"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the local catalog snapshot",
	}
	catalogCmd.AddCommand(newCatalogListCommand(ctx))
	catalogCmd.AddCommand(newCatalogStatsCommand(ctx))
	return catalogCmd
}

func newCatalogListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every synchronized file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			store, err := openLocalCatalog(cmd, cfg)
			if err != nil || store == nil {
				return err
			}
			defer store.Close()

			records, err := store.ListAll(cmd.Context())
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "Catalog is empty")
				return nil
			}
			rows := make([][]string, len(records))
			for i, rec := range records {
				rows[i] = []string{
					rec.SourcePath,
					rec.TargetFileName,
					rec.ModifiedAt.Local().Format("2006-01-02 15:04"),
					rec.HashHex()[:12],
				}
			}
			fmt.Fprintln(out, renderTable([]string{"Source", "Target name", "Modified", "Hash"}, rows, nil))
			return nil
		},
	}
}

func newCatalogStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the local catalog snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := openLocalCatalog(cmd, cfg)
			if err != nil || store == nil {
				return err
			}
			defer store.Close()

			records, err := store.ListAll(cmd.Context())
			if err != nil {
				return err
			}
			transcoded := 0
			for _, rec := range records {
				if !strings.EqualFold(path.Ext(rec.SourcePath), path.Ext(rec.TargetFileName)) {
					transcoded++
				}
			}

			info, err := os.Stat(cfg.CatalogPath())
			if err != nil {
				return fmt.Errorf("stat catalog: %w", err)
			}
			backup := "none"
			if bak, err := os.Stat(session.BackupPath(cfg.CatalogPath())); err == nil {
				backup = humanize.Time(bak.ModTime())
			}

			rows := [][]string{
				{"Snapshot", cfg.CatalogPath()},
				{"Records", strconv.Itoa(len(records))},
				{"Transcoded", strconv.Itoa(transcoded)},
				{"Size", humanize.Bytes(uint64(info.Size()))},
				{"Last written", humanize.Time(info.ModTime())},
				{"Previous snapshot", backup},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Catalog", "Value"}, rows, nil))
			return nil
		},
	}
}

// openLocalCatalog opens the snapshot left by the last run. It prints a notice
// and returns nil when no run has happened yet.
func openLocalCatalog(cmd *cobra.Command, cfg *config.Config) (*catalog.Store, error) {
	catalogPath := cfg.CatalogPath()
	if _, err := os.Stat(catalogPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(cmd.OutOrStdout(), "No local catalog at %s; run `musicsync sync` first\n", catalogPath)
			return nil, nil
		}
		return nil, fmt.Errorf("stat catalog: %w", err)
	}
	return catalog.Open(cmd.Context(), catalogPath, logging.NewNop())
}
