package commands

import (
	"fisconforme-backend/internal/archive"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	daresTenant string
	daresOut    string
)

func init() {
	daresCmd.Flags().StringVar(&daresTenant, "tenant", "", "The tenant (user email) to run the batch for.")
	daresCmd.Flags().StringVar(&daresOut, "out", ".", "The directory the zip archive is written to.")
	daresCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(daresCmd)
}

var daresCmd = &cobra.Command{
	Use:   "dares --tenant <email> [--out <dir>]",
	Short: "Issues the payment guides of every entity of a tenant and writes them to a zip archive.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		store, closeStore, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		orchestrator, clock, err := newOrchestrator(cfg, store)
		if err != nil {
			return err
		}
		run, err := orchestrator.Run(cmd.Context(), daresTenant)
		if err != nil {
			return err
		}
		if len(run.Entities) == 0 {
			slog.Warn("no entities registered for tenant", "tenant", daresTenant)
			return nil
		}

		err = os.MkdirAll(daresOut, 0755)
		if err != nil {
			return err
		}
		target := filepath.Join(daresOut, archive.ArchiveName(daresTenant, clock.Now()))
		f, err := os.Create(target)
		if err != nil {
			return err
		}
		defer f.Close()
		err = archive.Write(f, run.Bundle())
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"Código", "Empresa", "Documentos", "Fora do prazo", "Sem guia", "Erros"})
		for _, e := range run.Entities {
			t.AppendRow(table.Row{
				e.Code,
				e.LegalName,
				len(e.Artifacts),
				e.BeyondHorizon,
				e.NonActionable,
				strings.Join(e.Errors, "; "),
			})
		}
		summary := run.Summary()
		t.AppendFooter(table.Row{"", "", summary.Artifacts, "", "", summary.Failed})
		t.Render()

		slog.Info("archive written", "path", target, "run", run.ID)
		return nil
	},
}
