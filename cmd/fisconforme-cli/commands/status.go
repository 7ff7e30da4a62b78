package commands

import (
	"encoding/json"
	"fisconforme-backend/internal/batch"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	statusTenant string
	statusJSON   bool
)

func init() {
	statusCmd.Flags().StringVar(&statusTenant, "tenant", "", "The tenant (user email) to query.")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the raw status records as json.")
	statusCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(statusCmd)
}

func statusErrors(s batch.EntityStatus) string {
	var parts []string
	for _, e := range []*string{s.Error, s.ComplianceError, s.DebtError} {
		if e != nil {
			parts = append(parts, *e)
		}
	}
	return strings.Join(parts, "; ")
}

var statusCmd = &cobra.Command{
	Use:   "status --tenant <email>",
	Short: "Prints the compliance pendencies and open debts of every entity of a tenant.",
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

		orchestrator, _, err := newOrchestrator(cfg, store)
		if err != nil {
			return err
		}
		statuses, err := orchestrator.Status(cmd.Context(), statusTenant)
		if err != nil {
			return err
		}

		if statusJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(statuses)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Código", "Empresa", "Vencimento", "Situação", "Pendências", "Débitos", "Erros"})
		for _, s := range statuses {
			t.AppendRow(table.Row{
				s.Code,
				s.LegalName,
				s.DueDate,
				string(s.Situation),
				s.PendencyCount,
				s.DebtCount,
				statusErrors(s),
			})
		}
		t.AppendFooter(table.Row{"", fmt.Sprintf("%d empresas", len(statuses))})
		t.Render()
		return nil
	},
}
