package commands

import (
	"fisconforme-backend/internal/credentials"
	"fmt"
	"log/slog"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manages the entity certificates kept in the credential store.",
}

var addFlags struct {
	tenant       string
	entityID     string
	legalName    string
	code         string
	registration string
	dueDate      string
	certFile     string
	keyFile      string
	pfxFile      string
	pfxPassword  string
}

func init() {
	flags := credentialsAddCmd.Flags()
	flags.StringVar(&addFlags.tenant, "tenant", "", "The tenant (user email) the entity belongs to.")
	flags.StringVar(&addFlags.entityID, "entity", "", "The entity id, unique within the tenant.")
	flags.StringVar(&addFlags.legalName, "name", "", "The legal name of the entity.")
	flags.StringVar(&addFlags.code, "code", "", "The accounting code of the entity.")
	flags.StringVar(&addFlags.registration, "cnpj", "", "The CNPJ/CPF of the entity.")
	flags.StringVar(&addFlags.dueDate, "due", "", "The certificate due date, dd/mm/yyyy.")
	flags.StringVar(&addFlags.certFile, "cert", "", "A PEM certificate file.")
	flags.StringVar(&addFlags.keyFile, "key", "", "A PEM private key file.")
	flags.StringVar(&addFlags.pfxFile, "pfx", "", "A PKCS#12 bundle, used instead of --cert and --key.")
	flags.StringVar(&addFlags.pfxPassword, "password", "", "The PKCS#12 bundle password.")
	credentialsAddCmd.MarkFlagRequired("tenant")
	credentialsAddCmd.MarkFlagRequired("entity")
	credentialsAddCmd.MarkFlagsMutuallyExclusive("pfx", "cert")
	credentialsAddCmd.MarkFlagsMutuallyExclusive("pfx", "key")
	credentialsAddCmd.MarkFlagsRequiredTogether("cert", "key")

	credentialsListCmd.Flags().StringVar(&listTenant, "tenant", "", "Lists the entities of a tenant instead of the tenants.")

	credentialsDeleteCmd.Flags().StringVar(&deleteTenant, "tenant", "", "The tenant the entity belongs to.")
	credentialsDeleteCmd.MarkFlagRequired("tenant")

	credentialsCmd.AddCommand(credentialsAddCmd, credentialsListCmd, credentialsDeleteCmd)
	rootCmd.AddCommand(credentialsCmd)
}

func readMaterial() ([]byte, []byte, error) {
	if addFlags.pfxFile != "" {
		bundle, err := os.ReadFile(addFlags.pfxFile)
		if err != nil {
			return nil, nil, err
		}
		return credentials.FromPKCS12(bundle, addFlags.pfxPassword)
	}
	if addFlags.certFile == "" {
		return nil, nil, fmt.Errorf("either --pfx or --cert and --key must be given")
	}
	cert, err := os.ReadFile(addFlags.certFile)
	if err != nil {
		return nil, nil, err
	}
	key, err := os.ReadFile(addFlags.keyFile)
	if err != nil {
		return nil, nil, err
	}
	return cert, key, nil
}

var credentialsAddCmd = &cobra.Command{
	Use:   "add --tenant <email> --entity <id> (--pfx <file> | --cert <file> --key <file>)",
	Short: "Adds or replaces the certificate of an entity.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		certPEM, keyPEM, err := readMaterial()
		if err != nil {
			return err
		}

		store, closeStore, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		err = store.Put(cmd.Context(), credentials.EntityCredential{
			EntityID:           addFlags.entityID,
			Tenant:             addFlags.tenant,
			LegalName:          addFlags.legalName,
			Code:               addFlags.code,
			RegistrationNumber: addFlags.registration,
			DueDate:            addFlags.dueDate,
			CertificatePEM:     certPEM,
			PrivateKeyPEM:      keyPEM,
		})
		if err != nil {
			return err
		}
		slog.Info("credential stored", "tenant", addFlags.tenant, "entity", addFlags.entityID)
		return nil
	},
}

var listTenant string

var credentialsListCmd = &cobra.Command{
	Use:   "list [--tenant <email>]",
	Short: "Lists the tenants of the store, or the entities of one tenant.",
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

		t := newTable()
		if listTenant == "" {
			tenants, err := store.Tenants(cmd.Context())
			if err != nil {
				return err
			}
			t.AppendHeader(table.Row{"Tenant", "Entities"})
			for _, tenant := range tenants {
				t.AppendRow(table.Row{tenant.Tenant, tenant.Entities})
			}
			t.Render()
			return nil
		}

		creds, err := store.Lookup(cmd.Context(), listTenant)
		if err != nil {
			return err
		}
		t.AppendHeader(table.Row{"Entity", "Código", "Empresa", "CNPJ", "Vencimento", "Certificado"})
		for _, c := range creds {
			validity := "invalid"
			identity, err := c.Identity()
			if err == nil {
				validity = identity.NotAfter.Format("2006-01-02")
				identity.Erase()
			}
			t.AppendRow(table.Row{c.EntityID, c.Code, c.DisplayName(), c.RegistrationNumber, c.DueDate, validity})
		}
		t.Render()
		return nil
	},
}

var deleteTenant string

var credentialsDeleteCmd = &cobra.Command{
	Use:   "delete --tenant <email> <entity id>...",
	Short: "Removes entity certificates from the store.",
	Args:  cobra.MinimumNArgs(1),
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

		for _, entityID := range args {
			removed, err := store.Delete(cmd.Context(), deleteTenant, entityID)
			if err != nil {
				return err
			}
			if !removed {
				slog.Warn("no such credential", "tenant", deleteTenant, "entity", entityID)
				continue
			}
			slog.Info("credential removed", "tenant", deleteTenant, "entity", entityID)
		}
		return nil
	},
}
