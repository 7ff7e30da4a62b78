package credentials

import (
	"context"
	"fisconforme-backend/internal/components/telemetry"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	report_supabase_lookup = "supabase.lookup"
)

const supabaseSelect = `id,pem,key,empresa,codi,user,vencimento,"cnpj/cpf"`

type SupabaseConfig struct {
	Url   string `json:"url"`
	Key   string `json:"key"`
	Table string `json:"table"`
}

// Supabase reads credentials from a PostgREST table where pem and key hold the
// base64 of the PEM documents.
type Supabase struct {
	client *resty.Client
	table  string
	tel    telemetry.API
}

func NewSupabase(config SupabaseConfig, tel telemetry.API) Supabase {
	if config.Table == "" {
		config.Table = "certifica_dfe"
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimSuffix(config.Url, "/"))
	client.SetTimeout(30 * time.Second)
	client.SetHeader("apikey", config.Key)
	client.SetAuthToken(config.Key)
	telemetry.InstrumentResty(client, tel, nil)

	return Supabase{client: client, table: config.Table, tel: tel}
}

func fieldString(row map[string]any, key string) string {
	switch v := row[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

func (s Supabase) Lookup(ctx context.Context, tenant string) ([]EntityCredential, error) {
	var rows []map[string]any
	res, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("select", supabaseSelect).
		SetQueryParam("user", "eq."+tenant).
		SetResult(&rows).
		Get(fmt.Sprintf("/rest/v1/%s", s.table))
	if err != nil {
		s.tel.ReportBroken(report_supabase_lookup, err, tenant)
		return nil, fmt.Errorf("fetch: %w", err)
	}
	if res.IsError() {
		err = fmt.Errorf("unexpected status %d", res.StatusCode())
		s.tel.ReportBroken(report_supabase_lookup, err, tenant)
		return nil, err
	}

	out := make([]EntityCredential, 0, len(rows))
	for _, row := range rows {
		out = append(out, EntityCredential{
			EntityID:           fieldString(row, "id"),
			Tenant:             fieldString(row, "user"),
			LegalName:          fieldString(row, "empresa"),
			Code:               fieldString(row, "codi"),
			RegistrationNumber: fieldString(row, "cnpj/cpf"),
			DueDate:            fieldString(row, "vencimento"),
			CertificatePEM:     []byte(fieldString(row, "pem")),
			PrivateKeyPEM:      []byte(fieldString(row, "key")),
		})
	}
	return out, nil
}
