package batch

import (
	"context"
	"fisconforme-backend/internal/credentials"
	"fisconforme-backend/internal/scrapers/sefin"
	"fmt"
	"strings"
)

type Situation string

const (
	SituationError              Situation = "erro"
	SituationPendenciesAndDebts Situation = "pendencia_fis_e_debitos"
	SituationPendencies         Situation = "pendencia_fis"
	SituationDebts              Situation = "debitos"
	SituationRegular            Situation = "regular"
)

type StatusPendency struct {
	Code           string `json:"codigo"`
	RegistrationID string `json:"ie"`
	Name           string `json:"nome"`
	Period         string `json:"periodo"`
	Description    string `json:"descricao"`
}

func newStatusPendency(issue sefin.ComplianceIssue) StatusPendency {
	return StatusPendency{
		Code:           issue.Code,
		RegistrationID: issue.RegistrationID,
		Name:           issue.Name,
		Period:         issue.Period,
		Description:    issue.Description,
	}
}

// StatusDebt is a debt record as reported by the status operation, with the
// raw cell texts of the debt list.
type StatusDebt struct {
	RegistrationID string `json:"ie"`
	GuideLabel     string `json:"dare"`
	ExtractLabel   string `json:"extrato"`
	LaunchNumber   string `json:"nr_lancamento"`
	Installment    string `json:"parcela"`
	Reference      string `json:"referencia"`
	Complement     string `json:"complemento"`
	RevenueCode    string `json:"receita"`
	Status         string `json:"situacao"`
	DueDate        string `json:"data_vencimento"`
	OriginalAmount string `json:"valor_lancamento"`
	UpdatedAmount  string `json:"valor_atualizado"`
	GuideURL       string `json:"url_dare"`
	ExtractURL     string `json:"url_extrato"`
	Actionable     bool   `json:"actionable"`
}

func newStatusDebt(rec sefin.DebtRecord) StatusDebt {
	return StatusDebt{
		RegistrationID: rec.RegistrationID,
		GuideLabel:     rec.GuideLabel,
		ExtractLabel:   rec.ExtractLabel,
		LaunchNumber:   rec.LaunchNumber,
		Installment:    rec.Installment,
		Reference:      rec.Reference,
		Complement:     rec.Complement,
		RevenueCode:    rec.RevenueCode,
		Status:         rec.Status,
		DueDate:        rec.DueDate,
		OriginalAmount: rec.OriginalAmount,
		UpdatedAmount:  rec.UpdatedAmount,
		GuideURL:       rec.GuideURL,
		ExtractURL:     rec.ExtractURL,
		Actionable:     rec.Actionable(),
	}
}

// EntityStatus keeps the field names the status endpoint always had.
type EntityStatus struct {
	LegalName          string           `json:"empresa"`
	Tenant             string           `json:"user"`
	RegistrationNumber string           `json:"cnpj"`
	Code               string           `json:"codi"`
	DueDate            string           `json:"vencimento"`
	Situation          Situation        `json:"situacao_geral"`
	Pendencies         []StatusPendency `json:"pendencias"`
	PendencyCount      int              `json:"qtd_pendencias"`
	Debts              []StatusDebt     `json:"debitos"`
	DebtCount          int              `json:"qtd_debitos"`
	ComplianceError    *string          `json:"erro_fisconforme"`
	DebtError          *string          `json:"erro_debitos"`
	Error              *string          `json:"erro"`
}

func classify(s EntityStatus) Situation {
	hasPendencies := s.PendencyCount > 0
	hasDebts := s.DebtCount > 0
	hasErrors := s.ComplianceError != nil || s.DebtError != nil || s.Error != nil

	switch {
	case hasErrors && !hasPendencies && !hasDebts:
		return SituationError
	case hasPendencies && hasDebts:
		return SituationPendenciesAndDebts
	case hasPendencies:
		return SituationPendencies
	case hasDebts:
		return SituationDebts
	}
	return SituationRegular
}

func errorText(err error) *string {
	msg := err.Error()
	return &msg
}

func registrationErrorsText(errs []sefin.RegistrationError) *string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	msg := strings.Join(msgs, "; ")
	return &msg
}

// Status reports compliance pendencies and current year debts for every
// entity of the tenant.
func (o *Orchestrator) Status(ctx context.Context, tenant string) ([]EntityStatus, error) {
	creds, err := o.provider.Lookup(ctx, tenant)
	if err != nil {
		o.tel.ReportBroken(report_batch_provider, err, tenant)
		return nil, fmt.Errorf("lookup credentials: %w", err)
	}

	out := make([]EntityStatus, 0, len(creds))
	for _, cred := range creds {
		out = append(out, o.entityStatus(ctx, cred))
	}
	return out, nil
}

func (o *Orchestrator) entityStatus(ctx context.Context, cred credentials.EntityCredential) EntityStatus {
	status := EntityStatus{
		LegalName:          cred.LegalName,
		Tenant:             cred.Tenant,
		RegistrationNumber: cred.RegistrationNumber,
		Code:               cred.Code,
		DueDate:            cred.DueDate,
		Situation:          SituationError,
		Pendencies:         []StatusPendency{},
		Debts:              []StatusDebt{},
	}

	portal, err := o.open(ctx, cred)
	if err != nil {
		o.tel.ReportWarning(report_batch_entity, err, cred.EntityID)
		status.Error = errorText(err)
		return status
	}
	defer portal.Close()

	issues, err := portal.ComplianceIssues(ctx)
	if err != nil {
		status.ComplianceError = errorText(err)
	} else {
		for _, issue := range issues {
			status.Pendencies = append(status.Pendencies, newStatusPendency(issue))
		}
		status.PendencyCount = len(status.Pendencies)
	}

	debts, err := portal.QueryDebts(ctx, o.clock.Now().Year())
	switch {
	case err != nil:
		status.DebtError = errorText(err)
	case len(debts.Errors) > 0:
		status.DebtError = registrationErrorsText(debts.Errors)
		fallthrough
	default:
		for _, rec := range debts.Records {
			status.Debts = append(status.Debts, newStatusDebt(rec))
		}
		status.DebtCount = len(status.Debts)
	}

	status.Situation = classify(status)
	return status
}
