package sefin

import (
	"context"
	"fisconforme-backend/internal/components/assert"
	"fisconforme-backend/internal/components/telemetry"
	"fmt"
	"strconv"
)

const (
	report_debts_query        = "debts.query"
	report_debts_registration = "debts.query-registration"
)

const (
	step_debt_query = "debt-query"
	step_debt_list  = "debt-list"
)

type RegistrationError struct {
	Registration string `json:"registration"`
	Err          error  `json:"-"`
}

func (e RegistrationError) Error() string {
	return fmt.Sprintf("registration %s: %s", e.Registration, e.Err.Error())
}

func (e RegistrationError) Unwrap() error {
	return e.Err
}

// DebtQueryResult holds whatever was gathered for a year, along with the
// registrations that failed.
type DebtQueryResult struct {
	Year          int
	Registrations []string
	Records       []DebtRecord
	Errors        []RegistrationError
}

// Failed reports whether every registration failed.
func (r DebtQueryResult) Failed() bool {
	return len(r.Errors) > 0 && len(r.Errors) >= len(r.Registrations)
}

type DebtService struct {
	browser   Browser
	endpoints Endpoints
	layout    DebtTableLayout
	links     DebtLinks
	tel       telemetry.API
}

func NewDebtService(browser Browser, endpoints Endpoints, layout DebtTableLayout, tel telemetry.API) DebtService {
	assert.NotNil(browser)
	assert.NotNil(tel)
	endpoints = endpoints.WithDefaults()
	if !ValidLayout(layout) {
		layout = LayoutFull
	}
	return DebtService{
		browser:   browser,
		endpoints: endpoints,
		layout:    layout,
		links:     NewDebtLinks(endpoints),
		tel:       tel,
	}
}

// Query submits one debt list query per state registration of the entity.
// The error is only non-nil when the query page itself is unusable, failures
// of single registrations are collected in the result.
func (d DebtService) Query(ctx context.Context, year int) (DebtQueryResult, error) {
	result := DebtQueryResult{Year: year}

	page, err := d.browser.Get(ctx, step_debt_query, d.endpoints.DebtQuery)
	if err != nil {
		d.tel.ReportBroken(report_debts_query, err, year)
		return result, err
	}
	if !page.OK() {
		err = statusError(step_debt_query, page.StatusCode)
		d.tel.ReportBroken(report_debts_query, err, year)
		return result, err
	}
	doc, err := page.Document()
	if err != nil {
		d.tel.ReportBroken(report_debts_query, err, year)
		return result, err
	}

	registrations, ok := FindRegistrationOptions(doc, registrationSelectName)
	if !ok {
		return result, &ExtractionMiss{Target: "registration selector"}
	}
	if len(registrations) == 0 {
		return result, &ExtractionMiss{Target: "registration option"}
	}
	result.Registrations = registrations
	debtorType := FindInputValue(doc, debtorTypeInputName, defaultDebtorType)

	for _, registration := range registrations {
		records, err := d.queryRegistration(ctx, registration, year, debtorType)
		if err != nil {
			d.tel.ReportWarning(report_debts_registration, err, registration, year)
			result.Errors = append(result.Errors, RegistrationError{
				Registration: registration,
				Err:          err,
			})
			continue
		}
		result.Records = append(result.Records, records...)
	}

	d.tel.ReportDebug(
		"debts.query: done",
		year,
		len(registrations),
		len(result.Records),
		len(result.Errors),
	)
	return result, nil
}

func (d DebtService) queryRegistration(ctx context.Context, registration string, year int, debtorType string) ([]DebtRecord, error) {
	page, err := d.browser.PostForm(ctx, step_debt_list, d.endpoints.DebtList, map[string]string{
		"inscricaoEstadual": registration,
		"ano":               strconv.Itoa(year),
		"tipoDevedor":       debtorType,
		"Submit":            "Consultar Débitos",
	})
	if err != nil {
		return nil, err
	}
	if !page.OK() {
		return nil, statusError(step_debt_list, page.StatusCode)
	}
	doc, err := page.Document()
	if err != nil {
		return nil, err
	}

	links := d.links
	links.Base = page.URL
	records, found := ParseDebtTable(doc, d.layout, links)
	if !found {
		d.tel.ReportDebug("debts.query: no debt table", registration, year)
		return nil, nil
	}
	for i := range records {
		records[i].RegistrationID = registration
	}
	return records, nil
}
