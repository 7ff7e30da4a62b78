package sefin

import (
	"context"
	"fisconforme-backend/internal/components/assert"
	"fisconforme-backend/internal/components/telemetry"
)

const (
	report_compliance_lookup = "compliance.lookup"
)

const step_compliance = "compliance"

type ComplianceService struct {
	browser   Browser
	endpoints Endpoints
	tel       telemetry.API
}

func NewComplianceService(browser Browser, endpoints Endpoints, tel telemetry.API) ComplianceService {
	assert.NotNil(browser)
	assert.NotNil(tel)
	return ComplianceService{
		browser:   browser,
		endpoints: endpoints.WithDefaults(),
		tel:       tel,
	}
}

// Lookup follows the FisConforme form of the portal home and returns the
// pending obligations listed there. A missing pendency table means none.
func (c ComplianceService) Lookup(ctx context.Context, home Page) ([]ComplianceIssue, error) {
	doc, err := home.Document()
	if err != nil {
		return nil, err
	}
	base := home.URL
	if base == "" {
		base = c.endpoints.PortalHome
	}
	form, ok := FindComplianceForm(doc, base)
	if !ok {
		err = &ExtractionMiss{Target: "compliance form"}
		c.tel.ReportWarning(report_compliance_lookup, err)
		return nil, err
	}

	page, err := c.browser.PostForm(ctx, step_compliance, form.Action, form.Fields)
	if err != nil {
		c.tel.ReportBroken(report_compliance_lookup, err)
		return nil, err
	}
	if !page.OK() {
		err = statusError(step_compliance, page.StatusCode)
		c.tel.ReportBroken(report_compliance_lookup, err)
		return nil, err
	}
	doc, err = page.Document()
	if err != nil {
		return nil, err
	}

	issues, found := ParseCompliancePendencies(doc)
	if !found {
		c.tel.ReportDebug("compliance.lookup: no pendency table", page.URL)
		return []ComplianceIssue{}, nil
	}
	return issues, nil
}
