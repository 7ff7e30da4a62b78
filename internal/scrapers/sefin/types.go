package sefin

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type ComplianceIssue struct {
	Code           string `json:"code"`
	RegistrationID string `json:"registrationId"`
	Name           string `json:"name"`
	Period         string `json:"period"`
	Description    string `json:"description"`
}

// DebtRecord is one row of the debt list. GuideURL and ExtractURL are absolute
// or empty, a record without a guide is informational only.
type DebtRecord struct {
	RegistrationID string `json:"registrationId"`
	GuideLabel     string `json:"guideLabel,omitempty"`
	ExtractLabel   string `json:"extractLabel,omitempty"`
	LaunchNumber   string `json:"launchNumber"`
	Installment    string `json:"installment"`
	Reference      string `json:"reference"`
	Complement     string `json:"complement"`
	RevenueCode    string `json:"revenueCode"`
	Status         string `json:"status"`
	DueDate        string `json:"dueDate"`
	OriginalAmount string `json:"originalAmount"`
	UpdatedAmount  string `json:"updatedAmount"`
	GuideURL       string `json:"guideUrl"`
	ExtractURL     string `json:"extractUrl"`
}

// Actionable reports whether a payment guide can be issued for the record.
func (d DebtRecord) Actionable() bool {
	return strings.TrimSpace(d.GuideURL) != ""
}

// Due parses DueDate, see ParseBrazilianDate.
func (d DebtRecord) Due() (time.Time, bool) {
	return ParseBrazilianDate(d.DueDate)
}

// Amount is the updated amount, or the original amount when the former is
// empty or unparseable.
func (d DebtRecord) Amount() decimal.Decimal {
	if v, ok := ParseBrazilianAmount(d.UpdatedAmount); ok {
		return v
	}
	if v, ok := ParseBrazilianAmount(d.OriginalAmount); ok {
		return v
	}
	return decimal.Zero
}

// DisplayAmount is the raw amount text used in file names.
func (d DebtRecord) DisplayAmount() string {
	if v := strings.TrimSpace(d.UpdatedAmount); v != "" {
		return v
	}
	return strings.TrimSpace(d.OriginalAmount)
}

// CaptchaChallenge is the processing form of a guide page that still asks for
// a captcha answer.
type CaptchaChallenge struct {
	Image  []byte
	Fields map[string]string
	Action string
}

var brazilianDate = regexp.MustCompile(`(\d{2})/(\d{2})/(\d{2,4})`)

// ParseBrazilianDate reads the first dd/mm/yyyy (or dd-mm-yy) date in s as a
// UTC civil date. Two digit years are in the 2000s.
func ParseBrazilianDate(s string) (time.Time, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "-", "/")
	m := brazilianDate.FindStringSubmatch(s)
	if len(m) != 4 {
		return time.Time{}, false
	}
	year := m[3]
	if len(year) == 2 {
		year = "20" + year
	}
	if len(year) != 4 {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	y, _ := strconv.Atoi(year)

	t := time.Date(y, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

var amountNoise = strings.NewReplacer("R$", "", " ", "", "\u00a0", "")

// ParseBrazilianAmount reads amounts like "R$ 1.234,56".
func ParseBrazilianAmount(s string) (decimal.Decimal, bool) {
	cleaned := amountNoise.Replace(strings.TrimSpace(s))
	if cleaned == "" {
		return decimal.Zero, false
	}
	if strings.Contains(cleaned, ",") {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	}
	v, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}
