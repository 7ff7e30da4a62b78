package sefin

import (
	"encoding/base64"
	"fisconforme-backend/pkg/htmlutil"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antzucaro/matchr"
)

const (
	loginTokenMarker   = "LoginToken"
	finalizationMarker = "copy-cb"

	debtTableHeading            = "DÉBITOS NA INSCRIÇÃO ESTADUAL"
	complianceCodeHeading       = "CÓDIGO"
	complianceDescriptionHeader = "DESCRIÇÃO"
	complianceFormMarker        = "fisconforme"

	registrationSelectName = "inscricaoEstadual"
	debtorTypeInputName    = "tipoDevedor"
	defaultDebtorType      = "1"

	guideFormID        = "adm_processar_form"
	captchaImageID     = "captcha-imagem"
	captchaAnswerField = "captcha[resposta]"
)

// headingSimilarity is the minimum Jaro-Winkler similarity between a marker
// word and a heading word when the heading does not contain the marker.
const headingSimilarity = 0.9

// Form is a located html form with its action resolved to an absolute url.
type Form struct {
	Action string
	Fields map[string]string
}

// headingResembles accepts spelling drift: every word of the marker needs a
// close word in the heading, so a different qualifier does not match.
func headingResembles(text, marker string) bool {
	words := strings.Fields(htmlutil.Fold(text))
	if len(words) == 0 {
		return false
	}
	for _, want := range strings.Fields(htmlutil.Fold(marker)) {
		found := false
		for _, word := range words {
			if matchr.JaroWinkler(word, want, false) >= headingSimilarity {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// FindEntryForm returns the action of the first form of the DET home page,
// falling back to `fallback` when the form has no action.
func FindEntryForm(doc *goquery.Document, base, fallback string) (string, bool) {
	form := doc.Find("form").First()
	if form.Length() == 0 {
		return "", false
	}
	action := strings.TrimSpace(form.AttrOr("action", ""))
	if action == "" {
		return fallback, true
	}
	return htmlutil.ResolveURL(base, action), true
}

// FindLoginTokenForm selects the form whose action points at the portal host
// or still carries the login-token marker.
func FindLoginTokenForm(doc *goquery.Document, portalHost, base string) (Form, bool) {
	var out Form
	found := false
	doc.Find("form").EachWithBreak(func(_ int, form *goquery.Selection) bool {
		action := strings.TrimSpace(form.AttrOr("action", ""))
		onPortal := portalHost != "" && strings.Contains(strings.ToLower(action), portalHost)
		if !onPortal && !strings.Contains(action, loginTokenMarker) {
			return true
		}
		out = Form{
			Action: htmlutil.ResolveURL(base, action),
			Fields: htmlutil.FormFields(form),
		}
		found = true
		return false
	})
	return out, found
}

var relativeHomeRedirect = regexp.MustCompile(`location\.href\s*=\s*['"](/app/home[^'"]*)['"]`)

// FindRedirectTarget extracts the client side redirect of a login-token page,
// either an absolute portal url or a root relative /app/home path.
func FindRedirectTarget(body string, portalBase string) (string, bool) {
	origin := originOf(portalBase)
	absolute := regexp.MustCompile(`location\s*=\s*['"](` + regexp.QuoteMeta(origin) + `[^'"]+)['"]`)
	m := absolute.FindStringSubmatch(body)
	if len(m) == 2 {
		return m[1], true
	}
	m = relativeHomeRedirect.FindStringSubmatch(body)
	if len(m) == 2 {
		return origin + m[1], true
	}
	return "", false
}

// FindComplianceForm locates the FisConforme form of the portal home and its
// token, a form without a token is treated as absent.
func FindComplianceForm(doc *goquery.Document, base string) (Form, bool) {
	var out Form
	found := false
	doc.Find("form").EachWithBreak(func(_ int, form *goquery.Selection) bool {
		action := strings.TrimSpace(form.AttrOr("action", ""))
		if !strings.Contains(strings.ToLower(action), complianceFormMarker) {
			return true
		}
		token := strings.TrimSpace(form.Find(`input[name="token"]`).First().AttrOr("value", ""))
		if token == "" {
			return false
		}
		out = Form{
			Action: htmlutil.ResolveURL(base, action),
			Fields: map[string]string{"token": token},
		}
		found = true
		return false
	})
	return out, found
}

func cellTexts(cells *goquery.Selection) []string {
	out := make([]string, cells.Length())
	cells.Each(func(i int, td *goquery.Selection) {
		out[i] = htmlutil.Text(td)
	})
	return out
}

// ParseCompliancePendencies reads the pendency table, the one whose header
// mentions both the code and the description columns. The bool is false when
// no such table exists.
func ParseCompliancePendencies(doc *goquery.Document) ([]ComplianceIssue, bool) {
	var table *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, t *goquery.Selection) bool {
		header := t.Find("thead").First()
		if header.Length() == 0 {
			return true
		}
		text := htmlutil.Text(header)
		if htmlutil.ContainsFolded(text, complianceCodeHeading) &&
			htmlutil.ContainsFolded(text, complianceDescriptionHeader) {
			table = t
			return false
		}
		return true
	})
	if table == nil {
		return nil, false
	}

	issues := []ComplianceIssue{}
	table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		cols := cellTexts(tr.Find("td"))
		if len(cols) < 5 {
			return
		}
		issues = append(issues, ComplianceIssue{
			Code:           cols[0],
			RegistrationID: cols[1],
			Name:           cols[2],
			Period:         cols[3],
			Description:    cols[4],
		})
	})
	return issues, true
}

type DebtTableLayout string

const (
	// LayoutFull is the 11 column table of the portal.
	LayoutFull DebtTableLayout = "full"
	// LayoutCompact is the 7 column variant without the label, installment
	// and complement columns.
	LayoutCompact DebtTableLayout = "compact"
)

// debtColumns maps record fields to column indexes, -1 means absent.
type debtColumns struct {
	min          int
	guideLabel   int
	extractLabel int
	launchNumber int
	installment  int
	reference    int
	complement   int
	revenueCode  int
	status       int
	dueDate      int
	original     int
	updated      int
}

var debtLayouts = map[DebtTableLayout]debtColumns{
	LayoutFull: {
		min:          11,
		guideLabel:   0,
		extractLabel: 1,
		launchNumber: 2,
		installment:  3,
		reference:    4,
		complement:   5,
		revenueCode:  6,
		status:       7,
		dueDate:      8,
		original:     9,
		updated:      10,
	},
	LayoutCompact: {
		min:          7,
		guideLabel:   -1,
		extractLabel: -1,
		launchNumber: 0,
		installment:  -1,
		reference:    1,
		complement:   -1,
		revenueCode:  2,
		status:       3,
		dueDate:      4,
		original:     5,
		updated:      6,
	},
}

func ValidLayout(layout DebtTableLayout) bool {
	_, ok := debtLayouts[layout]
	return ok
}

// DebtLinks matches the guide and extract anchors of a debt row and resolves
// them against Base.
type DebtLinks struct {
	Guide   *regexp.Regexp
	Extract *regexp.Regexp
	Base    string
}

func NewDebtLinks(endpoints Endpoints) DebtLinks {
	return DebtLinks{
		Guide:   regexp.MustCompile(regexp.QuoteMeta(endpoints.guideHost()) + `/adm`),
		Extract: regexp.MustCompile(`extrato\.jsp`),
		Base:    endpoints.DebtList,
	}
}

func (l DebtLinks) normalize(href string) string {
	href = strings.Trim(strings.ReplaceAll(href, "%22", ""), `" `)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(href), "http") {
		return href
	}
	return htmlutil.ResolveURL(l.Base, href)
}

func (l DebtLinks) find(anchors []htmlutil.Anchor, pattern *regexp.Regexp) string {
	for _, a := range anchors {
		if pattern.MatchString(a.Href) {
			return l.normalize(a.Href)
		}
	}
	return ""
}

// findDebtTable prefers a table whose first header cell contains the marker,
// a resembling heading is only used when there is none.
func findDebtTable(doc *goquery.Document) *goquery.Selection {
	var exact, resembling *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, t *goquery.Selection) bool {
		th := t.Find("th").First()
		if th.Length() == 0 {
			return true
		}
		heading := htmlutil.Text(th)
		if htmlutil.ContainsFolded(heading, debtTableHeading) {
			exact = t
			return false
		}
		if resembling == nil && headingResembles(heading, debtTableHeading) {
			resembling = t
		}
		return true
	})
	if exact != nil {
		return exact
	}
	return resembling
}

// ParseDebtTable reads the debt list. The table is located by its first
// header cell, the first two rows (title and column names) are skipped. The
// bool is false when the table is not present.
func ParseDebtTable(doc *goquery.Document, layout DebtTableLayout, links DebtLinks) ([]DebtRecord, bool) {
	cols, ok := debtLayouts[layout]
	if !ok {
		cols = debtLayouts[LayoutFull]
	}

	table := findDebtTable(doc)
	if table == nil {
		return nil, false
	}

	records := []DebtRecord{}
	rows := table.Find("tr")
	rows.Each(func(i int, tr *goquery.Selection) {
		if i < 2 {
			return
		}
		tds := cellTexts(tr.Find("td"))
		if len(tds) < cols.min {
			return
		}
		at := func(idx int) string {
			if idx < 0 || idx >= len(tds) {
				return ""
			}
			return tds[idx]
		}
		anchors := htmlutil.GetAnchors(tr.Find("a[href]"))
		records = append(records, DebtRecord{
			GuideLabel:     at(cols.guideLabel),
			ExtractLabel:   at(cols.extractLabel),
			LaunchNumber:   at(cols.launchNumber),
			Installment:    at(cols.installment),
			Reference:      at(cols.reference),
			Complement:     at(cols.complement),
			RevenueCode:    at(cols.revenueCode),
			Status:         at(cols.status),
			DueDate:        at(cols.dueDate),
			OriginalAmount: at(cols.original),
			UpdatedAmount:  at(cols.updated),
			GuideURL:       links.find(anchors, links.Guide),
			ExtractURL:     links.find(anchors, links.Extract),
		})
	})
	return records, true
}

// FindRegistrationOptions enumerates the non-empty option values of a named
// select, duplicates are dropped. The bool is false when the select is absent.
func FindRegistrationOptions(doc *goquery.Document, name string) ([]string, bool) {
	sel := doc.Find(fmt.Sprintf(`select[name="%s"]`, name)).First()
	if sel.Length() == 0 {
		return nil, false
	}
	seen := map[string]bool{}
	values := []string{}
	sel.Find("option").Each(func(_ int, opt *goquery.Selection) {
		v := strings.TrimSpace(opt.AttrOr("value", ""))
		if v == "" || seen[v] {
			return
		}
		seen[v] = true
		values = append(values, v)
	})
	return values, true
}

// FindInputValue returns the value of a named input, or def when the input
// (or its value attribute) is missing.
func FindInputValue(doc *goquery.Document, name, def string) string {
	input := doc.Find(fmt.Sprintf(`input[name="%s"]`, name)).First()
	if input.Length() == 0 {
		return def
	}
	value, ok := input.Attr("value")
	if !ok {
		return def
	}
	return value
}

// FindGuideChallenge locates the captcha processing form of a guide page. The
// bool is false when the page has no such form or no inline captcha image, an
// error is returned when the inline image cannot be decoded.
func FindGuideChallenge(doc *goquery.Document, base string) (CaptchaChallenge, bool, error) {
	form := doc.Find("form#" + guideFormID).First()
	img := doc.Find("img#" + captchaImageID).First()
	if form.Length() == 0 || img.Length() == 0 {
		return CaptchaChallenge{}, false, nil
	}

	src := strings.TrimSpace(img.AttrOr("src", ""))
	if !strings.HasPrefix(src, "data:image") {
		return CaptchaChallenge{}, false, nil
	}
	comma := strings.Index(src, ",")
	if comma < 0 {
		return CaptchaChallenge{}, false, fmt.Errorf("captcha image has no payload")
	}
	payload := strings.Join(strings.Fields(src[comma+1:]), "")
	image, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return CaptchaChallenge{}, false, fmt.Errorf("decode captcha image: %w", err)
	}

	fields := htmlutil.FormFields(form)
	form.Find("select").Each(func(_ int, sel *goquery.Selection) {
		name := sel.AttrOr("name", "")
		if name == "" {
			return
		}
		opt := sel.Find("option[selected]").First()
		if opt.Length() == 0 {
			opt = sel.Find("option").First()
		}
		if opt.Length() == 0 {
			return
		}
		fields[name] = opt.AttrOr("value", "")
	})

	return CaptchaChallenge{
		Image:  image,
		Fields: fields,
		Action: htmlutil.ResolveURL(base, strings.TrimSpace(form.AttrOr("action", ""))),
	}, true, nil
}
