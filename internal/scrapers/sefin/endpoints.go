package sefin

import (
	"net/url"
	"strings"
)

// Endpoints are the fixed addresses of the identity provider (DET), the
// taxpayer portal and the guide (DARE) host.
type Endpoints struct {
	DetHome        string `json:"det_home"`
	DetEnter       string `json:"det_enter"`
	PostLoginPath  string `json:"post_login_path"`
	RedirectPortal string `json:"redirect_portal"`
	PortalBase     string `json:"portal_base"`
	PortalHome     string `json:"portal_home"`
	DebtQuery      string `json:"debt_query"`
	DebtList       string `json:"debt_list"`
	GuideBase      string `json:"guide_base"`
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		DetHome:        "https://detsec.sefin.ro.gov.br/certificados",
		DetEnter:       "https://detsec.sefin.ro.gov.br/entrar",
		PostLoginPath:  "/certificado/acessos",
		RedirectPortal: "https://detsec.sefin.ro.gov.br/contribuinte/notificacoes/redirect_portal",
		PortalBase:     "https://portalcontribuinte.sefin.ro.gov.br/",
		PortalHome:     "https://portalcontribuinte.sefin.ro.gov.br/app/home/?exibir_modal=true",
		DebtQuery:      "https://portalcontribuinte.sefin.ro.gov.br/app/consultadebitos/",
		DebtList:       "https://portalcontribuinte.sefin.ro.gov.br/app/consultadebitos/lista.jsp",
		GuideBase:      "https://dare.sefin.ro.gov.br/",
	}
}

// WithDefaults fills every empty field from DefaultEndpoints.
func (e Endpoints) WithDefaults() Endpoints {
	d := DefaultEndpoints()
	fill := func(v *string, def string) {
		if strings.TrimSpace(*v) == "" {
			*v = def
		}
	}
	fill(&e.DetHome, d.DetHome)
	fill(&e.DetEnter, d.DetEnter)
	fill(&e.PostLoginPath, d.PostLoginPath)
	fill(&e.RedirectPortal, d.RedirectPortal)
	fill(&e.PortalBase, d.PortalBase)
	fill(&e.PortalHome, d.PortalHome)
	fill(&e.DebtQuery, d.DebtQuery)
	fill(&e.DebtList, d.DebtList)
	fill(&e.GuideBase, d.GuideBase)
	return e
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.TrimSuffix(raw, "/")
	}
	return u.Scheme + "://" + u.Host
}

func (e Endpoints) portalHost() string {
	return hostOf(e.PortalBase)
}

func (e Endpoints) guideHost() string {
	return hostOf(e.GuideBase)
}

// hostnames lists the hosts the session is allowed to be redirected to.
func (e Endpoints) hostnames() []string {
	seen := map[string]bool{}
	out := []string{}
	for _, raw := range []string{e.DetHome, e.DetEnter, e.RedirectPortal, e.PortalBase, e.PortalHome, e.DebtQuery, e.DebtList, e.GuideBase} {
		u, err := url.Parse(raw)
		if err != nil || u.Hostname() == "" {
			continue
		}
		h := strings.ToLower(u.Hostname())
		if seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}
