package documents

import (
	"bytes"
	"context"
	"errors"
	"fisconforme-backend/internal/components/chrono"
	"fisconforme-backend/internal/components/telemetry"
	"fisconforme-backend/internal/scrapers/sefin"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/page"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/require"
)

const (
	guideBase  = "https://dare.example/"
	portalBase = "https://portal.example/"
)

func testPDF(t testing.TB, size pagesize.Type, pages int) []byte {
	m := maroto.New(config.NewBuilder().WithPageSize(size).Build())
	for i := 0; i < pages; i++ {
		m.AddPages(page.New().Add(text.NewRow(10, fmt.Sprintf("page %d", i+1))))
	}
	doc, err := m.Generate()
	require.Nil(t, err)
	return doc.GetBytes()
}

type fakeRenderer struct {
	mutex  sync.Mutex
	byBase map[string][]byte
	fail   map[string]error
	seen   map[string]string
}

func (r *fakeRenderer) Render(_ context.Context, html string, baseURL string) ([]byte, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.seen == nil {
		r.seen = map[string]string{}
	}
	r.seen[baseURL] = html
	if err := r.fail[baseURL]; err != nil {
		return nil, err
	}
	return r.byBase[baseURL], nil
}

type fakeSource struct {
	guides   map[string]sefin.Guide
	errs     map[string]error
	extracts map[string]sefin.Page
	calls    []string
}

func (s *fakeSource) IssueGuide(_ context.Context, guideURL string) (sefin.Guide, error) {
	s.calls = append(s.calls, "guide "+guideURL)
	if err := s.errs[guideURL]; err != nil {
		return sefin.Guide{}, err
	}
	return s.guides[guideURL], nil
}

func (s *fakeSource) FetchExtract(_ context.Context, extractURL string) (sefin.Page, error) {
	s.calls = append(s.calls, "extract "+extractURL)
	page, ok := s.extracts[extractURL]
	if !ok {
		return sefin.Page{StatusCode: http.StatusNotFound}, nil
	}
	return page, nil
}

var testNow = time.Date(2026, time.October, 14, 10, 0, 0, 0, time.FixedZone("RO", -4*3600))

func newTestPipeline(renderer Renderer) Pipeline {
	return NewPipeline(renderer, PdfcpuMerger{}, chrono.Fixed{At: testNow}, Options{
		GuideBase:  guideBase,
		PortalBase: portalBase,
	}, &telemetry.Recorder{})
}

func record(launch, due, guideURL, extractURL string) sefin.DebtRecord {
	return sefin.DebtRecord{
		LaunchNumber:   launch,
		RevenueCode:    "1112",
		DueDate:        due,
		OriginalAmount: "100,00",
		UpdatedAmount:  "123,45",
		GuideURL:       guideURL,
		ExtractURL:     extractURL,
	}
}

func TestFileName(t *testing.T) {
	rec := record("1", "10/11/2026", "g", "")
	require.Equal(t, "DARE_10-11-2026_1112_123,45.pdf", FileName(rec))
	require.Equal(t, FileName(rec), FileName(record("1", "10/11/2026", "g", "")))

	require.Equal(t, "DARE__0_0.pdf", FileName(sefin.DebtRecord{}))
	require.Equal(t, "DARE_01-02-2026_11_2_50,00.pdf", FileName(sefin.DebtRecord{
		DueDate:        "01/02/2026",
		RevenueCode:    `11?*2`,
		OriginalAmount: "50,00",
	}))
}

func TestEligible(t *testing.T) {
	horizon := 30 * 24 * time.Hour
	require.True(t, Eligible(record("1", "13/11/2026", "g", ""), testNow, horizon))
	require.False(t, Eligible(record("1", "14/11/2026", "g", ""), testNow, horizon))
	require.True(t, Eligible(record("1", "01/01/2020", "g", ""), testNow, horizon))
	require.True(t, Eligible(record("1", "sem data", "g", ""), testNow, horizon))
	require.False(t, Eligible(record("1", "13/11/2026", "", ""), testNow, horizon))
}

func TestBuildSkipsRecordsBeyondHorizon(t *testing.T) {
	source := &fakeSource{}
	renderer := &fakeRenderer{}
	result, err := newTestPipeline(renderer).Build(context.Background(), source, "e1", []sefin.DebtRecord{
		record("1", "20/12/2026", "https://dare.example/adm/1", ""),
		record("2", "10/10/2026", "", ""),
	})
	require.Nil(t, err)
	require.Empty(t, source.calls)
	require.Empty(t, renderer.seen)
	require.Empty(t, result.Artifacts)
	require.Equal(t, 1, result.BeyondHorizon)
	require.Equal(t, 1, result.NonActionable)
}

func TestBuildMergesGuideAndExtract(t *testing.T) {
	renderer := &fakeRenderer{byBase: map[string][]byte{
		guideBase:  testPDF(t, pagesize.A4, 1),
		portalBase: testPDF(t, pagesize.Letter, 2),
	}}
	source := &fakeSource{
		guides: map[string]sefin.Guide{
			"g1": {HTML: []byte(`<html><body><div class="copy-cb">1</div><img src="/img/logo.png"></body></html>`), Finalized: true},
		},
		extracts: map[string]sefin.Page{
			"x1": {StatusCode: http.StatusOK, Body: []byte(`<html><body><a href="det.jsp">extrato</a></body></html>`)},
		},
	}

	result, err := newTestPipeline(renderer).Build(context.Background(), source, "e1", []sefin.DebtRecord{
		record("1", "10/11/2026", "g1", "x1"),
	})
	require.Nil(t, err)
	require.Empty(t, result.Failures)
	require.Len(t, result.Artifacts, 1)
	artifact := result.Artifacts[0]
	require.Equal(t, "e1", artifact.EntityID)
	require.Equal(t, "DARE_10-11-2026_1112_123,45.pdf", artifact.FileName)
	require.Equal(t, []string{"guide g1", "extract x1"}, source.calls)

	count, err := PageCount(artifact.PDF)
	require.Nil(t, err)
	require.Equal(t, 3, count)

	dims, err := api.PageDims(bytes.NewReader(artifact.PDF), pdfConfig())
	require.Nil(t, err)
	require.Len(t, dims, 3)
	require.Less(t, dims[0].Width, 600.0)
	require.Greater(t, dims[1].Width, 600.0)
	require.Greater(t, dims[2].Width, 600.0)

	require.Contains(t, renderer.seen[guideBase], `<base href="https://dare.example/">`)
	require.Contains(t, renderer.seen[guideBase], `src="https://dare.example/img/logo.png"`)
	require.Contains(t, renderer.seen[portalBase], `href="https://portal.example/det.jsp"`)
}

func TestBuildUsesGuideAloneWithoutExtract(t *testing.T) {
	renderer := &fakeRenderer{byBase: map[string][]byte{
		guideBase:  testPDF(t, pagesize.A4, 1),
		portalBase: testPDF(t, pagesize.Letter, 2),
	}}
	source := &fakeSource{guides: map[string]sefin.Guide{
		"g1": {HTML: []byte(`<p>copy-cb</p>`), Finalized: true},
		"g2": {HTML: []byte(`<p>copy-cb</p>`), Finalized: true},
	}}

	result, err := newTestPipeline(renderer).Build(context.Background(), source, "e1", []sefin.DebtRecord{
		record("1", "10/11/2026", "g1", ""),
		record("2", "10/11/2026", "g2", "missing"),
	})
	require.Nil(t, err)
	require.Len(t, result.Artifacts, 2)
	for _, artifact := range result.Artifacts {
		count, err := PageCount(artifact.PDF)
		require.Nil(t, err)
		require.Equal(t, 1, count)
	}
	require.Equal(t, "DARE_10-11-2026_1112_123,45.pdf", result.Artifacts[0].FileName)
	require.Equal(t, "DARE_10-11-2026_1112_123,45_2.pdf", result.Artifacts[1].FileName)
}

func TestBuildScopesFailuresToRecords(t *testing.T) {
	renderError := &RenderError{Target: guideBase, Err: errors.New("exit status 1")}
	renderer := &fakeRenderer{byBase: map[string][]byte{guideBase: testPDF(t, pagesize.A4, 1)}}
	source := &fakeSource{
		guides: map[string]sefin.Guide{
			"ok":     {HTML: []byte(`<p>copy-cb</p>`), Finalized: true},
			"broken": {HTML: []byte(`<p>broken</p>`)},
		},
		errs: map[string]error{"captcha": fmt.Errorf("captcha: %w", sefin.ErrCaptchaExhausted)},
	}

	pipeline := newTestPipeline(renderer)
	result, err := pipeline.Build(context.Background(), source, "e1", []sefin.DebtRecord{
		record("1", "10/11/2026", "captcha", ""),
		record("2", "10/11/2026", "ok", ""),
	})
	require.Nil(t, err)
	require.Len(t, result.Artifacts, 1)
	require.Equal(t, "2", result.Artifacts[0].Record.LaunchNumber)
	require.Len(t, result.Failures, 1)
	require.Equal(t, "guide", result.Failures[0].Stage)
	require.True(t, errors.Is(result.Failures[0], sefin.ErrCaptchaExhausted))

	renderer.fail = map[string]error{guideBase: renderError}
	result, err = pipeline.Build(context.Background(), source, "e1", []sefin.DebtRecord{
		record("3", "10/11/2026", "broken", ""),
	})
	require.Nil(t, err)
	require.Empty(t, result.Artifacts)
	require.Len(t, result.Failures, 1)
	var target *RenderError
	require.True(t, errors.As(result.Failures[0], &target))
}

func TestLazyChromeRendererWithoutBinary(t *testing.T) {
	renderer := NewLazyChromeRenderer(ChromeOptions{Binary: "/nonexistent/chromium"})
	require.Error(t, renderer.Resolve())

	source := &fakeSource{guides: map[string]sefin.Guide{
		"ok": {HTML: []byte(`<p>copy-cb</p>`), Finalized: true},
	}}
	result, err := newTestPipeline(renderer).Build(context.Background(), source, "e1", []sefin.DebtRecord{
		record("1", "10/11/2026", "ok", ""),
	})
	require.Nil(t, err)
	require.Empty(t, result.Artifacts)
	require.Len(t, result.Failures, 1)
	require.Equal(t, "render", result.Failures[0].Stage)
	var target *RenderError
	require.True(t, errors.As(result.Failures[0], &target))
	require.Equal(t, guideBase, target.Target)
}

func TestPdfcpuMerger(t *testing.T) {
	one := testPDF(t, pagesize.A4, 1)
	two := testPDF(t, pagesize.A4, 2)

	merged, err := PdfcpuMerger{}.Merge(one, nil, two)
	require.Nil(t, err)
	count, err := PageCount(merged)
	require.Nil(t, err)
	require.Equal(t, 3, count)

	single, err := PdfcpuMerger{}.Merge(nil, two)
	require.Nil(t, err)
	require.Equal(t, two, single)

	_, err = PdfcpuMerger{}.Merge(nil, []byte{})
	var mergeErr *MergeError
	require.True(t, errors.As(err, &mergeErr))
}
