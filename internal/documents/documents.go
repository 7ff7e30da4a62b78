package documents

import (
	"context"
	"errors"
	"fisconforme-backend/internal/components/chrono"
	"fisconforme-backend/internal/scrapers/sefin"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Artifact is the merged guide (and extract) pdf of one debt record.
type Artifact struct {
	EntityID string
	FileName string
	PDF      []byte
	Record   sefin.DebtRecord
}

// Renderer turns a standalone html document into pdf bytes. baseURL is used
// for relative resources the document still carries.
type Renderer interface {
	Render(ctx context.Context, html string, baseURL string) ([]byte, error)
}

// Merger concatenates pdfs in order, empty inputs are skipped.
type Merger interface {
	Merge(parts ...[]byte) ([]byte, error)
}

// GuideSource is the part of an authenticated portal the pipeline needs.
type GuideSource interface {
	IssueGuide(ctx context.Context, guideURL string) (sefin.Guide, error)
	FetchExtract(ctx context.Context, extractURL string) (sefin.Page, error)
}

// RenderError is a failure of the renderer itself (process, timeout, io).
type RenderError struct {
	Target string
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %s", e.Target, e.Err.Error())
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// ErrRenderTooSmall is returned when the renderer finished but produced a pdf
// too small to hold a page.
var ErrRenderTooSmall = errors.New("rendered pdf is too small")

type MergeError struct {
	Err error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge pdf: %s", e.Err.Error())
}

func (e *MergeError) Unwrap() error {
	return e.Err
}

var unsafeFileChars = regexp.MustCompile(`[<>:"/\\|?*]+`)

func orZero(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "0"
	}
	return s
}

// FileName derives the output name from the due date, the revenue code and
// the amount, so unchanged records always map to the same name.
func FileName(rec sefin.DebtRecord) string {
	due := strings.ReplaceAll(strings.TrimSpace(rec.DueDate), "/", "-")
	name := fmt.Sprintf("DARE_%s_%s_%s.pdf", due, orZero(rec.RevenueCode), orZero(rec.DisplayAmount()))
	return unsafeFileChars.ReplaceAllString(name, "_")
}

// Eligible reports whether a guide should be issued for rec: it needs a guide
// url and a due date no later than today plus horizon. Records with an
// unreadable due date are eligible.
func Eligible(rec sefin.DebtRecord, now time.Time, horizon time.Duration) bool {
	if !rec.Actionable() {
		return false
	}
	due, ok := rec.Due()
	if !ok {
		return true
	}
	today := chrono.Today(now)
	limit := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC).Add(horizon)
	return !due.After(limit)
}
