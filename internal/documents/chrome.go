package documents

import (
	"bytes"
	"context"
	"errors"
	"fisconforme-backend/pkg/htmlutil"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// minimumPdfSize is below anything chromium writes for a page with content.
const minimumPdfSize = 1024

var chromeCandidates = []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable"}

type ChromeOptions struct {
	// Binary is looked up in PATH when it is not absolute, when empty the
	// usual chromium names are tried.
	Binary  string
	Timeout time.Duration
}

// ChromeRenderer prints html to pdf with a headless chromium process. Every
// render owns a temporary directory that is removed on return.
type ChromeRenderer struct {
	binary  string
	timeout time.Duration
}

func NewChromeRenderer(opts ChromeOptions) (ChromeRenderer, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	candidates := chromeCandidates
	if opts.Binary != "" {
		candidates = []string{opts.Binary}
	}
	for _, name := range candidates {
		path, err := exec.LookPath(name)
		if err == nil {
			return ChromeRenderer{binary: path, timeout: opts.Timeout}, nil
		}
	}
	return ChromeRenderer{}, fmt.Errorf("no chromium binary found (tried %s)", strings.Join(candidates, ", "))
}

// LazyChromeRenderer looks the binary up once, on Resolve or the first render.
// Without a binary every render fails with a RenderError.
type LazyChromeRenderer struct {
	opts ChromeOptions

	once     sync.Once
	renderer ChromeRenderer
	err      error
}

func NewLazyChromeRenderer(opts ChromeOptions) *LazyChromeRenderer {
	return &LazyChromeRenderer{opts: opts}
}

func (r *LazyChromeRenderer) Resolve() error {
	r.once.Do(func() {
		r.renderer, r.err = NewChromeRenderer(r.opts)
	})
	return r.err
}

func (r *LazyChromeRenderer) Render(ctx context.Context, html string, baseURL string) ([]byte, error) {
	err := r.Resolve()
	if err != nil {
		return nil, &RenderError{Target: baseURL, Err: err}
	}
	return r.renderer.Render(ctx, html, baseURL)
}

func (r ChromeRenderer) Render(ctx context.Context, html string, baseURL string) ([]byte, error) {
	if !strings.Contains(strings.ToLower(html), "<base") {
		html = htmlutil.WrapDocument(htmlutil.BodyContents(html), baseURL)
	}

	dir, err := os.MkdirTemp("", "fisconforme-render-")
	if err != nil {
		return nil, &RenderError{Target: baseURL, Err: err}
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "page.html")
	output := filepath.Join(dir, "page.pdf")
	err = os.WriteFile(input, []byte(html), 0o600)
	if err != nil {
		return nil, &RenderError{Target: baseURL, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(
		ctx,
		r.binary,
		"--headless",
		"--disable-gpu",
		"--no-sandbox",
		"--no-pdf-header-footer",
		"--run-all-compositor-stages-before-draw",
		"--user-data-dir="+filepath.Join(dir, "profile"),
		"--print-to-pdf="+output,
		"file://"+input,
	)
	cmd.Stderr = &stderr
	err = cmd.Run()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", r.timeout, ctx.Err())
		} else if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, lastLine(msg))
		}
		return nil, &RenderError{Target: baseURL, Err: err}
	}

	pdf, err := os.ReadFile(output)
	if err != nil {
		return nil, &RenderError{Target: baseURL, Err: err}
	}
	if len(pdf) < minimumPdfSize {
		return nil, fmt.Errorf("%s: %w (%d bytes)", baseURL, ErrRenderTooSmall, len(pdf))
	}
	return pdf, nil
}

func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
