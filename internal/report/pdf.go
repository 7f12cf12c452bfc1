package report

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"os"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const pdfTimeout = 30 * time.Second

// ErrChromiumUnavailable is returned when no headless browser was found.
var ErrChromiumUnavailable = errors.New("chromium not available for PDF rendering")

var chromeCandidates = []string{
	"/usr/bin/chromium-browser",
	"/usr/bin/chromium",
	"/usr/bin/google-chrome",
}

type PDFRenderer struct {
	chromePath string
}

// NewPDFRenderer probes the usual Chromium locations. CHROME_PATH wins when set.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{chromePath: detectChromePath()}
}

func (r *PDFRenderer) Available() bool { return r.chromePath != "" }

func (r *PDFRenderer) Render(ctx context.Context, doc Document) ([]byte, error) {
	if !r.Available() {
		return nil, ErrChromiumUnavailable
	}
	htmlDoc, err := RenderHTML(doc)
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, pdfTimeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(r.chromePath),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	)...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var out []byte
	src := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(htmlDoc))
	err = chromedp.Run(taskCtx,
		chromedp.Navigate(src),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) (err error) {
			out, _, err = printParams(doc.Idea.ID).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print %s: %w", doc.Idea.ID, err)
	}
	return out, nil
}

// A4 with an "idea-id  n / m" footer.
func printParams(ideaID string) *page.PrintToPDFParams {
	footer := fmt.Sprintf(`<div style="width:100%%;padding:0 12mm;font-size:8px;color:#777;display:flex;justify-content:space-between;">`+
		`<span>%s</span><span><span class="pageNumber"></span> / <span class="totalPages"></span></span></div>`, html.EscapeString(ideaID))
	return page.PrintToPDF().
		WithPrintBackground(true).
		WithDisplayHeaderFooter(true).
		WithHeaderTemplate(`<span></span>`).
		WithFooterTemplate(footer).
		WithPaperWidth(8.27).
		WithPaperHeight(11.69).
		WithMarginTop(0.6).
		WithMarginBottom(0.8)
}

func detectChromePath() string {
	if p := os.Getenv("CHROME_PATH"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range chromeCandidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
