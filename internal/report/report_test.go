package report

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelkehle/ideafit/internal/model"
)

func sampleDoc() Document {
	return Document{
		Idea: model.Idea{
			ID: "idea-1", ProjectID: "projectA", Version: "A", Title: "AI受付",
			Target: "クリニック", Pain: "電話|対応", Solution: "AI", Price: 9800, Channel: "展示会", Onboarding: "即日",
		},
		Score: model.Score{
			PSF: 61.9, PMF: 55.2, CI95: model.CI{Low: 47.1, High: 63.3},
			PApply:  model.Range{Low: 0.33, High: 0.5},
			Verdict: model.VerdictImprove,
		},
		Contribution: model.Contribution{Factors: []model.Factor{{Name: "Pain適合", Value: 0.25}, {Name: "TTFV", Value: -0.1}}},
		Reactions:    []model.Reaction{{PersonaID: "persona-gpt", Text: "試したい", IntentToTry: 0.55}},
		GeneratedAt:  time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestBuildMarkdownContainsVerdictAndFactors(t *testing.T) {
	md := BuildMarkdown(sampleDoc())

	assert.True(t, strings.HasPrefix(md, "# AI受付\n"))
	assert.Contains(t, md, "**Improve** (PSF 61.9 / PMF 55.2")
	assert.Contains(t, md, "| Pain適合 | 0.250 |")
	assert.Contains(t, md, "| TTFV | -0.100 |")
	assert.Contains(t, md, `| Pain | 電話\|対応 |`)
	assert.Contains(t, md, "| Price | 9800円 |")
	assert.Contains(t, md, "| Apply | 0.33 | 0.50 |")
	assert.Contains(t, md, "- 試したい (persona-gpt, intent 0.55)")
	assert.Contains(t, md, "2025-01-02T03:04:05Z")
}

func TestBuildMarkdownWithoutReactions(t *testing.T) {
	doc := sampleDoc()
	doc.Reactions = nil
	doc.Contribution.Factors = nil
	md := BuildMarkdown(doc)
	assert.Contains(t, md, "_No reactions recorded yet._")
	assert.NotContains(t, md, "Contribution Factors")
}

func TestRenderHTMLRendersTables(t *testing.T) {
	out, err := RenderHTML(sampleDoc())
	require.NoError(t, err)

	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "<title>AI受付</title>")
	assert.Contains(t, out, `<h2 data-verdict="true">Verdict</h2>`)
	assert.Contains(t, out, `<h2 data-page-break-before="true">Reactions</h2>`)
	assert.Contains(t, out, "report-badge verdict-Improve")
}

func TestApplyLayoutHooksNoopWhenHeadingsMissing(t *testing.T) {
	in := "<h2>Idea</h2><p>x</p>"
	assert.Equal(t, in, applyLayoutHooks(in))
}

func TestPDFRendererWithoutChromium(t *testing.T) {
	r := &PDFRenderer{}
	assert.False(t, r.Available())
	_, err := r.Render(context.Background(), sampleDoc())
	assert.ErrorIs(t, err, ErrChromiumUnavailable)
}

func TestPrintParamsFooterEscapesID(t *testing.T) {
	p := printParams("idea-<1>")
	assert.Contains(t, p.FooterTemplate, "idea-&lt;1&gt;")
	assert.InDelta(t, 8.27, p.PaperWidth, 1e-9)
	assert.True(t, p.DisplayHeaderFooter)
}
