// Package report renders a scored idea as Markdown, HTML or PDF.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/joelkehle/ideafit/internal/model"
)

type Document struct {
	Idea         model.Idea
	Score        model.Score
	Contribution model.Contribution
	Reactions    []model.Reaction
	GeneratedAt  time.Time
}

// BuildMarkdown lays out the score card, factor table and recent reactions.
func BuildMarkdown(doc Document) string {
	var b strings.Builder
	idea := doc.Idea
	s := doc.Score

	fmt.Fprintf(&b, "# %s\n\n", escapeInline(idea.Title))
	fmt.Fprintf(&b, "- **Idea:** %s\n", idea.ID)
	fmt.Fprintf(&b, "- **Project:** %s\n", idea.ProjectID)
	if idea.Version != "" {
		fmt.Fprintf(&b, "- **Version:** %s\n", idea.Version)
	}
	if !doc.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "- **Generated:** %s\n", doc.GeneratedAt.UTC().Format(time.RFC3339))
	}
	b.WriteString("\n")

	b.WriteString("## Verdict\n\n")
	fmt.Fprintf(&b, "**%s** (PSF %.1f / PMF %.1f, 95%% CI %.1f–%.1f)\n\n", s.Verdict, s.PSF, s.PMF, s.CI95.Low, s.CI95.High)

	b.WriteString("## Idea\n\n")
	b.WriteString("| Field | Value |\n|---|---|\n")
	rows := [][2]string{
		{"Target", idea.Target},
		{"Pain", idea.Pain},
		{"Solution", idea.Solution},
		{"Price", fmt.Sprintf("%d円", idea.Price)},
		{"Channel", idea.Channel},
		{"Onboarding", idea.Onboarding},
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "| %s | %s |\n", r[0], escapeCell(r[1]))
	}
	b.WriteString("\n")

	b.WriteString("## Probabilities\n\n")
	b.WriteString("| Metric | Low | High |\n|---|---|---|\n")
	fmt.Fprintf(&b, "| Apply | %.2f | %.2f |\n", s.PApply.Low, s.PApply.High)
	fmt.Fprintf(&b, "| Purchase | %.2f | %.2f |\n", s.PPurchase.Low, s.PPurchase.High)
	fmt.Fprintf(&b, "| Day-7 retention | %.2f | %.2f |\n", s.PD7.Low, s.PD7.High)
	b.WriteString("\n")

	if len(doc.Contribution.Factors) > 0 {
		b.WriteString("## Contribution Factors\n\n")
		b.WriteString("| Factor | Weight |\n|---|---|\n")
		for _, f := range doc.Contribution.Factors {
			fmt.Fprintf(&b, "| %s | %.3f |\n", escapeCell(f.Name), f.Value)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Reactions\n\n")
	if len(doc.Reactions) == 0 {
		b.WriteString("_No reactions recorded yet._\n")
		return b.String()
	}
	for _, r := range doc.Reactions {
		fmt.Fprintf(&b, "- %s (%s, intent %.2f)\n", escapeInline(r.Text), r.PersonaID, r.IntentToTry)
	}
	return b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
}

func escapeInline(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
}
