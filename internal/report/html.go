package report

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	verdictHeadingRe = regexp.MustCompile(`(?i)<h2([^>]*)>\s*Verdict\s*</h2>`)
	reactionsRe      = regexp.MustCompile(`(?i)<h2([^>]*)>\s*Reactions\s*</h2>`)
)

const pageStyle = `body{font-family:"Hiragino Sans","Noto Sans JP",sans-serif;color:#1c1917;background:#fff;padding:0.6rem;}
.report-wrap{max-width:960px;margin:0 auto;}
.report-meta{color:#44403c;font-size:0.85rem;margin-bottom:0.5rem;}
.report-badge{display:inline-block;padding:0.1rem 0.5rem;border-radius:4px;font-weight:700;}
.verdict-Go{background:#dcfce7;color:#166534;}
.verdict-Improve{background:#fef3c7;color:#78350f;}
.verdict-Kill{background:#fee2e2;color:#991b1b;}
table{width:100%;border-collapse:collapse;border:1px solid #a8a29e;font-size:0.85rem;}
th,td{border:1px solid #a8a29e;padding:0.35rem 0.45rem;text-align:left;vertical-align:top;}
thead th{background:#f1f5f9;}
h2[data-verdict="true"]{border-bottom:2px solid #92400e;}
h2[data-page-break-before="true"]{break-before:page;page-break-before:always;}
@media print{@page{size:auto;margin:12mm;} body{padding:0;}}`

// RenderHTML converts the Markdown report into a standalone HTML page.
func RenderHTML(doc Document) (string, error) {
	var content strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(BuildMarkdown(doc)), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	title := html.EscapeString(doc.Idea.Title)
	return "<!doctype html><html><head><meta charset='utf-8'><title>" + title + "</title>" +
		"<style>" + pageStyle + "</style></head><body><div class='report-wrap'>" +
		"<div class='report-meta'>" + buildBadgeHTML(doc) + "</div>" +
		applyLayoutHooks(content.String()) +
		"</div></body></html>", nil
}

func applyLayoutHooks(contentHTML string) string {
	out := verdictHeadingRe.ReplaceAllString(contentHTML, `<h2$1 data-verdict="true">Verdict</h2>`)
	return reactionsRe.ReplaceAllString(out, `<h2$1 data-page-break-before="true">Reactions</h2>`)
}

func buildBadgeHTML(doc Document) string {
	v := string(doc.Score.Verdict)
	if v == "" {
		return ""
	}
	return "<span class='report-badge verdict-" + html.EscapeString(v) + "'>" + html.EscapeString(v) + "</span>"
}
