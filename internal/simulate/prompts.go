package simulate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/joelkehle/ideafit/internal/model"
)

const personaSystemPrompt = "あなたは指定されたペルソナになりきって新規事業案に反応する。出力は厳密なJSONのみ。説明文を含めない。"

const summarySystemPrompt = "あなたは市場リサーチの編集者。ペルソナのコメントを日本語2〜3文で要約する。"

const insufficientComments = "コメントが不足しているため要約できません。"

const personaUserTemplate = `次の事業案を、あなた自身の立場で評価してください。

[ペルソナ]
- 区分: %s
- 背景: %s
- 特性: %s
- 口調: %s

[事業案]
- タイトル: %s
- ターゲット: %s
- 課題: %s
- 解決: %s
- 価格: %d円
- チャネル: %s
- 導入: %s

JSONスキーマ:
{
  "comment": "ペルソナの口調での一言",
  "intent_to_try": 0.00,
  "price_acceptance": 0.00
}
`

func personaFallback() map[string]any {
	return map[string]any{
		"comment":          "興味はあるが、導入の手間と価格次第。",
		"intent_to_try":    0.5,
		"price_acceptance": 0.5,
	}
}

func buildPersonaPrompt(idea model.Idea, p model.Persona) string {
	return fmt.Sprintf(personaUserTemplate,
		p.Category, orDash(p.Background), formatTraits(p.Traits), orDash(p.CommentStyle),
		idea.Title, idea.Target, idea.Pain, idea.Solution, idea.Price, idea.Channel, idea.Onboarding,
	)
}

func buildSummaryPrompt(idea model.Idea, comments []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "事業案「%s」へのコメント:\n", idea.Title)
	for _, c := range comments {
		sb.WriteString("- ")
		sb.WriteString(c)
		sb.WriteString("\n")
	}
	sb.WriteString("\n全体の傾向と懸念点を要約してください。")
	return sb.String()
}

func formatTraits(traits map[string]float64) string {
	if len(traits) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(traits))
	for k := range traits {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%.2f", k, traits[k])
	}
	return strings.Join(parts, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
