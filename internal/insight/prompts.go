package insight

import (
	"fmt"

	"github.com/joelkehle/ideafit/internal/model"
)

const reactSystemPrompt = "あなたは市場リサーチAI。出力は厳密なJSONのみ。コメントや説明を一切含めない。"

const reactUserTemplate = `以下の案に対する想定反応をJSONで出力してください。
- ターゲット: %s
- 課題: %s
- 解決: %s
- 価格: %d円
- 導入: %s

JSONスキーマ:
{
  "reaction": "短い一言",
  "intent_to_try": 0.00,
  "price_acceptance": 0.00,
  "friction_hint": 0.00
}
`

// DefaultReaction is the payload served when the scoring call cannot complete.
func DefaultReaction() map[string]any {
	return map[string]any{
		"reaction":         "便利そうだが価格が気になる",
		"intent_to_try":    0.42,
		"price_acceptance": 0.5,
		"friction_hint":    0.0,
	}
}

func buildReactPrompt(idea model.Idea) string {
	return fmt.Sprintf(reactUserTemplate, idea.Target, idea.Pain, idea.Solution, idea.Price, idea.Onboarding)
}
