package eval

import (
	"context"
	"encoding/json"
	"fmt"

	"listing-agent/internal/jsonx"
	"listing-agent/internal/llm"
)

const verbosePrompt = `Ești un tehnician care evaluează anunțuri second-hand. Returnează STRICT JSON (fără text în plus). Limba: română.

Obiectiv: explică mai verbose de ce anunțul merită/nu merită și dă plan de test + cost breakdown.

Chei obligatorii:
confidence (0..1),
signals_positive (listă),
signals_negative (listă),
quick_tests (listă 5-10 pași scurți),
repair_items (listă de obiecte: {"item","low","high","why"}),
resale_value_low (RON),
resale_value_high (RON),
profit_low (RON),
profit_high (RON),
notes (3-6 fraze, la obiect).

Constrângeri:
- Respectă intervalele costurilor:
  LVDS 0-50, TCON 80-150, PSU 100-200, MAINBOARD 250-450, PANEL 9999.
- Profit = resale - (price + repair).

Date anunț:
TITLE: %s
PRICE_RON: %s
DESCRIPTION: %s

Analiză minimală deja făcută:
%s
`

// VerboseEvaluate runs the deeper second-pass judgment. The minimal judgment
// is embedded in the prompt so the expensive pass stays consistent with the
// cheap one. Unusable output resolves to a fallback carrying an explicit
// negative signal; transport exhaustion returns the fallback plus the error.
func VerboseEvaluate(ctx context.Context, g llm.Generator, judgeModel string, l Listing, minimal MinimalJudgment, onEvent llm.EventFunc) (VerboseJudgment, error) {
	minimalJSON, err := json.Marshal(minimal)
	if err != nil {
		minimalJSON = []byte("{}")
	}
	prompt := fmt.Sprintf(verbosePrompt, l.Title, formatPrice(l.PriceRON), l.Description, string(minimalJSON))

	fallback := VerboseJudgment{
		Confidence:      0,
		SignalsNegative: []string{"output neparsabil"},
		Notes:           "Fallback: analiza detaliată nu a produs JSON valid.",
	}

	out, err := g.Generate(ctx, judgeModel, prompt, onEvent != nil, onEvent)
	if err != nil {
		return fallback, err
	}

	judgment := fallback
	if !jsonx.Decode(out, &judgment) {
		return fallback, nil
	}
	return judgment, nil
}
