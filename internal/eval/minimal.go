package eval

import (
	"context"
	"fmt"

	"listing-agent/internal/jsonx"
	"listing-agent/internal/llm"
	"listing-agent/internal/profile"
)

const repairMinimalPrompt = `Returnează STRICT JSON (fără text extra). Limba: română.
Chei: score (0..10), verdict (WORTH_IT/WORTH_IT_FOR_PARTS/NOT_WORTH_IT/UNCLEAR),
likely_fix (lvds/tcon/psu/mainboard/panel/unknown),
repair_estimate_low (RON), repair_estimate_high (RON),
parts_suspected (text scurt), reasoning_short (max 2 fraze).

Reguli cost: LVDS 0-50, TCON 80-150, PSU 100-200, MAINBOARD 250-450, PANEL 9999.
Dacă indicii de panel (dungi/pete/crăpat/jumătate ecran) => likely_fix=panel, verdict=NOT_WORTH_IT.

TITLE: %s
PRICE_RON: %s
DESCRIPTION: %s
`

const rentalMinimalPrompt = `Returnează STRICT JSON (fără text extra). Limba: română.
Chei: score (0..10), verdict (GOOD_DEAL/FAIR/OVERPRICED/SCAM),
price_hint (sub piață/la piață/peste piață/necunoscut),
scam_risk (low/medium/high),
reasoning_short (max 2 fraze).

Reguli: preț mult sub piață fără poze sau cu plată în avans => scam_risk=high, verdict=SCAM.
Cazare izolată fără utilități scade scorul, nu e automat SCAM.

TITLE: %s
PRICE_RON: %s
DESCRIPTION: %s
`

// MinimalEvaluate runs the cheap first-pass judgment for the profile's
// domain family. The result is always usable: unparseable model output
// resolves to the schema fallback (Parsed=false); a transport failure after
// all retries returns the fallback plus the typed error for the caller to
// record.
func MinimalEvaluate(ctx context.Context, g llm.Generator, model string, l Listing, domain profile.Domain, onEvent llm.EventFunc) (MinimalJudgment, error) {
	var template string
	switch domain {
	case profile.DomainRentalsCabins:
		template = rentalMinimalPrompt
	default:
		template = repairMinimalPrompt
	}
	prompt := fmt.Sprintf(template, l.Title, formatPrice(l.PriceRON), l.Description)

	fallback := minimalFallback(domain)
	out, err := g.Generate(ctx, model, prompt, onEvent != nil, onEvent)
	if err != nil {
		return fallback, err
	}

	judgment := fallback
	if jsonx.Decode(out, &judgment) {
		judgment.Parsed = true
	} else {
		judgment = fallback
	}
	return judgment, nil
}

func minimalFallback(domain profile.Domain) MinimalJudgment {
	if domain == profile.DomainRentalsCabins {
		return MinimalJudgment{
			Score:          5.0,
			Verdict:        VerdictFair,
			PriceHint:      "necunoscut",
			ScamRisk:       "medium",
			ReasoningShort: "Fallback: output neparsabil.",
		}
	}
	return MinimalJudgment{
		Score:              5.0,
		Verdict:            VerdictUnclear,
		LikelyFix:          "unknown",
		RepairEstimateLow:  150,
		RepairEstimateHigh: 450,
		PartsSuspected:     "mainboard/tcon",
		ReasoningShort:     "Fallback: output neparsabil.",
	}
}

func formatPrice(price *int) string {
	if price == nil {
		return "necunoscut"
	}
	return fmt.Sprintf("%d", *price)
}
