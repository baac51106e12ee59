package cascade

import (
	"strings"

	"listing-agent/internal/profile"
)

// Tuning knobs for the filter stage. Empirically chosen and deliberately not
// user-configurable; profiles control the limits, not the penalty shape.
const (
	hardYesBonus  = 1.5
	hardNoPenalty = 4.0

	priceWithinBonus    = 0.5
	priceSoftOverRatio  = 0.15
	priceHardLimitRatio = 1.35
	pricePenaltyCap     = 2.0

	distanceWithinBonus    = 0.3
	distanceSoftOverRatio  = 0.20
	distanceHardLimitRatio = 1.60
	distancePenaltyCap     = 1.5

	mustHaveBonus       = 0.8
	mustHaveMissPenalty = 0.4
)

// Hard drop reasons produced by the filter stage and the intent gate.
const (
	ReasonIntentMismatch    = "intent_mismatch"
	ReasonServiceAdExcluded = "service_ad_excluded"
	ReasonAvoidPhrase       = "avoid_phrase"
	ReasonOverBudgetHard    = "over_budget_hard"
	ReasonOverRadiusHard    = "over_radius_hard"

	reasonScoreBelowThreshold = "score_below_threshold"
	reasonVerdictRejected     = "verdict_rejected"
)

// filterOutcome is the result of the config filter stage: either a hard drop
// with a reason, or a bounded score adjustment.
type filterOutcome struct {
	Drop   bool
	Reason string
	Bonus  float64
}

// keywordBonus sums the additive adjustment from profile phrase lists:
// +1.5 per hardYes hit, -4.0 per hardNo hit, case-insensitive substring.
func keywordBonus(text string, hardYes, hardNo []string) float64 {
	t := strings.ToLower(text)
	score := 0.0
	for _, k := range hardYes {
		if containsPhrase(t, k) {
			score += hardYesBonus
		}
	}
	for _, k := range hardNo {
		if containsPhrase(t, k) {
			score -= hardNoPenalty
		}
	}
	return score
}

// applyCfgFilters evaluates the profile's structured limits against the
// listing. Pure function of its inputs: applying it twice yields the same
// outcome. A listing slightly over budget or radius is penalized
// proportionally up to a cap; far over, it is dropped outright.
func applyCfgFilters(text string, priceRON *int, distanceKm *float64, cfg profile.Cfg) filterOutcome {
	t := strings.ToLower(text)

	for _, phrase := range cfg.Avoid {
		if containsPhrase(t, phrase) {
			return filterOutcome{Drop: true, Reason: ReasonAvoidPhrase}
		}
	}

	bonus := 0.0

	if cfg.MaxPriceRON > 0 && priceRON != nil {
		price := float64(*priceRON)
		budget := float64(cfg.MaxPriceRON)
		switch {
		case price <= budget:
			bonus += priceWithinBonus
		case price > budget*priceHardLimitRatio:
			return filterOutcome{Drop: true, Reason: ReasonOverBudgetHard}
		default:
			over := (price - budget) / budget
			penalty := pricePenaltyCap * over / priceSoftOverRatio
			if penalty > pricePenaltyCap {
				penalty = pricePenaltyCap
			}
			bonus -= penalty
		}
	}

	if cfg.MaxDistanceKm > 0 && distanceKm != nil {
		dist := *distanceKm
		radius := cfg.MaxDistanceKm
		switch {
		case dist <= radius:
			bonus += distanceWithinBonus
		case dist > radius*distanceHardLimitRatio:
			return filterOutcome{Drop: true, Reason: ReasonOverRadiusHard}
		default:
			over := (dist - radius) / radius
			penalty := distancePenaltyCap * over / distanceSoftOverRatio
			if penalty > distancePenaltyCap {
				penalty = distancePenaltyCap
			}
			bonus -= penalty
		}
	}

	if len(cfg.MustHave) > 0 {
		found := false
		for _, phrase := range cfg.MustHave {
			if containsPhrase(t, phrase) {
				found = true
				break
			}
		}
		if found {
			bonus += mustHaveBonus
		} else {
			// missing must_have is a penalty, never a drop
			bonus -= mustHaveMissPenalty
		}
	}

	return filterOutcome{Bonus: bonus}
}

func containsPhrase(lowerText, phrase string) bool {
	p := strings.ToLower(strings.TrimSpace(phrase))
	if p == "" {
		return false
	}
	return strings.Contains(lowerText, p)
}
