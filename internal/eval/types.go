package eval

// Intent is the single-label classification of what a listing actually is.
type Intent string

const (
	IntentOfferService Intent = "OFFER_SERVICE"
	IntentSellItem     Intent = "SELL_ITEM"
	IntentRental       Intent = "RENTAL"
	IntentWanted       Intent = "WANTED"
	IntentIrrelevant   Intent = "IRRELEVANT"
)

// Minimal judgment verdicts. The repair family uses the WORTH_* set, the
// rental family the deal-quality set.
const (
	VerdictWorthIt         = "WORTH_IT"
	VerdictWorthItForParts = "WORTH_IT_FOR_PARTS"
	VerdictNotWorthIt      = "NOT_WORTH_IT"
	VerdictUnclear         = "UNCLEAR"

	VerdictGoodDeal   = "GOOD_DEAL"
	VerdictFair       = "FAIR"
	VerdictOverpriced = "OVERPRICED"
	VerdictScam       = "SCAM"
)

// Listing is the immutable input under evaluation, supplied by the scraping
// collaborator. The evaluators never mutate it.
type Listing struct {
	URL         string
	Title       string
	Description string
	PriceRON    *int
	DistanceKm  *float64
}

// MinimalJudgment is the cheap first-pass structured judgment. The repair
// family fills likely_fix and the repair estimate band; the rental family
// fills price_hint and scam_risk.
type MinimalJudgment struct {
	Score              float64 `json:"score"`
	Verdict            string  `json:"verdict"`
	LikelyFix          string  `json:"likely_fix,omitempty"`
	RepairEstimateLow  int     `json:"repair_estimate_low,omitempty"`
	RepairEstimateHigh int     `json:"repair_estimate_high,omitempty"`
	PartsSuspected     string  `json:"parts_suspected,omitempty"`
	PriceHint          string  `json:"price_hint,omitempty"`
	ScamRisk           string  `json:"scam_risk,omitempty"`
	ReasoningShort     string  `json:"reasoning_short,omitempty"`
	// JudgeError records an escalation failure; the minimal judgment stays
	// usable regardless.
	JudgeError string `json:"judge_error,omitempty"`
	// Parsed is false when the model output was unusable and the judgment is
	// the schema fallback.
	Parsed bool `json:"-"`
}

// RepairItem is one itemized entry of the verbose cost breakdown.
type RepairItem struct {
	Item string `json:"item"`
	Low  int    `json:"low"`
	High int    `json:"high"`
	Why  string `json:"why"`
}

// VerboseJudgment is the deeper structured analysis run only past the
// escalation threshold. Absent (nil) is a valid, expected state.
type VerboseJudgment struct {
	Confidence      float64      `json:"confidence"`
	SignalsPositive []string     `json:"signals_positive"`
	SignalsNegative []string     `json:"signals_negative"`
	QuickTests      []string     `json:"quick_tests"`
	RepairItems     []RepairItem `json:"repair_items"`
	ResaleValueLow  int          `json:"resale_value_low"`
	ResaleValueHigh int          `json:"resale_value_high"`
	ProfitLow       int          `json:"profit_low"`
	ProfitHigh      int          `json:"profit_high"`
	Notes           string       `json:"notes"`
}
