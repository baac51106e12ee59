package api

import (
	"encoding/json"
	"strings"
	"time"

	"listing-agent/internal/eval"
	"listing-agent/internal/profile"
	"listing-agent/internal/store"
)

// ListingDTO is one raw listing submitted for evaluation, as extracted by
// the scraping collaborator.
type ListingDTO struct {
	URL          string   `json:"url"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	PriceRON     *int     `json:"price_ron,omitempty"`
	DistanceKm   *float64 `json:"distance_km,omitempty"`
	LocationText string   `json:"location_text,omitempty"`
	Lat          *float64 `json:"lat,omitempty"`
	Lon          *float64 `json:"lon,omitempty"`
	ImageURL     string   `json:"image_url,omitempty"`
}

// ToListing converts the DTO into the evaluator input value.
func (l ListingDTO) ToListing() eval.Listing {
	return eval.Listing{
		URL:         strings.TrimSpace(l.URL),
		Title:       strings.TrimSpace(l.Title),
		Description: l.Description,
		PriceRON:    l.PriceRON,
		DistanceKm:  l.DistanceKm,
	}
}

// EvaluateRequest starts an evaluation run over a batch of listings.
type EvaluateRequest struct {
	ProfileID  uint         `json:"profile_id"`
	Listings   []ListingDTO `json:"listings"`
	Model      string       `json:"model,omitempty"`
	JudgeModel string       `json:"judge_model,omitempty"`
}

// StartEvaluationResponse describes the asynchronous evaluation kickoff payload.
type StartEvaluationResponse struct {
	RunID     string    `json:"run_id"`
	ProfileID uint      `json:"profile_id"`
	Total     int       `json:"total"`
	StartedAt time.Time `json:"started_at"`
}

// EvaluateStatusResponse describes the state of the active evaluation run.
type EvaluateStatusResponse struct {
	Running   bool   `json:"running"`
	RunID     string `json:"run_id"`
	ProfileID uint   `json:"profile_id"`
	State     string `json:"state"`
	Message   string `json:"message"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	LastAd    *AdDTO `json:"last_ad,omitempty"`
}

// AdDTO is the API representation for a persisted evaluated listing.
type AdDTO struct {
	ID           uint      `json:"id"`
	URL          string    `json:"url"`
	RunID        string    `json:"run_id"`
	Title        string    `json:"title"`
	PriceRON     *int      `json:"price_ron,omitempty"`
	LocationText string    `json:"location_text,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	Description  string    `json:"description"`
	DistanceKm   *float64  `json:"distance_km,omitempty"`
	ScrapedAt    time.Time `json:"scraped_at"`

	Intent             string  `json:"intent"`
	Score              float64 `json:"score"`
	Verdict            string  `json:"verdict"`
	LikelyFix          string  `json:"likely_fix,omitempty"`
	RepairEstimateLow  int     `json:"repair_estimate_low,omitempty"`
	RepairEstimateHigh int     `json:"repair_estimate_high,omitempty"`
	PartsSuspected     string  `json:"parts_suspected,omitempty"`
	PriceHint          string  `json:"price_hint,omitempty"`
	ScamRisk           string  `json:"scam_risk,omitempty"`
	Reasoning          string  `json:"reasoning"`
	Bonus              float64 `json:"bonus"`

	Confidence      *float64          `json:"confidence,omitempty"`
	SignalsPositive []string          `json:"signals_positive,omitempty"`
	SignalsNegative []string          `json:"signals_negative,omitempty"`
	QuickTests      []string          `json:"quick_tests,omitempty"`
	RepairItems     []eval.RepairItem `json:"repair_items,omitempty"`
	ResaleValueLow  *int              `json:"resale_value_low,omitempty"`
	ResaleValueHigh *int              `json:"resale_value_high,omitempty"`
	ProfitLow       *int              `json:"profit_low,omitempty"`
	ProfitHigh      *int              `json:"profit_high,omitempty"`

	SoftDropped bool   `json:"soft_dropped"`
	DropReason  string `json:"drop_reason,omitempty"`
	ParseOK     bool   `json:"parse_ok"`
	JudgeError  string `json:"judge_error,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// AdFromModel converts a store.Ad into the DTO representation.
func AdFromModel(a store.Ad) AdDTO {
	dto := AdDTO{
		ID:                 a.ID,
		URL:                a.URL,
		RunID:              a.RunID,
		Title:              a.Title,
		PriceRON:           a.PriceRON,
		LocationText:       a.LocationText,
		ImageURL:           a.ImageURL,
		Description:        a.Description,
		DistanceKm:         a.DistanceKm,
		ScrapedAt:          a.ScrapedAt,
		Intent:             a.Intent,
		Score:              a.Score,
		Verdict:            a.Verdict,
		LikelyFix:          a.LikelyFix,
		RepairEstimateLow:  a.RepairEstimateLow,
		RepairEstimateHigh: a.RepairEstimateHigh,
		PartsSuspected:     a.PartsSuspected,
		PriceHint:          a.PriceHint,
		ScamRisk:           a.ScamRisk,
		Reasoning:          a.Reasoning,
		Bonus:              a.Bonus,
		Confidence:         a.Confidence,
		SignalsPositive:    a.SignalsPositive(),
		SignalsNegative:    a.SignalsNegative(),
		QuickTests:         a.QuickTests(),
		ResaleValueLow:     a.ResaleValueLow,
		ResaleValueHigh:    a.ResaleValueHigh,
		ProfitLow:          a.ProfitLow,
		ProfitHigh:         a.ProfitHigh,
		SoftDropped:        a.SoftDropped,
		DropReason:         a.DropReason,
		ParseOK:            a.ParseOK,
		JudgeError:         a.JudgeError,
		Notes:              a.Notes,
	}
	if strings.TrimSpace(a.RepairItemsJSON) != "" {
		var items []eval.RepairItem
		if err := json.Unmarshal([]byte(a.RepairItemsJSON), &items); err == nil {
			dto.RepairItems = items
		}
	}
	return dto
}

// AdsResponse holds ad items and totals.
type AdsResponse struct {
	Items []AdDTO `json:"items"`
	Total int64   `json:"total"`
}

// ProfileDTO is the API representation for a decision profile.
type ProfileDTO struct {
	ID        uint        `json:"id"`
	Name      string      `json:"name"`
	Domain    string      `json:"domain"`
	Notes     string      `json:"notes"`
	Queries   []string    `json:"queries"`
	HardYes   []string    `json:"hard_yes"`
	HardNo    []string    `json:"hard_no"`
	Cfg       profile.Cfg `json:"cfg"`
	CreatedAt time.Time   `json:"created_at"`
}

// ProfileFromModel converts a store.Profile into a DTO.
func ProfileFromModel(p store.Profile) ProfileDTO {
	return ProfileDTO{
		ID:        p.ID,
		Name:      p.Name,
		Domain:    p.Domain,
		Notes:     p.Notes,
		Queries:   p.Queries(),
		HardYes:   p.HardYes(),
		HardNo:    p.HardNo(),
		Cfg:       profile.ParseCfg(p.CfgJSON),
		CreatedAt: p.CreatedAt,
	}
}

// DecisionProfile converts a persisted profile row into the cascade input.
func DecisionProfile(p store.Profile) profile.Profile {
	return profile.Profile{
		ID:      p.ID,
		Name:    p.Name,
		Domain:  profile.ParseDomain(p.Domain),
		Notes:   p.Notes,
		Queries: p.Queries(),
		HardYes: p.HardYes(),
		HardNo:  p.HardNo(),
		Cfg:     profile.ParseCfg(p.CfgJSON),
	}
}

// CreateProfileRequest creates a decision profile.
type CreateProfileRequest struct {
	Name    string          `json:"name"`
	Domain  string          `json:"domain"`
	Notes   string          `json:"notes"`
	Queries []string        `json:"queries"`
	HardYes []string        `json:"hard_yes"`
	HardNo  []string        `json:"hard_no"`
	Cfg     json.RawMessage `json:"cfg"`
}

// WizardQuestionsRequest asks for the interview of a stated goal.
type WizardQuestionsRequest struct {
	Goal  string `json:"goal"`
	Model string `json:"model,omitempty"`
}

// WizardBuildRequest builds a profile draft from interview answers.
type WizardBuildRequest struct {
	Goal    string            `json:"goal"`
	Domain  string            `json:"domain"`
	Answers map[string]string `json:"answers"`
	Model   string            `json:"model,omitempty"`
}
