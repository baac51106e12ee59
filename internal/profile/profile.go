package profile

import (
	"encoding/json"
	"strings"

	"listing-agent/internal/diag"
)

// Domain tags the search intent a profile was built for. The tag selects the
// evaluator prompts and the acceptance predicate applied by the cascade.
type Domain string

const (
	DomainGeneric           Domain = "generic"
	DomainRentalsCabins     Domain = "rentals_cabins"
	DomainElectronicsTvFlip Domain = "electronics_tv_flip"
)

// ParseDomain maps a stored tag to a known domain, defaulting to generic.
func ParseDomain(value string) Domain {
	switch Domain(strings.ToLower(strings.TrimSpace(value))) {
	case DomainRentalsCabins:
		return DomainRentalsCabins
	case DomainElectronicsTvFlip:
		return DomainElectronicsTvFlip
	default:
		return DomainGeneric
	}
}

// Cfg is the structured filter configuration attached to a profile. A zero
// Cfg is fully permissive: no budget, no radius, no phrase lists.
type Cfg struct {
	MaxPriceRON   int      `json:"max_price_ron,omitempty"`
	MaxDistanceKm float64  `json:"max_distance_km,omitempty"`
	MustHave      []string `json:"must_have,omitempty"`
	Avoid         []string `json:"avoid,omitempty"`
	MinProfitRON  int      `json:"min_profit_ron,omitempty"`
	MaxRepairRON  int      `json:"max_repair_ron,omitempty"`
}

// ParseCfg decodes a stored cfg JSON blob. Malformed input resolves to the
// permissive zero Cfg so a bad profile never stops a run.
func ParseCfg(raw string) Cfg {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Cfg{}
	}
	var cfg Cfg
	if err := json.Unmarshal([]byte(trimmed), &cfg); err != nil {
		if diag.Enabled("AGENT_LOG_PARSE") {
			diag.Section("PROFILE CFG PARSE FAILED")
			diag.KV("error", err.Error())
			diag.Block("raw", diag.Trunc(raw, 900))
		}
		return Cfg{}
	}
	return cfg
}

// Profile describes one search intent: what to look for, which phrases decide
// instantly, and the structured filter limits.
type Profile struct {
	ID      uint
	Name    string
	Domain  Domain
	Notes   string
	Queries []string
	HardYes []string
	HardNo  []string
	Cfg     Cfg
}
