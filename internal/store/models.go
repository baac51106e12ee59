package store

import (
	"encoding/json"
	"strings"
	"time"
)

// Ad is the persisted record for one evaluated listing: the raw listing
// fields plus the minimal judgment, the optional verbose judgment (list
// fields stored as JSON text), and the cascade outcome. Keyed by URL so
// re-submitting the same listing overwrites prior judgment fields.
type Ad struct {
	ID  uint   `gorm:"primaryKey"`
	URL string `gorm:"size:512;uniqueIndex"`

	RunID     string `gorm:"size:64;index"`
	ProfileID uint   `gorm:"index"`

	Title        string `gorm:"size:512"`
	PriceRON     *int
	LocationText string `gorm:"size:255"`
	Lat          *float64
	Lon          *float64
	ImageURL     string `gorm:"size:512"`
	Description  string `gorm:"type:text"`
	ScrapedAt    time.Time
	DistanceKm   *float64

	Intent             string  `gorm:"size:32"`
	Score              float64 `gorm:"index"`
	Verdict            string  `gorm:"size:32"`
	LikelyFix          string  `gorm:"size:64"`
	RepairEstimateLow  int
	RepairEstimateHigh int
	PartsSuspected     string `gorm:"size:255"`
	PriceHint          string `gorm:"size:64"`
	ScamRisk           string `gorm:"size:32"`
	Reasoning          string `gorm:"type:text"`
	Bonus              float64

	Confidence          *float64
	SignalsPositiveJSON string `gorm:"type:text"`
	SignalsNegativeJSON string `gorm:"type:text"`
	QuickTestsJSON      string `gorm:"type:text"`
	RepairItemsJSON     string `gorm:"type:text"`
	ResaleValueLow      *int
	ResaleValueHigh     *int
	ProfitLow           *int
	ProfitHigh          *int

	SoftDropped bool   `gorm:"index"`
	DropReason  string `gorm:"size:64"`
	ParseOK     bool
	JudgeError  string `gorm:"size:512"`
	Notes       string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SetSignalsPositive stores the positive signal list as JSON.
func (a *Ad) SetSignalsPositive(values []string) { a.SignalsPositiveJSON = encodeList(values) }

// SignalsPositive returns the decoded positive signal list.
func (a *Ad) SignalsPositive() []string { return decodeList(a.SignalsPositiveJSON) }

// SetSignalsNegative stores the negative signal list as JSON.
func (a *Ad) SetSignalsNegative(values []string) { a.SignalsNegativeJSON = encodeList(values) }

// SignalsNegative returns the decoded negative signal list.
func (a *Ad) SignalsNegative() []string { return decodeList(a.SignalsNegativeJSON) }

// SetQuickTests stores the quick-test plan as JSON.
func (a *Ad) SetQuickTests(values []string) { a.QuickTestsJSON = encodeList(values) }

// QuickTests returns the decoded quick-test plan.
func (a *Ad) QuickTests() []string { return decodeList(a.QuickTestsJSON) }

// Profile is a persisted decision profile: keyword lists and the structured
// cfg limits, stored as JSON text columns.
type Profile struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"size:128;index"`
	Domain      string `gorm:"size:32;index"`
	Notes       string `gorm:"type:text"`
	QueriesJSON string `gorm:"type:text"`
	HardYesJSON string `gorm:"type:text"`
	HardNoJSON  string `gorm:"type:text"`
	CfgJSON     string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SetQueries stores the search query list as JSON.
func (p *Profile) SetQueries(values []string) { p.QueriesJSON = encodeList(values) }

// Queries returns the decoded search query list.
func (p *Profile) Queries() []string { return decodeList(p.QueriesJSON) }

// SetHardYes stores the hard-yes phrase list as JSON.
func (p *Profile) SetHardYes(values []string) { p.HardYesJSON = encodeList(values) }

// HardYes returns the decoded hard-yes phrase list.
func (p *Profile) HardYes() []string { return decodeList(p.HardYesJSON) }

// SetHardNo stores the hard-no phrase list as JSON.
func (p *Profile) SetHardNo(values []string) { p.HardNoJSON = encodeList(values) }

// HardNo returns the decoded hard-no phrase list.
func (p *Profile) HardNo() []string { return decodeList(p.HardNoJSON) }

// Run persists evaluation run metadata so status survives restarts.
type Run struct {
	RunID       string `gorm:"primaryKey;size:64"`
	ProfileID   uint   `gorm:"index"`
	Status      string `gorm:"size:32;index"`
	Message     string `gorm:"size:255"`
	Processed   int
	Kept        int
	SoftDropped int
	HardDropped int
	Total       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func encodeList(values []string) string {
	if values == nil {
		return "[]"
	}
	payload, _ := json.Marshal(values)
	return string(payload)
}

func decodeList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
