package eval

import (
	"context"
	"errors"
	"sync"
	"testing"

	"listing-agent/internal/llm"
	"listing-agent/internal/profile"
)

type stubGenerator struct {
	mu    sync.Mutex
	out   string
	err   error
	calls int
}

func (s *stubGenerator) Generate(ctx context.Context, model, prompt string, stream bool, onEvent llm.EventFunc) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.out, s.err
}

func TestParseIntent(t *testing.T) {
	testCases := []struct {
		name   string
		out    string
		expect Intent
	}{
		{"clean label", "SELL_ITEM", IntentSellItem},
		{"lowercase", "rental", IntentRental},
		{"padded", "  OFFER_SERVICE \n", IntentOfferService},
		{"quoted", `"WANTED"`, IntentWanted},
		{"trailing period", "IRRELEVANT.", IntentIrrelevant},
		{"chatty answer", "Cred ca este SELL_ITEM", IntentIrrelevant},
		{"empty", "", IntentIrrelevant},
		{"unknown label", "AUCTION", IntentIrrelevant},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := parseIntent(tc.out); got != tc.expect {
				t.Fatalf("expected %s got %s", tc.expect, got)
			}
		})
	}
}

func TestClassifyIntentFailsSafe(t *testing.T) {
	gen := &stubGenerator{err: errors.New("connection refused")}
	got := ClassifyIntent(context.Background(), gen, "m", Listing{Title: "Televizor"})
	if got != IntentIrrelevant {
		t.Fatalf("transport failure must classify IRRELEVANT, got %s", got)
	}
}

func TestMinimalEvaluateParsesChattyOutput(t *testing.T) {
	gen := &stubGenerator{out: "Desigur, iată evaluarea:\n" +
		`{"score": 7.2, "verdict": "WORTH_IT", "likely_fix": "psu", "repair_estimate_low": 100, "repair_estimate_high": 200}`}

	judgment, err := MinimalEvaluate(context.Background(), gen, "m", Listing{Title: "TV LG"}, profile.DomainElectronicsTvFlip, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !judgment.Parsed {
		t.Fatalf("expected parsed judgment")
	}
	if judgment.Score != 7.2 || judgment.Verdict != VerdictWorthIt {
		t.Fatalf("unexpected judgment %+v", judgment)
	}
	if judgment.LikelyFix != "psu" {
		t.Fatalf("expected likely_fix psu got %q", judgment.LikelyFix)
	}
}

func TestMinimalEvaluateFallbackOnGarbage(t *testing.T) {
	gen := &stubGenerator{out: "nu pot genera json acum"}

	judgment, err := MinimalEvaluate(context.Background(), gen, "m", Listing{Title: "TV"}, profile.DomainElectronicsTvFlip, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if judgment.Parsed {
		t.Fatalf("garbage output must not mark Parsed")
	}
	if judgment.Verdict != VerdictUnclear || judgment.Score != 5.0 {
		t.Fatalf("expected repair fallback, got %+v", judgment)
	}
	if judgment.RepairEstimateLow != 150 || judgment.RepairEstimateHigh != 450 {
		t.Fatalf("expected fallback estimate band, got %+v", judgment)
	}
}

func TestMinimalEvaluateRentalFallback(t *testing.T) {
	gen := &stubGenerator{out: "{{{"}

	judgment, err := MinimalEvaluate(context.Background(), gen, "m", Listing{Title: "Cabana"}, profile.DomainRentalsCabins, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if judgment.Verdict != VerdictFair || judgment.ScamRisk != "medium" {
		t.Fatalf("expected rental fallback, got %+v", judgment)
	}
}

func TestMinimalEvaluateTransportError(t *testing.T) {
	gen := &stubGenerator{err: &llm.TransportError{Op: "generate", Err: errors.New("timeout")}}

	judgment, err := MinimalEvaluate(context.Background(), gen, "m", Listing{Title: "TV"}, profile.DomainGeneric, nil)
	if err == nil {
		t.Fatalf("expected transport error surfaced")
	}
	if judgment.Verdict != VerdictUnclear {
		t.Fatalf("expected usable fallback alongside the error, got %+v", judgment)
	}
}

func TestVerboseEvaluateFallback(t *testing.T) {
	gen := &stubGenerator{out: "niciun json aici"}

	judgment, err := VerboseEvaluate(context.Background(), gen, "judge", Listing{Title: "TV"}, MinimalJudgment{Score: 6}, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if judgment.Confidence != 0 {
		t.Fatalf("expected zero confidence fallback, got %+v", judgment)
	}
	if len(judgment.SignalsNegative) != 1 || judgment.SignalsNegative[0] != "output neparsabil" {
		t.Fatalf("expected fallback negative signal, got %+v", judgment.SignalsNegative)
	}
}

func TestWizardQuestionsFallback(t *testing.T) {
	testCases := []struct {
		name string
		gen  *stubGenerator
	}{
		{"transport failure", &stubGenerator{err: errors.New("refused")}},
		{"garbage output", &stubGenerator{out: "nu stiu"}},
		{"too few questions", &stubGenerator{out: `{"questions":[{"id":"q1","q":"una?"}]}`}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			questions := WizardQuestions(context.Background(), tc.gen, "m", "tv flip")
			if len(questions) != len(DefaultQuestions) {
				t.Fatalf("expected default question set, got %d questions", len(questions))
			}
		})
	}
}

func TestWizardQuestionsNormalizes(t *testing.T) {
	gen := &stubGenerator{out: `{"questions":[
		{"q":"Ce buget ai?"},
		{"id":"custom","q":"Ce distanta?","type":"number"},
		{"id":"q3","q":"   "},
		{"id":"q4","q":"Ce defecte accepti?","type":"choice","choices":["ecran","sursa"]}
	]}`}

	questions := WizardQuestions(context.Background(), gen, "m", "tv flip")
	if len(questions) != 3 {
		t.Fatalf("expected 3 usable questions got %d", len(questions))
	}
	if questions[0].ID != "q1" || questions[0].Type != "text" {
		t.Fatalf("expected defaulted id/type, got %+v", questions[0])
	}
	if questions[1].ID != "custom" || questions[1].Type != "number" {
		t.Fatalf("expected preserved id/type, got %+v", questions[1])
	}
	if len(questions[2].Choices) != 2 {
		t.Fatalf("expected choices preserved, got %+v", questions[2])
	}
}

func TestWizardBuildProfile(t *testing.T) {
	gen := &stubGenerator{out: "```json\n" + `{
		"name": "TV flip Cluj",
		"notes": "defecte usoare",
		"queries": ["tv defect", " ", "televizor nu porneste"],
		"hard_yes": ["backlight ok"],
		"hard_no": ["ecran spart"],
		"cfg": {"max_price_ron": 400, "max_distance_km": 30}
	}` + "\n```"}

	built := WizardBuildProfile(context.Background(), gen, "m", "vreau tv-uri defecte", map[string]string{"q1": "TV"})
	if built.Name != "TV flip Cluj" {
		t.Fatalf("expected name, got %q", built.Name)
	}
	if len(built.Queries) != 2 {
		t.Fatalf("expected blank query removed, got %v", built.Queries)
	}
	if built.Cfg.MaxPriceRON != 400 || built.Cfg.MaxDistanceKm != 30 {
		t.Fatalf("expected cfg parsed, got %+v", built.Cfg)
	}
}

func TestWizardBuildProfileFallback(t *testing.T) {
	gen := &stubGenerator{out: "imi pare rau"}

	built := WizardBuildProfile(context.Background(), gen, "m", "vreau cabane ieftine", nil)
	if built.Name != "Profile (auto)" {
		t.Fatalf("expected fallback name, got %q", built.Name)
	}
	if built.Notes != "vreau cabane ieftine" {
		t.Fatalf("expected goal as notes, got %q", built.Notes)
	}
	if len(built.Queries) != 1 || built.Queries[0] != "vreau cabane ieftine" {
		t.Fatalf("expected goal as query, got %v", built.Queries)
	}
}
