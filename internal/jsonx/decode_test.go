package jsonx

import "testing"

type judgment struct {
	Score   float64 `json:"score"`
	Verdict string  `json:"verdict"`
}

func TestDecodeRecoversObjectFromChattyOutput(t *testing.T) {
	testCases := []struct {
		name          string
		text          string
		expectScore   float64
		expectVerdict string
	}{
		{"bare json", `{"score": 7.5, "verdict": "WORTH_IT"}`, 7.5, "WORTH_IT"},
		{"fenced json", "```json\n{\"score\": 7.5, \"verdict\": \"WORTH_IT\"}\n```", 7.5, "WORTH_IT"},
		{"fence without language", "```\n{\"score\": 3, \"verdict\": \"UNCLEAR\"}\n```", 3, "UNCLEAR"},
		{"leading reasoning", "Sigur, iata analiza:\n{\"score\": 6, \"verdict\": \"FAIR\"}", 6, "FAIR"},
		{"trailing commentary", `{"score": 2, "verdict": "SCAM"} sper ca ajuta!`, 2, "SCAM"},
		{"braces inside strings", `noise {"score": 1, "verdict": "a{b}c"} trailing }`, 1, "a{b}c"},
		{"nested object", `text {"score": 4, "verdict": "OK", "extra": {"k": "v"}} more`, 4, "OK"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out judgment
			if !Decode(tc.text, &out) {
				t.Fatalf("expected decode to succeed for %q", tc.text)
			}
			if out.Score != tc.expectScore {
				t.Fatalf("expected score %v got %v", tc.expectScore, out.Score)
			}
			if out.Verdict != tc.expectVerdict {
				t.Fatalf("expected verdict %q got %q", tc.expectVerdict, out.Verdict)
			}
		})
	}
}

func TestDecodeLeavesFallbackUntouched(t *testing.T) {
	testCases := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"plain prose", "nu pot raspunde la aceasta intrebare"},
		{"unbalanced", `{"score": 5, "verdict": "FAIR"`},
		{"only close brace", "} } }"},
		{"garbage bytes", "\x00\xff{{{"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out := judgment{Score: 5, Verdict: "UNCLEAR"}
			if Decode(tc.text, &out) {
				t.Fatalf("expected decode to fail for %q", tc.text)
			}
			if out.Score != 5 || out.Verdict != "UNCLEAR" {
				t.Fatalf("fallback mutated: %+v", out)
			}
		})
	}
}

func TestExtractShortestClosedCandidate(t *testing.T) {
	text := `prefix {"a": 1} suffix {"b": 2}`
	candidate, ok := Extract(text)
	if !ok {
		t.Fatalf("expected extraction to succeed")
	}
	if candidate != `{"a": 1}` {
		t.Fatalf("expected first closed object, got %q", candidate)
	}
}

func TestExtractEscapedQuotes(t *testing.T) {
	text := `{"msg": "he said \"}\" loudly"}`
	candidate, ok := Extract(text)
	if !ok {
		t.Fatalf("expected extraction to succeed")
	}
	if candidate != text {
		t.Fatalf("expected full object, got %q", candidate)
	}
}
