package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"listing-agent/internal/jsonx"
	"listing-agent/internal/llm"
	"listing-agent/internal/profile"
)

// Question is one profile-wizard interview question.
type Question struct {
	ID      string   `json:"id"`
	Q       string   `json:"q"`
	Type    string   `json:"type"`
	Choices []string `json:"choices,omitempty"`
}

// DefaultQuestions is the hard fallback interview when the model cannot
// produce a usable question set.
var DefaultQuestions = []Question{
	{ID: "q1", Q: "Ce tip de produse vrei (ex: TV, telefoane, laptopuri, cabane)?", Type: "text"},
	{ID: "q2", Q: "Care e bugetul maxim (RON) pe anunț?", Type: "text"},
	{ID: "q3", Q: "Care e distanța maximă (km) sau 'oricât'?", Type: "text"},
	{ID: "q4", Q: "Cât de greu accepți să fie repararea (ușor / mediu / greu)?", Type: "text"},
	{ID: "q5", Q: "Vrei doar produse 'funcționale parțial' sau accepți și moarte complet?", Type: "text"},
	{ID: "q6", Q: "Ce defecte sunt 'hard NO' (ex: ecran spart, lipsă piese, apă, ars)?", Type: "text"},
	{ID: "q7", Q: "Ce semnale sunt 'hard YES' (ex: backlight ok, sunet ok, doar LED strip)?", Type: "text"},
	{ID: "q8", Q: "Ce profit minim vrei estimat (RON) sau procent?", Type: "text"},
}

const wizardQuestionsPrompt = `Ești un "profile builder" pentru un agent care caută anunțuri la mâna a doua.

OBIECTIV (goal): %s

Returnează STRICT un JSON valid (fără text în plus), cu schema:

{
  "questions": [
    {"id":"q1","q":"...","type":"text|number|choice","choices":["..."]},
    ...
  ]
}

Reguli:
- Pune între 6 și 10 întrebări.
- Întrebările trebuie să clarifice un "rule set" pentru filtrare + scoring (buget, distanță, defecte acceptate, profit, dificultate reparație etc).
- Fără explicații. Doar JSON.`

const wizardProfilePrompt = `Construiește un profil pentru agentul de anunțuri.

GOAL: %s

ANSWERS (dicționar id->răspuns):
%s

Returnează STRICT un JSON valid cu schema:

{
  "name": "...",
  "notes": "...",
  "queries": ["...","..."],
  "hard_yes": ["..."],
  "hard_no": ["..."],
  "cfg": {"max_price_ron": 0, "max_distance_km": 0, "must_have": [], "avoid": []}
}

Reguli:
- queries: 2-8 expresii de căutare adaptate goal-ului.
- hard_yes/hard_no: keywords utile pt detectare rapidă în titlu/descriere.
- cfg: limitele numerice extrase din răspunsuri; lasă 0 dacă nu se știe.
- Fără explicații, doar JSON.`

// WizardQuestions asks the model to generate the interview for a goal,
// falling back to the default question set on any failure.
func WizardQuestions(ctx context.Context, g llm.Generator, model, goal string) []Question {
	prompt := fmt.Sprintf(wizardQuestionsPrompt, goal)
	out, err := g.Generate(ctx, model, prompt, false, nil)
	if err != nil {
		logrus.WithError(err).Warn("wizard questions unavailable")
		return DefaultQuestions
	}

	var decoded struct {
		Questions []Question `json:"questions"`
	}
	if !jsonx.Decode(out, &decoded) || len(decoded.Questions) < 3 {
		return DefaultQuestions
	}

	questions := make([]Question, 0, len(decoded.Questions))
	for i, q := range decoded.Questions {
		q.Q = strings.TrimSpace(q.Q)
		if q.Q == "" {
			continue
		}
		if strings.TrimSpace(q.ID) == "" {
			q.ID = fmt.Sprintf("q%d", i+1)
		}
		if strings.TrimSpace(q.Type) == "" {
			q.Type = "text"
		}
		questions = append(questions, q)
	}
	if len(questions) == 0 {
		return DefaultQuestions
	}
	return questions
}

// WizardBuildProfile turns the interview answers into a decision profile
// draft. The caller assigns the domain tag and persists the result.
func WizardBuildProfile(ctx context.Context, g llm.Generator, model, goal string, answers map[string]string) profile.Profile {
	answersJSON, err := json.MarshalIndent(answers, "", "  ")
	if err != nil {
		answersJSON = []byte("{}")
	}
	prompt := fmt.Sprintf(wizardProfilePrompt, goal, string(answersJSON))

	fallback := profile.Profile{
		Name:    "Profile (auto)",
		Notes:   goal,
		Queries: []string{goal},
	}

	out, err := g.Generate(ctx, model, prompt, false, nil)
	if err != nil {
		logrus.WithError(err).Warn("wizard profile unavailable")
		return fallback
	}

	var decoded struct {
		Name    string          `json:"name"`
		Notes   string          `json:"notes"`
		Queries []string        `json:"queries"`
		HardYes []string        `json:"hard_yes"`
		HardNo  []string        `json:"hard_no"`
		Cfg     json.RawMessage `json:"cfg"`
	}
	if !jsonx.Decode(out, &decoded) {
		return fallback
	}

	built := profile.Profile{
		Name:    strings.TrimSpace(decoded.Name),
		Notes:   strings.TrimSpace(decoded.Notes),
		Queries: cleanList(decoded.Queries),
		HardYes: cleanList(decoded.HardYes),
		HardNo:  cleanList(decoded.HardNo),
		Cfg:     profile.ParseCfg(string(decoded.Cfg)),
	}
	if built.Name == "" {
		built.Name = fallback.Name
	}
	if built.Notes == "" {
		built.Notes = goal
	}
	if len(built.Queries) == 0 {
		built.Queries = fallback.Queries
	}
	return built
}

func cleanList(values []string) []string {
	var out []string
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
