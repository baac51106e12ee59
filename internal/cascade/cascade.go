package cascade

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"listing-agent/internal/diag"
	"listing-agent/internal/eval"
	"listing-agent/internal/events"
	"listing-agent/internal/llm"
	"listing-agent/internal/profile"
)

// Acceptance thresholds of the final verdict predicate, per domain family.
const (
	DefaultVerboseThreshold = 5.0

	repairKeepScore = 7.0
	rentalKeepScore = 6.5

	judgeErrorLimit = 500
)

// Result is the terminal outcome for one listing. Keep==false always carries
// a DropReason; SoftDrop distinguishes the persisted drops of the final
// predicate from the hard drops of the intent gate and the config filters.
type Result struct {
	Keep       bool
	SoftDrop   bool
	DropReason string
	Intent     eval.Intent
	Bonus      float64
	Minimal    eval.MinimalJudgment
	Verbose    *eval.VerboseJudgment
}

// HardDrop reports whether the listing was excluded before any judgment was
// produced. Hard-dropped listings are never persisted.
func (r Result) HardDrop() bool {
	return !r.Keep && !r.SoftDrop
}

// Runner evaluates listings against a profile through the ordered cascade:
// intent gate, keyword bonus, config filters, minimal judgment, optional
// verbose escalation, final verdict.
type Runner struct {
	gen              llm.Generator
	model            string
	judgeModel       string
	verboseThreshold float64
	registry         *events.Registry
}

// NewRunner wires a cascade runner. judgeModel may be empty to disable the
// verbose pass; registry may be nil when no observer cares about progress.
func NewRunner(gen llm.Generator, model, judgeModel string, verboseThreshold float64, registry *events.Registry) *Runner {
	if verboseThreshold <= 0 {
		verboseThreshold = DefaultVerboseThreshold
	}
	return &Runner{
		gen:              gen,
		model:            model,
		judgeModel:       judgeModel,
		verboseThreshold: verboseThreshold,
		registry:         registry,
	}
}

// Evaluate runs the full cascade for one listing, strictly sequential and
// short-circuiting. The returned error is non-nil only when the minimal pass
// failed at the transport level after all retries; the Result is still
// usable (fallback judgment plus recorded judge error) and the run is
// expected to continue.
func (r *Runner) Evaluate(ctx context.Context, runID string, l eval.Listing, p profile.Profile) (Result, error) {
	text := l.Title + "\n" + l.Description
	onEvent := r.llmEventFunc(runID, l.URL)

	if diag.Enabled("AGENT_LOG_DESC") {
		diag.Section("LISTING")
		diag.KV("url", l.URL)
		diag.Block("description", diag.Trunc(l.Description, 2500))
	}

	r.section(runID, l.URL, "INTENT")
	intent := eval.ClassifyIntent(ctx, r.gen, r.model, l)
	r.kv(runID, l.URL, "intent", string(intent))

	res := Result{Intent: intent}
	if reason, ok := intentGate(p.Domain, intent); !ok {
		res.DropReason = reason
		r.kv(runID, l.URL, "drop", reason)
		return res, nil
	}

	kb := keywordBonus(text, p.HardYes, p.HardNo)
	r.section(runID, l.URL, "KEYWORD SCORE")
	r.kv(runID, l.URL, "keyword_bonus", kb)

	fo := applyCfgFilters(text, l.PriceRON, l.DistanceKm, p.Cfg)
	if fo.Drop {
		res.DropReason = fo.Reason
		r.kv(runID, l.URL, "drop", fo.Reason)
		return res, nil
	}
	res.Bonus = kb + fo.Bonus
	r.kv(runID, l.URL, "cfg_bonus", fo.Bonus)

	r.section(runID, l.URL, "MINIMAL ANALYSIS")
	minimal, merr := eval.MinimalEvaluate(ctx, r.gen, r.model, l, p.Domain, onEvent)
	if merr != nil {
		minimal.JudgeError = truncError(merr)
		logrus.WithError(merr).WithField("url", l.URL).Warn("minimal evaluation transport failure")
	}
	minimal.Score = clampScore(minimal.Score + res.Bonus)
	r.kv(runID, l.URL, "score", minimal.Score)
	r.kv(runID, l.URL, "verdict", minimal.Verdict)

	if merr == nil && r.judgeModel != "" && minimal.Score >= r.verboseThreshold {
		r.section(runID, l.URL, "VERBOSE ANALYSIS")
		verbose, verr := eval.VerboseEvaluate(ctx, r.gen, r.judgeModel, l, minimal, onEvent)
		if verr != nil {
			// the judge being unstable never stops the run
			minimal.JudgeError = truncError(verr)
			r.kv(runID, l.URL, "judge_error", minimal.JudgeError)
		} else {
			res.Verbose = &verbose
		}
	}
	res.Minimal = minimal

	keep, why := acceptance(p.Domain, minimal.Score, minimal.Verdict)
	if keep {
		res.Keep = true
		r.kv(runID, l.URL, "keep", true)
	} else {
		res.SoftDrop = true
		res.DropReason = why
		r.kv(runID, l.URL, "soft_drop", why)
	}
	return res, merr
}

// intentGate applies the domain's hard intent exclusion. The rental family
// only accepts rental listings; the repair family refuses service ads and
// anything the classifier could not place.
func intentGate(domain profile.Domain, intent eval.Intent) (string, bool) {
	switch domain {
	case profile.DomainRentalsCabins:
		if intent != eval.IntentRental {
			return ReasonIntentMismatch, false
		}
	default:
		if intent == eval.IntentOfferService {
			return ReasonServiceAdExcluded, false
		}
		if intent == eval.IntentWanted || intent == eval.IntentIrrelevant {
			return ReasonIntentMismatch, false
		}
	}
	return "", true
}

func acceptance(domain profile.Domain, score float64, verdict string) (bool, string) {
	switch domain {
	case profile.DomainRentalsCabins:
		if score < rentalKeepScore {
			return false, reasonScoreBelowThreshold
		}
		if verdict == eval.VerdictScam {
			return false, reasonVerdictRejected
		}
	default:
		if score < repairKeepScore {
			return false, reasonScoreBelowThreshold
		}
		if verdict != eval.VerdictWorthIt && verdict != eval.VerdictWorthItForParts {
			return false, reasonVerdictRejected
		}
	}
	return true, ""
}

// Listings within a run may be evaluated concurrently over one shared event
// channel, so every published event names the listing it belongs to.
func (r *Runner) llmEventFunc(runID, url string) llm.EventFunc {
	if r.registry == nil || runID == "" {
		return nil
	}
	return func(ev llm.Event) {
		r.registry.Publish(runID, events.TypeLLM, map[string]any{
			"url":  url,
			"kind": string(ev.Kind),
			"text": ev.Text,
		})
	}
}

func (r *Runner) section(runID, url, title string) {
	if r.registry == nil {
		return
	}
	r.registry.Publish(runID, events.TypeSection, map[string]any{"url": url, "title": title})
}

func (r *Runner) kv(runID, url, key string, value any) {
	if r.registry == nil {
		return
	}
	r.registry.Publish(runID, events.TypeKV, map[string]any{"url": url, "key": key, "value": value})
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

func truncError(err error) string {
	msg := fmt.Sprintf("%v", err)
	if len(msg) > judgeErrorLimit {
		msg = msg[:judgeErrorLimit]
	}
	return msg
}
