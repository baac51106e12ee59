package eval

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"listing-agent/internal/llm"
)

const intentPromptTemplate = `Clasifică anunțul de mai jos într-o singură categorie.
Răspunde cu EXACT una dintre etichetele (nimic altceva, fără explicații):
OFFER_SERVICE - cineva oferă un serviciu (reparații, transport, curățenie)
SELL_ITEM - cineva vinde un obiect
RENTAL - cineva oferă o cazare/chirie
WANTED - cineva caută să cumpere
IRRELEVANT - orice altceva

TITLE: %s
DESCRIPTION: %s
`

// ClassifyIntent asks the model for a single label out of the closed set.
// Any output that is not exactly a known label, and any transport failure,
// maps to IRRELEVANT: the gate fails safe, never open.
func ClassifyIntent(ctx context.Context, g llm.Generator, model string, l Listing) Intent {
	prompt := fmt.Sprintf(intentPromptTemplate, l.Title, l.Description)
	out, err := g.Generate(ctx, model, prompt, false, nil)
	if err != nil {
		logrus.WithError(err).Warn("intent classification unavailable")
		return IntentIrrelevant
	}
	return parseIntent(out)
}

func parseIntent(out string) Intent {
	label := strings.ToUpper(strings.TrimSpace(out))
	label = strings.Trim(label, "\"'`.")
	switch Intent(label) {
	case IntentOfferService, IntentSellItem, IntentRental, IntentWanted, IntentIrrelevant:
		return Intent(label)
	default:
		return IntentIrrelevant
	}
}
