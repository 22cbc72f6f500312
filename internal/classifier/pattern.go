package classifier

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/ashureev/agentdesk/internal/domain"
)

// Pattern implements regex-based intent classification with weighted patterns.
type Pattern struct {
	patterns map[string][]*compiledPattern
}

type compiledPattern struct {
	regex  *regexp.Regexp
	weight float64
}

// NewPattern creates a classifier with the built-in storefront patterns.
func NewPattern() *Pattern {
	return &Pattern{patterns: buildPatterns()}
}

var _ Classifier = (*Pattern)(nil)

// Classify scores every intent and returns the matched ones ranked by confidence.
// When nothing matches, search_product is returned with low confidence.
func (c *Pattern) Classify(_ context.Context, text string, _ Context) (Result, error) {
	lower := strings.ToLower(strings.TrimSpace(text))

	scores := make(map[string]float64)
	matchCounts := make(map[string]int)
	for intent, patterns := range c.patterns {
		for _, p := range patterns {
			if p.regex.MatchString(lower) {
				scores[intent] += p.weight
				matchCounts[intent]++
			}
		}
	}

	params := extractParams(lower)
	if len(scores) == 0 {
		return Result{
			Intents: []Intent{{Intent: domain.IntentSearchProduct, Confidence: 0.4}},
			Params:  params,
		}, nil
	}

	var total float64
	for _, s := range scores {
		total += s
	}

	intents := make([]Intent, 0, len(scores))
	for intent, s := range scores {
		conf := s / total
		if len(scores) == 1 {
			conf = min(conf+0.25, 1.0)
		}
		if matchCounts[intent] >= 2 {
			conf = min(conf+0.1, 1.0)
		}
		intents = append(intents, Intent{Intent: intent, Confidence: conf})
	}
	sort.Slice(intents, func(i, j int) bool {
		if intents[i].Confidence == intents[j].Confidence {
			return intents[i].Intent < intents[j].Intent
		}
		return intents[i].Confidence > intents[j].Confidence
	})

	// Close competition lowers trust in the winner.
	if len(intents) > 1 && intents[0].Confidence-intents[1].Confidence < 0.15 {
		intents[0].Confidence *= 0.8
	}

	return Result{Intents: intents, Params: params}, nil
}

func buildPatterns() map[string][]*compiledPattern {
	raw := map[string][]struct {
		expr   string
		weight float64
	}{
		domain.IntentSearchProduct: {
			{`\b(find|search|show|look(ing)? for|browse|list)\b`, 1.0},
			{`\b(cheapest|cheap|affordable|expensive|best|top)\b`, 0.8},
			{`\b(headphones?|earbuds?|speakers?|laptops?|phones?|tvs?|cameras?|watch(es)?)\b`, 0.6},
		},
		domain.IntentRecommendProduct: {
			{`\b(recommend|suggest|similar|alternative|what should i (buy|get))\b`, 1.5},
		},
		domain.IntentTrackOrder: {
			{`\b(track|tracking|where('s| is) my|status of)\b`, 1.5},
			{`\b(shipment|delivery|package|parcel)\b`, 0.7},
		},
		domain.IntentPlaceOrder: {
			{`\b(place|make|submit) (an |my |the )?order\b`, 2.0},
			{`\b(buy|purchase|checkout|order) (it|this|that|now|one)\b`, 1.5},
			{`^(buy|purchase|order)\b`, 1.0},
		},
		domain.IntentAddToCart: {
			{`\b(add|put)\b.*\b(cart|basket|bag)\b`, 2.0},
		},
		domain.IntentHumanAssistance: {
			{`\b(human|person|specialist|representative|real agent|live agent|operator)\b`, 2.0},
			{`\b(talk|speak|chat) (to|with)\b`, 0.8},
		},
	}

	out := make(map[string][]*compiledPattern, len(raw))
	for intent, list := range raw {
		for _, p := range list {
			out[intent] = append(out[intent], &compiledPattern{
				regex:  regexp.MustCompile(p.expr),
				weight: p.weight,
			})
		}
	}
	return out
}

var (
	knownBrands = map[string]string{
		"sony":       "Sony",
		"bose":       "Bose",
		"apple":      "Apple",
		"samsung":    "Samsung",
		"jbl":        "JBL",
		"sennheiser": "Sennheiser",
		"lg":         "LG",
		"beats":      "Beats",
		"anker":      "Anker",
		"dell":       "Dell",
		"lenovo":     "Lenovo",
	}
	categoryPattern = regexp.MustCompile(`\b(headphone|earbud|speaker|laptop|phone|tv|camera|watch|tablet|monitor)(s|es)?\b`)
	orderIDPattern  = regexp.MustCompile(`\border\s*(?:id|number|no\.?)?\s*[#:]?\s*([a-z]*\d[a-z0-9-]*)`)
	wordPattern     = regexp.MustCompile(`[a-z0-9]+`)
	cheapestPattern = regexp.MustCompile(`\b(cheapest|cheap|lowest price|least expensive)\b`)
)

// extractParams pulls brand, category, sort and order id out of lowered text.
func extractParams(lower string) map[string]any {
	params := map[string]any{}
	for _, w := range wordPattern.FindAllString(lower, -1) {
		if brand, ok := knownBrands[w]; ok {
			params["brand"] = brand
			break
		}
	}
	if m := categoryPattern.FindStringSubmatch(lower); m != nil {
		params["category"] = m[1]
	}
	if cheapestPattern.MatchString(lower) {
		params["sort"] = SortPriceAsc
	} else {
		params["sort"] = SortPriceDesc
	}
	if m := orderIDPattern.FindStringSubmatch(lower); m != nil {
		params["order_id"] = m[1]
	}
	return params
}
