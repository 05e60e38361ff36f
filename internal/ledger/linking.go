package ledger

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Resolution decides, per shared field, which side of a link wins.
type Resolution map[SharedField]string

// Resolution sides.
const (
	ResolveSource = "source"
	ResolveTarget = "target"
)

// Suggestion is one ranked link candidate. Grouped marks candidates that
// already share the subject entry's group.
type Suggestion struct {
	Entry   Entry `json:"entry"`
	Score   int   `json:"score"`
	Grouped bool  `json:"grouped"`
}

const maxSuggestions = 20

// Scoring weights. Description similarity dominates, overlapping external
// references come second, date proximity breaks near-ties.
const (
	scoreDescriptionExact  = 100
	scoreDescriptionSub    = 60
	scoreDescriptionToken  = 15
	scoreDescriptionTokMax = 45
	scoreReferenceOverlap  = 40
	scoreReferenceMax      = 80
	scoreDateWindowDays    = 30
)

var foldCaser = cases.Fold()

func foldText(s string) string {
	return foldCaser.String(strings.TrimSpace(s))
}

func suggestionScore(base, cand *Entry) int {
	score := descriptionScore(base.Description, cand.Description)
	score += referenceScore(base.References, cand.References)
	score += dateProximityScore(base.Date, cand.Date)
	return score
}

func descriptionScore(a, b string) int {
	fa, fb := foldText(a), foldText(b)
	if fa == "" || fb == "" {
		return 0
	}
	if fa == fb {
		return scoreDescriptionExact
	}
	if len(fa) >= 3 && len(fb) >= 3 && (strings.Contains(fa, fb) || strings.Contains(fb, fa)) {
		return scoreDescriptionSub
	}
	shared := 0
	tokens := make(map[string]bool)
	for _, t := range strings.Fields(fa) {
		tokens[t] = true
	}
	for _, t := range strings.Fields(fb) {
		if tokens[t] {
			shared++
		}
	}
	score := shared * scoreDescriptionToken
	if score > scoreDescriptionTokMax {
		score = scoreDescriptionTokMax
	}
	return score
}

func referenceScore(a, b []Reference) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	values := make(map[string]bool, len(a))
	for _, r := range a {
		if v := foldText(r.Value); v != "" {
			values[v] = true
		}
	}
	score := 0
	for _, r := range b {
		if values[foldText(r.Value)] {
			score += scoreReferenceOverlap
		}
	}
	if score > scoreReferenceMax {
		score = scoreReferenceMax
	}
	return score
}

func dateProximityScore(a, b string) int {
	ta, errA := time.Parse(DateLayout, a)
	tb, errB := time.Parse(DateLayout, b)
	if errA != nil || errB != nil {
		return 0
	}
	days := int(ta.Sub(tb).Hours() / 24)
	if days < 0 {
		days = -days
	}
	if days > scoreDateWindowDays {
		return 0
	}
	return scoreDateWindowDays - days
}
