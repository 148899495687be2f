package verify

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/xxxsen/dsforge/internal/model"
)

var quotePattern = regexp.MustCompile(`(?s)QUOTE\{(.*?)\}`)

// ExtractQuotes returns every QUOTE{...} span of a text in order. Blank spans are dropped.
func ExtractQuotes(text string) []string {
	matches := quotePattern.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		span := strings.TrimSpace(m[1])
		if span == "" {
			continue
		}
		out = append(out, span)
	}
	return out
}

// SameQuotes reports whether two texts carry the same quote spans in the same order.
func SameQuotes(a, b string) bool {
	qa, qb := ExtractQuotes(a), ExtractQuotes(b)
	if len(qa) != len(qb) {
		return false
	}
	for i := range qa {
		if qa[i] != qb[i] {
			return false
		}
	}
	return true
}

// Normalize folds compatibility forms, lower-cases and removes all whitespace
// and punctuation. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	s = cases.Lower(language.Und).String(norm.NFKC.String(s))
	out := stripSpacePunct(norm.NFKC.String(s))
	// stripping can leave a combining mark next to a letter it composes with
	for i := 0; i < maxNormalizePasses; i++ {
		next := stripSpacePunct(norm.NFKC.String(out))
		if next == out {
			break
		}
		out = next
	}
	return out
}

const maxNormalizePasses = 4

func stripSpacePunct(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

type Result struct {
	Total   int
	Matched int
	// Score is nil when the text made no quotes.
	Score  *float64
	Status model.VerificationStatus
}

// Evaluate matches the quotes of cot against source.
func Evaluate(cot, source string) Result {
	quotes := ExtractQuotes(cot)
	if len(quotes) == 0 {
		return Result{Status: model.VerificationUnverified}
	}
	normalized := Normalize(source)
	matched := 0
	for _, q := range quotes {
		nq := Normalize(q)
		if nq != "" && strings.Contains(normalized, nq) {
			matched++
		}
	}
	score := float64(matched) / float64(len(quotes))
	return Result{
		Total:   len(quotes),
		Matched: matched,
		Score:   &score,
		Status:  classify(matched, len(quotes)),
	}
}

// classify compares in integers so 4 of 5 lands exactly on the 0.8 boundary.
func classify(matched, total int) model.VerificationStatus {
	switch {
	case matched == total:
		return model.VerificationVerified
	case matched*10 >= total*8:
		return model.VerificationPartiallyVerified
	default:
		return model.VerificationSuspicious
	}
}
