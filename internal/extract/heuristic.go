package extract

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/guptaanant682/memorybank-backend/internal/domain"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

// HeuristicExtractor is the no-dependency fallback used when no extraction
// service is configured. It finds acronyms and capitalized runs as entities,
// leading noun phrases and frequent terms as topics. Deterministic for
// identical input.
type HeuristicExtractor struct {
	log *logger.Logger
}

func NewHeuristicExtractor(log *logger.Logger) *HeuristicExtractor {
	return &HeuristicExtractor{log: log.With("service", "HeuristicExtractor")}
}

var verbishStopwords = map[string]bool{
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"has": true, "have": true, "had": true, "does": true, "do": true, "did": true,
	"can": true, "could": true, "will": true, "would": true, "may": true, "might": true,
	"uses": true, "used": true, "using": true, "means": true, "include": true, "includes": true,
}

var commonStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "in": true, "on": true, "and": true,
	"or": true, "to": true, "for": true, "with": true, "that": true, "this": true,
	"these": true, "those": true, "it": true, "its": true, "as": true, "by": true,
	"at": true, "from": true, "but": true, "not": true, "what": true, "which": true,
}

func (e *HeuristicExtractor) Extract(ctx context.Context, text string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, nil
	}

	type candidate struct {
		label      string
		kind       string
		confidence float64
		first      int // order of first appearance, for determinism
	}
	candidates := map[string]*candidate{}
	order := 0
	add := func(label, kind string, confidence float64) {
		label = strings.TrimSpace(label)
		if len(label) < 2 {
			return
		}
		key := strings.ToLower(label)
		if commonStopwords[key] || verbishStopwords[key] {
			return
		}
		if existing, ok := candidates[key]; ok {
			if confidence > existing.confidence {
				existing.confidence = confidence
			}
			return
		}
		candidates[key] = &candidate{label: label, kind: kind, confidence: confidence, first: order}
		order++
	}

	sentences := splitRoughSentences(text)
	for _, sentence := range sentences {
		words := strings.Fields(sentence)
		cleaned := make([]string, len(words))
		for i, w := range words {
			cleaned[i] = strings.TrimFunc(w, func(r rune) bool {
				return !unicode.IsLetter(r) && !unicode.IsDigit(r)
			})
		}

		// Acronyms anywhere in the sentence.
		for _, w := range cleaned {
			if len(w) >= 2 && isAllUpper(w) {
				add(w, domain.ConceptKindEntity, 0.9)
			}
		}

		// Runs of capitalized words past the sentence start.
		runStart := -1
		for i := 1; i <= len(cleaned); i++ {
			capitalized := i < len(cleaned) && isCapitalized(cleaned[i]) && !isAllUpper(cleaned[i])
			if capitalized && runStart < 0 {
				runStart = i
			}
			if !capitalized && runStart >= 0 {
				run := strings.Join(cleaned[runStart:i], " ")
				conf := 0.7
				if i-runStart >= 2 {
					conf = 0.8
				}
				add(run, domain.ConceptKindEntity, conf)
				runStart = -1
			}
		}

		// Leading noun phrase: words before the first verb-like stopword.
		cut := -1
		for i, w := range cleaned {
			if verbishStopwords[strings.ToLower(w)] {
				cut = i
				break
			}
		}
		if cut >= 1 && cut <= 4 {
			phrase := strings.ToLower(strings.Join(cleaned[:cut], " "))
			phrase = strings.TrimSpace(phrase)
			if phrase != "" && !commonStopwords[strings.Fields(phrase)[0]] {
				add(phrase, domain.ConceptKindTopic, 0.6)
			}
		}
	}

	// Frequent standalone terms across the whole chunk.
	freq := map[string]int{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) })
		if len(w) > 4 && !commonStopwords[w] && !verbishStopwords[w] {
			freq[w]++
		}
	}
	for w, n := range freq {
		if n >= 3 {
			add(w, domain.ConceptKindTopic, 0.5)
		}
	}

	keys := make([]string, 0, len(candidates))
	for k := range candidates {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return candidates[keys[i]].first < candidates[keys[j]].first
	})

	var res Result
	for _, k := range keys {
		c := candidates[k]
		res.Mentions = append(res.Mentions, Mention{Label: c.label, Kind: c.kind, Confidence: c.confidence})
	}
	res.Cooccurrences = PairsOf(res.Mentions)
	return res, nil
}

func splitRoughSentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if s := strings.TrimSpace(text[start:i]); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

func isCapitalized(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}
