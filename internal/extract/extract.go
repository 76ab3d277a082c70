// Package extract wraps the entity/relationship extraction boundary: chunk
// text in, typed concept mentions and intra-chunk co-occurrence pairs out.
package extract

import "context"

type Mention struct {
	Label      string
	Kind       string // domain.ConceptKindEntity or domain.ConceptKindTopic
	Confidence float64
}

// Pair is an unordered co-occurrence observed within one chunk.
type Pair struct {
	A string
	B string
}

type Result struct {
	Mentions      []Mention
	Cooccurrences []Pair
}

type Extractor interface {
	Extract(ctx context.Context, text string) (Result, error)
}

// PairsOf derives all unordered co-occurrence pairs from a mention set.
// Implementations without relation output use this.
func PairsOf(mentions []Mention) []Pair {
	seen := make(map[string]bool, len(mentions))
	var labels []string
	for _, m := range mentions {
		if m.Label == "" || seen[m.Label] {
			continue
		}
		seen[m.Label] = true
		labels = append(labels, m.Label)
	}
	var pairs []Pair
	for i := 0; i < len(labels); i++ {
		for j := i + 1; j < len(labels); j++ {
			pairs = append(pairs, Pair{A: labels[i], B: labels[j]})
		}
	}
	return pairs
}
