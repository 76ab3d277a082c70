// Package chunker splits normalized document text into overlapping,
// size-bounded segments. Splitting is a pure function of its inputs, so
// re-chunking after a failed resume reproduces identical boundaries.
package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/guptaanant682/memorybank-backend/internal/platform/faults"
)

type Config struct {
	TargetWords  int
	OverlapWords int
}

type Piece struct {
	Ordinal   int
	Text      string
	WordCount int
}

func DefaultConfig() Config {
	return Config{TargetWords: 500, OverlapWords: 50}
}

func (c Config) validate() error {
	if c.TargetWords <= 0 {
		return fmt.Errorf("%w: target_words=%d must be positive", faults.ErrInvalidChunkConfig, c.TargetWords)
	}
	if c.OverlapWords < 0 {
		return fmt.Errorf("%w: overlap_words=%d must not be negative", faults.ErrInvalidChunkConfig, c.OverlapWords)
	}
	if c.OverlapWords >= c.TargetWords {
		return fmt.Errorf("%w: overlap_words=%d must be smaller than target_words=%d",
			faults.ErrInvalidChunkConfig, c.OverlapWords, c.TargetWords)
	}
	return nil
}

// Split cuts text into ordered pieces of roughly TargetWords words.
// Sentence and paragraph boundaries are preferred; a single sentence longer
// than the target is hard-cut on word boundaries. Each piece after the first
// is prefixed with the last OverlapWords words of its predecessor.
func Split(text string, cfg Config) ([]Piece, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	var groups [][]string
	for _, sentence := range splitSentences(text) {
		words := strings.Fields(sentence)
		if len(words) == 0 {
			continue
		}
		// Hard word-count cuts for sentences that alone exceed the target.
		for len(words) > cfg.TargetWords {
			groups = append(groups, words[:cfg.TargetWords])
			words = words[cfg.TargetWords:]
		}
		if len(words) > 0 {
			groups = append(groups, words)
		}
	}
	if len(groups) == 0 {
		return nil, nil
	}

	var pieces []Piece
	var current []string
	var carry []string

	flush := func() {
		if len(current) == 0 {
			return
		}
		body := append(append([]string{}, carry...), current...)
		pieces = append(pieces, Piece{
			Ordinal:   len(pieces),
			Text:      strings.Join(body, " "),
			WordCount: len(body),
		})
		if cfg.OverlapWords > 0 {
			tail := cfg.OverlapWords
			if tail > len(current) {
				tail = len(current)
			}
			carry = append([]string{}, current[len(current)-tail:]...)
		}
		current = nil
	}

	for _, words := range groups {
		if len(current) > 0 && len(current)+len(words) > cfg.TargetWords {
			flush()
		}
		current = append(current, words...)
	}
	flush()

	return pieces, nil
}

// splitSentences breaks text on paragraph boundaries and sentence-ending
// punctuation. Abbreviation handling is deliberately minimal; hard cuts in
// Split bound any pathological case.
func splitSentences(text string) []string {
	var out []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		start := 0
		runes := []rune(para)
		for i := 0; i < len(runes); i++ {
			if !isSentenceEnd(runes[i]) {
				continue
			}
			// Consume trailing closers like quotes or parens.
			end := i + 1
			for end < len(runes) && (runes[end] == '"' || runes[end] == '\'' || runes[end] == ')') {
				end++
			}
			if end >= len(runes) || unicode.IsSpace(runes[end]) {
				s := strings.TrimSpace(string(runes[start:end]))
				if s != "" {
					out = append(out, s)
				}
				start = end
				i = end - 1
			}
		}
		if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
			out = append(out, rest)
		}
	}
	return out
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
