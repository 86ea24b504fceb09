// Package scoring measures responses against cognitive-load metrics: filler
// phrases, preamble position, and information density. Scoring is pure and
// deterministic: identical text always yields identical metrics, with no
// network or model calls.
package scoring

import (
	"math"
	"regexp"
	"strings"
)

// Metrics is the scored view of one response.
type Metrics struct {
	WordCount      int      `json:"word_count"`
	AnswerPosition int      `json:"answer_position"`
	PaddingCount   int      `json:"padding_count"`
	FillerPhrases  []string `json:"filler_phrases"`
	InfoDensity    float64  `json:"info_density"`
}

// Score computes all metrics for a response. Empty text scores zero across
// the board; info_density is 0, not a division error.
func Score(text string) Metrics {
	if strings.TrimSpace(text) == "" {
		return Metrics{FillerPhrases: []string{}}
	}

	phrases, spans := findFiller(text)

	return Metrics{
		WordCount:      countWords(text),
		AnswerPosition: answerPosition(text),
		PaddingCount:   len(phrases),
		FillerPhrases:  phrases,
		InfoDensity:    infoDensity(text, spans),
	}
}

func countWords(text string) int {
	return len(strings.Fields(text))
}

type span struct{ start, end int }

func (s span) overlaps(o span) bool {
	return s.start < o.end && o.start < s.end
}

// findFiller collects filler matches in pattern order. A region of text
// claimed by an earlier pattern is not re-counted by a later overlapping one.
func findFiller(text string) ([]string, []span) {
	phrases := []string{}
	var spans []span
	for _, pat := range fillerPatterns {
		for _, loc := range pat.FindAllStringIndex(text, -1) {
			candidate := span{loc[0], loc[1]}
			claimed := false
			for _, s := range spans {
				if s.overlaps(candidate) {
					claimed = true
					break
				}
			}
			if claimed {
				continue
			}
			spans = append(spans, candidate)
			phrases = append(phrases, text[loc[0]:loc[1]])
		}
	}
	return phrases, spans
}

// sentenceEnd locates the end of the sentence starting at the beginning of s:
// one past the next terminator, or len(s) when none remains.
var sentenceTerminator = regexp.MustCompile(`[.!?:\n]`)

func sentenceEnd(s string) int {
	if loc := sentenceTerminator.FindStringIndex(s); loc != nil {
		return loc[1]
	}
	return len(s)
}

// answerPosition counts leading tokens consumed by preamble sentences before
// the first substantive token. Preamble patterns are tried against the
// remaining prefix; each match consumes through the end of its sentence.
// Returns 0 when the text opens with substance.
func answerPosition(text string) int {
	rest := strings.TrimSpace(text)
	consumed := 0
	for rest != "" {
		matched := false
		for _, pat := range preamblePatterns {
			if pat.MatchString(rest) {
				end := sentenceEnd(rest)
				consumed += countWords(rest[:end])
				rest = strings.TrimSpace(rest[end:])
				matched = true
				break
			}
		}
		if !matched {
			break
		}
	}
	return consumed
}

// infoDensity is content words over total words, rounded to three decimals.
// Function words, single characters, and words consumed by filler matches do
// not count as content.
func infoDensity(text string, fillerSpans []span) float64 {
	total := 0
	content := 0
	offset := 0
	for _, raw := range strings.Fields(text) {
		start := strings.Index(text[offset:], raw) + offset
		tokenSpan := span{start, start + len(raw)}
		offset = tokenSpan.end

		total++
		word := strings.ToLower(strings.Trim(raw, tokenPunct))
		if word == "" || len(word) <= 1 {
			continue
		}
		if _, ok := functionWords[word]; ok {
			continue
		}
		inFiller := false
		for _, s := range fillerSpans {
			if s.overlaps(tokenSpan) {
				inFiller = true
				break
			}
		}
		if !inFiller {
			content++
		}
	}
	if total == 0 {
		return 0
	}
	return math.Round(float64(content)/float64(total)*1000) / 1000
}
