package scoring

import "regexp"

// Filler phrase patterns, word-boundary anchored so that e.g. "uncertainly"
// never matches the "certainly" family. Order is significant: patterns are
// tried in list order and a span claimed by an earlier pattern is not
// re-counted by a later one.
var fillerPatterns = []*regexp.Regexp{
	// engagement filler
	regexp.MustCompile(`(?i)\bGreat question\b`),
	regexp.MustCompile(`(?i)\bGood question\b`),
	regexp.MustCompile(`(?i)\bExcellent question\b`),
	regexp.MustCompile(`(?i)\bThat's a great question\b`),
	regexp.MustCompile(`(?i)\bThat's an interesting question\b`),
	regexp.MustCompile(`(?i)\bAbsolutely!`),
	regexp.MustCompile(`(?i)\bCertainly!`),
	regexp.MustCompile(`(?i)\bThis is a classic\b`),
	// rapport building
	regexp.MustCompile(`(?i)\bI'?d be happy to help\b|\bI'?d be happy to\b`),
	regexp.MustCompile(`(?i)\bI would be happy to help\b|\bI would be happy to\b`),
	regexp.MustCompile(`(?i)\bOf course[!,]`),
	regexp.MustCompile(`(?i)\bI can help\b`),
	regexp.MustCompile(`(?i)\bI can definitely\b`),
	// affect simulation
	regexp.MustCompile(`(?i)\bI understand\b`),
	regexp.MustCompile(`(?i)\bI'm sorry to hear\b`),
	regexp.MustCompile(`(?i)\bHappy to help\b`),
	regexp.MustCompile(`(?i)\bI'm here to help\b`),
	regexp.MustCompile(`(?i)\bDon't worry\b`),
	regexp.MustCompile(`(?i)\bNo worries\b`),
	// interaction extension
	regexp.MustCompile(`(?i)\bLet me know if\b`),
	regexp.MustCompile(`(?i)\bWould you like me to\b`),
	regexp.MustCompile(`(?i)\bFeel free to\b`),
	regexp.MustCompile(`(?i)\bDon't hesitate\b`),
	regexp.MustCompile(`(?i)\bI hope this helps\b|\bHope this helps\b`),
}

// Preamble patterns, tried against the start of the remaining text prefix.
// A match consumes through the end of its sentence.
var preamblePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^I'?d be happy to\b`),
	regexp.MustCompile(`(?i)^I would be happy to\b`),
	regexp.MustCompile(`(?i)^Of course\b`),
	regexp.MustCompile(`(?i)^Sure[,!.]`),
	regexp.MustCompile(`(?i)^Great question\b`),
	regexp.MustCompile(`(?i)^Good question\b`),
	regexp.MustCompile(`(?i)^Let me\b`),
	regexp.MustCompile(`(?i)^Here'?s\b`),
	regexp.MustCompile(`(?i)^I found\b`),
	regexp.MustCompile(`(?i)^Based on\b`),
	regexp.MustCompile(`(?i)^Looking at\b`),
	regexp.MustCompile(`(?i)^I can help\b`),
	regexp.MustCompile(`(?i)^I'?ll help\b`),
	regexp.MustCompile(`(?i)^Absolutely\b`),
	regexp.MustCompile(`(?i)^Definitely\b`),
	regexp.MustCompile(`(?i)^Certainly\b`),
	regexp.MustCompile(`(?i)^That'?s a great\b`),
	regexp.MustCompile(`(?i)^That'?s an? (?:interesting|good|excellent)\b`),
	regexp.MustCompile(`(?i)^Thank you for\b`),
	regexp.MustCompile(`(?i)^Thanks for\b`),
}

// functionWords are excluded from the content-word count for density.
var functionWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "being": {}, "have": {}, "has": {}, "had": {},
	"do": {}, "does": {}, "did": {}, "will": {}, "would": {}, "could": {},
	"should": {}, "may": {}, "might": {}, "shall": {}, "can": {}, "to": {},
	"of": {}, "in": {}, "for": {}, "on": {}, "with": {}, "at": {}, "by": {},
	"from": {}, "as": {}, "into": {}, "through": {}, "during": {},
	"before": {}, "after": {}, "it": {}, "its": {}, "this": {}, "that": {},
	"these": {}, "those": {}, "i": {}, "you": {}, "we": {}, "they": {},
	"he": {}, "she": {}, "me": {}, "my": {}, "your": {}, "our": {},
	"their": {}, "and": {}, "or": {}, "but": {}, "not": {}, "if": {},
	"then": {}, "than": {}, "so": {}, "no": {}, "yes": {}, "all": {},
	"any": {}, "each": {}, "every": {}, "some": {}, "such": {},
	"i'd": {}, "i'll": {}, "i'm": {}, "it's": {}, "that's": {},
	"there's": {}, "you're": {}, "we're": {}, "don't": {}, "doesn't": {},
	"can't": {}, "won't": {}, "isn't": {}, "aren't": {},
}

// tokenPunct is stripped from token edges before density classification.
const tokenPunct = ".,!?;:\"'()[]{}#*`~>|-_/\\"
