// Package classify tags queries with a deterministic query type. Rules are
// keyword and structure heuristics only, so classification is reproducible
// offline; there is never a model call.
package classify

import (
	"regexp"
	"strings"
)

// Query types form a closed set. Default is the fallback when no rule fires.
const (
	TypeDefault    = "default"
	TypeCode       = "code"
	TypeDiagnostic = "diagnostic"
	TypeClaim      = "claim"
	TypeEmotional  = "emotional"
	TypeMeta       = "meta"
	TypeFactual    = "factual"
)

// Types lists every query type in rule-priority order.
func Types() []string {
	return []string{TypeCode, TypeDiagnostic, TypeClaim, TypeEmotional, TypeMeta, TypeFactual, TypeDefault}
}

// Known reports whether t is a member of the closed query-type set.
func Known(t string) bool {
	for _, known := range Types() {
		if t == known {
			return true
		}
	}
	return false
}

type ruleSet struct {
	queryType string
	patterns  []*regexp.Regexp
}

// rules are ordered by specificity; ties in pattern-hit count break toward
// the earlier entry.
var rules = []ruleSet{
	{TypeCode, []*regexp.Regexp{
		regexp.MustCompile(`(?:write|create|implement|refactor|fix|debug|add|remove|update|modify)\s+(?:a\s+)?(?:function|class|method|component|test|script|hook|endpoint|module)`),
		regexp.MustCompile("```"),
		regexp.MustCompile(`(?:typeerror|syntaxerror|valueerror|importerror|keyerror|attributeerror|panic:|nil pointer)`),
		regexp.MustCompile(`how\s+(?:do|can|should)\s+i\s+(?:write|implement|create|build|make)`),
		regexp.MustCompile(`\b(?:npm|pip|git|docker|pytest|eslint|webpack|cargo|gofmt)\b`),
	}},
	{TypeDiagnostic, []*regexp.Regexp{
		regexp.MustCompile(`why\s+(?:is|does|isn't|doesn't|won't|can't|did)`),
		regexp.MustCompile(`(?:not\s+working|broken|failing|error|bug|issue|problem|crash)`),
		regexp.MustCompile(`(?:what's\s+wrong|what\s+happened|how\s+to\s+fix|troubleshoot)`),
		regexp.MustCompile(`doesn't\s+(?:work|compile|run|build|start|connect)`),
	}},
	{TypeClaim, []*regexp.Regexp{
		regexp.MustCompile(`(?:is\s+it\s+true|i\s+(?:heard|read|think|believe)\s+that)`),
		regexp.MustCompile(`(?:according\s+to|supposedly|they\s+say|isn't\s+it\s+(?:true|correct))`),
		regexp.MustCompile(`(?:verify|confirm|fact.?check|is\s+this\s+(?:correct|accurate|right))`),
	}},
	{TypeEmotional, []*regexp.Regexp{
		regexp.MustCompile(`i'm\s+(?:frustrated|stuck|confused|worried|overwhelmed|lost)`),
		regexp.MustCompile(`(?:help\s+me\s+understand|i\s+don't\s+(?:get|understand))`),
		regexp.MustCompile(`this\s+is\s+(?:driving\s+me\s+crazy|so\s+frustrating|impossible)`),
	}},
	{TypeMeta, []*regexp.Regexp{
		regexp.MustCompile(`how\s+(?:do\s+you|does\s+this)\s+work`),
		regexp.MustCompile(`what\s+(?:can\s+you|tools|skills|commands)\s+(?:do|are|have)`),
		regexp.MustCompile(`tell\s+me\s+about\s+(?:yourself|your|this\s+(?:plugin|system))`),
		regexp.MustCompile(`^/\w+`),
	}},
	{TypeFactual, []*regexp.Regexp{
		regexp.MustCompile(`(?:what\s+is|who\s+is|when\s+(?:did|was|is)|where\s+(?:is|are|was))`),
		regexp.MustCompile(`how\s+(?:many|much|long|old|far|often)`),
		regexp.MustCompile(`(?:list\s+(?:the|all)|show\s+me|find\s+(?:the|all))`),
		regexp.MustCompile(`(?:look\s+up|search\s+for|check\s+(?:the|if|whether))`),
	}},
}

// Classify tags a query. The rule set with the most pattern hits wins; ties
// break in rule order; zero hits falls back to default.
func Classify(query string) string {
	lower := strings.ToLower(strings.TrimSpace(query))
	if lower == "" {
		return TypeDefault
	}

	best := TypeDefault
	bestHits := 0
	for _, rs := range rules {
		hits := 0
		for _, pat := range rs.patterns {
			if pat.MatchString(lower) {
				hits++
			}
		}
		if hits > bestHits {
			best = rs.queryType
			bestHits = hits
		}
	}
	return best
}
