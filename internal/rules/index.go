package rules

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// Match is a successful keyword lookup.
type Match struct {
	Rule    Rule
	Keyword string
}

// Index is the compiled, query-optimized view of the enabled rules. Rebuild
// replaces the compiled set atomically; Match is a pure read.
type Index struct {
	mu       sync.RWMutex
	compiled []compiledRule
}

type compiledRule struct {
	rule     Rule
	keywords []string
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{}
}

// Rebuild compiles the enabled rules. Disabled rules and rules with no usable
// keywords are skipped. Original rule order is preserved for tie-breaking.
func (ix *Index) Rebuild(rules []Rule) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		keywords := r.Keywords()
		if len(keywords) == 0 {
			continue
		}
		compiled = append(compiled, compiledRule{rule: r, keywords: keywords})
	}

	ix.mu.Lock()
	ix.compiled = compiled
	ix.mu.Unlock()
}

// Match lower-cases and trims text, then tests substring containment against
// every compiled keyword. The longest matching keyword wins across all rules;
// ties go to the earlier rule in original order.
func (ix *Index) Match(text string) (Match, bool) {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return Match{}, false
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var best Match
	bestLen := 0
	for _, cr := range ix.compiled {
		for _, kw := range cr.keywords {
			// Length in characters, not bytes, so multi-byte CJK
			// keywords rank against ASCII ones fairly.
			if n := utf8.RuneCountInString(kw); n > bestLen && strings.Contains(needle, kw) {
				best = Match{Rule: cr.rule, Keyword: kw}
				bestLen = n
			}
		}
	}
	return best, bestLen > 0
}

// Size returns the number of compiled rules.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.compiled)
}
