package search

import (
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultWeightsCacheSize bounds the query-shape weight-profile cache
// (spec §4.13): repeated queries within a session skip reclassification.
const DefaultWeightsCacheSize = 10000

// identifierPattern flags the characters spec §4.10/§4.13 treat as likely
// identifier content: uppercase letters, digits, and path/namespace
// punctuation.
var identifierPattern = regexp.MustCompile(`[A-Z0-9_:/.\-]`)

// These patterns recognize stack-trace-like and code-call-like query
// shapes (spec §4.13): braces, dotted/namespaced calls, or an
// exception/error-style identifier.
var (
	stackTracePattern = regexp.MustCompile(`(?i)\b(at \b|exception\b|traceback\b|panic:|goroutine\b)`)
	bracePattern      = regexp.MustCompile(`[{}()\[\];]`)
	dottedCallPattern = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*){1,}\(`)
	errorCodePattern  = regexp.MustCompile(`(?i)\b([A-Z]{2,}_[A-Z0-9_]+|[A-Z]{2,}\d{3,}|\w+Exception)\b`)
)

// IsIdentifierLike reports whether a query contains a character the
// trigram heuristic treats as identifier-ish (spec §4.10), gating whether
// a trigram-similarity term is added to the lexical score at all.
func IsIdentifierLike(query string) bool {
	return len(query) >= 3 && identifierPattern.MatchString(query)
}

// isCodeShaped reports whether a query looks like a stack trace or a
// piece of source (spec §4.13's "code / identifier-heavy" bucket).
func isCodeShaped(query string) bool {
	return stackTracePattern.MatchString(query) ||
		bracePattern.MatchString(query) ||
		dottedCallPattern.MatchString(query) ||
		errorCodePattern.MatchString(query)
}

// isLongNaturalLanguage reports whether a query reads as a natural-language
// question or description of six or more words (spec §4.13).
func isLongNaturalLanguage(query string) bool {
	return len(strings.Fields(query)) >= 6
}

// ClassifyWeights selects the fusion weight profile for a query's shape
// (spec §4.13). Code/identifier-heavy queries favor trigram matching;
// long natural-language queries favor semantic matching; anything else
// (short technical queries) splits the difference toward lexical.
func ClassifyWeights(query string) Weights {
	q := strings.TrimSpace(query)
	switch {
	case isCodeShaped(q):
		return Weights{Lexical: 0.3, Semantic: 0.3, Trigram: 0.4}
	case isLongNaturalLanguage(q):
		return Weights{Lexical: 0.25, Semantic: 0.7, Trigram: 0.05}
	default:
		return Weights{Lexical: 0.5, Semantic: 0.35, Trigram: 0.15}
	}
}

// WeightsCache memoizes ClassifyWeights by normalized query text so a
// hybrid search loop issuing the same query repeatedly (pagination,
// retries) doesn't re-run the pattern match every time.
type WeightsCache struct {
	cache *lru.Cache[string, Weights]
}

func NewWeightsCache(size int) *WeightsCache {
	if size <= 0 {
		size = DefaultWeightsCacheSize
	}
	c, _ := lru.New[string, Weights](size)
	return &WeightsCache{cache: c}
}

func (c *WeightsCache) Get(query string) Weights {
	key := strings.ToLower(strings.TrimSpace(query))
	if w, ok := c.cache.Get(key); ok {
		return w
	}
	w := ClassifyWeights(query)
	c.cache.Add(key, w)
	return w
}
