package pipeline

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"xrepost/models"
)

// Query policies.
const (
	PolicyPerSource = "per_source"
	PolicyCombined  = "combined"
)

const maxKeywordRunes = 100

// ErrNothingToSearch means an account has no usable source.
var ErrNothingToSearch = errors.New("nothing to search")

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,15}$`)

// Query is one unit of collection work.
type Query struct {
	Kind  string
	Value string
	Text  string
	Limit int
}

// QueryBuilder turns monitored sources into search expressions.
type QueryBuilder struct {
	Policy         string
	BurstLimit     int
	BurstThreshold int
}

// Build validates the sources and returns the queries for one account.
// Rejected holds the source values that could not be used.
func (b QueryBuilder) Build(handles, keywords []string, ceiling int) (queries []Query, rejected []string, err error) {
	validHandles, badHandles := normalizeHandles(handles)
	validKeywords, badKeywords := normalizeKeywords(keywords)
	rejected = append(badHandles, badKeywords...)

	if len(validHandles) == 0 && len(validKeywords) == 0 {
		return nil, rejected, ErrNothingToSearch
	}

	if b.Policy == PolicyCombined {
		text := combinedExpression(validHandles, validKeywords)
		return []Query{{
			Kind:  models.SourceCombined,
			Value: text,
			Text:  text,
			Limit: b.perCallLimit(len(validHandles)+len(validKeywords), ceiling),
		}}, rejected, nil
	}

	handleLimit := b.perCallLimit(len(validHandles), ceiling)
	for _, h := range validHandles {
		queries = append(queries, Query{Kind: models.SourceHandle, Value: h, Text: "from:" + h, Limit: handleLimit})
	}
	keywordLimit := b.perCallLimit(len(validKeywords), ceiling)
	for _, k := range validKeywords {
		queries = append(queries, Query{Kind: models.SourceKeyword, Value: k.value, Text: k.expr, Limit: keywordLimit})
	}
	return queries, rejected, nil
}

// perCallLimit caps the page size: the burst limit once more than
// BurstThreshold sources feed the same kind of query, the ceiling otherwise.
func (b QueryBuilder) perCallLimit(sources, ceiling int) int {
	limit := ceiling
	if sources > b.BurstThreshold && (limit <= 0 || limit > b.BurstLimit) {
		limit = b.BurstLimit
	}
	if limit <= 0 {
		limit = b.BurstLimit
	}
	return limit
}

func combinedExpression(handles []string, keywords []keyword) string {
	exprs := make([]string, len(keywords))
	for i, k := range keywords {
		exprs[i] = k.expr
	}
	keywordExpr := strings.Join(exprs, " OR ")

	if len(handles) == 0 {
		return keywordExpr
	}
	parts := make([]string, len(handles))
	for i, h := range handles {
		if keywordExpr == "" {
			parts[i] = "from:" + h
		} else {
			parts[i] = "(from:" + h + " (" + keywordExpr + "))"
		}
	}
	return strings.Join(parts, " OR ")
}

func normalizeHandles(in []string) (valid, rejected []string) {
	seen := make(map[string]bool, len(in))
	for _, raw := range in {
		h := strings.TrimPrefix(strings.TrimSpace(raw), "@")
		if !handlePattern.MatchString(h) {
			rejected = append(rejected, raw)
			continue
		}
		key := strings.ToLower(h)
		if seen[key] {
			continue
		}
		seen[key] = true
		valid = append(valid, h)
	}
	return valid, rejected
}

type keyword struct {
	value string
	expr  string
}

func normalizeKeywords(in []string) (valid []keyword, rejected []string) {
	seen := make(map[string]bool, len(in))
	for _, raw := range in {
		value, ok := cleanKeyword(raw)
		if !ok {
			rejected = append(rejected, raw)
			continue
		}
		key := strings.ToLower(value)
		if seen[key] {
			continue
		}
		seen[key] = true
		valid = append(valid, keyword{value: value, expr: quoteKeyword(value)})
	}
	return valid, rejected
}

// cleanKeyword drops control characters and double quotes and collapses
// whitespace.
func cleanKeyword(raw string) (string, bool) {
	s := strings.Map(func(r rune) rune {
		if (unicode.IsControl(r) && !unicode.IsSpace(r)) || r == '"' {
			return -1
		}
		return r
	}, raw)
	s = strings.Join(strings.Fields(s), " ")
	if s == "" || utf8.RuneCountInString(s) > maxKeywordRunes {
		return "", false
	}
	return s, true
}

// quoteKeyword turns a keyword into a literal phrase when the search syntax
// would otherwise read it as an operator.
func quoteKeyword(s string) string {
	if strings.ContainsAny(s, " ():") || strings.HasPrefix(s, "-") {
		return `"` + s + `"`
	}
	switch strings.ToUpper(s) {
	case "OR", "AND", "NOT":
		return `"` + s + `"`
	}
	return s
}
