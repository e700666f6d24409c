// Package retrieval implements the hybrid ranker that selects context
// chunks for answer generation: cosine similarity over embeddings,
// a BM25 keyword score, and URL/title path priors.
package retrieval

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Slovak stopwords plus brand terms that carry no ranking signal.
var stopwords = map[string]struct{}{
	"a": {}, "aj": {}, "alebo": {}, "ani": {}, "na": {}, "v": {}, "vo": {},
	"do": {}, "z": {}, "za": {}, "od": {}, "o": {}, "u": {}, "s": {}, "so": {},
	"je": {}, "su": {}, "som": {}, "si": {}, "sa": {}, "by": {}, "byt": {},
	"co": {}, "kto": {}, "ktory": {}, "ktora": {}, "ktore": {},
	"ak": {}, "ake": {}, "ako": {}, "ze": {}, "pre": {}, "pri": {},
	"nad": {}, "pod": {}, "po": {}, "uz": {}, "len": {}, "ci": {}, "tiez": {},
	"slovenska": {}, "sporitelna": {}, "slsp": {}, "sk": {},
}

// businessHints mark queries about business banking rather than retail.
var businessHints = map[string]struct{}{
	"biznis": {}, "firma": {}, "firemny": {}, "podnik": {},
	"podnikanie": {}, "zivnost": {}, "zivnostnik": {},
}

// Fold lowercases s and strips combining marks so that accented and plain
// spellings compare equal ("účty" -> "ucty").
func Fold(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFD.String(strings.ToLower(s)) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Tokens folds s and splits it into alphanumeric tokens, dropping
// short tokens and stopwords.
func Tokens(s string) []string {
	folded := Fold(s)
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		tok := cur.String()
		cur.Reset()
		if len(tok) < 3 {
			return
		}
		if _, stop := stopwords[tok]; stop {
			return
		}
		out = append(out, tok)
	}
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return out
}

// IsBusinessQuery reports whether any token hints at business banking.
func IsBusinessQuery(toks []string) bool {
	for _, t := range toks {
		if _, ok := businessHints[t]; ok {
			return true
		}
	}
	return false
}
