// Package prompt builds the Slovak prompts and citation lists used for
// answer generation.
package prompt

import (
	"fmt"
	"strings"
)

// System instructs the model to answer only from the provided context,
// in Slovak, with bracketed source references.
const System = "Si asistent pre Slovenskú sporiteľňu. Odpovedaj iba na základe poskytnutého kontextu. " +
	"Ak odpoveď v kontexte nie je, povedz, že to nevieš a navrhni kontaktovanie podpory. " +
	"Buď stručný a uveď zdroje v hranatých zátvorkách (napr. [1])."

// Fallback is returned when retrieval finds no relevant content.
const Fallback = "Ľutujem, momentálne nemám k dispozícii relevantný obsah. " +
	"Skúste to prosím inak alebo kontaktujte podporu."

const snippetMaxRunes = 750

// Source is one retrieved passage with its origin page.
type Source struct {
	Text  string
	URL   string
	Title string
}

// Citation points the client at a source page.
type Citation struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Build renders the user prompt from the question and ranked sources,
// and returns the citations deduplicated by URL in rank order.
func Build(question string, sources []Source) (string, []Citation) {
	var ctxB strings.Builder
	citations := make([]Citation, 0, len(sources))
	seen := make(map[string]struct{}, len(sources))

	for i, src := range sources {
		fmt.Fprintf(&ctxB, "[%d] %s\n(%s)\n\n", i+1, snippet(src.Text), src.URL)
		if _, dup := seen[src.URL]; dup {
			continue
		}
		seen[src.URL] = struct{}{}
		citations = append(citations, Citation{URL: src.URL, Title: src.Title})
	}

	refs := make([]string, len(citations))
	for i := range citations {
		refs[i] = fmt.Sprintf("[%d]", i+1)
	}

	user := fmt.Sprintf(
		"Otázka: %s\n\nKontext:\n%s\nUveď odkazy na zdroje: %s",
		question, ctxB.String(), strings.Join(refs, ", "),
	)
	return user, citations
}

// snippet truncates text to the snippet budget, counting runes so that
// multi-byte Slovak characters are never split.
func snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetMaxRunes {
		return text
	}
	return string(runes[:snippetMaxRunes]) + "…"
}
