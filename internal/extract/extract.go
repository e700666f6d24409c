// Package extract pulls the human-readable content out of crawled HTML.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// Content is the text extracted from one page.
type Content struct {
	Title           string
	MetaDescription string
	Text            string
}

// Combined joins title, meta description, and body text into the blob that
// gets chunked and embedded. Empty parts are dropped.
func (c Content) Combined() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.Title, c.MetaDescription, c.Text} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

// Empty reports whether nothing usable was extracted.
func (c Content) Empty() bool {
	return c.Title == "" && c.MetaDescription == "" && c.Text == ""
}

// contentSelectors target the semantic tags that carry page copy.
// Container tags pick up copy in bare divs; an element nested inside
// another match is skipped so its text is harvested exactly once.
const contentSelectors = "main, article, section, h1, h2, h3, p, li, td, th"

// FromHTML extracts title, meta description, and text from an HTML body.
// Text comes from semantic tags first; pages that yield nothing fall back to
// readability extraction and finally to the whole body text.
func FromHTML(pageURL string, body []byte) (Content, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Content{}, fmt.Errorf("parse html: %w", err)
	}

	title := normalize(doc.Find("title").First().Text())
	if title == "" {
		title = pageURL
	}

	meta, _ := doc.Find(`meta[name="description"]`).Attr("content")
	if meta == "" {
		meta, _ = doc.Find(`meta[property="og:description"]`).Attr("content")
	}
	meta = normalize(meta)

	text := semanticText(doc)
	if text == "" {
		text = readableText(pageURL, body)
	}
	if text == "" {
		text = normalize(doc.Find("body").Text())
	}

	return Content{
		Title:           title,
		MetaDescription: meta,
		Text:            text,
	}, nil
}

func semanticText(doc *goquery.Document) string {
	var parts []string
	doc.Find(contentSelectors).Each(func(_ int, sel *goquery.Selection) {
		if sel.ParentsFiltered(contentSelectors).Length() > 0 {
			return
		}
		if t := normalize(visibleText(sel)); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, " ")
}

// visibleText returns the selection's text with non-content elements
// stripped out. Text nodes are joined with spaces so adjacent elements
// do not run their words together.
func visibleText(sel *goquery.Selection) string {
	clone := sel.Clone()
	clone.Find("script, style, noscript, template").Remove()
	var parts []string
	for _, n := range clone.Nodes {
		collectText(n, &parts)
	}
	return strings.Join(parts, " ")
}

func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.TextNode {
		if t := normalize(n.Data); t != "" {
			*parts = append(*parts, t)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}

func readableText(pageURL string, body []byte) string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		parsed = nil
	}
	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return ""
	}
	return normalize(article.TextContent)
}

// normalize collapses all runs of whitespace into single spaces.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
