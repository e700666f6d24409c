package crawler

import (
	"bytes"

	"github.com/PuerkitoBio/goquery"
)

// HeuristicDetector flags pages that likely need JavaScript to render
// their content, using three cheap signals: a minimum HTML size, known
// framework bootstrap keywords, and expected content selectors.
type HeuristicDetector struct {
	minHTMLBytes int
	selectors    []string
	keywords     [][]byte
}

// NewHeuristicDetector constructs a detector with the given thresholds.
func NewHeuristicDetector(minBytes int, selectors, keywords []string) *HeuristicDetector {
	kws := make([][]byte, 0, len(keywords))
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		kws = append(kws, bytes.ToLower([]byte(kw)))
	}
	return &HeuristicDetector{
		minHTMLBytes: minBytes,
		selectors:    selectors,
		keywords:     kws,
	}
}

// NeedsJS reports whether the body shows signs of client-side rendering.
func (d *HeuristicDetector) NeedsJS(body []byte) bool {
	if d == nil {
		return false
	}
	switch {
	case d.minHTMLBytes > 0 && len(body) < d.minHTMLBytes:
		return true
	case d.containsKeyword(body):
		return true
	default:
		return d.missingSelectors(body)
	}
}

func (d *HeuristicDetector) containsKeyword(body []byte) bool {
	if len(body) == 0 || len(d.keywords) == 0 {
		return false
	}
	lower := bytes.ToLower(body)
	for _, kw := range d.keywords {
		if bytes.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// missingSelectors reports true when any expected content selector is
// absent from the document.
func (d *HeuristicDetector) missingSelectors(body []byte) bool {
	if len(d.selectors) == 0 || len(body) == 0 {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return true
	}
	for _, sel := range d.selectors {
		if sel == "" {
			continue
		}
		if doc.Find(sel).Length() == 0 {
			return true
		}
	}
	return false
}
