package retrieval

import "strings"

// Prior bounds; priors steer ranking but never dominate it.
const (
	priorMax = 0.9
	priorMin = -0.6
)

// URLTitlePrior scores how promising a document looks for the query based
// on its URL path and title alone. Positive priors boost consumer account
// hubs and direct term hits; negative priors push down assets, legal pages,
// and archives. Business sections are boosted only for business queries.
func URLTitlePrior(qToks []string, rawURL, title string, businessQuery bool) float64 {
	u := Fold(rawURL)
	t := Fold(title)
	var prior float64

	for _, qt := range qToks {
		if strings.Contains(u, qt) {
			prior += 0.20
		}
		if strings.Contains(t, qt) {
			prior += 0.15
		}
	}

	// Stem hit for account pages ("ucty", "uctov", ...).
	if strings.Contains(u, "uct") || strings.Contains(t, "uct") {
		prior += 0.35
	}

	if strings.Contains(u, "/ludia/vsetky-ucty") || strings.Contains(u, "/ludia/ucty") {
		prior += 0.40
	}
	if strings.Contains(u, "/ludia/") {
		prior += 0.15
	}

	if strings.Contains(u, "/content/dam/") || strings.HasSuffix(u, ".pdf") {
		prior -= 0.40
	}
	if strings.Contains(u, "/zmluvne-podmienky") || strings.Contains(u, "/archiv") ||
		strings.Contains(u, "/landing-pages/") {
		prior -= 0.25
	}

	if strings.Contains(u, "/biznis/") {
		if businessQuery {
			prior += 0.05
		} else {
			prior -= 0.20
		}
	}

	if prior > priorMax {
		return priorMax
	}
	if prior < priorMin {
		return priorMin
	}
	return prior
}
