package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestURLTitlePrior(t *testing.T) {
	t.Parallel()

	qToks := Tokens("aké účty ponúkate")

	accountsHub := URLTitlePrior(qToks,
		"https://www.slsp.sk/sk/ludia/vsetky-ucty", "Všetky účty", false)
	pdfAsset := URLTitlePrior(qToks,
		"https://www.slsp.sk/content/dam/cennik.pdf", "Cenník", false)
	neutral := URLTitlePrior(qToks,
		"https://www.slsp.sk/sk/o-banke", "O banke", false)

	assert.Greater(t, accountsHub, neutral)
	assert.Less(t, pdfAsset, neutral)
}

func TestURLTitlePriorClamped(t *testing.T) {
	t.Parallel()

	// Term hits, account stem, hub path, and section boost stack well
	// past the cap.
	qToks := []string{"ucty", "ludia", "vsetky"}
	prior := URLTitlePrior(qToks,
		"https://www.slsp.sk/sk/ludia/vsetky-ucty", "Všetky účty pre ľudí", false)
	assert.Equal(t, priorMax, prior)

	down := URLTitlePrior(nil,
		"https://www.slsp.sk/content/dam/archiv/zmluvne-podmienky/x.pdf", "", false)
	assert.GreaterOrEqual(t, down, priorMin)
	assert.Less(t, down, 0.0)
}

func TestURLTitlePriorBusinessSection(t *testing.T) {
	t.Parallel()

	url := "https://www.slsp.sk/sk/biznis/ucty"
	retail := URLTitlePrior(nil, url, "", false)
	business := URLTitlePrior(nil, url, "", true)

	assert.Greater(t, business, retail)
}
