package crawler

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const sitemapMaxBytes = 8 << 20

// SitemapSeeds fetches <root>/sitemap.xml and returns the listed URLs
// that pass the allowlist and the allow patterns. Best-effort: any fetch
// or parse failure yields an empty result.
func SitemapSeeds(
	ctx context.Context,
	client *http.Client,
	root string,
	allowlist *Allowlist,
	matcher *PatternMatcher,
	logger *zap.Logger,
) []string {
	if logger == nil {
		logger = zap.NewNop()
	}
	sitemapURL := strings.TrimRight(root, "/") + "/sitemap.xml"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil
	}
	resp, err := client.Do(req)
	if err != nil {
		logger.Debug("sitemap fetch failed", zap.String("url", sitemapURL), zap.Error(err))
		return nil
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Debug("failed to close sitemap body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		logger.Debug("sitemap fetch non-200",
			zap.String("url", sitemapURL), zap.Int("status_code", resp.StatusCode))
		return nil
	}

	locs, err := parseSitemapLocs(io.LimitReader(resp.Body, sitemapMaxBytes))
	if err != nil {
		logger.Debug("sitemap parse failed", zap.String("url", sitemapURL), zap.Error(err))
		return nil
	}

	var seeds []string
	for _, loc := range locs {
		if loc == "" || !allowlist.Allowed(loc) {
			continue
		}
		if matcher.Match(loc) {
			seeds = append(seeds, loc)
		}
	}
	logger.Debug("sitemap seeded",
		zap.String("url", sitemapURL),
		zap.Int("listed", len(locs)),
		zap.Int("accepted", len(seeds)),
	)
	return seeds
}

// parseSitemapLocs collects the text of every <loc> element, covering
// both urlset and sitemapindex documents.
func parseSitemapLocs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var locs []string
	var inLoc bool
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return locs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode sitemap: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			inLoc = t.Name.Local == "loc"
		case xml.EndElement:
			inLoc = false
		case xml.CharData:
			if inLoc {
				if loc := strings.TrimSpace(string(t)); loc != "" {
					locs = append(locs, loc)
				}
			}
		}
	}
}
