package crawler

import (
	"fmt"
	"regexp"
	"strings"
)

// PatternMatcher filters followed links by user-supplied allow patterns.
// An empty matcher admits everything.
type PatternMatcher struct {
	rxs []*regexp.Regexp
}

// CompileAllowPatterns turns user patterns into host-anchored regexes:
//
//   - "^https?://..." is kept verbatim,
//   - "^/path" is anchored to any allowed host,
//   - a bare substring matches anywhere in the path of an allowed host.
func CompileAllowPatterns(patterns, domains []string) (*PatternMatcher, error) {
	m := &PatternMatcher{}
	if len(patterns) == 0 {
		return m, nil
	}

	alts := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.TrimSpace(strings.ToLower(d))
		if d != "" {
			alts = append(alts, regexp.QuoteMeta(d))
		}
	}
	hostAlt := strings.Join(alts, "|")
	if hostAlt == "" {
		hostAlt = `[^/]+`
	}

	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		var expr string
		switch {
		case strings.HasPrefix(p, "^http://"), strings.HasPrefix(p, "^https://"):
			expr = p
		case strings.HasPrefix(p, "^/"):
			expr = fmt.Sprintf(`^https?://(?:%s)%s`, hostAlt, strings.TrimPrefix(p, "^"))
		default:
			expr = fmt.Sprintf(`^https?://(?:%s)/.+%s`, hostAlt, regexp.QuoteMeta(p))
		}
		rx, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("allow pattern %q: %w", p, err)
		}
		m.rxs = append(m.rxs, rx)
	}
	return m, nil
}

// Match reports whether the URL passes the allow patterns.
func (m *PatternMatcher) Match(rawURL string) bool {
	if m == nil || len(m.rxs) == 0 {
		return true
	}
	for _, rx := range m.rxs {
		if rx.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// Empty reports whether no patterns were compiled.
func (m *PatternMatcher) Empty() bool {
	return m == nil || len(m.rxs) == 0
}
