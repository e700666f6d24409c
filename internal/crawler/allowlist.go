package crawler

import (
	"net/url"
	"strings"
)

// Allowlist matches request hosts against the configured site domains.
// A domain entry matches itself and any subdomain.
type Allowlist struct {
	domains []string
}

// NewAllowlist builds an Allowlist; entries are lowercased and blank
// entries dropped.
func NewAllowlist(domains []string) *Allowlist {
	a := &Allowlist{}
	for _, raw := range domains {
		d := strings.TrimSpace(strings.ToLower(raw))
		d = strings.TrimPrefix(d, "*.")
		d = strings.TrimPrefix(d, ".")
		if d == "" {
			continue
		}
		a.domains = append(a.domains, d)
	}
	return a
}

// Allowed reports whether the URL's host falls under an allowed domain.
func (a *Allowlist) Allowed(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return a.AllowedHost(u.Hostname())
}

// AllowedHost reports whether the bare host falls under an allowed domain.
func (a *Allowlist) AllowedHost(host string) bool {
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	for _, d := range a.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Domains returns the normalized domain list.
func (a *Allowlist) Domains() []string {
	return a.domains
}
