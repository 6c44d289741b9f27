package razy

import (
	"github.com/gobwas/glob"
)

// MatchWhitelist reports whether fqdn is permitted by the pattern list.
// A "*" wildcard matches exactly one domain label ("*.example.com"
// matches "api.example.com" but not "example.com" or
// "api.sub.example.com"); a bare "*" entry allows every host. An empty
// pattern list denies everything. Unparsable patterns are skipped.
func MatchWhitelist(patterns []string, fqdn string) bool {
	if fqdn == "" {
		return false
	}
	for _, pattern := range patterns {
		if pattern == "*" {
			return true
		}
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			continue
		}
		if g.Match(fqdn) {
			return true
		}
	}
	return false
}
