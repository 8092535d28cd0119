package ucp

import (
	"net/url"
	"regexp"
	"strings"
)

// profilePattern extracts the profile URL from a UCP-Agent header value,
// e.g. `agent="shopper/1.0"; profile="https://agents.example.com/profile"`.
var profilePattern = regexp.MustCompile(`profile="([^"]+)"`)

// defaultWhitelist is used when whitelisting is enabled but no patterns are
// configured.
var defaultWhitelist = []string{
	"api.openai.com",
	"google.com",
	"*.google.com",
	"anthropic.com",
}

// agentProfileURL pulls the discovery profile URL out of a UCP-Agent header.
func agentProfileURL(agentHeader string) string {
	m := profilePattern.FindStringSubmatch(agentHeader)
	if m == nil {
		return ""
	}
	return m[1]
}

// isWhitelisted reports whether the agent's profile host matches the
// configured patterns. A `*.domain` pattern matches the domain itself and
// any subdomain, on a proper label boundary: shop.google.com matches
// *.google.com, evilgoogle.com does not.
func isWhitelisted(agentHeader string, patterns []string) bool {
	profileURL := agentProfileURL(agentHeader)
	if profileURL == "" {
		return false
	}

	parsed, err := url.Parse(profileURL)
	if err != nil || parsed.Hostname() == "" {
		return false
	}
	host := strings.ToLower(parsed.Hostname())

	if len(patterns) == 0 {
		patterns = defaultWhitelist
	}

	for _, pattern := range patterns {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		if domain, ok := strings.CutPrefix(pattern, "*."); ok {
			if host == domain || strings.HasSuffix(host, "."+domain) {
				return true
			}
			continue
		}
		if host == pattern {
			return true
		}
	}

	return false
}
