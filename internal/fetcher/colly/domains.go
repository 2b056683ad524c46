package collyfetcher

import (
	"net"
	"strings"
)

// domainMatcher stores exact hosts and suffix wildcards ("*.example.gov" or
// ".example.gov") and matches hostnames against them.
type domainMatcher struct {
	exact    map[string]struct{}
	suffixes []string
}

// newDomainMatcher returns nil when no usable pattern is given.
func newDomainMatcher(patterns []string) *domainMatcher {
	matcher := &domainMatcher{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		switch {
		case value == "":
			continue
		case strings.HasPrefix(value, "*."):
			matcher.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			matcher.addSuffix(strings.TrimPrefix(value, "."))
		default:
			matcher.exact[value] = struct{}{}
		}
	}
	if len(matcher.exact) == 0 && len(matcher.suffixes) == 0 {
		return nil
	}
	return matcher
}

// newSiteMatcher allows each domain and all of its subdomains. Ports are
// ignored.
func newSiteMatcher(domains []string) *domainMatcher {
	patterns := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.TrimSpace(d)
		if host, _, err := net.SplitHostPort(d); err == nil {
			d = host
		}
		if d != "" {
			patterns = append(patterns, "*."+d)
		}
	}
	return newDomainMatcher(patterns)
}

func (m *domainMatcher) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range m.suffixes {
		if existing == suffix {
			return
		}
	}
	m.suffixes = append(m.suffixes, suffix)
}

// Matches reports whether host is covered. A nil matcher matches nothing.
func (m *domainMatcher) Matches(host string) bool {
	if m == nil {
		return false
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if _, exact := m.exact[host]; exact {
		return true
	}
	for _, suffix := range m.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
