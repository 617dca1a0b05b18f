package secmodel

import (
	"regexp"
	"strings"
	"sync"
)

// Secured path patterns use shell-style wildcards: * matches any run of
// characters (including /), ? matches a single character. A pattern may be
// scoped to one HTTP method with a "METHOD " prefix, e.g. "POST /admin*".
// Unscoped patterns match every method.

var (
	patternMu    sync.RWMutex
	patternCache = make(map[string]*regexp.Regexp)
)

// MatchPath reports whether path matches the secured path pattern for the
// given request method. Invalid patterns never match.
func MatchPath(pattern, path, method string) bool {
	if m, rest, ok := splitMethodPrefix(pattern); ok {
		if !strings.EqualFold(m, method) {
			return false
		}
		pattern = rest
	}

	re := compilePattern(pattern)
	if re == nil {
		return false
	}
	return re.MatchString(path)
}

// MatchAnyPath reports whether any pattern matches the path and method.
func MatchAnyPath(patterns []string, path, method string) bool {
	for _, pattern := range patterns {
		if MatchPath(pattern, path, method) {
			return true
		}
	}
	return false
}

// splitMethodPrefix splits "GET /path*" into its method and pattern parts.
// Only recognized when the first token is all uppercase letters and the
// remainder starts with a slash.
func splitMethodPrefix(pattern string) (method, rest string, ok bool) {
	idx := strings.IndexByte(pattern, ' ')
	if idx <= 0 {
		return "", "", false
	}
	method = pattern[:idx]
	rest = strings.TrimLeft(pattern[idx+1:], " ")
	if !strings.HasPrefix(rest, "/") {
		return "", "", false
	}
	for _, r := range method {
		if r < 'A' || r > 'Z' {
			return "", "", false
		}
	}
	return method, rest, true
}

func compilePattern(pattern string) *regexp.Regexp {
	patternMu.RLock()
	re, ok := patternCache[pattern]
	patternMu.RUnlock()
	if ok {
		return re
	}

	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		re = nil
	}

	patternMu.Lock()
	patternCache[pattern] = re
	patternMu.Unlock()
	return re
}
