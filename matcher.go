package quota

import (
	"net/http"
	"strings"
)

// Route assigns limits to request paths matching a glob-style pattern.
//
// Supported patterns:
//   - "/v1/*" matches any path below /v1
//   - "/v1/*/search" matches any characters in place of the star
//   - "/v1/specific" exact match
type Route struct {
	Pattern     string
	MinuteLimit int64
	MonthLimit  int64
}

// RouteResolver builds a ResolveFunc that takes the subject from subject
// and the limits from the first route whose pattern matches the request
// path. Requests with no subject or no matching route are not checked.
func RouteResolver(subject func(*http.Request) string, routes ...Route) ResolveFunc {
	return func(r *http.Request) (string, int64, int64, bool) {
		id := subject(r)
		if id == "" {
			return "", 0, 0, false
		}
		for _, rt := range routes {
			if matchPath(r.URL.Path, rt.Pattern) {
				return id, rt.MinuteLimit, rt.MonthLimit, true
			}
		}
		return "", 0, 0, false
	}
}

// matchPath checks whether a request path matches a route pattern.
func matchPath(path, pattern string) bool {
	// Strip trailing slashes for consistency.
	path = strings.TrimRight(path, "/")
	pattern = strings.TrimRight(pattern, "/")

	return globMatch(pattern, path)
}

// globMatch performs simple glob matching where "*" matches any, possibly empty,
// sequence of characters and a trailing "/*" matches everything remaining.
func globMatch(pattern, value string) bool {
	// Fast path: exact match.
	if pattern == value {
		return true
	}

	// Trailing /* means match everything under that prefix.
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if value == prefix || strings.HasPrefix(value, prefix+"/") {
			return true
		}
	}

	return wildcardMatch(pattern, value)
}

// wildcardMatch handles * as matching any sequence of characters.
func wildcardMatch(pattern, str string) bool {
	if pattern == "*" {
		return true
	}

	for len(pattern) > 0 {
		if pattern[0] == '*' {
			pattern = pattern[1:]
			if len(pattern) == 0 {
				return true
			}
			for i := 0; i <= len(str); i++ {
				if wildcardMatch(pattern, str[i:]) {
					return true
				}
			}
			return false
		}

		if len(str) == 0 || pattern[0] != str[0] {
			return false
		}

		pattern = pattern[1:]
		str = str[1:]
	}

	return len(str) == 0
}
