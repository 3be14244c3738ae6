package quota

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMatchPath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		pattern string
		want    bool
	}{
		{
			name:    "wildcard prefix match",
			path:    "/v1/charges",
			pattern: "/v1/*",
			want:    true,
		},
		{
			name:    "wildcard prefix root",
			path:    "/v1/",
			pattern: "/v1/*",
			want:    true,
		},
		{
			name:    "wildcard sub-path",
			path:    "/v1/chat/completions",
			pattern: "/v1/chat/*",
			want:    true,
		},
		{
			name:    "wildcard does not match different path",
			path:    "/v1/embeddings",
			pattern: "/v1/chat/*",
			want:    false,
		},
		{
			name:    "inner wildcard",
			path:    "/v1/users/42/search",
			pattern: "/v1/users/*/search",
			want:    true,
		},
		{
			name:    "inner wildcard matches empty",
			path:    "/api/v/users",
			pattern: "/api/v*/users",
			want:    true,
		},
		{
			name:    "exact match",
			path:    "/v1/specific",
			pattern: "/v1/specific",
			want:    true,
		},
		{
			name:    "exact no match",
			path:    "/v1/other",
			pattern: "/v1/specific",
			want:    false,
		},
		{
			name:    "catch all",
			path:    "/anything/at/all",
			pattern: "*",
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchPath(tt.path, tt.pattern)
			if got != tt.want {
				t.Errorf("matchPath(%q, %q) = %v, want %v", tt.path, tt.pattern, got, tt.want)
			}
		})
	}
}

func TestRouteResolverFirstMatchWins(t *testing.T) {
	resolve := RouteResolver(
		func(r *http.Request) string { return r.Header.Get("X-API-Key") },
		Route{Pattern: "/v1/search/*", MinuteLimit: 1, MonthLimit: 10},
		Route{Pattern: "/v1/*", MinuteLimit: 60, MonthLimit: 1000},
	)

	req := httptest.NewRequest("GET", "/v1/search/books", nil)
	req.Header.Set("X-API-Key", "k1")
	subject, minute, month, ok := resolve(req)
	if !ok || subject != "k1" || minute != 1 || month != 10 {
		t.Errorf("search route = %q %d %d %v", subject, minute, month, ok)
	}

	req = httptest.NewRequest("GET", "/v1/items", nil)
	req.Header.Set("X-API-Key", "k1")
	if _, minute, _, ok = resolve(req); !ok || minute != 60 {
		t.Errorf("generic route minute = %d ok = %v", minute, ok)
	}

	req = httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-API-Key", "k1")
	if _, _, _, ok = resolve(req); ok {
		t.Error("unmatched path resolved")
	}

	req = httptest.NewRequest("GET", "/v1/items", nil)
	if _, _, _, ok = resolve(req); ok {
		t.Error("request without subject resolved")
	}
}
