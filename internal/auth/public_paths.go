package auth

import (
	"net/http"
	"path"
	"strings"
)

// publicPaths matches request paths that bypass authentication. A public path
// covers itself and everything below it on a segment boundary, so "/health"
// covers "/health/live" but not "/healthz".
type publicPaths struct {
	all      bool
	prefixes []string
}

func newPublicPaths(paths ...string) *publicPaths {
	p := &publicPaths{}
	for _, raw := range paths {
		clean := cleanPath(raw)
		if clean == "/" {
			p.all = true
			continue
		}
		p.prefixes = append(p.prefixes, clean)
	}
	return p
}

// Match reports whether requestPath is public. Paths carrying encoded
// separators or dots never match: the router decodes them after this check
// and they could climb out of a public prefix.
func (p *publicPaths) Match(requestPath string) bool {
	lower := strings.ToLower(requestPath)
	for _, enc := range []string{"%2f", "%2e", "%5c"} {
		if strings.Contains(lower, enc) {
			return false
		}
	}
	if p.all {
		return true
	}

	clean := cleanPath(requestPath)
	for _, prefix := range p.prefixes {
		if clean == prefix || strings.HasPrefix(clean, prefix+"/") {
			return true
		}
	}
	return false
}

// WrapWithPublicPaths runs mw on every request except those under paths,
// which go straight to the next handler.
func WrapWithPublicPaths(
	mw func(http.Handler) http.Handler,
	paths []string,
) func(http.Handler) http.Handler {
	public := newPublicPaths(paths...)
	return func(next http.Handler) http.Handler {
		guarded := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public.Match(r.URL.EscapedPath()) {
				next.ServeHTTP(w, r)
				return
			}
			guarded.ServeHTTP(w, r)
		})
	}
}

func cleanPath(p string) string {
	return path.Clean("/" + p)
}
