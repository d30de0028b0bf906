package auth

import (
	"strings"
	"unicode"
)

const (
	defaultRealm = "syncd"
	metadataPath = "/.well-known/oauth-protected-resource"
)

// challenge renders the WWW-Authenticate header of rejected requests
// (RFC 6750 section 3). The parameters known at startup are quoted once.
type challenge struct {
	prefix string
	suffix string
}

func newChallenge(realm, resourceURL string) challenge {
	if realm == "" {
		realm = defaultRealm
	}
	c := challenge{prefix: `Bearer realm=` + quote(realm)}
	if resourceURL != "" {
		c.suffix = `, resource_metadata=` + quote(strings.TrimSuffix(resourceURL, "/")+metadataPath)
	}
	return c
}

func (c challenge) header(code, description string) string {
	return c.prefix + `, error=` + quote(code) + `, error_description=` + quote(description) + c.suffix
}

// quote renders s as an RFC 9110 quoted-string. Control characters are
// dropped so that no value can end the header line.
func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch {
		case unicode.IsControl(r):
			continue
		case r == '"' || r == '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}
