package verifier

import (
	"strings"
)

// NeedsLogin reports whether a page looks like an authentication page:
// the title mentions "sign in" or the URL mentions "login", ignoring case.
func NeedsLogin(title, url string) bool {
	return strings.Contains(strings.ToLower(title), "sign in") ||
		strings.Contains(strings.ToLower(url), "login")
}
