// Package sanitize strips HTML markup from user-supplied free text before it
// is stored or broadcast, so a malicious ticker, condition, or page name can
// never carry a stored XSS payload into another user's client.
package sanitize

import "github.com/microcosm-cc/bluemonday"

var policy = bluemonday.StrictPolicy()

// Text removes all HTML markup from s, leaving the underlying text content.
func Text(s string) string {
	return policy.Sanitize(s)
}
