// Package catalog holds product catalog helpers shared by the admin API
// and the CLI.
package catalog

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	slugPattern  = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

	// NFD then strip combining marks, so "Café" slugs to "cafe".
	deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Slugify derives a URL-safe slug from a product name. Diacritics are
// stripped rather than dropped, so non-ASCII names still produce readable
// slugs. Returns "" when nothing usable remains.
func Slugify(name string) string {
	s, _, err := transform.String(deaccent, name)
	if err != nil {
		s = name
	}
	s = strings.ToLower(s)
	s = nonSlugChars.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// IsValidSlug reports whether s is an acceptable product slug: lowercase
// alphanumerics and single hyphens, no leading or trailing hyphen.
func IsValidSlug(s string) bool {
	if len(s) == 0 || len(s) > 120 {
		return false
	}
	return slugPattern.MatchString(s)
}
