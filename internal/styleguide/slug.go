package styleguide

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonWord      = regexp.MustCompile(`[^\w\s-]`)
	separators   = regexp.MustCompile(`[\s-]+`)
	docIDPattern = regexp.MustCompile(`/document/d/([a-zA-Z0-9_-]+)`)
)

// Slugify lowercases s, strips diacritics, drops non-word characters and
// collapses whitespace and hyphens into single hyphens.
// Slugify("Acme Müller & Co.") == "acme-muller-co".
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	slug := strings.ToLower(folded)
	slug = nonWord.ReplaceAllString(slug, "")
	slug = strings.TrimSpace(slug)
	slug = separators.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// DocumentID extracts the Google Docs document id from a link. Links that
// are not Docs documents yield "".
func DocumentID(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	if u, err := url.Parse(link); err == nil && u.Path != "" {
		link = u.Path
	} else if i := strings.IndexAny(link, "?#"); i >= 0 {
		link = link[:i]
	}

	m := docIDPattern.FindStringSubmatch(link)
	if m == nil {
		return ""
	}
	return m[1]
}
