package sugya

import (
	"regexp"
	"strings"

	"github.com/Super-Meta77/sefaria-backend/internal/domain"
)

var (
	pageTokenRe = regexp.MustCompile(`(\d+[ab])`)
	tractateRe  = regexp.MustCompile(`([A-Za-z]+)\s+\d+[ab]`)
	htmlTagRe   = regexp.MustCompile(`<[^>]*>`)
)

const unknownTractate = "Unknown"

// PageToken returns the first "{digits}{a|b}" token of a text id, or "".
func PageToken(id string) string {
	return pageTokenRe.FindString(id)
}

// TractateOf returns the single-word tractate name preceding the page token.
// Multi-word tractates resolve to their last word ("Bava Metzia 2a" -> "Metzia").
func TractateOf(id string) string {
	m := tractateRe.FindStringSubmatch(id)
	if len(m) < 2 {
		return unknownTractate
	}
	return m[1]
}

// GroupByPage partitions units into page groups keyed "{tractate} {page}".
// Units without a page token are dropped. When page is non-empty only that page's
// groups survive. Groups keep first-appearance order and members keep input order.
func GroupByPage(units []domain.TextUnit, page string) []domain.PageGroup {
	page = strings.TrimSpace(page)
	out := make([]domain.PageGroup, 0)
	index := map[string]int{}
	for _, u := range units {
		tok := PageToken(u.ID)
		if tok == "" {
			continue
		}
		if page != "" && tok != page {
			continue
		}
		key := TractateOf(u.ID) + " " + tok
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, domain.PageGroup{PageRef: key})
		}
		out[i].Members = append(out[i].Members, u)
	}
	return out
}

// CombineText concatenates the primary content of the units with blank lines between
// members. HTML markup is stripped and empty members are skipped.
func CombineText(units []domain.TextUnit) string {
	parts := make([]string, 0, len(units))
	for _, u := range units {
		s := strings.TrimSpace(StripHTML(strings.Join(u.ContentPrimary, " ")))
		if s == "" {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n\n")
}

func StripHTML(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	return htmlTagRe.ReplaceAllString(s, "")
}
