package markdown

import "regexp"

var (
	hrefAttr     = regexp.MustCompile(`href="([^"]+)"`)
	markdownLink = regexp.MustCompile(`\.md(#|$)`)
)

// RewriteLinks points every href ending in ".md" (optionally followed by a
// fragment) at the ".html" page built from it. Only the first ".md" match in
// each value is replaced. The rule is suffix based, so absolute URLs ending
// in ".md" are rewritten as well.
func RewriteLinks(html string) string {
	return hrefAttr.ReplaceAllStringFunc(html, func(attr string) string {
		value := attr[len(`href="`) : len(attr)-1]
		return `href="` + rewriteHref(value) + `"`
	})
}

func rewriteHref(href string) string {
	m := markdownLink.FindStringSubmatchIndex(href)
	if m == nil {
		return href
	}
	return href[:m[0]] + ".html" + href[m[2]:m[3]] + href[m[1]:]
}
