package pipeline

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// extractLinks applies each CSS selector to html and returns every
// resolved absolute href found, in document order, de-duplicated. A
// selector may match an anchor directly or a container with nested
// anchors; both are handled.
func extractLinks(html, baseURL string, selectors []string) ([]string, error) {
	if len(selectors) == 0 {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var out []string
	addHref := func(href string) {
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref).String()
		if _, ok := seen[resolved]; ok {
			return
		}
		seen[resolved] = struct{}{}
		out = append(out, resolved)
	}

	for _, selector := range selectors {
		doc.Find(selector).Each(func(_ int, node *goquery.Selection) {
			if href, ok := node.Attr("href"); ok {
				addHref(href)
				return
			}
			node.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
				if href, ok := a.Attr("href"); ok {
					addHref(href)
				}
			})
		})
	}
	return out, nil
}

// extractPaginationLink resolves the single "next page" href matched by
// selector, if any.
func extractPaginationLink(html, baseURL, selector string) (string, error) {
	links, err := extractLinks(html, baseURL, []string{selector})
	if err != nil || len(links) == 0 {
		return "", err
	}
	return links[0], nil
}
