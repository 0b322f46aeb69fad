// Package scraper implements C5: fetch a URL, sanitize its DOM, and
// optionally convert the remainder to Markdown. Adapted from the donor's
// Colly-based HTMLScraper, replacing the collector with a direct
// goquery.Document per call (the donor's per-call Clone() already treated
// the collector as disposable state; a fresh client/document per call
// keeps that behavior without Colly's crawl-frontier machinery, which
// C8.2's own BFS in internal/pipeline supersedes).
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

// Result is one fetched and sanitized page.
type Result struct {
	URL         string
	StatusCode  int
	ContentType string
	Title       string
	RawHTML     string
	Markdown    string
}

// Scraper fetches and sanitizes HTML pages, optionally rendering Markdown.
type Scraper struct {
	httpClient *http.Client
	cookies    map[string]string
	limiter    *rate.Limiter // soft outbound QPS guard, independent of C2
	logger     arbor.ILogger
}

// New constructs a Scraper. qps <= 0 disables the outbound rate guard.
func New(timeout time.Duration, cookies map[string]string, qps float64, logger arbor.ILogger) *Scraper {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var limiter *rate.Limiter
	if qps > 0 {
		limiter = rate.NewLimiter(rate.Limit(qps), 1)
	}
	return &Scraper{
		httpClient: &http.Client{Timeout: timeout},
		cookies:    cookies,
		limiter:    limiter,
		logger:     logger,
	}
}

// unwantedSelectors strips boilerplate chrome the donor scraper also
// removes before extracting content (nav/header/footer/aside/ads), plus
// elements whose presence would otherwise leak into the rendered markdown
// (scripts, styles, forms, inline event handlers).
var unwantedSelectors = []string{
	"nav", "header", "footer", "aside", "script", "style", "noscript", "form",
	"[class*=ad]", "[id*=ad]", "[class*=promo]", "[class*=sidebar]",
}

// Fetch retrieves targetURL, asserts an HTML content-type, and returns the
// sanitized document. convertMarkdown controls whether html-to-markdown
// conversion also runs (callers that only need link discovery skip it).
func (s *Scraper) Fetch(ctx context.Context, targetURL string, convertMarkdown bool) (*Result, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", targetURL, err)
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; lorecard-scraper/1.0)")
	for name, value := range s.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", targetURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: status %d", targetURL, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "html") && !strings.Contains(contentType, "xml") {
		return nil, fmt.Errorf("fetch %s: unsupported content-type %q", targetURL, contentType)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", targetURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse html of %s: %w", targetURL, err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	sanitize(doc.Selection)

	rawHTML, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("serialize sanitized html of %s: %w", targetURL, err)
	}

	result := &Result{
		URL:         targetURL,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Title:       title,
		RawHTML:     rawHTML,
	}

	if convertMarkdown {
		converter := md.NewConverter(targetURL, true, nil)
		markdown, err := converter.ConvertString(rawHTML)
		if err != nil {
			return nil, fmt.Errorf("convert %s to markdown: %w", targetURL, err)
		}
		result.Markdown = markdown
	}

	return result, nil
}

func sanitize(sel *goquery.Selection) {
	for _, selector := range unwantedSelectors {
		sel.Find(selector).Remove()
	}
	sel.Find("*").Each(func(_ int, node *goquery.Selection) {
		for _, attr := range []string{"style", "onclick", "onload", "onerror", "target", "src"} {
			node.RemoveAttr(attr)
		}
		if len(node.Nodes) == 0 {
			return
		}
		toRemove := make([]string, 0, len(node.Nodes[0].Attr))
		for _, attr := range node.Nodes[0].Attr {
			if strings.HasPrefix(attr.Key, "on") || strings.HasPrefix(attr.Key, "aria-") || strings.HasPrefix(attr.Key, "data-") {
				toRemove = append(toRemove, attr.Key)
			}
		}
		for _, key := range toRemove {
			node.RemoveAttr(key)
		}
	})
}
