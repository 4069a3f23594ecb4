// Package crawl discovers test cases by walking same-origin links from a
// start page, for sites with no catalog and no maintained page list.
package crawl

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hairizuan-noorazman/visreg/logger"
	"github.com/hairizuan-noorazman/visreg/source"
	"github.com/hairizuan-noorazman/visreg/testcase"
)

const defaultMaxPages = 25

// Config configures a crawl source.
type Config struct {
	// StartURL is the absolute URL the crawl begins at.
	StartURL string

	// MaxPages caps how many pages become cases. Zero or negative uses
	// the default of 25.
	MaxPages int
}

// Source lists one case per crawled page, breadth-first from the start
// page so the closest pages win when the cap cuts the crawl short.
type Source struct {
	startURL   *url.URL
	maxPages   int
	httpClient *http.Client
	logger     logger.Logger
}

// New creates a crawl source.
func New(config Config, log logger.Logger) (*Source, error) {
	if config.StartURL == "" {
		return nil, fmt.Errorf("crawl: start_url is required")
	}
	parsed, err := url.Parse(config.StartURL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return nil, fmt.Errorf("crawl: start_url must be an absolute http url, got %q", config.StartURL)
	}

	maxPages := config.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	return &Source{
		startURL:   parsed,
		maxPages:   maxPages,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log,
	}, nil
}

// Name identifies the source.
func (s *Source) Name() string {
	return "crawl"
}

// Start verifies the start page is reachable.
func (s *Source) Start(ctx context.Context) (source.Info, error) {
	resp, err := s.fetch(ctx, s.startURL)
	if err != nil {
		return source.Info{}, err
	}
	resp.Body.Close()

	origin := &url.URL{Scheme: s.startURL.Scheme, Host: s.startURL.Host}
	return source.Info{BaseURL: origin.String()}, nil
}

// ListCases walks the site breadth-first, collecting unique same-origin
// pages until the cap is reached. The start page failing is an error;
// broken links discovered along the way are logged and skipped.
func (s *Source) ListCases(ctx context.Context, query source.Query) ([]testcase.Descriptor, error) {
	visited := make(map[string]bool)
	queue := []*url.URL{s.startURL}
	descriptors := make([]testcase.Descriptor, 0, s.maxPages)

	for len(queue) > 0 && len(descriptors) < s.maxPages {
		current := queue[0]
		queue = queue[1:]

		key := pageKey(current)
		if visited[key] {
			continue
		}
		visited[key] = true

		resp, err := s.fetch(ctx, current)
		if err != nil {
			if len(descriptors) == 0 && key == pageKey(s.startURL) {
				return nil, err
			}
			s.logger.Warn(ctx, "skipping unreachable page", map[string]interface{}{
				"url":   current.String(),
				"error": err.Error(),
			})
			continue
		}

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		resp.Body.Close()
		if err != nil {
			s.logger.Warn(ctx, "skipping unparsable page", map[string]interface{}{
				"url":   current.String(),
				"error": err.Error(),
			})
			continue
		}

		descriptors = append(descriptors, testcase.Descriptor{
			ID:    pathSlug(current),
			Title: current.Path,
			URL:   current.String(),
		})

		queue = append(queue, s.collectLinks(doc, current, visited)...)
	}

	s.logger.Info(ctx, "crawl finished", map[string]interface{}{
		"start": s.startURL.String(),
		"pages": len(descriptors),
	})
	return descriptors, nil
}

func (s *Source) fetch(ctx context.Context, page *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("crawl: failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crawl: failed to fetch %s: %w", page, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("crawl: %s returned status %d", page, resp.StatusCode)
	}
	return resp, nil
}

// collectLinks gathers unvisited same-origin anchor targets in document
// order, so a crawl of an unchanged site stays deterministic.
func (s *Source) collectLinks(doc *goquery.Document, base *url.URL, visited map[string]bool) []*url.URL {
	var links []*url.URL
	seen := make(map[string]bool)

	doc.Find("a[href]").Each(func(i int, sel *goquery.Selection) {
		href, exists := sel.Attr("href")
		if !exists {
			return
		}
		link, err := base.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		if link.Scheme != s.startURL.Scheme || link.Host != s.startURL.Host {
			return
		}

		// Collapse query and fragment so each page is one case.
		link.RawQuery = ""
		link.Fragment = ""

		key := pageKey(link)
		if visited[key] || seen[key] {
			return
		}
		seen[key] = true
		links = append(links, link)
	})
	return links
}

func pageKey(page *url.URL) string {
	return strings.TrimRight(page.Path, "/")
}

// pathSlug derives a case id from the page path: "/" becomes "home",
// "/docs/getting-started" becomes "docs-getting-started".
func pathSlug(page *url.URL) string {
	trimmed := strings.Trim(page.Path, "/")
	if trimmed == "" {
		return "home"
	}
	return strings.ReplaceAll(trimmed, "/", "-")
}
