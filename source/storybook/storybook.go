// Package storybook discovers test cases from a running Storybook server
// by reading its story catalog.
package storybook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/hairizuan-noorazman/visreg/logger"
	"github.com/hairizuan-noorazman/visreg/source"
	"github.com/hairizuan-noorazman/visreg/testcase"
)

var errCatalogMissing = errors.New("storybook: catalog not found")

// Config configures a storybook source.
type Config struct {
	// URL is the storybook server root, e.g. http://localhost:6006.
	URL string
}

// Source lists one case per story. Stories opt out or tune themselves
// through a "visreg" parameter block in their payload.
type Source struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.Logger
}

// New creates a storybook source.
func New(config Config, log logger.Logger) (*Source, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("storybook: url is required")
	}
	return &Source{
		baseURL:    strings.TrimRight(config.URL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log,
	}, nil
}

// Name identifies the source.
func (s *Source) Name() string {
	return "storybook"
}

// Start probes the capture surface so an unreachable storybook fails the
// run before any browser starts.
func (s *Source) Start(ctx context.Context) (source.Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/iframe.html", nil)
	if err != nil {
		return source.Info{}, fmt.Errorf("storybook: failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return source.Info{}, fmt.Errorf("storybook: server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return source.Info{}, fmt.Errorf("storybook: iframe.html returned status %d", resp.StatusCode)
	}
	return source.Info{BaseURL: s.baseURL}, nil
}

// ListCases fetches the story catalog and maps each renderable story to a
// descriptor. URLs are returned relative to the server root.
func (s *Source) ListCases(ctx context.Context, query source.Query) ([]testcase.Descriptor, error) {
	entries, err := s.fetchIndex(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	descriptors := make([]testcase.Descriptor, 0, len(entries))
	for _, id := range ids {
		entry := entries[id]
		if entry.Type == "docs" || entry.Parameters.DocsOnly {
			continue
		}
		if entry.ID == "" {
			entry.ID = id
		}

		descriptor := testcase.Descriptor{
			ID:    entry.ID,
			Title: storyTitle(entry),
			URL:   fmt.Sprintf("iframe.html?id=%s&viewMode=story", url.QueryEscape(entry.ID)),
		}
		if p := entry.Parameters.Visreg; p != nil {
			descriptor.Skip = p.Skip
			descriptor.Target = p.Target
			descriptor.Threshold = p.Threshold
			descriptor.Viewport = p.Viewport
			descriptor.Browser = p.Browser
			descriptor.MaskSelectors = p.MaskSelectors
			descriptor.Interactions = p.Interactions
			descriptor.DisableCSSInjection = p.DisableCSSInjection
		}
		if err := descriptor.Validate(); err != nil {
			return nil, fmt.Errorf("storybook: story %q has invalid parameters: %w", entry.ID, err)
		}
		descriptors = append(descriptors, descriptor)
	}

	s.logger.Info(ctx, "storybook stories listed", map[string]interface{}{
		"url":     s.baseURL,
		"stories": len(descriptors),
	})
	return descriptors, nil
}

// fetchIndex tries the modern catalog first and falls back to the legacy
// one so older storybooks keep working.
func (s *Source) fetchIndex(ctx context.Context) (map[string]storyEntry, error) {
	entries, err := s.fetchCatalog(ctx, "/index.json")
	if err == nil {
		return entries, nil
	}
	if !errors.Is(err, errCatalogMissing) {
		return nil, err
	}

	s.logger.Debug(ctx, "index.json not available, trying stories.json", map[string]interface{}{
		"url": s.baseURL,
	})

	entries, err = s.fetchCatalog(ctx, "/stories.json")
	if errors.Is(err, errCatalogMissing) {
		return nil, fmt.Errorf("storybook: neither index.json nor stories.json found at %s", s.baseURL)
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Source) fetchCatalog(ctx context.Context, path string) (map[string]storyEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("storybook: failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("storybook: failed to reach %s: %w", s.baseURL+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errCatalogMissing
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("storybook: fetching %s failed with status %d: %s", path, resp.StatusCode, string(body))
	}

	var payload catalogPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("storybook: failed to decode %s: %w", path, err)
	}

	if payload.Entries != nil {
		return payload.Entries, nil
	}
	return payload.Stories, nil
}

// catalogPayload covers both catalog generations: index.json (v7+) keys
// stories under "entries", stories.json (v6) under "stories".
type catalogPayload struct {
	V       int                   `json:"v"`
	Entries map[string]storyEntry `json:"entries"`
	Stories map[string]storyEntry `json:"stories"`
}

type storyEntry struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	Parameters storyParameters `json:"parameters"`
}

type storyParameters struct {
	DocsOnly bool        `json:"docsOnly"`
	Visreg   *caseParams `json:"visreg"`
}

// caseParams is the per-story override surface exposed to story authors.
type caseParams struct {
	Skip                bool                   `json:"skip"`
	Target              string                 `json:"target"`
	Threshold           *float64               `json:"threshold"`
	Viewport            *testcase.Viewport     `json:"viewport"`
	Browser             string                 `json:"browser"`
	MaskSelectors       []string               `json:"mask_selectors"`
	Interactions        []testcase.Interaction `json:"interactions"`
	DisableCSSInjection bool                   `json:"disable_css_injection"`
}

func storyTitle(entry storyEntry) string {
	if entry.Title == "" {
		return entry.Name
	}
	if entry.Name == "" {
		return entry.Title
	}
	return entry.Title + "/" + entry.Name
}
