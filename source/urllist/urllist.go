// Package urllist discovers test cases from a hand-maintained YAML file,
// for targets that have no introspectable catalog.
package urllist

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hairizuan-noorazman/visreg/logger"
	"github.com/hairizuan-noorazman/visreg/source"
	"github.com/hairizuan-noorazman/visreg/testcase"
)

// Config configures a urllist source.
type Config struct {
	// Path points at the YAML page list.
	Path string
}

// Source lists one case per page entry in the file.
type Source struct {
	path   string
	logger logger.Logger
}

// New creates a urllist source.
func New(config Config, log logger.Logger) (*Source, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("urllist: path is required")
	}
	return &Source{path: config.Path, logger: log}, nil
}

// Name identifies the source.
func (s *Source) Name() string {
	return "urllist"
}

// Start surfaces an unreadable file before the run invests in browser
// startup, and hands the file's base_url to discovery.
func (s *Source) Start(ctx context.Context) (source.Info, error) {
	file, err := s.load()
	if err != nil {
		return source.Info{}, err
	}
	return source.Info{BaseURL: file.BaseURL}, nil
}

// ListCases maps every page entry to a descriptor, rejecting the whole
// file when any entry is malformed.
func (s *Source) ListCases(ctx context.Context, query source.Query) ([]testcase.Descriptor, error) {
	file, err := s.load()
	if err != nil {
		return nil, err
	}

	descriptors := make([]testcase.Descriptor, 0, len(file.Pages))
	for i, page := range file.Pages {
		descriptor := testcase.Descriptor{
			ID:                  page.ID,
			Title:               page.Title,
			URL:                 page.URL,
			Skip:                page.Skip,
			Target:              page.Target,
			Threshold:           page.Threshold,
			Viewport:            page.Viewport,
			Browser:             page.Browser,
			Interactions:        page.Interactions,
			MaskSelectors:       page.MaskSelectors,
			DisableCSSInjection: page.DisableCSSInjection,
		}
		if err := descriptor.Validate(); err != nil {
			return nil, fmt.Errorf("urllist: %s: page %d: %w", s.path, i, err)
		}
		descriptors = append(descriptors, descriptor)
	}

	s.logger.Info(ctx, "url list pages listed", map[string]interface{}{
		"path":  s.path,
		"pages": len(descriptors),
	})
	return descriptors, nil
}

func (s *Source) load() (*pageFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("urllist: failed to read %s: %w", s.path, err)
	}

	var file pageFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("urllist: failed to parse %s: %w", s.path, err)
	}
	return &file, nil
}

// pageFile is the on-disk format. Page entries carry the same override
// surface a storybook story can declare.
type pageFile struct {
	BaseURL string     `yaml:"base_url"`
	Pages   []pageSpec `yaml:"pages"`
}

type pageSpec struct {
	ID                  string                 `yaml:"id"`
	Title               string                 `yaml:"title"`
	URL                 string                 `yaml:"url"`
	Skip                bool                   `yaml:"skip"`
	Target              string                 `yaml:"target"`
	Threshold           *float64               `yaml:"threshold"`
	Viewport            *testcase.Viewport     `yaml:"viewport"`
	Browser             string                 `yaml:"browser"`
	MaskSelectors       []string               `yaml:"mask_selectors"`
	DisableCSSInjection bool                   `yaml:"disable_css_injection"`
	Interactions        []testcase.Interaction `yaml:"interactions"`
}
