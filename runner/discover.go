package runner

import (
	"context"
	"fmt"
	"net/url"

	"github.com/hairizuan-noorazman/visreg/logger"
	"github.com/hairizuan-noorazman/visreg/source"
	"github.com/hairizuan-noorazman/visreg/testcase"
)

// discover walks every configured source and produces the run's concrete
// instance set: start the source when it supports starting, list its
// cases, resolve relative URLs against the reported base, merge across
// sources, then filter and expand. Source failures are fatal; duplicate
// ids are resolved first-wins with a warning.
func discover(ctx context.Context, sources []source.Source, filter *testcase.Filter, matrix testcase.Matrix, log logger.Logger) ([]testcase.Instance, error) {
	var merged []testcase.Descriptor
	claimed := make(map[string]string)

	for _, src := range sources {
		var info source.Info
		if starter, ok := src.(source.Starter); ok {
			var err error
			info, err = starter.Start(ctx)
			if err != nil {
				return nil, fmt.Errorf("source %s failed to start: %w", src.Name(), err)
			}
		}

		cases, err := src.ListCases(ctx, source.Query{})
		if err != nil {
			return nil, fmt.Errorf("source %s failed to list cases: %w", src.Name(), err)
		}

		resolved, err := resolveCaseURLs(cases, info.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name(), err)
		}

		for _, c := range resolved {
			if owner, taken := claimed[c.ID]; taken {
				log.Warn(ctx, "dropping duplicate test case", map[string]interface{}{
					"id":         c.ID,
					"source":     src.Name(),
					"claimed_by": owner,
				})
				continue
			}
			claimed[c.ID] = src.Name()
			merged = append(merged, c)
		}
	}

	kept := filter.Apply(merged)
	instances := testcase.Expand(kept, matrix)

	log.Info(ctx, "discovery complete", map[string]interface{}{
		"sources":    len(sources),
		"discovered": len(merged),
		"selected":   len(kept),
		"instances":  len(instances),
	})

	return instances, nil
}

// resolveCaseURLs rewrites relative descriptor URLs against the source's
// base URL. A relative URL from a source that reported no base is a
// configuration error.
func resolveCaseURLs(cases []testcase.Descriptor, baseURL string) ([]testcase.Descriptor, error) {
	var base *url.URL
	if baseURL != "" {
		var err error
		base, err = url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
		}
	}

	resolved := make([]testcase.Descriptor, 0, len(cases))
	for _, c := range cases {
		parsed, err := url.Parse(c.URL)
		if err != nil {
			return nil, fmt.Errorf("case %s has invalid url %q: %w", c.ID, c.URL, err)
		}
		if !parsed.IsAbs() {
			if base == nil {
				return nil, fmt.Errorf("case %s has relative url %q but the source reported no base url", c.ID, c.URL)
			}
			c.URL = base.ResolveReference(parsed).String()
		}
		resolved = append(resolved, c)
	}
	return resolved, nil
}
