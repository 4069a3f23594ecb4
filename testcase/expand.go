package testcase

import "sort"

// Matrix describes the run-level dimensions cases are crossed with.
type Matrix struct {
	// Viewports maps variant names to window sizes. Expansion walks the
	// names in sorted order so instance enumeration is deterministic.
	Viewports map[string]Viewport

	// Browsers lists the browsers every case is captured under. With more
	// than one, the browser becomes part of each instance's identity.
	Browsers []string

	// DefaultThreshold applies to cases without a threshold override.
	DefaultThreshold float64
}

type variant struct {
	key string
	vp  Viewport
}

// Expand crosses each descriptor with the viewport set and the configured
// browsers, producing concrete instances. A per-case viewport override
// fully replaces the global viewport map for that case, yielding a single
// variant keyed by the override. A per-case browser override pins the case
// to that one browser. Zero descriptors expand to zero instances.
func Expand(cases []Descriptor, m Matrix) []Instance {
	multiBrowser := len(m.Browsers) > 1
	browsers := m.Browsers
	if len(browsers) == 0 {
		browsers = []string{""}
	}

	names := make([]string, 0, len(m.Viewports))
	for name := range m.Viewports {
		names = append(names, name)
	}
	sort.Strings(names)

	var instances []Instance
	for _, c := range cases {
		var variants []variant
		if c.Viewport != nil {
			vp := *c.Viewport
			variants = []variant{{key: vp.Key(), vp: vp}}
		} else {
			for _, name := range names {
				vp := m.Viewports[name]
				vp.Name = name
				variants = append(variants, variant{key: name, vp: vp})
			}
		}

		threshold := m.DefaultThreshold
		if c.Threshold != nil {
			threshold = *c.Threshold
		}

		caseBrowsers := browsers
		if c.Browser != "" {
			caseBrowsers = []string{c.Browser}
		}

		for _, b := range caseBrowsers {
			// The browser segment appears in identities only when the run
			// enumerates more than one browser
			tag := ""
			if multiBrowser {
				tag = b
			}
			for _, v := range variants {
				instances = append(instances, Instance{
					ID:                  InstanceID(c.ID, v.key, tag),
					CaseID:              c.ID,
					VariantID:           v.key,
					URL:                 c.URL,
					Viewport:            v.vp,
					Threshold:           threshold,
					Browser:             b,
					Target:              c.Target,
					Interactions:        c.Interactions,
					MaskSelectors:       c.MaskSelectors,
					DisableCSSInjection: c.DisableCSSInjection,
				})
			}
		}
	}

	return instances
}
