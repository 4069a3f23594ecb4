package testcase

import "strings"

// Instance is a concrete, capturable unit produced by matrix expansion:
// one case crossed with one viewport variant and one browser. Its ID is
// the canonical identity the capture and compare stages address storage by.
type Instance struct {
	ID                  string
	CaseID              string
	VariantID           string
	URL                 string
	Viewport            Viewport
	Threshold           float64
	Browser             string
	Target              string
	Interactions        []Interaction
	MaskSelectors       []string
	DisableCSSInjection bool
}

// Filename returns the storage filename for the instance's screenshot.
func (i Instance) Filename() string {
	return i.ID + ".png"
}

// InstanceID builds the canonical instance identity. The browser segment
// is appended only when given; runs enumerating a single browser leave it
// empty so filenames stay short. The result is deterministic for a fixed
// (caseID, variantID, browser) triple.
func InstanceID(caseID, variantID, browser string) string {
	id := sanitizeComponent(caseID) + "-" + sanitizeComponent(variantID)
	if browser != "" {
		id += "--" + sanitizeComponent(browser)
	}
	return id
}

// sanitizeComponent lowercases an identity component and maps every rune
// outside [-a-z0-9_] to an underscore, keeping filenames portable.
func sanitizeComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
