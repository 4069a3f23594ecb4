package testcase

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingID is returned when a descriptor has no id.
	ErrMissingID = errors.New("case id is required")

	// ErrMissingURL is returned when a descriptor has no url.
	ErrMissingURL = errors.New("case url is required")

	// ErrInvalidViewport is returned when viewport dimensions are not positive.
	ErrInvalidViewport = errors.New("viewport dimensions must be positive")

	// ErrInvalidAction is returned when an interaction has an unknown action.
	ErrInvalidAction = errors.New("invalid interaction action")

	// ErrMissingSelector is returned when an interaction needs a selector but has none.
	ErrMissingSelector = errors.New("interaction selector is required")

	// ErrMissingKey is returned when a press interaction has no key.
	ErrMissingKey = errors.New("interaction key is required")

	// ErrInvalidDelay is returned when a wait interaction has a non-positive delay.
	ErrInvalidDelay = errors.New("interaction delay must be positive")
)

// Viewport is a named browser window size.
type Viewport struct {
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
	Width  int    `json:"width" yaml:"width"`
	Height int    `json:"height" yaml:"height"`
}

// Key returns the identity of the viewport within a matrix: its name when
// set, otherwise its dimensions as "WxH".
func (v Viewport) Key() string {
	if v.Name != "" {
		return v.Name
	}
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}

// Validate checks that the viewport has positive dimensions.
func (v Viewport) Validate() error {
	if v.Width <= 0 || v.Height <= 0 {
		return fmt.Errorf("%w: got %dx%d", ErrInvalidViewport, v.Width, v.Height)
	}
	return nil
}

// Action is the kind of a scripted interaction step.
type Action string

const (
	ActionClick  Action = "click"
	ActionType   Action = "type"
	ActionHover  Action = "hover"
	ActionPress  Action = "press"
	ActionScroll Action = "scroll"
	ActionWait   Action = "wait"
)

// IsValid checks if the action is one of the supported kinds.
func (a Action) IsValid() bool {
	switch a {
	case ActionClick, ActionType, ActionHover, ActionPress, ActionScroll, ActionWait:
		return true
	}
	return false
}

// Interaction is one step of a per-case interaction script. Steps run
// strictly in order during capture; a step blocks until it completes.
type Interaction struct {
	Action   Action `json:"action" yaml:"action"`
	Selector string `json:"selector,omitempty" yaml:"selector,omitempty"`
	Text     string `json:"text,omitempty" yaml:"text,omitempty"`
	Key      string `json:"key,omitempty" yaml:"key,omitempty"`
	DelayMs  int    `json:"delay_ms,omitempty" yaml:"delay_ms,omitempty"`
	Y        int    `json:"y,omitempty" yaml:"y,omitempty"`
}

// Validate checks that the interaction carries the fields its action needs.
func (i Interaction) Validate() error {
	switch i.Action {
	case ActionClick, ActionType, ActionHover:
		if i.Selector == "" {
			return fmt.Errorf("%w for action %q", ErrMissingSelector, i.Action)
		}
	case ActionPress:
		if i.Key == "" {
			return ErrMissingKey
		}
	case ActionWait:
		if i.DelayMs <= 0 {
			return ErrInvalidDelay
		}
	case ActionScroll:
		// Y of zero scrolls back to the top; nothing to check
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAction, i.Action)
	}
	return nil
}

// Descriptor is an abstract test case discovered from a source. It is
// immutable after discovery; per-case overrides replace the run-level
// defaults during matrix expansion.
type Descriptor struct {
	ID                  string
	Title               string
	URL                 string
	Skip                bool
	Target              string
	Threshold           *float64
	Viewport            *Viewport
	Browser             string
	Interactions        []Interaction
	MaskSelectors       []string
	DisableCSSInjection bool
}

// Validate checks the descriptor's required fields and its overrides.
func (d Descriptor) Validate() error {
	if d.ID == "" {
		return ErrMissingID
	}
	if d.URL == "" {
		return fmt.Errorf("%w: case %q", ErrMissingURL, d.ID)
	}
	if d.Viewport != nil {
		if err := d.Viewport.Validate(); err != nil {
			return fmt.Errorf("case %q: %w", d.ID, err)
		}
	}
	for idx, interaction := range d.Interactions {
		if err := interaction.Validate(); err != nil {
			return fmt.Errorf("case %q interaction %d: %w", d.ID, idx, err)
		}
	}
	return nil
}
