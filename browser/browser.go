package browser

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotInitialized is returned when pages are requested from an
	// adapter whose Init has not succeeded yet.
	ErrNotInitialized = errors.New("browser adapter not initialized")

	// ErrUnknownAdapter is returned for adapter names no factory covers.
	ErrUnknownAdapter = errors.New("unknown browser adapter")
)

// Options configures a browser adapter. Two adapters with equal options
// are interchangeable, which is what lets the pool share instances; the
// struct must stay JSON-serializable for that reason.
type Options struct {
	Headless          bool          `json:"headless"`
	ExecPath          string        `json:"exec_path,omitempty"`
	NoSandbox         bool          `json:"no_sandbox,omitempty"`
	Args              []string      `json:"args,omitempty"`
	NavigationTimeout time.Duration `json:"navigation_timeout,omitempty"`
	WaitTimeout       time.Duration `json:"wait_timeout,omitempty"`
}

func (o Options) navigationTimeout() time.Duration {
	if o.NavigationTimeout > 0 {
		return o.NavigationTimeout
	}
	return defaultNavigationTimeout
}

func (o Options) waitTimeout() time.Duration {
	if o.WaitTimeout > 0 {
		return o.WaitTimeout
	}
	return defaultWaitTimeout
}

// ShotMeta describes a captured screenshot.
type ShotMeta struct {
	Width   int
	Height  int
	TakenAt time.Time
}

// Shot is a single captured screenshot, PNG-encoded.
type Shot struct {
	Data []byte
	Meta ShotMeta
}

// CaptureOptions selects what part of the page to capture. An empty
// selector captures the viewport.
type CaptureOptions struct {
	Selector string
}

// Page is one isolated browser page. Implementations guarantee that
// state from previously closed pages (cookies, storage) does not leak in.
type Page interface {
	Navigate(ctx context.Context, url string) error
	SetViewport(ctx context.Context, width, height int) error
	WaitVisible(ctx context.Context, selector string) error
	WaitDelay(ctx context.Context, delay time.Duration) error
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	Press(ctx context.Context, key string) error
	Hover(ctx context.Context, selector string) error
	ScrollTo(ctx context.Context, y int) error
	AddStyle(ctx context.Context, css string) error
	Capture(ctx context.Context, opts CaptureOptions) (*Shot, error)
	Close(ctx context.Context) error
}

// Adapter drives one browser process. Init is idempotent; OpenPage may
// only be called after a successful Init.
type Adapter interface {
	Name() string
	Init(ctx context.Context, opts Options) error
	OpenPage(ctx context.Context, url string) (Page, error)
	Dispose(ctx context.Context) error
}

// Factory creates an uninitialized adapter for the given name.
type Factory func(name string, opts Options) (Adapter, error)
