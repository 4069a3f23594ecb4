package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/hairizuan-noorazman/visreg/logger"
)

const (
	// AdapterChrome is the factory name of the chromedp-backed adapter.
	AdapterChrome = "chrome"

	defaultNavigationTimeout = 30 * time.Second
	defaultWaitTimeout       = 10 * time.Second
)

// DefaultFactory creates the adapters shipped with this module. An empty
// name falls back to chrome.
func DefaultFactory(log logger.Logger) Factory {
	return func(name string, opts Options) (Adapter, error) {
		switch strings.ToLower(name) {
		case "", AdapterChrome:
			return NewChromeAdapter(log), nil
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownAdapter, name)
		}
	}
}

// ChromeAdapter drives one headless Chrome process over the DevTools
// protocol. Pages are individual tabs sharing the process.
type ChromeAdapter struct {
	logger logger.Logger

	mu            sync.Mutex
	opts          Options
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	started       bool
}

// NewChromeAdapter creates an adapter that launches on Init.
func NewChromeAdapter(log logger.Logger) *ChromeAdapter {
	return &ChromeAdapter{logger: log}
}

// Name identifies the adapter in factories and pool keys.
func (a *ChromeAdapter) Name() string {
	return AdapterChrome
}

// Init launches the browser process eagerly so configuration problems
// surface here instead of on the first page. Calling Init on a started
// adapter is a no-op.
func (a *ChromeAdapter) Init(ctx context.Context, opts Options) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return nil
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.NoSandbox {
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}
	for _, arg := range opts.Args {
		name, value := splitArg(arg)
		allocOpts = append(allocOpts, chromedp.Flag(name, value))
	}

	// The process outlives the acquiring call, so the allocator hangs off
	// Background rather than ctx.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("failed to launch chrome: %w", err)
	}

	a.opts = opts
	a.allocCancel = allocCancel
	a.browserCtx = browserCtx
	a.browserCancel = browserCancel
	a.started = true

	a.logger.Debug(ctx, "chrome launched", map[string]interface{}{
		"headless": opts.Headless,
	})
	return nil
}

// OpenPage opens a fresh tab with cleared cookies. When url is empty the
// tab stays blank so callers can set a viewport before navigating.
func (a *ChromeAdapter) OpenPage(ctx context.Context, url string) (Page, error) {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return nil, ErrNotInitialized
	}
	browserCtx := a.browserCtx
	opts := a.opts
	a.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	page := &chromePage{
		ctx:         tabCtx,
		cancel:      tabCancel,
		navTimeout:  opts.navigationTimeout(),
		waitTimeout: opts.waitTimeout(),
	}

	// Cookies live per process, not per tab; clear them so one case
	// cannot leak session state into the next.
	if err := page.run(ctx, page.waitTimeout, network.ClearBrowserCookies()); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to reset browser state: %w", err)
	}

	if url != "" {
		if err := page.Navigate(ctx, url); err != nil {
			tabCancel()
			return nil, err
		}
	}
	return page, nil
}

// Dispose shuts the browser process down. Safe to call on an adapter
// that never started.
func (a *ChromeAdapter) Dispose(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}
	a.started = false

	err := chromedp.Cancel(a.browserCtx)
	a.browserCancel()
	a.allocCancel()
	if err != nil {
		return fmt.Errorf("failed to shut down chrome: %w", err)
	}
	return nil
}

// chromePage is one tab. Every step runs against the tab context with a
// per-step timeout taken from the adapter options.
type chromePage struct {
	ctx         context.Context
	cancel      context.CancelFunc
	navTimeout  time.Duration
	waitTimeout time.Duration
}

// run executes actions with a step timeout; caller cancellation aborts
// the step as well.
func (p *chromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, p.navTimeout, chromedp.Navigate(url))
}

func (p *chromePage) SetViewport(ctx context.Context, width, height int) error {
	return p.run(ctx, p.waitTimeout, chromedp.EmulateViewport(int64(width), int64(height)))
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string) error {
	return p.run(ctx, p.waitTimeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *chromePage) WaitDelay(ctx context.Context, delay time.Duration) error {
	return p.run(ctx, delay+p.waitTimeout, chromedp.Sleep(delay))
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, p.waitTimeout, chromedp.Click(selector, chromedp.ByQuery))
}

func (p *chromePage) Type(ctx context.Context, selector, text string) error {
	return p.run(ctx, p.waitTimeout, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

func (p *chromePage) Press(ctx context.Context, key string) error {
	return p.run(ctx, p.waitTimeout, chromedp.KeyEvent(resolveKey(key)))
}

// Hover moves the mouse to the element's center. A real input event is
// needed here; synthetic DOM events do not trigger :hover styles.
func (p *chromePage) Hover(ctx context.Context, selector string) error {
	return p.run(ctx, p.waitTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.QueryAfter(selector, func(ctx context.Context, execCtx runtime.ExecutionContextID, nodes ...*cdp.Node) error {
			if len(nodes) == 0 {
				return fmt.Errorf("no element matches selector %q", selector)
			}
			box, err := dom.GetBoxModel().WithNodeID(nodes[0].NodeID).Do(ctx)
			if err != nil {
				return fmt.Errorf("failed to locate element %q: %w", selector, err)
			}
			x, y := quadCenter(box.Content)
			return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
		}, chromedp.ByQuery),
	)
}

func (p *chromePage) ScrollTo(ctx context.Context, y int) error {
	return p.run(ctx, p.waitTimeout, chromedp.Evaluate(fmt.Sprintf("window.scrollTo(0, %d)", y), nil))
}

// AddStyle injects a stylesheet into the page head.
func (p *chromePage) AddStyle(ctx context.Context, css string) error {
	encoded, err := json.Marshal(css)
	if err != nil {
		return fmt.Errorf("failed to encode stylesheet: %w", err)
	}
	expr := fmt.Sprintf(`(() => {
	const style = document.createElement("style");
	style.appendChild(document.createTextNode(%s));
	document.head.appendChild(style);
})()`, encoded)
	return p.run(ctx, p.waitTimeout, chromedp.Evaluate(expr, nil))
}

// Capture screenshots the selected element, or the viewport when the
// selector is empty.
func (p *chromePage) Capture(ctx context.Context, opts CaptureOptions) (*Shot, error) {
	var data []byte
	var action chromedp.Action
	if opts.Selector != "" {
		action = chromedp.Screenshot(opts.Selector, &data, chromedp.NodeVisible, chromedp.ByQuery)
	} else {
		action = chromedp.CaptureScreenshot(&data)
	}
	if err := p.run(ctx, p.navTimeout, action); err != nil {
		return nil, err
	}

	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("browser returned an unreadable screenshot: %w", err)
	}

	return &Shot{
		Data: data,
		Meta: ShotMeta{
			Width:   cfg.Width,
			Height:  cfg.Height,
			TakenAt: time.Now(),
		},
	}, nil
}

// Close releases the tab. The browser process stays up for other pages.
func (p *chromePage) Close(ctx context.Context) error {
	err := chromedp.Cancel(p.ctx)
	p.cancel()
	return err
}

// splitArg turns a raw command line argument like "--disable-gpu" or
// "lang=en-US" into a chromedp flag name and value.
func splitArg(arg string) (string, interface{}) {
	arg = strings.TrimLeft(arg, "-")
	if name, value, found := strings.Cut(arg, "="); found {
		return name, value
	}
	return arg, true
}

// quadCenter returns the center point of a DOM quad.
func quadCenter(q dom.Quad) (float64, float64) {
	if len(q) < 8 {
		return 0, 0
	}
	x := (q[0] + q[2] + q[4] + q[6]) / 4
	y := (q[1] + q[3] + q[5] + q[7]) / 4
	return x, y
}

// resolveKey maps a key name from a test case onto the raw sequence
// chromedp's keyboard layer expects. Single characters pass through.
func resolveKey(key string) string {
	switch key {
	case "Enter":
		return kb.Enter
	case "Tab":
		return kb.Tab
	case "Escape":
		return kb.Escape
	case "Backspace":
		return kb.Backspace
	case "Delete":
		return kb.Delete
	case "ArrowUp":
		return kb.ArrowUp
	case "ArrowDown":
		return kb.ArrowDown
	case "ArrowLeft":
		return kb.ArrowLeft
	case "ArrowRight":
		return kb.ArrowRight
	case "Home":
		return kb.Home
	case "End":
		return kb.End
	case "PageUp":
		return kb.PageUp
	case "PageDown":
		return kb.PageDown
	case "Space":
		return " "
	}
	return key
}
