package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hairizuan-noorazman/visreg/browser"
	"github.com/hairizuan-noorazman/visreg/compare"
	"github.com/hairizuan-noorazman/visreg/logger"
	"github.com/hairizuan-noorazman/visreg/source"
	"github.com/hairizuan-noorazman/visreg/storage"
	"github.com/hairizuan-noorazman/visreg/testcase"
)

// fakeBrowser stands in for a launched browser process: pages serve
// canned screenshot bytes per URL and record every step taken on them.
type fakeBrowser struct {
	name string

	mu        sync.Mutex
	shots     map[string][]byte
	navErr    map[string]error
	capErr    map[string]error
	pages     []*fakePage
	initCalls int
	initErr   error
	disposals int
	openPages int
}

func (b *fakeBrowser) Name() string { return b.name }

func (b *fakeBrowser) Init(ctx context.Context, opts browser.Options) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initCalls++
	return b.initErr
}

func (b *fakeBrowser) OpenPage(ctx context.Context, url string) (browser.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := &fakePage{browser: b, url: url}
	b.pages = append(b.pages, p)
	b.openPages++
	return p, nil
}

func (b *fakeBrowser) Dispose(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disposals++
	return nil
}

func (b *fakeBrowser) serve(url string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shots == nil {
		b.shots = make(map[string][]byte)
	}
	b.shots[url] = data
}

func (b *fakeBrowser) failNavigation(url string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.navErr == nil {
		b.navErr = make(map[string]error)
	}
	b.navErr[url] = err
}

type fakePage struct {
	browser *fakeBrowser

	mu     sync.Mutex
	url    string
	steps  []string
	styles []string
	closed bool
}

func (p *fakePage) record(step string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, step)
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.browser.mu.Lock()
	err := p.browser.navErr[url]
	p.browser.mu.Unlock()
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	p.record("navigate " + url)
	return nil
}

func (p *fakePage) SetViewport(ctx context.Context, width, height int) error {
	p.record(fmt.Sprintf("viewport %dx%d", width, height))
	return nil
}

func (p *fakePage) WaitVisible(ctx context.Context, selector string) error {
	p.record("wait " + selector)
	return nil
}

func (p *fakePage) WaitDelay(ctx context.Context, delay time.Duration) error {
	p.record("delay " + delay.String())
	return nil
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	p.record("click " + selector)
	return nil
}

func (p *fakePage) Type(ctx context.Context, selector, text string) error {
	p.record("type " + selector + " " + text)
	return nil
}

func (p *fakePage) Press(ctx context.Context, key string) error {
	p.record("press " + key)
	return nil
}

func (p *fakePage) Hover(ctx context.Context, selector string) error {
	p.record("hover " + selector)
	return nil
}

func (p *fakePage) ScrollTo(ctx context.Context, y int) error {
	p.record(fmt.Sprintf("scroll %d", y))
	return nil
}

func (p *fakePage) AddStyle(ctx context.Context, css string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.styles = append(p.styles, css)
	return nil
}

func (p *fakePage) Capture(ctx context.Context, opts browser.CaptureOptions) (*browser.Shot, error) {
	p.mu.Lock()
	url := p.url
	p.mu.Unlock()

	p.browser.mu.Lock()
	err := p.browser.capErr[url]
	data := p.browser.shots[url]
	p.browser.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("nothing served at %q", url)
	}
	p.record("capture " + opts.Selector)
	return &browser.Shot{Data: data, Meta: browser.ShotMeta{TakenAt: time.Now()}}, nil
}

func (p *fakePage) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.browser.mu.Lock()
	p.browser.openPages--
	p.browser.mu.Unlock()
	return nil
}

func solidPNG(t *testing.T, width, height int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testConfig() Config {
	return Config{
		Viewports:          laptopViewports(),
		Engine:             compare.EngineExact,
		Threshold:          0.1,
		CaptureConcurrency: 2,
		CompareConcurrency: 2,
	}
}

func newTestRunner(t *testing.T, sources []source.Source, cfg Config, fb *fakeBrowser) (*Runner, storage.Store) {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	r := New(store, sources, cfg, logger.NewNopLogger())
	r.SetFactory(func(name string, opts browser.Options) (browser.Adapter, error) {
		return fb, nil
	})
	return r, store
}

func TestRunner_UpdateThenTestPasses(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()

	red := solidPNG(t, 20, 10, color.NRGBA{R: 200, A: 255})
	blue := solidPNG(t, 20, 10, color.NRGBA{B: 200, A: 255})

	src := &stubSource{name: "urllist", cases: []testcase.Descriptor{
		{ID: "home", Title: "Home", URL: "http://app.test/"},
		{ID: "pricing", Title: "Pricing", URL: "http://app.test/pricing"},
	}}
	fb := &fakeBrowser{name: "chrome"}
	fb.serve("http://app.test/", red)
	fb.serve("http://app.test/pricing", blue)

	r, store := newTestRunner(t, []source.Source{src}, testConfig(), fb)

	updated, err := r.Run(ctx, ModeUpdate)
	require.NoError(t, err)
	assert.True(t, updated.Success)
	assert.Equal(t, 0, updated.ExitCode)
	assert.Equal(t, ModeUpdate, updated.Mode)
	assert.NotEmpty(t, updated.RunID)
	assert.Equal(t, 2, updated.Outcome.Passed)
	assert.Equal(t, 2, updated.Outcome.Total)

	baseFiles, err := store.List(ctx, storage.KindBase)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"home-laptop.png", "pricing-laptop.png"}, baseFiles)

	tested, err := r.Run(ctx, ModeTest)
	require.NoError(t, err)
	assert.True(t, tested.Success)
	assert.Equal(t, 0, tested.ExitCode)
	assert.Equal(t, 2, tested.Outcome.Passed)
	assert.Empty(t, tested.Failures)
	assert.NotEqual(t, updated.RunID, tested.RunID)

	fb.mu.Lock()
	defer fb.mu.Unlock()
	assert.Equal(t, 0, fb.openPages, "every page should be closed")
	assert.GreaterOrEqual(t, fb.disposals, 1, "browser should be disposed after the run")
}

func TestRunner_ReportsPixelDiff(t *testing.T) {
	ctx := context.Background()

	src := &stubSource{name: "urllist", cases: []testcase.Descriptor{
		{ID: "home", Title: "Home", URL: "http://app.test/"},
	}}
	fb := &fakeBrowser{name: "chrome"}
	fb.serve("http://app.test/", solidPNG(t, 20, 10, color.NRGBA{R: 200, A: 255}))

	r, store := newTestRunner(t, []source.Source{src}, testConfig(), fb)

	_, err := r.Run(ctx, ModeUpdate)
	require.NoError(t, err)

	// The page changed color since the baseline was accepted.
	fb.serve("http://app.test/", solidPNG(t, 20, 10, color.NRGBA{G: 200, A: 255}))

	res, err := r.Run(ctx, ModeTest)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, 1, res.Outcome.FailedDiffs)

	require.Len(t, res.Failures, 1)
	failure := res.Failures[0]
	assert.Equal(t, "home-laptop", failure.ID)
	assert.Equal(t, compare.ReasonPixelDiff, failure.Reason)
	assert.InDelta(t, 100.0, failure.DiffPercentage, 1e-9)

	hasDiff, err := store.Exists(ctx, storage.KindDiff, "home-laptop.png")
	require.NoError(t, err)
	assert.True(t, hasDiff, "diff artifact should be written for a pixel diff")
}

func TestRunner_CaptureFailureIsTerminal(t *testing.T) {
	ctx := context.Background()

	src := &stubSource{name: "urllist", cases: []testcase.Descriptor{
		{ID: "a", Title: "A", URL: "http://app.test/a"},
		{ID: "b", Title: "B", URL: "http://app.test/b"},
	}}
	shot := solidPNG(t, 20, 10, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	fb := &fakeBrowser{name: "chrome"}
	fb.serve("http://app.test/a", shot)
	fb.serve("http://app.test/b", shot)

	r, _ := newTestRunner(t, []source.Source{src}, testConfig(), fb)

	_, err := r.Run(ctx, ModeUpdate)
	require.NoError(t, err)

	fb.failNavigation("http://app.test/b", errors.New("context deadline exceeded"))

	res, err := r.Run(ctx, ModeTest)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Outcome.Total)
	assert.Equal(t, 1, res.Outcome.Passed)
	assert.Equal(t, 1, res.Outcome.CaptureFailures)
	assert.Equal(t, 0, res.Outcome.FailedDiffs)
	// The stored baseline for b must not resurface as a missing current.
	assert.Equal(t, 0, res.Outcome.FailedMissingCurrent)
	assert.Equal(t, 1, res.ExitCode)

	require.Len(t, res.CaptureFailures, 1)
	assert.Equal(t, "b-laptop", res.CaptureFailures[0].ID)
	assert.Contains(t, res.CaptureFailures[0].Error, "deadline exceeded")
}

func TestRunner_MissingBaseWhenNeverUpdated(t *testing.T) {
	ctx := context.Background()

	src := &stubSource{name: "urllist", cases: []testcase.Descriptor{
		{ID: "home", Title: "Home", URL: "http://app.test/"},
	}}
	fb := &fakeBrowser{name: "chrome"}
	fb.serve("http://app.test/", solidPNG(t, 20, 10, color.NRGBA{R: 1, A: 255}))

	r, store := newTestRunner(t, []source.Source{src}, testConfig(), fb)

	res, err := r.Run(ctx, ModeTest)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Outcome.FailedMissingBase)
	assert.Equal(t, 1, res.ExitCode)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, compare.ReasonMissingBase, res.Failures[0].Reason)

	diffFiles, err := store.List(ctx, storage.KindDiff)
	require.NoError(t, err)
	assert.Empty(t, diffFiles, "missing-file short-circuits write no diff artifacts")
}

func TestRunner_StaleBaseReportsMissingCurrent(t *testing.T) {
	ctx := context.Background()

	shot := solidPNG(t, 20, 10, color.NRGBA{R: 50, A: 255})
	src := &stubSource{name: "urllist", cases: []testcase.Descriptor{
		{ID: "home", Title: "Home", URL: "http://app.test/"},
		{ID: "pricing", Title: "Pricing", URL: "http://app.test/pricing"},
	}}
	fb := &fakeBrowser{name: "chrome"}
	fb.serve("http://app.test/", shot)
	fb.serve("http://app.test/pricing", shot)

	r, _ := newTestRunner(t, []source.Source{src}, testConfig(), fb)

	_, err := r.Run(ctx, ModeUpdate)
	require.NoError(t, err)

	// The pricing page was removed from the suite but its baseline remains.
	src.cases = src.cases[:1]

	res, err := r.Run(ctx, ModeTest)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Outcome.Total)
	assert.Equal(t, 1, res.Outcome.Passed)
	assert.Equal(t, 1, res.Outcome.FailedMissingCurrent)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "pricing-laptop", res.Failures[0].ID)
	assert.Equal(t, compare.ReasonMissingCurrent, res.Failures[0].Reason)
}

func TestRunner_ZeroCasesIsEmptySuccess(t *testing.T) {
	ctx := context.Background()

	src := &stubSource{name: "urllist"}
	fb := &fakeBrowser{name: "chrome"}

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	// Leftovers from an older run: a stale capture and a stale baseline.
	_, err = store.Write(ctx, storage.KindCurrent, "old-laptop.png", bytes.NewReader([]byte("stale")))
	require.NoError(t, err)
	_, err = store.Write(ctx, storage.KindBase, "old-laptop.png", bytes.NewReader([]byte("stale")))
	require.NoError(t, err)

	factoryCalls := 0
	r := New(store, []source.Source{src}, testConfig(), logger.NewNopLogger())
	r.SetFactory(func(name string, opts browser.Options) (browser.Adapter, error) {
		factoryCalls++
		return fb, nil
	})

	res, err := r.Run(ctx, ModeTest)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, 0, res.Outcome.Total)
	assert.Equal(t, 0, factoryCalls, "no browser should launch for an empty run")

	currentFiles, err := store.List(ctx, storage.KindCurrent)
	require.NoError(t, err)
	assert.Empty(t, currentFiles, "stale captures are wiped at run start")

	baseFiles, err := store.List(ctx, storage.KindBase)
	require.NoError(t, err)
	assert.Equal(t, []string{"old-laptop.png"}, baseFiles, "baselines are never wiped")
}

func TestRunner_BrowserInitFailureAborts(t *testing.T) {
	ctx := context.Background()

	src := &stubSource{name: "urllist", cases: []testcase.Descriptor{
		{ID: "home", Title: "Home", URL: "http://app.test/"},
	}}
	fb := &fakeBrowser{name: "chrome", initErr: errors.New("executable not found")}

	r, store := newTestRunner(t, []source.Source{src}, testConfig(), fb)

	res, err := r.Run(ctx, ModeTest)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "failed to start")

	currentFiles, listErr := store.List(ctx, storage.KindCurrent)
	require.NoError(t, listErr)
	assert.Empty(t, currentFiles, "no capture work should have run")
}

func TestRunner_UnknownEngineRejected(t *testing.T) {
	ctx := context.Background()

	src := &stubSource{name: "urllist", cases: []testcase.Descriptor{
		{ID: "home", Title: "Home", URL: "http://app.test/"},
	}}
	cfg := testConfig()
	cfg.Engine = "dssim"

	fb := &fakeBrowser{name: "chrome"}
	r, store := newTestRunner(t, []source.Source{src}, cfg, fb)

	// A stale capture proves the wipe never ran.
	_, err := store.Write(ctx, storage.KindCurrent, "old-laptop.png", bytes.NewReader([]byte("stale")))
	require.NoError(t, err)

	res, err := r.Run(ctx, ModeTest)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, compare.ErrEngineNotFound)

	currentFiles, listErr := store.List(ctx, storage.KindCurrent)
	require.NoError(t, listErr)
	assert.Equal(t, []string{"old-laptop.png"}, currentFiles)
}

func TestRunner_UnknownModeRejected(t *testing.T) {
	fb := &fakeBrowser{name: "chrome"}
	r, _ := newTestRunner(t, nil, testConfig(), fb)

	res, err := r.Run(context.Background(), Mode("deploy"))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "unknown run mode")
}

func TestRunner_StopsSourcesOnDiscoveryFailure(t *testing.T) {
	ctx := context.Background()

	src := &bootSource{
		stubSource: stubSource{name: "storybook", listErr: errors.New("status 500")},
		info:       source.Info{BaseURL: "http://localhost:6006"},
	}
	fb := &fakeBrowser{name: "chrome"}
	r, _ := newTestRunner(t, []source.Source{src}, testConfig(), fb)

	_, err := r.Run(ctx, ModeTest)
	require.Error(t, err)
	assert.True(t, src.stopped, "sources must be stopped on the failure path too")
}

func TestRunner_DrivesPageInOrder(t *testing.T) {
	ctx := context.Background()

	src := &stubSource{name: "urllist", cases: []testcase.Descriptor{
		{
			ID:    "menu",
			Title: "Menu",
			URL:   "http://app.test/menu",
			Interactions: []testcase.Interaction{
				{Action: testcase.ActionClick, Selector: "#open"},
				{Action: testcase.ActionWait, DelayMs: 50},
			},
			MaskSelectors: []string{".ad", "#clock"},
			Target:        "#panel",
		},
	}}
	fb := &fakeBrowser{name: "chrome"}
	fb.serve("http://app.test/menu", solidPNG(t, 20, 10, color.NRGBA{R: 9, A: 255}))

	cfg := testConfig()
	cfg.ReadySelector = "#app"
	cfg.ReadyDelay = 100 * time.Millisecond

	r, _ := newTestRunner(t, []source.Source{src}, cfg, fb)

	res, err := r.Run(ctx, ModeUpdate)
	require.NoError(t, err)
	require.True(t, res.Success)

	fb.mu.Lock()
	require.Len(t, fb.pages, 1)
	page := fb.pages[0]
	fb.mu.Unlock()

	page.mu.Lock()
	defer page.mu.Unlock()
	assert.Equal(t, []string{
		"viewport 1366x768",
		"navigate http://app.test/menu",
		"wait #app",
		"delay 100ms",
		"click #open",
		"delay 50ms",
		"capture #panel",
	}, page.steps)
	assert.True(t, page.closed)

	require.Len(t, page.styles, 1)
	assert.Contains(t, page.styles[0], "animation: none !important")
	assert.Contains(t, page.styles[0], ".ad, #clock { visibility: hidden !important; }")
}

func TestRunner_DisableCSSInjectionSkipsStyles(t *testing.T) {
	ctx := context.Background()

	src := &stubSource{name: "urllist", cases: []testcase.Descriptor{
		{ID: "raw", Title: "Raw", URL: "http://app.test/raw", DisableCSSInjection: true},
	}}
	fb := &fakeBrowser{name: "chrome"}
	fb.serve("http://app.test/raw", solidPNG(t, 20, 10, color.NRGBA{R: 9, A: 255}))

	r, _ := newTestRunner(t, []source.Source{src}, testConfig(), fb)

	res, err := r.Run(ctx, ModeUpdate)
	require.NoError(t, err)
	require.True(t, res.Success)

	fb.mu.Lock()
	require.Len(t, fb.pages, 1)
	page := fb.pages[0]
	fb.mu.Unlock()

	page.mu.Lock()
	defer page.mu.Unlock()
	assert.Empty(t, page.styles)
}

func TestRunner_MultiBrowserMatrix(t *testing.T) {
	ctx := context.Background()

	shot := solidPNG(t, 20, 10, color.NRGBA{R: 77, A: 255})
	src := &stubSource{name: "urllist", cases: []testcase.Descriptor{
		{ID: "home", Title: "Home", URL: "http://app.test/"},
	}}

	chrome := &fakeBrowser{name: "chrome"}
	chrome.serve("http://app.test/", shot)
	edge := &fakeBrowser{name: "edge"}
	edge.serve("http://app.test/", shot)

	cfg := testConfig()
	cfg.Browsers = []string{"chrome", "edge"}

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	r := New(store, []source.Source{src}, cfg, logger.NewNopLogger())
	r.SetFactory(func(name string, opts browser.Options) (browser.Adapter, error) {
		switch name {
		case "chrome":
			return chrome, nil
		case "edge":
			return edge, nil
		default:
			return nil, fmt.Errorf("unknown adapter %q", name)
		}
	})

	res, err := r.Run(ctx, ModeUpdate)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Outcome.Passed)

	baseFiles, err := store.List(ctx, storage.KindBase)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"home-laptop--chrome.png", "home-laptop--edge.png"}, baseFiles)

	chrome.mu.Lock()
	assert.Equal(t, 1, chrome.initCalls)
	chrome.mu.Unlock()
	edge.mu.Lock()
	assert.Equal(t, 1, edge.initCalls)
	edge.mu.Unlock()
}
