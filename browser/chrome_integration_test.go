//go:build integration
// +build integration

package browser

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hairizuan-noorazman/visreg/logger"
)

const integrationPage = `<!DOCTYPE html>
<html>
<head><style>
body { margin: 0; background: #ffffff; }
#hero { width: 300px; height: 120px; background: #3366cc; }
#hero:hover { background: #cc3366; }
#late { display: none; }
</style></head>
<body>
<div id="hero"></div>
<input id="field" type="text">
<div id="late">late content</div>
<script>
setTimeout(() => { document.getElementById("late").style.display = "block"; }, 100);
</script>
</body>
</html>`

// TestChromeAdapterLifecycle drives a real Chrome against a local page.
func TestChromeAdapterLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, integrationPage)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	adapter := NewChromeAdapter(logger.NewNopLogger())
	opts := Options{Headless: true, NoSandbox: true}
	if err := adapter.Init(ctx, opts); err != nil {
		t.Fatalf("failed to launch chrome: %v", err)
	}
	defer adapter.Dispose(context.Background())

	if err := adapter.Init(ctx, opts); err != nil {
		t.Fatalf("second init should be a no-op: %v", err)
	}

	page, err := adapter.OpenPage(ctx, "")
	if err != nil {
		t.Fatalf("failed to open page: %v", err)
	}
	defer page.Close(context.Background())

	if err := page.SetViewport(ctx, 800, 600); err != nil {
		t.Fatalf("failed to set viewport: %v", err)
	}
	if err := page.Navigate(ctx, server.URL); err != nil {
		t.Fatalf("failed to navigate: %v", err)
	}

	t.Run("wait_for_selector", func(t *testing.T) {
		if err := page.WaitVisible(ctx, "#late"); err != nil {
			t.Fatalf("late element never became visible: %v", err)
		}
	})

	t.Run("viewport_capture", func(t *testing.T) {
		shot, err := page.Capture(ctx, CaptureOptions{})
		if err != nil {
			t.Fatalf("failed to capture viewport: %v", err)
		}
		if shot.Meta.Width != 800 || shot.Meta.Height != 600 {
			t.Fatalf("unexpected dimensions: got %dx%d, want 800x600", shot.Meta.Width, shot.Meta.Height)
		}
		if _, err := png.Decode(bytes.NewReader(shot.Data)); err != nil {
			t.Fatalf("capture is not a valid png: %v", err)
		}
	})

	t.Run("element_capture", func(t *testing.T) {
		shot, err := page.Capture(ctx, CaptureOptions{Selector: "#hero"})
		if err != nil {
			t.Fatalf("failed to capture element: %v", err)
		}
		if shot.Meta.Width != 300 || shot.Meta.Height != 120 {
			t.Fatalf("unexpected element dimensions: got %dx%d, want 300x120", shot.Meta.Width, shot.Meta.Height)
		}
	})

	t.Run("interactions", func(t *testing.T) {
		if err := page.Click(ctx, "#field"); err != nil {
			t.Fatalf("failed to click: %v", err)
		}
		if err := page.Type(ctx, "#field", "hello"); err != nil {
			t.Fatalf("failed to type: %v", err)
		}
		if err := page.Press(ctx, "Tab"); err != nil {
			t.Fatalf("failed to press key: %v", err)
		}
		if err := page.Hover(ctx, "#hero"); err != nil {
			t.Fatalf("failed to hover: %v", err)
		}
		if err := page.ScrollTo(ctx, 0); err != nil {
			t.Fatalf("failed to scroll: %v", err)
		}
	})

	t.Run("style_injection", func(t *testing.T) {
		if err := page.AddStyle(ctx, "#late { visibility: hidden !important; }"); err != nil {
			t.Fatalf("failed to inject style: %v", err)
		}
	})
}
