package source

import (
	"context"

	"github.com/hairizuan-noorazman/visreg/browser"
	"github.com/hairizuan-noorazman/visreg/testcase"
)

// Info describes where a source's pages are served from.
type Info struct {
	// BaseURL resolves relative descriptor URLs.
	BaseURL string

	// InitialPageURL optionally names a page worth visiting before any
	// case runs, e.g. to warm an app shell.
	InitialPageURL string
}

// Query carries context a source may use while listing cases.
type Query struct {
	// Viewport is the run's first viewport, for sources that need one
	// to introspect their target.
	Viewport *testcase.Viewport

	// Page is a live browser page for sources that introspect by
	// driving the target. It may be nil; HTTP-based sources ignore it.
	Page browser.Page
}

// Source yields test case descriptors.
type Source interface {
	// Name identifies the source in logs and duplicate warnings.
	Name() string

	// ListCases returns the descriptors this source provides. Relative
	// descriptor URLs are resolved against the source's BaseURL by the
	// caller.
	ListCases(ctx context.Context, query Query) ([]testcase.Descriptor, error)
}

// Starter is implemented by sources with a startup step, such as probing
// that a server is reachable. Discovery calls Start before ListCases.
type Starter interface {
	Start(ctx context.Context) (Info, error)
}

// Stopper is implemented by sources that hold resources until the end of
// the run. Stop runs during cleanup on every exit path and must tolerate
// a source whose Start never ran or failed.
type Stopper interface {
	Stop(ctx context.Context) error
}
