package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hairizuan-noorazman/visreg/logger"
)

var (
	// ErrPoolClosed is returned by Acquire once DisposeAll has run.
	ErrPoolClosed = errors.New("browser pool is closed")
)

// poolEntry tracks one live adapter and its borrowers.
type poolEntry struct {
	adapter Adapter
	refs    int
	ready   chan struct{}
	initErr error
}

// Pool hands out at most one live adapter per name and options pair.
// Borrowers share the instance; releasing the last reference disposes it.
type Pool struct {
	mu      sync.Mutex
	entries map[string]*poolEntry
	closed  bool
	logger  logger.Logger
}

// NewPool creates an empty adapter pool.
func NewPool(log logger.Logger) *Pool {
	return &Pool{
		entries: make(map[string]*poolEntry),
		logger:  log,
	}
}

// Key returns the pool key for an adapter name and options. Options
// serialize with fixed field order, so equal configurations always map
// to the same key.
func Key(name string, opts Options) (string, error) {
	data, err := json.Marshal(opts)
	if err != nil {
		return "", fmt.Errorf("failed to serialize browser options: %w", err)
	}
	return name + "#" + string(data), nil
}

// Acquire returns the shared adapter for the given name and options,
// creating and initializing it on first use. Concurrent callers for the
// same key block until the single initialization finishes; if it fails,
// every caller gets the error and no entry stays registered. The
// returned release function gives the reference back.
func (p *Pool) Acquire(ctx context.Context, name string, opts Options, factory Factory) (Adapter, func(), error) {
	key, err := Key(name, opts)
	if err != nil {
		return nil, nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, nil, ErrPoolClosed
	}

	e, exists := p.entries[key]
	if !exists {
		adapter, ferr := factory(name, opts)
		if ferr != nil {
			p.mu.Unlock()
			return nil, nil, ferr
		}
		e = &poolEntry{adapter: adapter, ready: make(chan struct{})}
		p.entries[key] = e
	}
	e.refs++
	p.mu.Unlock()

	if !exists {
		initErr := e.adapter.Init(ctx, opts)

		p.mu.Lock()
		e.initErr = initErr
		if initErr != nil {
			delete(p.entries, key)
		}
		p.mu.Unlock()
		close(e.ready)
	} else {
		select {
		case <-e.ready:
		case <-ctx.Done():
			p.release(key, e)
			return nil, nil, ctx.Err()
		}
	}

	if e.initErr != nil {
		return nil, nil, fmt.Errorf("browser %s failed to start: %w", name, e.initErr)
	}

	p.logger.Debug(ctx, "browser adapter acquired", map[string]interface{}{
		"adapter": name,
	})

	var once sync.Once
	release := func() {
		once.Do(func() {
			p.release(key, e)
		})
	}
	return e.adapter, release, nil
}

func (p *Pool) release(key string, e *poolEntry) {
	p.mu.Lock()
	e.refs--
	// Dispose only when this was the last reference to the entry that is
	// still registered; DisposeAll or a failed init may have removed it.
	if e.refs > 0 || p.entries[key] != e {
		p.mu.Unlock()
		return
	}
	delete(p.entries, key)
	p.mu.Unlock()

	ctx := context.Background()
	if err := e.adapter.Dispose(ctx); err != nil {
		p.logger.Warn(ctx, "failed to dispose browser adapter", map[string]interface{}{
			"adapter": e.adapter.Name(),
			"error":   err.Error(),
		})
	}
}

// DisposeAll tears down every remaining adapter and closes the pool.
// Dispose errors are logged rather than returned so one stuck browser
// cannot mask the run outcome. Calling it again is a no-op.
func (p *Pool) DisposeAll(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	remaining := p.entries
	p.entries = make(map[string]*poolEntry)
	p.mu.Unlock()

	keys := make([]string, 0, len(remaining))
	for key := range remaining {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		e := remaining[key]
		<-e.ready
		if e.initErr != nil {
			continue
		}
		if err := e.adapter.Dispose(ctx); err != nil {
			p.logger.Warn(ctx, "failed to dispose browser adapter", map[string]interface{}{
				"adapter": e.adapter.Name(),
				"error":   err.Error(),
			})
			continue
		}
		p.logger.Debug(ctx, "browser adapter disposed", map[string]interface{}{
			"adapter": e.adapter.Name(),
		})
	}
}
