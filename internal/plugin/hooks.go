package plugin

import (
	"context"
	"log"
	"sync"
)

// Hooks fans events out to subscribed plugins without blocking the caller.
type Hooks struct {
	manager  *Manager
	executor *Executor
	wg       sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]bool
	skipped  int
	onResult func(p *Plugin, resp *Response, err error)
}

// NewHooks creates a dispatcher over the plugins known to manager.
func NewHooks(manager *Manager, executor *Executor) *Hooks {
	return &Hooks{
		manager:  manager,
		executor: executor,
		inflight: make(map[string]bool),
	}
}

// OnResult registers a callback invoked after each plugin run.
func (h *Hooks) OnResult(fn func(p *Plugin, resp *Response, err error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onResult = fn
}

// Fire starts every plugin subscribed to req.Event. A plugin still running
// from an earlier event is skipped rather than queued. It returns the number
// of plugins started.
func (h *Hooks) Fire(ctx context.Context, req Request) int {
	started := 0
	for _, p := range h.manager.Subscribers(req.Event) {
		name := p.Manifest.Name

		h.mu.Lock()
		if h.inflight[name] {
			h.skipped++
			h.mu.Unlock()
			continue
		}
		h.inflight[name] = true
		h.mu.Unlock()

		started++
		h.wg.Add(1)
		go func(p *Plugin) {
			defer h.wg.Done()

			resp, err := h.executor.ExecuteContext(ctx, p, &req)
			switch {
			case err != nil:
				log.Printf("Plugin %s failed on %s: %v", p.Manifest.Name, req.Event, err)
			case !resp.Success:
				log.Printf("Plugin %s reported error on %s: %s", p.Manifest.Name, req.Event, resp.Error)
			}

			h.mu.Lock()
			delete(h.inflight, p.Manifest.Name)
			cb := h.onResult
			h.mu.Unlock()

			if cb != nil {
				cb(p, resp, err)
			}
		}(p)
	}
	return started
}

// Skipped returns how many runs were skipped because the plugin was busy.
func (h *Hooks) Skipped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.skipped
}

// Wait blocks until all started plugin runs finish.
func (h *Hooks) Wait() {
	h.wg.Wait()
}
