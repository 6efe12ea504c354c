package posemux

import (
	"context"
	"net/http"
	"sync"
)

// DisabledBridgeMux is a no-op PoseMux implementation used when no bridge
// is attached (for --disable-bridge, serving the API over an existing
// database). It allows the server and admin routes to run without a live
// pose source. Subscribers are tracked so their channels can be
// deterministically closed on Unsubscribe() or Close(), allowing readers
// to unblock predictably during shutdown.
type DisabledBridgeMux struct {
	mu          sync.Mutex
	subscribers map[string]chan string
	closing     bool
}

func NewDisabledBridgeMux() *DisabledBridgeMux {
	return &DisabledBridgeMux{
		subscribers: make(map[string]chan string),
	}
}

func (d *DisabledBridgeMux) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string)

	d.mu.Lock()
	if d.closing {
		// If already closing, return a closed channel so callers don't block.
		close(ch)
		d.mu.Unlock()
		return id, ch
	}
	d.subscribers[id] = ch
	d.mu.Unlock()
	return id, ch
}

func (d *DisabledBridgeMux) Unsubscribe(id string) {
	d.mu.Lock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
	d.mu.Unlock()
}

func (d *DisabledBridgeMux) SendCommand(string) error { return nil }

func (d *DisabledBridgeMux) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *DisabledBridgeMux) Close() error {
	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		return nil
	}
	d.closing = true
	// Close all subscriber channels
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	d.mu.Unlock()
	return nil
}

func (d *DisabledBridgeMux) Initialize() error { return nil }

func (d *DisabledBridgeMux) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/bridge-disabled", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("bridge disabled"))
	})
}
