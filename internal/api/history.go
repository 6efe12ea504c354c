package api

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gammazero/deque"

	"github.com/banshee-data/jitter.report/internal/vr"
)

// HistoryPoint is one device's sigma state at one published snapshot.
// Lengths are metres, rotations degrees, matching the tracker.
type HistoryPoint struct {
	Time          time.Time `json:"time"`
	SigmaX        float64   `json:"sigma_x"`
	SigmaY        float64   `json:"sigma_y"`
	SigmaZ        float64   `json:"sigma_z"`
	SigmaDistance float64   `json:"sigma_distance"`
	LossRate      float64   `json:"loss_rate"`
}

// History keeps a bounded ring of sigma snapshots per device so the chart
// pages can render a time series without persisting anything. Points
// arrive at the session's publish cadence (every RenderDivisor-th frame),
// so a 500-point ring covers around 17 seconds of a 90Hz stream.
type History struct {
	mu       sync.Mutex
	capacity int
	rings    map[string]*deque.Deque[HistoryPoint]
}

// NewHistory returns a History whose per-device rings hold capacity points.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 500
	}
	return &History{
		capacity: capacity,
		rings:    make(map[string]*deque.Deque[HistoryPoint]),
	}
}

// Observe appends one point per non-station device in the snapshot.
func (h *History) Observe(snap vr.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ds := range snap.Devices {
		if ds.Class == vr.ClassBaseStation {
			continue
		}
		ring := h.rings[ds.Serial]
		if ring == nil {
			ring = &deque.Deque[HistoryPoint]{}
			h.rings[ds.Serial] = ring
		}
		if ring.Len() >= h.capacity {
			ring.PopFront()
		}
		ring.PushBack(HistoryPoint{
			Time:          snap.Time,
			SigmaX:        ds.Stats.X.Sigma,
			SigmaY:        ds.Stats.Y.Sigma,
			SigmaZ:        ds.Stats.Z.Sigma,
			SigmaDistance: ds.Stats.Distance.Sigma,
			LossRate:      ds.Stats.LossRate,
		})
	}
}

// Series returns a device's points, oldest first. Nil for unknown serials.
func (h *History) Series(serial string) []HistoryPoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	ring, ok := h.rings[serial]
	if !ok {
		return nil
	}
	out := make([]HistoryPoint, ring.Len())
	for i := range out {
		out[i] = ring.At(i)
	}
	return out
}

// Serials lists the devices with recorded history, sorted.
func (h *History) Serials() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.rings))
	for serial := range h.rings {
		out = append(out, serial)
	}
	sort.Strings(out)
	return out
}

// Clear drops every ring, matching a statistics clear.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rings = make(map[string]*deque.Deque[HistoryPoint])
}

// ClearSerial drops one device's ring.
func (h *History) ClearSerial(serial string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rings, serial)
}

// Follow consumes the session's published snapshots until the context is
// cancelled. Run it on its own goroutine next to the pose subscriber.
func (h *History) Follow(ctx context.Context, session *vr.Session) {
	id, ch := session.SubscribeStats()
	defer session.Unsubscribe(id)
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return
			}
			h.Observe(snap)
		case <-ctx.Done():
			return
		}
	}
}
