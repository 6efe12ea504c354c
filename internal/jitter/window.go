// Package jitter implements rolling dispersion statistics for tracked
// devices. Each device channel (position x/y/z, rotation pitch/yaw/roll)
// keeps a bounded FIFO window of recent samples; the mean and population
// standard deviation over the window quantify short-term tracking noise.
package jitter

import (
	"github.com/gammazero/deque"
	"gonum.org/v1/gonum/stat"
)

// Window is a fixed-capacity FIFO of scalar samples. When full, pushing a
// new sample evicts the oldest. Windows are not safe for concurrent use;
// Tracker provides the locking.
type Window struct {
	capacity int
	values   deque.Deque[float64]
}

// NewWindow returns an empty window holding at most capacity samples.
// A capacity below 1 is treated as 1.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{capacity: capacity}
}

// Push appends v, evicting the oldest sample if the window is full.
// NaN and Inf are accepted and propagate into the statistics.
func (w *Window) Push(v float64) {
	if w.values.Len() == w.capacity {
		w.values.PopFront()
	}
	w.values.PushBack(v)
}

// Len returns the number of samples currently held.
func (w *Window) Len() int {
	return w.values.Len()
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return w.capacity
}

// Clear discards all samples. Capacity is unchanged.
func (w *Window) Clear() {
	w.values.Clear()
}

// Values returns a copy of the window contents, oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, w.values.Len())
	for i := range out {
		out[i] = w.values.At(i)
	}
	return out
}

// Stats returns the mean and population standard deviation of the current
// window contents, and the sample count. An empty window returns (0, 0, 0)
// rather than failing; a single sample has sigma 0.
//
// The divisor is n (population), matching the numpy default the measurement
// methodology was validated against. Recomputing over the full window on
// each call is deliberate: windows are small and snapshots infrequent.
func (w *Window) Stats() (mean, sigma float64, count int) {
	count = w.values.Len()
	if count == 0 {
		return 0, 0, 0
	}
	xs := w.Values()
	return stat.Mean(xs, nil), stat.PopStdDev(xs, nil), count
}
