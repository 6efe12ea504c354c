package jitter

import (
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// Tracker maintains the channel windows and loss counters for every device
// currently observed. Windows are registered lazily on first ingest and
// discarded on RemoveDevice, so the tracker follows whatever set of devices
// the runtime happens to report.
//
// Ingest runs on the acquisition goroutine while snapshots are read from
// HTTP handlers, so all state is guarded by an RWMutex. A pose's channels
// are ingested under a single lock acquisition, which keeps the x/y/z
// windows aligned for the distance computation.
type Tracker struct {
	mu       sync.RWMutex
	capacity int
	windows  map[ChannelKey]*Window
	frames   map[string]int64
	lost     map[string]int64
}

// NewTracker returns a Tracker whose windows hold capacity samples each.
func NewTracker(capacity int) *Tracker {
	if capacity < 1 {
		capacity = 1
	}
	return &Tracker{
		capacity: capacity,
		windows:  make(map[ChannelKey]*Window),
		frames:   make(map[string]int64),
		lost:     make(map[string]int64),
	}
}

// Capacity returns the per-channel window capacity.
func (t *Tracker) Capacity() int {
	return t.capacity
}

// Ingest appends value to the device's channel window, creating the window
// on first use. Values are never rejected; NaN/Inf propagate into the
// statistics.
func (t *Tracker) Ingest(serial, channel string, value float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.window(serial, channel).Push(value)
}

// IngestPose records one valid pose sample: all six channels are appended
// under a single lock acquisition and the frame counter is incremented.
func (t *Tracker) IngestPose(serial string, x, y, z, pitch, yaw, roll float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.window(serial, ChannelX).Push(x)
	t.window(serial, ChannelY).Push(y)
	t.window(serial, ChannelZ).Push(z)
	t.window(serial, ChannelPitch).Push(pitch)
	t.window(serial, ChannelYaw).Push(yaw)
	t.window(serial, ChannelRoll).Push(roll)
	t.frames[serial]++
}

// RecordLoss records a tick where the device was observed but its pose was
// invalid. No value is fabricated; only the counters move.
func (t *Tracker) RecordLoss(serial string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames[serial]++
	t.lost[serial]++
}

// window returns the channel's window, creating it lazily. Callers hold mu.
func (t *Tracker) window(serial, channel string) *Window {
	key := ChannelKey{Serial: serial, Channel: channel}
	w, ok := t.windows[key]
	if !ok {
		w = NewWindow(t.capacity)
		t.windows[key] = w
	}
	return w
}

// Snapshot returns the current statistics for one channel. An unknown or
// empty channel returns the zero sentinel, never an error.
func (t *Tracker) Snapshot(serial, channel string) ChannelStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	w, ok := t.windows[ChannelKey{Serial: serial, Channel: channel}]
	if !ok {
		return ChannelStats{}
	}
	mean, sigma, count := w.Stats()
	return ChannelStats{Mean: mean, Sigma: sigma, Count: count}
}

// DeviceSnapshot returns the statistics of all six channels plus the
// distance jitter and loss accounting for one device.
func (t *Tracker) DeviceSnapshot(serial string) DeviceStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.deviceSnapshotLocked(serial)
}

// SnapshotAll returns a DeviceStats per known device, sorted by serial.
func (t *Tracker) SnapshotAll() []DeviceStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]DeviceStats, 0, len(t.frames))
	for _, serial := range t.serialsLocked() {
		out = append(out, t.deviceSnapshotLocked(serial))
	}
	return out
}

func (t *Tracker) deviceSnapshotLocked(serial string) DeviceStats {
	ds := DeviceStats{Serial: serial}
	ds.X = t.channelStatsLocked(serial, ChannelX)
	ds.Y = t.channelStatsLocked(serial, ChannelY)
	ds.Z = t.channelStatsLocked(serial, ChannelZ)
	ds.Pitch = t.channelStatsLocked(serial, ChannelPitch)
	ds.Yaw = t.channelStatsLocked(serial, ChannelYaw)
	ds.Roll = t.channelStatsLocked(serial, ChannelRoll)
	ds.Distance = t.distanceStatsLocked(serial)
	ds.Samples = ds.X.Count
	ds.Frames = t.frames[serial]
	ds.Lost = t.lost[serial]
	if ds.Frames > 0 {
		ds.LossRate = 100 * float64(ds.Lost) / float64(ds.Frames)
	}
	return ds
}

func (t *Tracker) channelStatsLocked(serial, channel string) ChannelStats {
	w, ok := t.windows[ChannelKey{Serial: serial, Channel: channel}]
	if !ok {
		return ChannelStats{}
	}
	mean, sigma, count := w.Stats()
	return ChannelStats{Mean: mean, Sigma: sigma, Count: count}
}

// DistanceStats returns the mean and sigma of the per-sample distance from
// the window's mean position. The zero sentinel is returned when no
// position samples are held.
func (t *Tracker) DistanceStats(serial string) ChannelStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.distanceStatsLocked(serial)
}

func (t *Tracker) distanceStatsLocked(serial string) ChannelStats {
	wx := t.windows[ChannelKey{Serial: serial, Channel: ChannelX}]
	wy := t.windows[ChannelKey{Serial: serial, Channel: ChannelY}]
	wz := t.windows[ChannelKey{Serial: serial, Channel: ChannelZ}]
	if wx == nil || wy == nil || wz == nil {
		return ChannelStats{}
	}

	xs, ys, zs := wx.Values(), wy.Values(), wz.Values()
	// IngestPose keeps the three windows aligned; if single-channel Ingest
	// calls have skewed them, align on the most recent n samples.
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}
	if len(zs) < n {
		n = len(zs)
	}
	if n == 0 {
		return ChannelStats{}
	}
	xs, ys, zs = xs[len(xs)-n:], ys[len(ys)-n:], zs[len(zs)-n:]

	mx := stat.Mean(xs, nil)
	my := stat.Mean(ys, nil)
	mz := stat.Mean(zs, nil)

	dists := make([]float64, n)
	for i := 0; i < n; i++ {
		dx, dy, dz := xs[i]-mx, ys[i]-my, zs[i]-mz
		dists[i] = math.Sqrt(dx*dx + dy*dy + dz*dz)
	}
	return ChannelStats{
		Mean:  stat.Mean(dists, nil),
		Sigma: stat.PopStdDev(dists, nil),
		Count: n,
	}
}

// LossRate returns the loss percentage for the device (0 when no frames).
func (t *Tracker) LossRate(serial string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	frames := t.frames[serial]
	if frames == 0 {
		return 0
	}
	return 100 * float64(t.lost[serial]) / float64(frames)
}

// WindowValues returns a copy of the device's current window for one
// channel, oldest first. Nil when the device or channel is unknown.
func (t *Tracker) WindowValues(serial, channel string) []float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	w, ok := t.windows[ChannelKey{Serial: serial, Channel: channel}]
	if !ok {
		return nil
	}
	return w.Values()
}

// SampleCount returns the number of windowed position samples for a device.
func (t *Tracker) SampleCount(serial string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	w, ok := t.windows[ChannelKey{Serial: serial, Channel: ChannelX}]
	if !ok {
		return 0
	}
	return w.Len()
}

// Reset clears the device's windows and counters for a fresh measurement
// run. The windows stay registered.
func (t *Tracker) Reset(serial string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, w := range t.windows {
		if key.Serial == serial {
			w.Clear()
		}
	}
	t.frames[serial] = 0
	t.lost[serial] = 0
}

// ResetAll clears every window and counter.
func (t *Tracker) ResetAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, w := range t.windows {
		w.Clear()
	}
	for serial := range t.frames {
		t.frames[serial] = 0
	}
	for serial := range t.lost {
		t.lost[serial] = 0
	}
}

// RemoveDevice discards all state for a device that is no longer tracked.
func (t *Tracker) RemoveDevice(serial string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.windows {
		if key.Serial == serial {
			delete(t.windows, key)
		}
	}
	delete(t.frames, serial)
	delete(t.lost, serial)
}

// Serials returns the devices with any recorded state, sorted.
func (t *Tracker) Serials() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.serialsLocked()
}

func (t *Tracker) serialsLocked() []string {
	seen := make(map[string]bool)
	for key := range t.windows {
		seen[key.Serial] = true
	}
	for serial := range t.frames {
		seen[serial] = true
	}
	serials := make([]string, 0, len(seen))
	for serial := range seen {
		serials = append(serials, serial)
	}
	sort.Strings(serials)
	return serials
}
